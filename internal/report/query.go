// Package report reconstructs summaries from stored records: it recognises
// summary requests, infers the record type and time window they ask about,
// and aggregates the matching records per type.
package report

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/onelife/onelife/internal/record"
)

var summaryKeywords = []string{
	"summary", "summarize", "report", "analyze", "analysis",
	"show me", "tell me about", "how much", "what did i",
	"monthly", "weekly", "daily", "this month", "this week",
	"expenses", "spending", "mood", "health", "todos",
	"trend", "insight", "overview", "recap",
}

// IsSummaryRequest reports whether text asks for aggregated history rather
// than describing a new event.
func IsSummaryRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range summaryKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

var requestKeywords = []string{
	"summary", "summarize", "report", "analyze", "analysis",
	"show me", "tell me about", "how much", "what did i", "how was", "how's my", "how is my",
	"trend", "insight", "overview", "recap",
}

// IsExplicitRequest reports whether text is phrased as a request for history:
// a question, or one of the request phrases. Topic words like "mood" or
// "monthly" alone do not count.
func IsExplicitRequest(text string) bool {
	lower := strings.TrimSpace(strings.ToLower(text))
	if strings.HasSuffix(lower, "?") {
		return true
	}
	for _, k := range requestKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

var typeKeywords = []struct {
	Type     record.Type
	Keywords []string
}{
	{record.TypeExpense, []string{"expense", "spending", "spent"}},
	{record.TypeMood, []string{"mood", "feeling"}},
	{record.TypeHealth, []string{"health", "exercise", "workout"}},
	{record.TypeTodo, []string{"todo", "task"}},
}

// InferType returns the record type text refers to. ok is false when text
// names no type, meaning all types.
func InferType(text string) (record.Type, bool) {
	lower := strings.ToLower(text)
	for _, tk := range typeKeywords {
		for _, k := range tk.Keywords {
			if strings.Contains(lower, k) {
				return tk.Type, true
			}
		}
	}
	return "", false
}

// Window is a time window applied to record dates.
type Window string

const (
	WindowAll   Window = "all"
	WindowToday Window = "today"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

// ParseWindow returns the time window text refers to; "today" takes
// precedence over "week", which takes precedence over "month".
func ParseWindow(text string) Window {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "today"):
		return WindowToday
	case strings.Contains(lower, "week"):
		return WindowWeek
	case strings.Contains(lower, "month"):
		return WindowMonth
	}
	return WindowAll
}

// ParseWindowName parses an explicit window name such as a CLI flag value.
func ParseWindowName(s string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(s))); w {
	case "":
		return WindowAll, nil
	case WindowAll, WindowToday, WindowWeek, WindowMonth:
		return w, nil
	}
	return "", fmt.Errorf("unknown time window %q (want all, today, week or month)", s)
}

// Cutoff returns the earliest date inside the window. ok is false for
// WindowAll, which has no cutoff.
func (w Window) Cutoff(now time.Time) (time.Time, bool) {
	switch w {
	case WindowToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
	case WindowWeek:
		return now.AddDate(0, 0, -7), true
	case WindowMonth:
		return now.AddDate(0, -1, 0), true
	}
	return time.Time{}, false
}

// Query is a parsed summary request.
type Query struct {
	Type   *record.Type `json:"type,omitempty"`
	Window Window       `json:"window"`
}

// ParseQuery infers the type filter and time window from free text.
func ParseQuery(text string) Query {
	q := Query{Window: ParseWindow(text)}
	if t, ok := InferType(text); ok {
		q.Type = &t
	}
	return q
}

// FilterType returns the records of type t, keeping their order.
func FilterType(records []record.Record, t record.Type) []record.Record {
	out := make([]record.Record, 0, len(records))
	for _, r := range records {
		if r.Type() == t {
			out = append(out, r)
		}
	}
	return out
}

// FilterSince returns the records dated at or after cutoff, keeping their order.
func FilterSince(records []record.Record, cutoff time.Time) []record.Record {
	out := make([]record.Record, 0, len(records))
	for _, r := range records {
		if !r.Date.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// FilterWindow applies w relative to now.
func FilterWindow(records []record.Record, w Window, now time.Time) []record.Record {
	cutoff, ok := w.Cutoff(now)
	if !ok {
		return records
	}
	return FilterSince(records, cutoff)
}

// SortForDisplay returns a copy of records ordered newest first. Records with
// equal dates keep their store order.
func SortForDisplay(records []record.Record) []record.Record {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b record.Record) int {
		return b.Date.Compare(a.Date)
	})
	return out
}
