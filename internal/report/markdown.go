package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/onelife/onelife/internal/record"
)

// DefaultLimit is the number of records listed per group when rendering.
const DefaultLimit = 5

// Title describes the query in words, e.g. "Expense summary (this month)".
func (r *Report) Title() string {
	subject := "Life"
	if r.Query.Type != nil {
		subject = r.Query.Type.Label()
	}
	switch r.Query.Window {
	case WindowToday:
		return subject + " summary (today)"
	case WindowWeek:
		return subject + " summary (past week)"
	case WindowMonth:
		return subject + " summary (past month)"
	}
	return subject + " summary (all time)"
}

// Markdown renders the report, listing at most limit records per group.
// limit <= 0 uses DefaultLimit.
func (r *Report) Markdown(limit int) string {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", r.Title())
	if r.Empty() {
		b.WriteString("No records found for this query.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Found %d %s.\n", r.Total, plural(r.Total, "record", "records"))

	for _, g := range r.Groups {
		fmt.Fprintf(&b, "\n### %s (%d)\n\n", g.Type.Label(), len(g.Records))
		for i, rec := range g.Records {
			if i == limit {
				fmt.Fprintf(&b, "- ... and %d more\n", len(g.Records)-limit)
				break
			}
			fmt.Fprintf(&b, "- %s\n", Line(rec))
		}
	}

	if s := r.Expense; s != nil {
		b.WriteString("\n### Expense statistics\n\n")
		fmt.Fprintf(&b, "- Total: $%s\n", s.Total.StringFixed(2))
		fmt.Fprintf(&b, "- Average: $%s\n", s.Average.StringFixed(2))
		b.WriteString("- By category:\n")
		for _, c := range s.ByCategory {
			fmt.Fprintf(&b, "  - %s: $%s\n", c.Category, c.Total.StringFixed(2))
		}
	}
	if s := r.Mood; s != nil {
		b.WriteString("\n### Mood statistics\n\n")
		for _, m := range s.Counts {
			fmt.Fprintf(&b, "- %s: %d (%.1f%%)\n", m.Mood, m.Count, m.Percentage)
		}
	}
	if s := r.Todo; s != nil {
		b.WriteString("\n### Todo statistics\n\n")
		fmt.Fprintf(&b, "- Completed: %d\n", s.Completed)
		fmt.Fprintf(&b, "- Pending: %d\n", s.Pending)
		fmt.Fprintf(&b, "- Completion rate: %.1f%%\n", s.CompletionRate*100)
	}
	return b.String()
}

// Line renders one record as a single list line.
func Line(r record.Record) string {
	date := FormatDay(r.Date)
	switch b := r.Body.(type) {
	case record.Expense:
		cat := b.Category
		if cat == "" {
			cat = Uncategorized
		}
		return fmt.Sprintf("%s: $%s - %s", date, b.AmountOrZero().StringFixed(2), cat)
	case record.Mood:
		mood := b.Mood
		if mood == "" {
			mood = NeutralMood
		}
		return fmt.Sprintf("%s: %s - %s", date, mood, truncate(r.Description, 30))
	case record.Todo:
		mark := "[ ]"
		if b.Completed {
			mark = "[x]"
		}
		return fmt.Sprintf("%s: %s %s", date, mark, r.Description)
	}
	return fmt.Sprintf("%s: %s", date, truncate(r.Description, 40))
}

// FormatDay renders t as a short local date such as "Mar 4".
func FormatDay(t time.Time) string {
	return t.Local().Format("Jan 2")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
