package report

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/onelife/onelife/internal/record"
)

// NeutralMood is counted for mood records that carry no mood label.
const NeutralMood = "Neutral"

// Uncategorized labels expenses stored without a category.
const Uncategorized = "Uncategorized"

// Group holds the records of one type, newest first.
type Group struct {
	Type    record.Type     `json:"type"`
	Records []record.Record `json:"records"`
}

// CategoryTotal is the expense total for one category.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// ExpenseStats aggregates expense records. Missing amounts count as zero.
type ExpenseStats struct {
	Count      int             `json:"count"`
	Total      decimal.Decimal `json:"total"`
	Average    decimal.Decimal `json:"average"`
	ByCategory []CategoryTotal `json:"by_category"`
}

// MoodCount is the number of mood records with one label.
type MoodCount struct {
	Mood       string  `json:"mood"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// MoodStats aggregates mood records.
type MoodStats struct {
	Count  int         `json:"count"`
	Counts []MoodCount `json:"counts"`
}

// TodoStats aggregates todo records.
type TodoStats struct {
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	Pending        int     `json:"pending"`
	CompletionRate float64 `json:"completion_rate"` // completed / total, 0 to 1
}

// Report is the aggregated view over the records matching a Query.
type Report struct {
	Query       Query         `json:"query"`
	GeneratedAt time.Time     `json:"generated_at"`
	Total       int           `json:"total"`
	Groups      []Group       `json:"groups"`
	Expense     *ExpenseStats `json:"expense,omitempty"`
	Mood        *MoodStats    `json:"mood,omitempty"`
	Todo        *TodoStats    `json:"todo,omitempty"`
}

// Empty reports whether no record matched.
func (r *Report) Empty() bool { return r.Total == 0 }

// Group returns the group for t, or nil.
func (r *Report) Group(t record.Type) *Group {
	for i := range r.Groups {
		if r.Groups[i].Type == t {
			return &r.Groups[i]
		}
	}
	return nil
}

// Build filters records by q relative to now and aggregates the result.
// Groups appear in the order their type is first seen after sorting newest
// first.
func Build(records []record.Record, q Query, now time.Time) *Report {
	matched := records
	if q.Type != nil {
		matched = FilterType(matched, *q.Type)
	}
	matched = SortForDisplay(FilterWindow(matched, q.Window, now))

	rep := &Report{Query: q, GeneratedAt: now, Total: len(matched), Groups: []Group{}}
	index := make(map[record.Type]int)
	for _, r := range matched {
		i, ok := index[r.Type()]
		if !ok {
			i = len(rep.Groups)
			index[r.Type()] = i
			rep.Groups = append(rep.Groups, Group{Type: r.Type()})
		}
		rep.Groups[i].Records = append(rep.Groups[i].Records, r)
	}

	for _, g := range rep.Groups {
		switch g.Type {
		case record.TypeExpense:
			rep.Expense = expenseStats(g.Records)
		case record.TypeMood:
			rep.Mood = moodStats(g.Records)
		case record.TypeTodo:
			rep.Todo = todoStats(g.Records)
		}
	}
	return rep
}

func expenseStats(records []record.Record) *ExpenseStats {
	s := &ExpenseStats{Total: decimal.Zero, ByCategory: []CategoryTotal{}}
	pos := make(map[string]int)
	for _, r := range records {
		e, ok := r.Body.(record.Expense)
		if !ok {
			continue
		}
		amount := e.AmountOrZero()
		s.Count++
		s.Total = s.Total.Add(amount)

		cat := e.Category
		if cat == "" {
			cat = Uncategorized
		}
		i, seen := pos[cat]
		if !seen {
			i = len(s.ByCategory)
			pos[cat] = i
			s.ByCategory = append(s.ByCategory, CategoryTotal{Category: cat, Total: decimal.Zero})
		}
		s.ByCategory[i].Total = s.ByCategory[i].Total.Add(amount)
	}
	s.Average = decimal.Zero
	if s.Count > 0 {
		s.Average = s.Total.Div(decimal.NewFromInt(int64(s.Count)))
	}
	return s
}

func moodStats(records []record.Record) *MoodStats {
	s := &MoodStats{Counts: []MoodCount{}}
	pos := make(map[string]int)
	for _, r := range records {
		m, ok := r.Body.(record.Mood)
		if !ok {
			continue
		}
		label := m.Mood
		if label == "" {
			label = NeutralMood
		}
		s.Count++
		i, seen := pos[label]
		if !seen {
			i = len(s.Counts)
			pos[label] = i
			s.Counts = append(s.Counts, MoodCount{Mood: label})
		}
		s.Counts[i].Count++
	}
	for i := range s.Counts {
		s.Counts[i].Percentage = percent(s.Counts[i].Count, s.Count)
	}
	return s
}

func todoStats(records []record.Record) *TodoStats {
	s := &TodoStats{}
	for _, r := range records {
		t, ok := r.Body.(record.Todo)
		if !ok {
			continue
		}
		s.Total++
		if t.Completed {
			s.Completed++
		}
	}
	s.Pending = s.Total - s.Completed
	if s.Total > 0 {
		s.CompletionRate = float64(s.Completed) / float64(s.Total)
	}
	return s
}

func percent(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return float64(n) / float64(of) * 100
}
