package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/record"
	"github.com/onelife/onelife/internal/report"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Type   string    // optional: all, expense(s), todo(s), mood, health, note(s)
	Window string    // optional: all, today, week, month
	Limit  int       // default: 50, max: 1000
	Now    time.Time // optional, default time.Now()
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Records []record.Record `json:"records"`
	Total   int             `json:"total"`
	HasMore bool            `json:"has_more"`
	Window  report.Window   `json:"window"`
	Sort    string          `json:"sort"`
}

// List returns records newest first, optionally filtered by type and window.
func List(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	typ, err := ParseTypeFilter(input.Type)
	if err != nil {
		return nil, err
	}
	window, err := parseWindow(input.Window)
	if err != nil {
		return nil, err
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	records, err := db.ListRecords(ctx, database, typ)
	if err != nil {
		return nil, err
	}
	records = report.SortForDisplay(report.FilterWindow(records, window, nowOr(input.Now)))

	total := len(records)
	if total > limit {
		records = records[:limit]
	}
	return &ListOutput{
		Records: records,
		Total:   total,
		HasMore: total > limit,
		Window:  window,
		Sort:    "date_desc",
	}, nil
}
