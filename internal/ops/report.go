package ops

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/errors"
	"github.com/onelife/onelife/internal/report"
)

// ReportInput contains parameters for the Report operation.
type ReportInput struct {
	Query  string    // free text, e.g. "Show me my expenses this month"
	Type   string    // optional, overrides the type inferred from Query
	Window string    // optional, overrides the window inferred from Query
	Force  bool      // build a report even when Query is not a summary request
	Limit  int       // records per group in Markdown, default report.DefaultLimit
	Now    time.Time // optional, default time.Now()
}

// ReportOutput contains the result of the Report operation.
type ReportOutput struct {
	Report   *report.Report `json:"report"`
	Markdown string         `json:"markdown"`
}

// Report answers a summary request from stored records.
func Report(ctx context.Context, database *sql.DB, input ReportInput) (*ReportOutput, error) {
	if !input.Force && !report.IsSummaryRequest(input.Query) {
		return nil, errors.NewInvalidRequest("not a summary request; ask for a summary, report or overview")
	}

	q := report.ParseQuery(input.Query)
	if strings.TrimSpace(input.Type) != "" {
		typ, err := ParseTypeFilter(input.Type)
		if err != nil {
			return nil, err
		}
		q.Type = typ
	}
	if strings.TrimSpace(input.Window) != "" {
		w, err := parseWindow(input.Window)
		if err != nil {
			return nil, err
		}
		q.Window = w
	}

	records, err := db.ListRecords(ctx, database, q.Type)
	if err != nil {
		return nil, err
	}
	rep := report.Build(records, q, nowOr(input.Now))
	return &ReportOutput{Report: rep, Markdown: rep.Markdown(input.Limit)}, nil
}
