package ops

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/onelife/onelife/internal/errors"
	"github.com/onelife/onelife/internal/record"
	"github.com/onelife/onelife/internal/report"
)

func seedReportRecords(t *testing.T) *sql.DB {
	t.Helper()
	database := openTestDB(t)
	insertTestRecord(t, database, 1, "Lunch", expenseBody(20, "Food & Dining"))
	insertTestRecord(t, database, 10, "Taxi", expenseBody(40, "Transportation"))
	insertTestRecord(t, database, 40, "Old groceries", expenseBody(100, "Food & Dining"))
	insertTestRecord(t, database, 0, "Great day", record.Mood{Mood: "Happy"})
	insertTestRecord(t, database, 2, "Call mom", record.Todo{})
	return database
}

func TestReport_ExpensesThisMonth(t *testing.T) {
	database := seedReportRecords(t)

	out, err := Report(context.Background(), database, ReportInput{
		Query: "Show me my expenses this month",
		Now:   testNow,
	})
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	rep := out.Report
	if rep.Total != 2 || rep.Expense == nil {
		t.Fatalf("Report = %+v", rep)
	}
	if !rep.Expense.Total.Equal(decimal.NewFromInt(60)) || !rep.Expense.Average.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Expense = total %s avg %s", rep.Expense.Total, rep.Expense.Average)
	}
	if rep.Mood != nil || rep.Todo != nil {
		t.Error("expense report carries other stats")
	}
	if !strings.Contains(out.Markdown, "Total: $60.00") {
		t.Errorf("Markdown missing total:\n%s", out.Markdown)
	}
}

func TestReport_NotASummary(t *testing.T) {
	database := seedReportRecords(t)

	_, err := Report(context.Background(), database, ReportInput{Query: "I spent $5 on coffee", Now: testNow})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("Report error = %v, want INVALID_REQUEST", err)
	}
}

func TestReport_ForceWithOverrides(t *testing.T) {
	database := seedReportRecords(t)

	out, err := Report(context.Background(), database, ReportInput{
		Type:   "todos",
		Window: "week",
		Force:  true,
		Now:    testNow,
	})
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if out.Report.Total != 1 || out.Report.Todo == nil || out.Report.Todo.Pending != 1 {
		t.Errorf("Report = %+v", out.Report)
	}
	if out.Report.Query.Window != report.WindowWeek {
		t.Errorf("Window = %q, want week", out.Report.Query.Window)
	}
}

func TestReport_OverrideBeatsInference(t *testing.T) {
	database := seedReportRecords(t)

	out, err := Report(context.Background(), database, ReportInput{
		Query:  "summary of my expenses today",
		Type:   "all",
		Window: "all",
		Now:    testNow,
	})
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if out.Report.Total != 5 || out.Report.Query.Type != nil {
		t.Errorf("Report = total %d type %v", out.Report.Total, out.Report.Query.Type)
	}
}

func TestReport_InvalidOverrides(t *testing.T) {
	database := seedReportRecords(t)

	for _, in := range []ReportInput{
		{Force: true, Type: "dreams"},
		{Force: true, Window: "fortnight"},
	} {
		if _, err := Report(context.Background(), database, in); !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("Report(%+v) error = %v, want INVALID_REQUEST", in, err)
		}
	}
}

func TestReport_Empty(t *testing.T) {
	database := openTestDB(t)

	out, err := Report(context.Background(), database, ReportInput{Query: "give me a summary", Now: testNow})
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if !out.Report.Empty() || !strings.Contains(out.Markdown, "No records found") {
		t.Errorf("Report = %+v\n%s", out.Report, out.Markdown)
	}
}
