// Package ops implements the operations shared by the CLI, the MCP server and
// the web server. Each operation takes an input struct and returns an output
// struct or a structured *errors.AppError.
package ops

import (
	"strings"
	"time"

	"github.com/onelife/onelife/internal/errors"
	"github.com/onelife/onelife/internal/record"
	"github.com/onelife/onelife/internal/report"
)

// BackupExt is the required extension of backup files.
const BackupExt = ".json"

// Listing limits
const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

// typeAliases maps the records-view tab names onto record types.
var typeAliases = map[string]record.Type{
	"expenses": record.TypeExpense,
	"todos":    record.TypeTodo,
	"tasks":    record.TypeTodo,
	"moods":    record.TypeMood,
	"notes":    record.TypeNote,
}

// ParseTypeFilter parses a type filter. Empty and "all" mean no filter.
// Plural tab names ("expenses", "todos", "notes") are accepted.
func ParseTypeFilter(s string) (*record.Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "all" {
		return nil, nil
	}
	if t, ok := typeAliases[s]; ok {
		return &t, nil
	}
	t, err := record.ParseType(s)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error() + " (want all, expense, todo, mood, health or note)")
	}
	return &t, nil
}

func parseWindow(s string) (report.Window, error) {
	w, err := report.ParseWindowName(s)
	if err != nil {
		return "", errors.NewInvalidRequest(err.Error())
	}
	return w, nil
}

func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
