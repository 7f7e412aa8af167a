package ops

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/onelife/onelife/internal/classify"
	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/errors"
	"github.com/onelife/onelife/internal/record"
)

// LogInput contains parameters for the Log operation.
type LogInput struct {
	Message string
	Now     time.Time // optional, default time.Now()
}

// LogOutput contains the result of the Log operation.
// Logged is false when the message matched no rule; that is not an error.
type LogOutput struct {
	Logged       bool           `json:"logged"`
	Rule         string         `json:"rule,omitempty"`
	Record       *record.Record `json:"record,omitempty"`
	Confirmation string         `json:"confirmation,omitempty"`
}

// Log classifies a free-text message and stores the resulting record once.
func Log(ctx context.Context, database *sql.DB, input LogInput) (*LogOutput, error) {
	if strings.TrimSpace(input.Message) == "" {
		return nil, errors.NewInvalidRequest("message is required")
	}

	draft, ok := classify.Classify(input.Message, nowOr(input.Now))
	if !ok {
		return &LogOutput{Logged: false}, nil
	}

	id, err := db.InsertRecord(ctx, database, draft)
	if err != nil {
		return nil, err
	}
	rec := record.FromDraft(id, draft)
	return &LogOutput{
		Logged:       true,
		Rule:         string(draft.Type()),
		Record:       &rec,
		Confirmation: classify.Confirmation(rec.Body),
	}, nil
}
