package ops

import (
	"context"
	"database/sql"

	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/errors"
	"github.com/onelife/onelife/internal/record"
)

// GetInput contains parameters for the Get operation.
type GetInput struct {
	ID int64
}

// Get retrieves a single record by id.
func Get(ctx context.Context, database *sql.DB, input GetInput) (*record.Record, error) {
	if input.ID <= 0 {
		return nil, errors.NewInvalidRequest("id must be a positive integer")
	}
	return db.GetRecord(ctx, database, input.ID)
}
