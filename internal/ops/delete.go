package ops

import (
	"context"
	"database/sql"

	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/errors"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	ID int64
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool  `json:"deleted"`
	ID      int64 `json:"id"`
}

// Delete permanently removes one record.
func Delete(ctx context.Context, database *sql.DB, input DeleteInput) (*DeleteOutput, error) {
	if input.ID <= 0 {
		return nil, errors.NewInvalidRequest("id must be a positive integer")
	}
	if err := db.DeleteRecord(ctx, database, input.ID); err != nil {
		return nil, err
	}
	return &DeleteOutput{Deleted: true, ID: input.ID}, nil
}
