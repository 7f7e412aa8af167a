package ops

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/onelife/onelife/internal/config"
	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/errors"
	"github.com/onelife/onelife/internal/record"
)

// MaxImportBytes bounds the size of a backup document.
const MaxImportBytes = 64 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string    // required
	Now  time.Time // optional; stamps records that carry no date
}

// ImportOutput contains the result of an import. Records that failed are
// reported individually; the ones before and after them stay imported.
type ImportOutput struct {
	Version  string        `json:"version,omitempty"`
	Total    int           `json:"total"`
	Imported int           `json:"imported"`
	Failed   int           `json:"failed"`
	IDs      []int64       `json:"ids"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes one record that could not be imported.
type ImportError struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Import reads a backup file and adds its records to the store.
func Import(ctx context.Context, database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, err
	}
	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxImportBytes+1))
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to read import file: %w", err))
	}
	if len(data) > MaxImportBytes {
		return nil, errors.NewFormat(fmt.Sprintf("backup file exceeds %d bytes", MaxImportBytes))
	}
	return ImportDocument(ctx, database, data, input.Now)
}

// ImportDocument adds the records of a backup document to the store. Every
// record gets a fresh id; ids in the document are ignored. A document that is
// not an object with a "records" array is rejected before anything is stored.
func ImportDocument(ctx context.Context, database *sql.DB, data []byte, now time.Time) (*ImportOutput, error) {
	var doc struct {
		Version string          `json:"version"`
		Records json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewFormat(fmt.Sprintf("invalid backup file format: %v", err))
	}
	trimmed := bytes.TrimSpace(doc.Records)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.NewFormat("invalid backup file format: records must be an array")
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, errors.NewFormat(fmt.Sprintf("invalid backup file format: %v", err))
	}

	now = nowOr(now)
	out := &ImportOutput{
		Version: doc.Version,
		Total:   len(raws),
		IDs:     []int64{},
		Errors:  []ImportError{},
	}
	for i, raw := range raws {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		var r record.Record
		if err := json.Unmarshal(raw, &r); err != nil {
			out.fail(i, string(errors.ErrFormat), err.Error())
			continue
		}
		d := r.Draft()
		if d.Date.IsZero() {
			d.Date = now
		}
		id, err := db.InsertRecord(ctx, database, d)
		if err != nil {
			code := string(errors.ErrInternal)
			if ae, ok := errors.As(err); ok {
				code = string(ae.Code)
			}
			out.fail(i, code, err.Error())
			continue
		}
		out.Imported++
		out.IDs = append(out.IDs, id)
	}
	return out, nil
}

func (o *ImportOutput) fail(index int, code, msg string) {
	o.Failed++
	o.Errors = append(o.Errors, ImportError{Index: index, Code: code, Message: msg})
}
