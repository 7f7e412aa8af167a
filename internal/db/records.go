package db

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/onelife/onelife/internal/errors"
	"github.com/onelife/onelife/internal/record"
)

const recordColumns = `id, type, date, description, amount, category, mood, completed, extra_json`

// InsertRecord validates d and stores it under a newly assigned id.
// Ids increase monotonically and are never reused.
func InsertRecord(ctx context.Context, db *sql.DB, d record.Draft) (int64, error) {
	if err := d.Validate(); err != nil {
		return 0, errors.NewInvalidRequest(err.Error())
	}

	var (
		amount    sql.NullString
		category  sql.NullString
		mood      sql.NullString
		completed sql.NullBool
	)
	switch b := d.Body.(type) {
	case record.Expense:
		if b.Amount.Valid {
			amount = sql.NullString{String: b.Amount.Decimal.String(), Valid: true}
		}
		category = sql.NullString{String: b.Category, Valid: true}
	case record.Todo:
		completed = sql.NullBool{Bool: b.Completed, Valid: true}
	case record.Mood:
		mood = sql.NullString{String: b.Mood, Valid: true}
	}

	var extraJSON sql.NullString
	if len(d.Extra) > 0 {
		data, err := json.Marshal(d.Extra)
		if err != nil {
			return 0, errors.NewInternal(err)
		}
		extraJSON = sql.NullString{String: string(data), Valid: true}
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO records (type, date, description, amount, category, mood, completed, extra_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(d.Type()), d.Date.UnixMilli(), d.Description, amount, category, mood, completed, extraJSON,
	)
	if err != nil {
		return 0, errors.NewStorage("insert record", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.NewStorage("insert record", err)
	}
	return id, nil
}

// ListRecords returns all records, or only those of typ when non-nil, in id
// order.
func ListRecords(ctx context.Context, db *sql.DB, typ *record.Type) ([]record.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records`
	var args []any
	if typ != nil {
		query += ` WHERE type = ?`
		args = append(args, string(*typ))
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStorage("list records", err)
	}
	defer rows.Close()

	records := []record.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, errors.NewStorage("list records", err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage("list records", err)
	}
	return records, nil
}

// GetRecord retrieves one record by id.
func GetRecord(ctx context.Context, db *sql.DB, id int64) (*record.Record, error) {
	row := db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewRecordNotFound(id)
		}
		return nil, errors.NewStorage("get record", err)
	}
	return r, nil
}

// DeleteRecord removes one record by id.
func DeleteRecord(ctx context.Context, db *sql.DB, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return errors.NewStorage("delete record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewStorage("delete record", err)
	}
	if n == 0 {
		return errors.NewRecordNotFound(id)
	}
	return nil
}

// CountRecords returns the number of records, or of records of typ when non-nil.
func CountRecords(ctx context.Context, db *sql.DB, typ *record.Type) (int, error) {
	query := `SELECT COUNT(*) FROM records`
	var args []any
	if typ != nil {
		query += ` WHERE type = ?`
		args = append(args, string(*typ))
	}
	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.NewStorage("count records", err)
	}
	return n, nil
}

// ClearAll empties every table in one transaction. Id sequences are kept, so
// ids assigned after a clear never collide with earlier ones.
func ClearAll(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorage("clear", err)
	}
	for _, table := range []string{"knowledge_tags", "knowledge", "embeddings", "records"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			_ = tx.Rollback()
			return errors.NewStorage("clear "+table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.NewStorage("clear", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*record.Record, error) {
	var (
		r         record.Record
		typ       string
		dateMs    int64
		amount    sql.NullString
		category  sql.NullString
		mood      sql.NullString
		completed sql.NullBool
		extraJSON sql.NullString
	)
	if err := s.Scan(&r.ID, &typ, &dateMs, &r.Description, &amount, &category, &mood, &completed, &extraJSON); err != nil {
		return nil, err
	}
	r.Date = time.UnixMilli(dateMs).UTC()

	switch record.Type(typ) {
	case record.TypeExpense:
		e := record.Expense{Category: category.String}
		if amount.Valid {
			d, err := decimal.NewFromString(amount.String)
			if err != nil {
				return nil, fmt.Errorf("record %d: bad amount %q: %w", r.ID, amount.String, err)
			}
			e.Amount = record.NewAmount(d)
		}
		r.Body = e
	case record.TypeTodo:
		r.Body = record.Todo{Completed: completed.Bool}
	case record.TypeMood:
		r.Body = record.Mood{Mood: mood.String}
	case record.TypeHealth:
		r.Body = record.Health{}
	case record.TypeNote:
		r.Body = record.Note{}
	default:
		return nil, fmt.Errorf("record %d: unknown type %q", r.ID, typ)
	}

	if extraJSON.Valid && extraJSON.String != "" {
		if err := json.Unmarshal([]byte(extraJSON.String), &r.Extra); err != nil {
			return nil, fmt.Errorf("record %d: bad extra_json: %w", r.ID, err)
		}
	}
	return &r, nil
}
