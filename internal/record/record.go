// Package record defines the persisted life-event model: a closed set of
// record types, each carrying its own type-specific body.
package record

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Type is the closed set of record types.
type Type string

const (
	TypeExpense Type = "expense"
	TypeTodo    Type = "todo"
	TypeMood    Type = "mood"
	TypeHealth  Type = "health"
	TypeNote    Type = "note"
)

// Types lists every record type in display order.
var Types = []Type{TypeExpense, TypeTodo, TypeMood, TypeHealth, TypeNote}

// Valid reports whether t is one of the known record types.
func (t Type) Valid() bool {
	switch t {
	case TypeExpense, TypeTodo, TypeMood, TypeHealth, TypeNote:
		return true
	}
	return false
}

// Label returns the human-readable name of the type ("Expense", "Todo", ...).
func (t Type) Label() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

// ParseType parses s (case-insensitive, surrounding whitespace ignored) into a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown record type %q", s)
	}
	return t, nil
}

// Body is the type-specific part of a record. It is implemented only by
// Expense, Todo, Mood, Health and Note.
type Body interface {
	Kind() Type
	isBody()
}

// Expense is a spending event.
type Expense struct {
	// Amount is invalid when the source carried no amount; treat it as zero.
	Amount   decimal.NullDecimal
	Category string
}

// Todo is a scheduled task or reminder.
type Todo struct {
	Completed bool
}

// Mood is an affect observation.
type Mood struct {
	Mood string
}

// Health is an activity or wellbeing note with no structured fields.
type Health struct{}

// Note is a free-text note with no structured fields.
type Note struct{}

func (Expense) Kind() Type { return TypeExpense }
func (Todo) Kind() Type    { return TypeTodo }
func (Mood) Kind() Type    { return TypeMood }
func (Health) Kind() Type  { return TypeHealth }
func (Note) Kind() Type    { return TypeNote }

func (Expense) isBody() {}
func (Todo) isBody()    {}
func (Mood) isBody()    {}
func (Health) isBody()  {}
func (Note) isBody()    {}

// AmountOrZero returns the expense amount, or zero when it is missing.
func (e Expense) AmountOrZero() decimal.Decimal {
	if !e.Amount.Valid {
		return decimal.Zero
	}
	return e.Amount.Decimal
}

// NewAmount wraps d as a present amount.
func NewAmount(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// EmptyBody returns the zero-valued body for t.
func EmptyBody(t Type) (Body, error) {
	switch t {
	case TypeExpense:
		return Expense{}, nil
	case TypeTodo:
		return Todo{}, nil
	case TypeMood:
		return Mood{}, nil
	case TypeHealth:
		return Health{}, nil
	case TypeNote:
		return Note{}, nil
	}
	return nil, fmt.Errorf("unknown record type %q", t)
}

// Draft is a record before the store has assigned its identity.
type Draft struct {
	Date        time.Time
	Description string
	Body        Body

	// Extra carries fields this version does not model; they are stored and
	// exported verbatim.
	Extra map[string]json.RawMessage
}

// Type returns the record type implied by the body.
func (d Draft) Type() Type {
	if d.Body == nil {
		return ""
	}
	return d.Body.Kind()
}

// Validate checks the invariants every stored record must satisfy.
func (d Draft) Validate() error {
	if d.Body == nil {
		return fmt.Errorf("record has no type")
	}
	if !d.Body.Kind().Valid() {
		return fmt.Errorf("unknown record type %q", d.Body.Kind())
	}
	if d.Date.IsZero() {
		return fmt.Errorf("record has no date")
	}
	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("record has no description")
	}
	if e, ok := d.Body.(Expense); ok && e.Amount.Valid && e.Amount.Decimal.IsNegative() {
		return fmt.Errorf("expense amount must be non-negative, got %s", e.Amount.Decimal)
	}
	return nil
}

// Record is a persisted life event.
type Record struct {
	ID          int64
	Date        time.Time
	Description string
	Body        Body
	Extra       map[string]json.RawMessage
}

// Type returns the record type implied by the body.
func (r Record) Type() Type {
	if r.Body == nil {
		return ""
	}
	return r.Body.Kind()
}

// Draft returns the record without its identity.
func (r Record) Draft() Draft {
	return Draft{
		Date:        r.Date,
		Description: r.Description,
		Body:        r.Body,
		Extra:       r.Extra,
	}
}

// FromDraft attaches an identity to d.
func FromDraft(id int64, d Draft) Record {
	return Record{
		ID:          id,
		Date:        d.Date,
		Description: d.Description,
		Body:        d.Body,
		Extra:       d.Extra,
	}
}
