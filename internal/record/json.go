package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO-8601 form used in exports: UTC with millisecond precision.
const DateLayout = "2006-01-02T15:04:05.000Z"

// DocumentVersion is the version string written into export documents.
const DocumentVersion = "1.0.0"

// baseFields are written for every record; an extra field never overrides them.
var baseFields = []string{"id", "type", "date", "description"}

// bodyFields are the type-specific keys MarshalJSON writes for a body.
func bodyFields(b Body) []string {
	switch b.(type) {
	case Expense:
		return []string{"amount", "category"}
	case Todo:
		return []string{"completed"}
	case Mood:
		return []string{"mood"}
	}
	return nil
}

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate accepts RFC 3339 timestamps (with or without fractional seconds),
// zone-less timestamps and bare dates.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// wireRecord is the JSON shape of a record, without extra fields.
type wireRecord struct {
	ID          *int64       `json:"id,omitempty"`
	Type        Type         `json:"type"`
	Date        string       `json:"date"`
	Description string       `json:"description"`
	Amount      *json.Number `json:"amount,omitempty"`
	Category    *string      `json:"category,omitempty"`
	Mood        *string      `json:"mood,omitempty"`
	Completed   *bool        `json:"completed,omitempty"`
}

// MarshalJSON renders the record in export form. Type-specific fields appear
// only for their type; extra fields follow in key order, including keys that
// belong to another type.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.Body == nil {
		return nil, fmt.Errorf("record %d has no body", r.ID)
	}

	w := wireRecord{
		Type:        r.Body.Kind(),
		Description: r.Description,
	}
	if r.ID != 0 {
		id := r.ID
		w.ID = &id
	}
	if !r.Date.IsZero() {
		w.Date = FormatDate(r.Date)
	}

	switch b := r.Body.(type) {
	case Expense:
		if b.Amount.Valid {
			n := json.Number(b.Amount.Decimal.String())
			w.Amount = &n
		}
		if b.Category != "" {
			category := b.Category
			w.Category = &category
		}
	case Todo:
		completed := b.Completed
		w.Completed = &completed
	case Mood:
		if b.Mood != "" {
			mood := b.Mood
			w.Mood = &mood
		}
	case Health, Note:
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return data, nil
	}

	written := append(slices.Clone(baseFields), bodyFields(r.Body)...)
	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		if !slices.Contains(written, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	for _, k := range keys {
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(r.Extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses a record in export form. A missing date is left zero
// so the caller can decide what it means. Fields that do not belong to the
// record's type are kept in Extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("record must be a JSON object: %w", err)
	}
	if fields == nil {
		return fmt.Errorf("record must be a JSON object")
	}

	var out Record

	rawType, ok := fields["type"]
	if !ok {
		return fmt.Errorf("record is missing type")
	}
	var typeStr string
	if err := json.Unmarshal(rawType, &typeStr); err != nil {
		return fmt.Errorf("record type must be a string")
	}
	t, err := ParseType(typeStr)
	if err != nil {
		return err
	}

	if raw, ok := fields["id"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &out.ID); err != nil {
			return fmt.Errorf("record id must be an integer")
		}
	}
	if raw, ok := fields["date"]; ok && !isNull(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("record date must be a string")
		}
		if out.Date, err = ParseDate(s); err != nil {
			return err
		}
	}
	if raw, ok := fields["description"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &out.Description); err != nil {
			return fmt.Errorf("record description must be a string")
		}
	}

	// Null type-specific fields count as absent.
	consumed := map[string]bool{"id": true, "type": true, "date": true, "description": true}

	switch t {
	case TypeExpense:
		var e Expense
		if raw, ok := fields["amount"]; ok {
			if e.Amount, err = parseAmount(raw); err != nil {
				return err
			}
			consumed["amount"] = true
		}
		if raw, ok := fields["category"]; ok {
			if !isNull(raw) {
				if err := json.Unmarshal(raw, &e.Category); err != nil {
					return fmt.Errorf("expense category must be a string")
				}
			}
			consumed["category"] = true
		}
		out.Body = e
	case TypeTodo:
		var td Todo
		if raw, ok := fields["completed"]; ok {
			if !isNull(raw) {
				if err := json.Unmarshal(raw, &td.Completed); err != nil {
					return fmt.Errorf("todo completed must be a boolean")
				}
			}
			consumed["completed"] = true
		}
		out.Body = td
	case TypeMood:
		var m Mood
		if raw, ok := fields["mood"]; ok {
			if !isNull(raw) {
				if err := json.Unmarshal(raw, &m.Mood); err != nil {
					return fmt.Errorf("mood must be a string")
				}
			}
			consumed["mood"] = true
		}
		out.Body = m
	case TypeHealth:
		out.Body = Health{}
	case TypeNote:
		out.Body = Note{}
	}

	for k, v := range fields {
		if consumed[k] {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage)
		}
		out.Extra[k] = v
	}

	*r = out
	return nil
}

// parseAmount accepts a JSON number, a numeric string or null.
func parseAmount(raw json.RawMessage) (decimal.NullDecimal, error) {
	if isNull(raw) {
		return decimal.NullDecimal{}, nil
	}
	s := strings.TrimSpace(string(raw))
	s = strings.Trim(s, `"`)
	s = strings.TrimPrefix(s, "$")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("expense amount %s is not a number", raw)
	}
	if d.IsNegative() {
		return decimal.NullDecimal{}, fmt.Errorf("expense amount must be non-negative, got %s", d)
	}
	return NewAmount(d), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Document is the portable export form of the whole record set.
type Document struct {
	Version    string   `json:"version"`
	ExportDate string   `json:"exportDate"`
	Records    []Record `json:"records"`
}

// NewDocument wraps records in an export document stamped with now.
func NewDocument(records []Record, now time.Time) Document {
	if records == nil {
		records = []Record{}
	}
	return Document{
		Version:    DocumentVersion,
		ExportDate: FormatDate(now),
		Records:    records,
	}
}
