package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := &AppError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "record not found: 7",
	}

	expected := "NOT_FOUND: record not found: 7"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("message is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "message is required" {
		t.Errorf("Message = %q, want %q", err.Message, "message is required")
	}
}

func TestNewFormat(t *testing.T) {
	err := NewFormat("records must be an array")

	if err.Code != ErrFormat {
		t.Errorf("Code = %q, want %q", err.Code, ErrFormat)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
}

func TestNewRecordNotFound(t *testing.T) {
	err := NewRecordNotFound(42)

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["id"] != int64(42) {
		t.Errorf("Details[id] = %v, want 42", err.Details["id"])
	}
}

func TestNewStorage(t *testing.T) {
	cause := fmt.Errorf("disk I/O error")
	err := NewStorage("insert record", cause)

	if err.Code != ErrStorage {
		t.Errorf("Code = %q, want %q", err.Code, ErrStorage)
	}
	if err.Status != 500 {
		t.Errorf("Status = %d, want 500", err.Status)
	}
	if err.Message != "insert record: disk I/O error" {
		t.Errorf("Message = %q", err.Message)
	}
	if !stderrors.Is(err, cause) {
		t.Error("NewStorage should wrap its cause")
	}
}

func TestNewConfirmationRequired(t *testing.T) {
	err := NewConfirmationRequired("confirm again")

	if err.Code != ErrConfirmationRequired {
		t.Errorf("Code = %q, want %q", err.Code, ErrConfirmationRequired)
	}
	if err.Status != 409 {
		t.Errorf("Status = %d, want 409", err.Status)
	}
}

func TestNewInternal_NilError(t *testing.T) {
	err := NewInternal(nil)

	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching code", NewRecordNotFound(1), ErrNotFound, true},
		{"different code", NewRecordNotFound(1), ErrStorage, false},
		{"wrapped", fmt.Errorf("delete: %w", NewRecordNotFound(1)), ErrNotFound, true},
		{"plain error", fmt.Errorf("boom"), ErrNotFound, false},
		{"nil", nil, ErrNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewFormat("bad"))

	appErr, ok := As(wrapped)
	if !ok {
		t.Fatal("As() ok = false, want true")
	}
	if appErr.Code != ErrFormat {
		t.Errorf("Code = %q, want %q", appErr.Code, ErrFormat)
	}

	if _, ok := As(fmt.Errorf("plain")); ok {
		t.Error("As() on plain error should return false")
	}
}
