package ops

import (
	"context"
	"testing"
	"time"

	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/errors"
	"github.com/onelife/onelife/internal/record"
)

func TestClearGuard_TwoSteps(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	insertTestRecord(t, database, 0, "one", record.Note{})
	insertTestRecord(t, database, 0, "two", record.Todo{})

	guard := NewClearGuard(0)
	first := guard.Begin()
	if first.Step != 1 || first.Prompt != ClearWarning || first.Token == "" {
		t.Fatalf("Begin = %+v", first)
	}
	if n, _ := db.CountRecords(ctx, database, nil); n != 2 {
		t.Fatalf("Begin must not delete anything, count = %d", n)
	}

	second, err := guard.Confirm(first.Token)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if second.Step != 2 || second.Prompt != ClearLastCheck || second.Token == first.Token {
		t.Fatalf("Confirm = %+v", second)
	}

	out, err := guard.Execute(ctx, database, second.Token)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !out.Cleared || out.Records != 2 {
		t.Errorf("Execute = %+v", out)
	}
	if n, _ := db.CountRecords(ctx, database, nil); n != 0 {
		t.Errorf("count after clear = %d, want 0", n)
	}
}

func TestClearGuard_FirstTokenCannotExecute(t *testing.T) {
	database := openTestDB(t)
	insertTestRecord(t, database, 0, "keep", record.Note{})

	guard := NewClearGuard(0)
	first := guard.Begin()

	_, err := guard.Execute(context.Background(), database, first.Token)
	if !errors.Is(err, errors.ErrConfirmationRequired) {
		t.Fatalf("Execute error = %v, want CONFIRMATION_REQUIRED", err)
	}
	// The mismatched token is spent.
	if _, err := guard.Confirm(first.Token); !errors.Is(err, errors.ErrConfirmationRequired) {
		t.Errorf("Confirm after misuse error = %v, want CONFIRMATION_REQUIRED", err)
	}
	if n, _ := db.CountRecords(context.Background(), database, nil); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestClearGuard_TokensAreSingleUse(t *testing.T) {
	database := openTestDB(t)
	guard := NewClearGuard(0)

	first := guard.Begin()
	second, err := guard.Confirm(first.Token)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := guard.Confirm(first.Token); !errors.Is(err, errors.ErrConfirmationRequired) {
		t.Errorf("reused Confirm error = %v, want CONFIRMATION_REQUIRED", err)
	}
	if _, err := guard.Execute(context.Background(), database, second.Token); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if _, err := guard.Execute(context.Background(), database, second.Token); !errors.Is(err, errors.ErrConfirmationRequired) {
		t.Errorf("reused Execute error = %v, want CONFIRMATION_REQUIRED", err)
	}
}

func TestClearGuard_UnknownToken(t *testing.T) {
	guard := NewClearGuard(0)
	for _, token := range []string{"", "01ARZ3NDEKTSV4RRFFQ69G5FAV"} {
		if _, err := guard.Confirm(token); !errors.Is(err, errors.ErrConfirmationRequired) {
			t.Errorf("Confirm(%q) error = %v, want CONFIRMATION_REQUIRED", token, err)
		}
	}
}

func TestClearGuard_Expiry(t *testing.T) {
	database := openTestDB(t)
	insertTestRecord(t, database, 0, "keep", record.Note{})

	clock := testNow
	guard := NewClearGuard(time.Minute)
	guard.now = func() time.Time { return clock }

	first := guard.Begin()
	if !first.ExpiresAt.Equal(testNow.Add(time.Minute)) {
		t.Errorf("ExpiresAt = %v", first.ExpiresAt)
	}
	second, err := guard.Confirm(first.Token)
	if err != nil {
		t.Fatal(err)
	}

	clock = clock.Add(2 * time.Minute)
	if _, err := guard.Execute(context.Background(), database, second.Token); !errors.Is(err, errors.ErrConfirmationRequired) {
		t.Fatalf("Execute error = %v, want CONFIRMATION_REQUIRED", err)
	}
	if n, _ := db.CountRecords(context.Background(), database, nil); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestClearGuard_PrunesExpired(t *testing.T) {
	clock := testNow
	guard := NewClearGuard(time.Minute)
	guard.now = func() time.Time { return clock }

	guard.Begin()
	guard.Begin()
	clock = clock.Add(time.Hour)
	guard.Begin()

	guard.mu.Lock()
	defer guard.mu.Unlock()
	if len(guard.pending) != 1 {
		t.Errorf("pending = %d, want 1", len(guard.pending))
	}
}

func TestClearGuard_Advance(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	insertTestRecord(t, database, 0, "one", record.Note{})

	guard := NewClearGuard(0)
	first, err := guard.Advance(ctx, database, "")
	if err != nil || first.Pending == nil || first.Pending.Step != 1 || first.Result != nil {
		t.Fatalf("Advance(begin) = %+v, %v", first, err)
	}
	second, err := guard.Advance(ctx, database, first.Pending.Token)
	if err != nil || second.Pending == nil || second.Pending.Step != 2 {
		t.Fatalf("Advance(confirm) = %+v, %v", second, err)
	}
	if n, _ := db.CountRecords(ctx, database, nil); n != 1 {
		t.Fatalf("count after confirm = %d, want 1", n)
	}
	done, err := guard.Advance(ctx, database, second.Pending.Token)
	if err != nil || done.Result == nil || done.Result.Records != 1 {
		t.Fatalf("Advance(execute) = %+v, %v", done, err)
	}

	if _, err := guard.Advance(ctx, database, second.Pending.Token); !errors.Is(err, errors.ErrConfirmationRequired) {
		t.Errorf("replayed Advance error = %v, want CONFIRMATION_REQUIRED", err)
	}
}
