package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onelife/onelife/internal/completion"
	"github.com/onelife/onelife/internal/config"
	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/errors"
	"github.com/onelife/onelife/internal/record"
	"github.com/onelife/onelife/internal/settings"
)

var testNow = time.Date(2026, 3, 20, 15, 0, 0, 0, time.UTC)

type fakeCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	calls [][]completion.Message
}

func (f *fakeCompleter) Complete(_ context.Context, messages []completion.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	return f.reply, f.err
}

func (f *fakeCompleter) Ping(context.Context) error { return f.err }

func newTestSession(t *testing.T, c completion.Client) (*Session, *db.Opener) {
	t.Helper()
	dir := t.TempDir()
	opener := db.NewOpener(dir, config.DefaultConfig())
	t.Cleanup(func() { opener.Close() })
	s := New(opener, settings.OpenPrefs(dir), Options{
		Completer: c,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       func() time.Time { return testNow },
	})
	return s, opener
}

func countRecords(t *testing.T, opener *db.Opener) int {
	t.Helper()
	database, err := opener.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	n, err := db.CountRecords(context.Background(), database, nil)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestSend_RecordWithoutCompletion(t *testing.T) {
	s, opener := newTestSession(t, nil)

	reply, err := s.Send(context.Background(), "I spent $35 on lunch")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply.Kind != KindRecord || reply.Log == nil || !reply.Log.Logged {
		t.Fatalf("Send = %+v", reply)
	}
	if !strings.HasPrefix(reply.Text, "Expense recorded: $35 (Food & Dining)") {
		t.Errorf("Text = %q", reply.Text)
	}
	if reply.Available || s.CompletionEnabled() {
		t.Error("completion reported available without a completer")
	}
	if n := countRecords(t, opener); n != 1 {
		t.Errorf("stored %d records, want 1", n)
	}
}

func TestSend_RecordAndAssistant(t *testing.T) {
	fc := &fakeCompleter{reply: "  Nice lunch!  "}
	s, _ := newTestSession(t, fc)

	reply, err := s.Send(context.Background(), "Feeling tired today")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply.Kind != KindRecord || reply.Assistant != "Nice lunch!" {
		t.Fatalf("Send = %+v", reply)
	}
	want := "Mood logged: Tired\n\nI've recorded this in your life journal.\n\nNice lunch!"
	if reply.Text != want {
		t.Errorf("Text = %q, want %q", reply.Text, want)
	}
	if !reply.Available || !s.Available() {
		t.Error("successful completion should mark the endpoint available")
	}

	if len(fc.calls) != 1 {
		t.Fatalf("completer called %d times", len(fc.calls))
	}
	msgs := fc.calls[0]
	if len(msgs) != 2 || msgs[0].Role != "system" || msgs[1].Content != "Feeling tired today" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestSend_CompletionFailureStillStores(t *testing.T) {
	fc := &fakeCompleter{err: fmt.Errorf("connection refused")}
	s, opener := newTestSession(t, fc)
	s.available.Store(true)

	reply, err := s.Send(context.Background(), "Walked 8000 steps")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply.CompletionError == nil || reply.CompletionError.Code != errors.ErrUnavailable {
		t.Fatalf("CompletionError = %+v", reply.CompletionError)
	}
	if reply.Log == nil || !reply.Log.Logged || reply.Log.Record.Type() != record.TypeHealth {
		t.Fatalf("Log = %+v", reply.Log)
	}
	if reply.Text != "Health data recorded. Keep tracking your progress!" {
		t.Errorf("Text = %q", reply.Text)
	}
	if reply.Available || s.Available() {
		t.Error("failed completion should mark the endpoint unavailable")
	}
	if n := countRecords(t, opener); n != 1 {
		t.Errorf("stored %d records, want 1", n)
	}
}

func TestSend_StoreFailureStillAnswers(t *testing.T) {
	fc := &fakeCompleter{reply: "Sure."}
	dir := t.TempDir()
	// A file where the data directory should be makes the store unopenable.
	blocked := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocked, nil, 0600); err != nil {
		t.Fatal(err)
	}
	s := New(db.NewOpener(blocked, config.DefaultConfig()), settings.OpenPrefs(dir), Options{
		Completer: fc,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       func() time.Time { return testNow },
	})

	reply, err := s.Send(context.Background(), "I spent $5 on coffee")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply.StoreError == nil || reply.StoreError.Code != errors.ErrStorage {
		t.Fatalf("StoreError = %+v", reply.StoreError)
	}
	if reply.Assistant != "Sure." || !strings.HasSuffix(reply.Text, "Sure.") {
		t.Errorf("Send = %+v", reply)
	}
	if !strings.Contains(reply.Text, "couldn't save") {
		t.Errorf("Text = %q", reply.Text)
	}
}

func TestSend_NoMatchFallback(t *testing.T) {
	s, opener := newTestSession(t, nil)

	reply, err := s.Send(context.Background(), "What's the weather like?")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply.Kind != KindChat || reply.Log == nil || reply.Log.Logged {
		t.Fatalf("Send = %+v", reply)
	}
	if !strings.HasPrefix(reply.Text, `I understand: "What's the weather like?"`) {
		t.Errorf("Text = %q", reply.Text)
	}
	if n := countRecords(t, opener); n != 0 {
		t.Errorf("stored %d records, want 0", n)
	}
}

func TestSend_NoMatchUsesAssistant(t *testing.T) {
	s, _ := newTestSession(t, &fakeCompleter{reply: "It's sunny."})

	reply, err := s.Send(context.Background(), "What's the weather like?")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply.Kind != KindChat || reply.Text != "It's sunny." {
		t.Errorf("Send = %+v", reply)
	}
}

func TestSend_SummaryRequest(t *testing.T) {
	fc := &fakeCompleter{reply: "unused"}
	s, opener := newTestSession(t, fc)
	ctx := context.Background()

	for _, m := range []string{"I spent $20 on lunch", "Paid $40 for a taxi"} {
		if _, err := s.Send(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	calls := len(fc.calls)

	reply, err := s.Send(ctx, "Show me my expenses this month")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply.Kind != KindReport || reply.Report == nil {
		t.Fatalf("Send = %+v", reply)
	}
	if reply.Report.Report.Total != 2 || !strings.Contains(reply.Text, "Total: $60.00") {
		t.Errorf("Text = %q", reply.Text)
	}
	if len(fc.calls) != calls {
		t.Error("summary request should not call the completer")
	}
	if n := countRecords(t, opener); n != 2 {
		t.Errorf("summary request stored a record, count = %d", n)
	}
}

func TestSend_LoggableMessagesWithSummaryWords(t *testing.T) {
	tests := []struct {
		message string
		typ     record.Type
	}{
		{"Paid $40 for my monthly phone bill", record.TypeExpense},
		{"spent $12 on my daily coffee", record.TypeExpense},
		{"Remind me to send the weekly report tomorrow", record.TypeTodo},
		{"I'm in a happy mood", record.TypeMood},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			s, opener := newTestSession(t, nil)

			reply, err := s.Send(context.Background(), tt.message)
			if err != nil {
				t.Fatalf("Send failed: %v", err)
			}
			if reply.Kind != KindRecord || reply.Log == nil || reply.Log.Record == nil {
				t.Fatalf("Send = %+v, want a stored record", reply)
			}
			if got := reply.Log.Record.Type(); got != tt.typ {
				t.Errorf("record type = %q, want %q", got, tt.typ)
			}
			if n := countRecords(t, opener); n != 1 {
				t.Errorf("stored %d records, want 1", n)
			}
		})
	}
}

func TestSend_MoodQuestionIsReport(t *testing.T) {
	s, opener := newTestSession(t, nil)
	ctx := context.Background()

	if _, err := s.Send(ctx, "Feeling happy today"); err != nil {
		t.Fatal(err)
	}
	for _, m := range []string{"How was my mood this week?", "Summarize my mood this week"} {
		reply, err := s.Send(ctx, m)
		if err != nil {
			t.Fatalf("Send(%q) failed: %v", m, err)
		}
		if reply.Kind != KindReport {
			t.Errorf("Send(%q) kind = %q, want report", m, reply.Kind)
		}
	}
	if n := countRecords(t, opener); n != 1 {
		t.Errorf("stored %d records, want 1", n)
	}
}

func TestSend_EmptyMessage(t *testing.T) {
	s, _ := newTestSession(t, nil)
	if _, err := s.Send(context.Background(), "   "); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("Send error = %v, want INVALID_REQUEST", err)
	}
}

func TestCheck(t *testing.T) {
	fc := &fakeCompleter{}
	s, _ := newTestSession(t, fc)

	if err := s.Check(context.Background()); err != nil || !s.Available() {
		t.Fatalf("Check = %v, available %v", err, s.Available())
	}
	fc.err = fmt.Errorf("down")
	if err := s.Check(context.Background()); !errors.Is(err, errors.ErrUnavailable) || s.Available() {
		t.Errorf("Check = %v, available %v", err, s.Available())
	}

	none, _ := newTestSession(t, nil)
	if err := none.Check(context.Background()); !errors.Is(err, errors.ErrUnavailable) {
		t.Errorf("Check without completer = %v", err)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	a, openerA := newTestSession(t, nil)
	_, openerB := newTestSession(t, nil)

	if _, err := a.Send(context.Background(), "I spent $1 on gum"); err != nil {
		t.Fatal(err)
	}
	if countRecords(t, openerA) != 1 || countRecords(t, openerB) != 0 {
		t.Error("a message to one session reached the other")
	}
}
