// Package session holds the per-user context a chat message is handled in:
// the record store, the settings, and the completion endpoint with its last
// known availability.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onelife/onelife/internal/classify"
	"github.com/onelife/onelife/internal/completion"
	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/errors"
	"github.com/onelife/onelife/internal/ops"
	"github.com/onelife/onelife/internal/record"
	"github.com/onelife/onelife/internal/report"
	"github.com/onelife/onelife/internal/settings"
)

// Reply kinds
const (
	KindRecord = "record"
	KindReport = "report"
	KindChat   = "chat"
)

// Options configures a Session.
type Options struct {
	// Completer answers free-form messages. Nil disables completion.
	Completer   completion.Client
	ReportLimit int
	Logger      *slog.Logger
	Now         func() time.Time
}

// Session handles chat messages against one store.
type Session struct {
	opener    *db.Opener
	prefs     *settings.Prefs
	completer completion.Client
	limit     int
	logger    *slog.Logger
	now       func() time.Time

	available atomic.Bool
}

// New returns a session over the store opened by opener.
func New(opener *db.Opener, prefs *settings.Prefs, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		opener:    opener,
		prefs:     prefs,
		completer: opts.Completer,
		limit:     opts.ReportLimit,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// Reply is the answer to one message. The record and completion sides fail
// independently; a failure on one side is reported next to the other's result.
type Reply struct {
	Kind            string            `json:"kind"`
	Text            string            `json:"text"`
	Log             *ops.LogOutput    `json:"log,omitempty"`
	Report          *ops.ReportOutput `json:"report,omitempty"`
	Assistant       string            `json:"assistant,omitempty"`
	StoreError      *Failure          `json:"store_error,omitempty"`
	CompletionError *Failure          `json:"completion_error,omitempty"`
	Available       bool              `json:"available"`
}

// Available reports whether the last completion call succeeded.
func (s *Session) Available() bool { return s.available.Load() }

// CompletionEnabled reports whether the session has a completion endpoint.
func (s *Session) CompletionEnabled() bool { return s.completer != nil }

// Pinger is implemented by completers that can check their endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check pings the completion endpoint and records the result.
func (s *Session) Check(ctx context.Context) error {
	p, ok := s.completer.(Pinger)
	if !ok {
		return errors.NewUnavailable("completion", nil)
	}
	if err := p.Ping(ctx); err != nil {
		s.available.Store(false)
		return errors.NewUnavailable("completion", err)
	}
	s.available.Store(true)
	return nil
}

// Prefs returns the settings store.
func (s *Session) Prefs() *settings.Prefs { return s.prefs }

// Send handles one message. Summary requests are answered from stored
// records; anything else is classified and stored while the completion
// endpoint, if any, is asked for a reply. See wantsReport for the routing.
func (s *Session) Send(ctx context.Context, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errors.NewInvalidRequest("message is required")
	}
	now := s.now()

	if wantsReport(message) {
		return s.summarize(ctx, message, now), nil
	}

	reply := &Reply{Kind: KindChat}
	var g errgroup.Group
	g.Go(func() error {
		database, err := s.opener.Open(ctx)
		if err != nil {
			reply.StoreError = failure(err)
			return nil
		}
		out, err := ops.Log(ctx, database, ops.LogInput{Message: message, Now: now})
		if err != nil {
			reply.StoreError = failure(err)
			return nil
		}
		reply.Log = out
		return nil
	})
	if s.completer != nil {
		g.Go(func() error {
			text, err := s.completer.Complete(ctx, []completion.Message{
				{Role: "system", Content: completion.SystemPrompt},
				{Role: "user", Content: message},
			})
			if err != nil {
				s.available.Store(false)
				reply.CompletionError = failure(errors.NewUnavailable("completion", err))
				return nil
			}
			s.available.Store(true)
			reply.Assistant = strings.TrimSpace(text)
			return nil
		})
	}
	_ = g.Wait()

	if reply.StoreError != nil {
		s.logger.Error("record not saved", "code", reply.StoreError.Code, "error", reply.StoreError.Message)
	}
	if reply.CompletionError != nil {
		s.logger.Warn("completion failed", "error", reply.CompletionError.Message)
	}
	if reply.Log != nil && reply.Log.Logged {
		reply.Kind = KindRecord
	}
	reply.Text = s.compose(reply, message)
	reply.Available = s.Available()
	return reply, nil
}

// wantsReport decides whether message is answered as a report. Messages no
// rule classifies go by the summary keywords. Expense and todo matches are
// always stored. Mood and health matches are reports only when the message
// is also phrased as a request, so "I'm in a happy mood" is stored and
// "how was my mood this week?" is answered.
func wantsReport(message string) bool {
	if !report.IsSummaryRequest(message) {
		return false
	}
	rule, ok := classify.Match(message)
	if !ok {
		return true
	}
	switch rule.Type {
	case record.TypeExpense, record.TypeTodo:
		return false
	}
	return report.IsExplicitRequest(message)
}

func (s *Session) summarize(ctx context.Context, message string, now time.Time) *Reply {
	reply := &Reply{Kind: KindReport, Available: s.Available()}
	database, err := s.opener.Open(ctx)
	if err == nil {
		reply.Report, err = ops.Report(ctx, database, ops.ReportInput{
			Query: message,
			Limit: s.limit,
			Now:   now,
		})
	}
	if err != nil {
		reply.StoreError = failure(err)
		reply.Text = "Sorry, I couldn't read your records: " + reply.StoreError.Message
		s.logger.Error("report failed", "error", err)
		return reply
	}
	reply.Text = reply.Report.Markdown
	return reply
}

// compose builds the reply text: the record confirmation first, then the
// assistant's answer. With neither, the canned help text stands in.
func (s *Session) compose(r *Reply, message string) string {
	var parts []string
	logged := r.Log != nil && r.Log.Logged
	if logged {
		parts = append(parts, r.Log.Confirmation)
	}
	if r.StoreError != nil {
		parts = append(parts, "Sorry, I couldn't save that: "+r.StoreError.Message)
	}
	if r.Assistant != "" {
		parts = append(parts, r.Assistant)
	}
	if !logged && r.Assistant == "" {
		parts = append(parts, classify.Fallback(message))
	}
	return strings.Join(parts, "\n\n")
}

// Failure is a side of a reply that did not complete.
type Failure struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

func failure(err error) *Failure {
	ae, ok := errors.As(err)
	if !ok {
		ae = errors.NewInternal(err)
	}
	return &Failure{Code: ae.Code, Message: ae.Message}
}
