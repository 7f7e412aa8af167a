package ops

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/errors"
)

// DefaultClearTTL is how long a clear confirmation token stays valid.
const DefaultClearTTL = 2 * time.Minute

// Prompts shown at each confirmation step.
const (
	ClearWarning   = "WARNING: This will permanently delete ALL your data. This cannot be undone! Are you absolutely sure?"
	ClearLastCheck = "Last chance! This will delete everything. Continue?"
)

// ClearStep is a pending confirmation of a clear.
type ClearStep struct {
	Token     string    `json:"token"`
	Step      int       `json:"step"`
	Prompt    string    `json:"prompt"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ClearOutput contains the result of a confirmed clear.
type ClearOutput struct {
	Cleared bool `json:"cleared"`
	Records int  `json:"records"`
}

type pendingClear struct {
	step    int
	expires time.Time
}

// ClearGuard gates ClearAll behind two explicit confirmations:
// Begin issues a token, Confirm exchanges it for a second token, and Execute
// with the second token clears the store. Tokens are single-use and expire.
type ClearGuard struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	pending map[string]pendingClear
}

// NewClearGuard returns a guard whose tokens live for ttl (DefaultClearTTL when zero).
func NewClearGuard(ttl time.Duration) *ClearGuard {
	if ttl <= 0 {
		ttl = DefaultClearTTL
	}
	return &ClearGuard{ttl: ttl, now: time.Now, pending: make(map[string]pendingClear)}
}

// Begin starts a clear and returns the first confirmation.
func (g *ClearGuard) Begin() ClearStep {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.issue(1, ClearWarning)
}

// Confirm accepts the first confirmation and returns the last one.
func (g *ClearGuard) Confirm(token string) (ClearStep, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.take(token, 1); err != nil {
		return ClearStep{}, err
	}
	return g.issue(2, ClearLastCheck), nil
}

// Execute clears every table once token from Confirm is presented.
func (g *ClearGuard) Execute(ctx context.Context, database *sql.DB, token string) (*ClearOutput, error) {
	g.mu.Lock()
	err := g.take(token, 2)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	n, err := db.CountRecords(ctx, database, nil)
	if err != nil {
		return nil, err
	}
	if err := db.ClearAll(ctx, database); err != nil {
		return nil, err
	}
	return &ClearOutput{Cleared: true, Records: n}, nil
}

// issue must be called with g.mu held.
func (g *ClearGuard) issue(step int, prompt string) ClearStep {
	now := g.now()
	g.prune(now)
	token := ulid.Make().String()
	expires := now.Add(g.ttl)
	g.pending[token] = pendingClear{step: step, expires: expires}
	return ClearStep{Token: token, Step: step, Prompt: prompt, ExpiresAt: expires}
}

// take must be called with g.mu held. The token is consumed even on a step
// mismatch so a leaked first token cannot be replayed as a second.
func (g *ClearGuard) take(token string, step int) error {
	p, ok := g.pending[token]
	if !ok {
		return errors.NewConfirmationRequired("unknown or already used confirmation token; start again")
	}
	delete(g.pending, token)
	if g.now().After(p.expires) {
		return errors.NewConfirmationRequired("confirmation token expired; start again")
	}
	if p.step != step {
		return errors.NewConfirmationRequired("confirmation token is for a different step; start again")
	}
	return nil
}

func (g *ClearGuard) prune(now time.Time) {
	for token, p := range g.pending {
		if now.After(p.expires) {
			delete(g.pending, token)
		}
	}
}

// ClearResult is the outcome of Advance: either the next confirmation or the
// finished clear.
type ClearResult struct {
	Pending *ClearStep   `json:"pending,omitempty"`
	Result  *ClearOutput `json:"result,omitempty"`
}

// Advance moves a clear forward by one step for callers that hold only a
// token: an empty token begins, a first-step token is confirmed and a
// last-step token executes.
func (g *ClearGuard) Advance(ctx context.Context, database *sql.DB, token string) (*ClearResult, error) {
	if token == "" {
		step := g.Begin()
		return &ClearResult{Pending: &step}, nil
	}

	g.mu.Lock()
	p, ok := g.pending[token]
	g.mu.Unlock()

	if ok && p.step == 1 {
		step, err := g.Confirm(token)
		if err != nil {
			return nil, err
		}
		return &ClearResult{Pending: &step}, nil
	}
	out, err := g.Execute(ctx, database, token)
	if err != nil {
		return nil, err
	}
	return &ClearResult{Result: out}, nil
}
