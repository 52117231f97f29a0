package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/folio/core"
	"github.com/layer-3/folio/session"
)

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// refreshCycle is one in-flight refresh and the requests waiting on it.
// Waiters replay in arrival order: each one is handed the turn only after
// the previous replay was written or failed.
type refreshCycle struct {
	mu      sync.Mutex
	waiters []*waiter
	token   string
	err     error
}

type refreshOutcome struct {
	token string
	err   error
}

type waiter struct {
	cycle     *refreshCycle
	index     int
	turn      chan struct{}
	hasTurn   bool
	abandoned bool
	passOnce  sync.Once
}

func (rc *refreshCycle) enqueue() *waiter {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	w := &waiter{cycle: rc, index: len(rc.waiters), turn: make(chan struct{})}
	rc.waiters = append(rc.waiters, w)
	return w
}

// settle records the outcome and gives the turn to the first live waiter
func (rc *refreshCycle) settle(token string, err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.token, rc.err = token, err
	rc.handOffLocked(0)
}

func (rc *refreshCycle) handOffLocked(from int) {
	for _, w := range rc.waiters[from:] {
		if w.abandoned {
			continue
		}
		w.hasTurn = true
		close(w.turn)
		return
	}
}

// wait blocks until it is w's turn and returns the refresh outcome.
// A canceled waiter leaves the line and passes on a turn it already holds.
func (w *waiter) wait(ctx context.Context) (refreshOutcome, error) {
	select {
	case <-w.turn:
		return refreshOutcome{token: w.cycle.token, err: w.cycle.err}, nil
	case <-ctx.Done():
		w.cycle.mu.Lock()
		holding := w.hasTurn
		if !holding {
			w.abandoned = true
		}
		w.cycle.mu.Unlock()
		if holding {
			w.pass()
		}
		return refreshOutcome{}, ctx.Err()
	}
}

// pass hands the turn to the next live waiter; only the first call counts
func (w *waiter) pass() {
	w.passOnce.Do(func() {
		w.cycle.mu.Lock()
		defer w.cycle.mu.Unlock()
		w.cycle.handOffLocked(w.index + 1)
	})
}

// recoverUnauthorized runs refresh-and-replay for r, which failed with
// cause after being sent with sentToken
func (c *Client) recoverUnauthorized(ctx context.Context, r *request, sentToken string, cause error) ([]byte, error) {
	r.retried = true

	c.mu.Lock()
	if cycle := c.cycle; cycle != nil {
		w := cycle.enqueue()
		c.mu.Unlock()
		slogctx.Debug(ctx, "Waiting for token refresh", "path", r.path)
		return c.replay(ctx, w, r, cause)
	}
	// a refresh finished after r was sent: replay with the current token
	if current := c.sessions.BearerToken(); current != "" && current != sentToken {
		c.mu.Unlock()
		return c.send(ctx, r, current, nil)
	}

	cycle := &refreshCycle{}
	leader := cycle.enqueue()
	c.cycle = cycle
	c.mu.Unlock()

	// the leader's cancellation must not fail the requests queued behind it
	token, err := c.refresh(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.cycle = nil
	c.mu.Unlock()
	cycle.settle(token, err)

	return c.replay(ctx, leader, r, cause)
}

func (c *Client) replay(ctx context.Context, w *waiter, r *request, cause error) ([]byte, error) {
	outcome, err := w.wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer w.pass()

	if outcome.err != nil {
		return nil, errors.Join(core.ErrRefreshExhausted, cause)
	}
	return c.send(ctx, r, outcome.token, w.pass)
}

// refresh exchanges the stored refresh token for a new pair. On failure the
// session is cleared; the caller must not try again for the same request.
func (c *Client) refresh(ctx context.Context) (string, error) {
	pair, err := c.exchangeRefreshToken(ctx)
	if err == nil {
		err = c.sessions.UpdateTokens(ctx, pair.AccessToken, pair.RefreshToken)
	}
	if err != nil {
		slogctx.Warn(ctx, "Token refresh failed, clearing session", "error", err)
		if clearErr := c.sessions.Clear(ctx, session.ReasonRefreshExhausted); clearErr != nil {
			slogctx.Error(ctx, "Failed to clear session", "error", clearErr)
		}
		return "", err
	}

	slogctx.Info(ctx, "Access token refreshed")
	return pair.AccessToken, nil
}

func (c *Client) exchangeRefreshToken(ctx context.Context) (tokenPair, error) {
	refreshToken := c.sessions.RefreshToken()
	if refreshToken == "" {
		return tokenPair{}, fmt.Errorf("no refresh token: %w", core.ErrRefreshExhausted)
	}

	r := &request{
		method: http.MethodPost,
		path:   c.refreshPath,
		body:   refreshRequest{RefreshToken: refreshToken},
	}
	raw, err := c.send(ctx, r, "", nil)
	if err != nil {
		return tokenPair{}, err
	}

	data, err := unwrap(raw)
	if err != nil {
		return tokenPair{}, err
	}
	var pair tokenPair
	if err := decode(data, &pair); err != nil {
		return tokenPair{}, err
	}
	if pair.AccessToken == "" {
		return tokenPair{}, fmt.Errorf("refresh response without access token: %w", core.ErrRefreshExhausted)
	}
	return pair, nil
}
