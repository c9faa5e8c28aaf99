package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/schoolms/portal-client/internal/api/metrics"
	"github.com/schoolms/portal-client/internal/core/domain"
	"github.com/schoolms/portal-client/internal/core/ports"
)

// TokenSource is the session surface the refresh flow reads and updates.
type TokenSource interface {
	AccessToken() string
	RefreshToken() string
	UpdateTokens(ctx context.Context, usedRefresh, access, refresh string) bool
	Expire(ctx context.Context, usedRefresh string) bool
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// refreshCall is the shared result of one refresh request.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// RefreshState tracks the single refresh allowed in flight.
type RefreshState struct {
	mu       sync.Mutex
	inFlight bool
	pending  *refreshCall
}

func (s *RefreshState) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// RefreshCoordinator decorates a Requester with silent re-authentication.
// A 401 triggers at most one concurrent call to the refresh endpoint, after
// which the failed request is replayed exactly once.
type RefreshCoordinator struct {
	next    ports.Requester
	session TokenSource
	state   *RefreshState
	log     zerolog.Logger
}

var _ ports.Requester = (*RefreshCoordinator)(nil)

// NewRefreshCoordinator wraps next. A nil state gets a private one.
func NewRefreshCoordinator(next ports.Requester, session TokenSource, state *RefreshState, log zerolog.Logger) *RefreshCoordinator {
	if state == nil {
		state = &RefreshState{}
	}
	return &RefreshCoordinator{
		next:    next,
		session: session,
		state:   state,
		log:     log.With().Str("component", "refresh").Logger(),
	}
}

// Do sends req with the session's access token unless req carries its own.
// Failures other than 401 pass through untouched.
func (c *RefreshCoordinator) Do(ctx context.Context, req ports.Request) (*ports.Response, error) {
	if req.Token == "" {
		req.Token = c.session.AccessToken()
	}
	used := req.Token

	resp, err := c.next.Do(ctx, req)
	if err == nil || !domain.IsUnauthorized(err) {
		return resp, err
	}

	if c.session.RefreshToken() == "" {
		metrics.RefreshTotal.WithLabelValues("no_refresh_token").Inc()
		c.session.Expire(ctx, "")
		return nil, err
	}

	token, rerr := c.acquire(ctx, used)
	if rerr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	// Exactly one replay; a second 401 is returned as is.
	req.Token = token
	return c.next.Do(ctx, req)
}

// acquire returns a token newer than used, joining the in-flight refresh or
// starting one.
func (c *RefreshCoordinator) acquire(ctx context.Context, used string) (string, error) {
	st := c.state
	st.mu.Lock()
	call := st.pending
	if call != nil {
		st.mu.Unlock()
		metrics.RefreshTotal.WithLabelValues("shared").Inc()
	} else {
		// Another caller already refreshed after our request went out.
		if cur := c.session.AccessToken(); cur != "" && cur != used {
			st.mu.Unlock()
			metrics.RefreshTotal.WithLabelValues("skipped").Inc()
			return cur, nil
		}
		refresh := c.session.RefreshToken()
		if refresh == "" {
			st.mu.Unlock()
			return "", domain.ErrNotAuthenticated
		}
		call = &refreshCall{done: make(chan struct{})}
		st.inFlight = true
		st.pending = call
		st.mu.Unlock()

		// The refresh outlives any single caller so waiters are never starved.
		go c.run(context.WithoutCancel(ctx), call, refresh)
	}

	select {
	case <-call.done:
		return call.token, call.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *RefreshCoordinator) run(ctx context.Context, call *refreshCall, refresh string) {
	defer c.settle(call)

	resp, err := c.next.Do(ctx, ports.Request{
		Method: http.MethodPost,
		Path:   pathRefresh,
		Body:   map[string]string{"refresh": refresh},
	})
	if err != nil {
		c.fail(ctx, call, refresh, err)
		return
	}

	var body refreshResponse
	if err := resp.DecodeJSON(&body); err != nil {
		c.fail(ctx, call, refresh, err)
		return
	}
	if body.Access == "" {
		c.fail(ctx, call, refresh, fmt.Errorf("refresh response carried no access token"))
		return
	}

	// The new token is visible before waiters are released.
	if !c.session.UpdateTokens(ctx, refresh, body.Access, body.Refresh) {
		call.err = domain.ErrNotAuthenticated
		metrics.RefreshTotal.WithLabelValues("failure").Inc()
		c.log.Info().Msg("session ended during refresh")
		return
	}
	call.token = body.Access
	metrics.RefreshTotal.WithLabelValues("success").Inc()
	c.log.Debug().Bool("rotated", body.Refresh != "").Msg("access token refreshed")
}

// fail ends the session that owned refresh. A newer session is kept.
func (c *RefreshCoordinator) fail(ctx context.Context, call *refreshCall, refresh string, err error) {
	call.err = fmt.Errorf("%w: %w", domain.ErrRefreshFailed, err)
	metrics.RefreshTotal.WithLabelValues("failure").Inc()
	if !c.session.Expire(ctx, refresh) {
		c.log.Info().Err(err).Msg("token refresh failed for a session that already ended")
		return
	}
	c.log.Warn().Err(err).Msg("token refresh failed; ending session")
}

// settle clears the refresh state and releases waiters on every exit path.
func (c *RefreshCoordinator) settle(call *refreshCall) {
	c.state.mu.Lock()
	if c.state.pending == call {
		c.state.pending = nil
		c.state.inFlight = false
	}
	c.state.mu.Unlock()
	close(call.done)
}
