// Package session owns the authentication state machine, the token
// lifecycle and the authenticated request pipeline every other API
// consumer goes through.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/ticket-client/internal/api"
	"github.com/spec-kit/ticket-client/internal/api/dto"
	"github.com/spec-kit/ticket-client/internal/credstore"
	"github.com/spec-kit/ticket-client/internal/domain"
	"github.com/spec-kit/ticket-client/internal/events"
	"github.com/spec-kit/ticket-client/internal/observability"
	"github.com/spec-kit/ticket-client/pkg/util"
)

// Store coordinates login, registration, logout and token refresh, and
// serializes all state transitions through the reducer in state.go.
type Store struct {
	api        *api.Client
	creds      credstore.Store
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics

	mu         sync.Mutex
	state      State
	generation uint64

	refreshGroup singleflight.Group
}

// Dependencies bundles collaborators for the session store.
type Dependencies struct {
	API         *api.Client
	Credentials credstore.Store
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// New builds the store and hydrates it from the durable credential
// store. Stored tokens are trusted without a network round trip; an
// actually-expired access token surfaces through the refresh flow on
// the first authenticated request.
func New(deps Dependencies) *Store {
	s := &Store{
		api:        deps.API,
		creds:      deps.Credentials,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		state:      initialState(),
	}
	s.hydrate(context.Background())
	return s
}

// Snapshot returns a copy of the current session state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyStateLocked()
}

// Generation returns the session generation counter. It advances on
// every successful login and on logout, letting dependent stores drop
// results that belong to a previous session.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Authenticated reports whether an active session is held.
func (s *Store) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Authenticated
}

// Login authenticates with the backend. The store performs no input
// validation; the server is the sole validator.
func (s *Store) Login(ctx context.Context, email, password string) (*dto.AuthResponse, *util.APIError) {
	return s.authenticate(ctx, "/auth/login/", dto.LoginRequest{Email: email, Password: password},
		zap.String("email", email))
}

// Register creates an account and signs in. Password policy and email
// uniqueness are enforced server-side only.
func (s *Store) Register(ctx context.Context, email, name, password, passwordConfirm string) (*dto.AuthResponse, *util.APIError) {
	req := dto.RegisterRequest{
		Email:           email,
		Name:            name,
		Password:        password,
		PasswordConfirm: passwordConfirm,
	}
	return s.authenticate(ctx, "/auth/register/", req,
		zap.String("email", email), zap.String("name", name))
}

func (s *Store) authenticate(ctx context.Context, path string, body any, logFields ...zap.Field) (*dto.AuthResponse, *util.APIError) {
	s.dispatch(ctx, authStarted{})

	resp, err := s.api.Do(ctx, http.MethodPost, path, "", body)
	if err != nil {
		payload := util.ToAPIError(err)
		s.dispatch(ctx, authFailed{payload: payload})
		s.logger.Error("auth network error", append(logFields, zap.Error(err))...)
		return nil, payload
	}
	if !resp.OK() {
		payload := resp.Err()
		s.dispatch(ctx, authFailed{payload: payload})
		s.logger.Warn("auth rejected", append(logFields, zap.Int("status", resp.StatusCode))...)
		return nil, payload
	}

	var auth dto.AuthResponse
	if err := resp.Decode(&auth); err != nil {
		payload := util.NewNetworkError(err)
		s.dispatch(ctx, authFailed{payload: payload})
		return nil, payload
	}

	if err := s.persist(ctx, auth.User, auth.Tokens); err != nil {
		s.logger.Error("failed to persist credentials", zap.Error(err))
	}
	s.dispatch(ctx, authSucceeded{user: auth.User, creds: auth.Tokens})
	s.logger.Info("auth successful", logFields...)
	return &auth, nil
}

// Logout invalidates the server-side session best-effort, then
// unconditionally clears durable and in-memory state. It always
// succeeds locally and is safe to call repeatedly.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	creds := s.state.Credentials
	s.mu.Unlock()

	if creds.CanRefresh() {
		// Fire-and-forget: a failed invalidation never blocks the
		// local transition.
		if resp, err := s.api.Do(ctx, http.MethodPost, "/auth/logout/", creds.AccessToken,
			dto.LogoutRequest{RefreshToken: creds.RefreshToken}); err != nil {
			s.logger.Warn("server-side logout failed", zap.Error(err))
		} else if !resp.OK() {
			s.logger.Warn("server-side logout rejected", zap.Int("status", resp.StatusCode))
		}
	}

	s.wipe(ctx)
	s.dispatch(ctx, loggedOut{})
	s.logger.Info("logged out")
}

// ClearError drops the displayable error, keeping the current phase.
func (s *Store) ClearError(ctx context.Context) {
	s.dispatch(ctx, errorCleared{})
}

// Do is the authenticated request pipeline. It signs the request when
// an access token is held, intercepts a 401 once, refreshes and
// retries exactly once, and escalates an unrecoverable refresh to
// logout by returning a session-expired error.
func (s *Store) Do(ctx context.Context, method, path string, body any) (*api.Response, error) {
	s.mu.Lock()
	creds := s.state.Credentials
	s.mu.Unlock()

	resp, err := s.api.Do(ctx, method, path, creds.AccessToken, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	if !creds.CanRefresh() {
		// No renewal path; the caller interprets the 401.
		return resp, nil
	}

	access, refreshErr := s.refresh(ctx)
	if refreshErr != nil {
		s.logger.Warn("token refresh failed, ending session", zap.Error(refreshErr))
		s.Logout(ctx)
		return nil, util.NewSessionExpired(refreshErr)
	}

	s.metrics.RecordRetry()
	return s.api.Do(ctx, method, path, access, body)
}

// Refresh renews the access token immediately. Used by the proactive
// refresh worker; concurrent callers share one in-flight attempt.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	canRefresh := s.state.Credentials.CanRefresh()
	s.mu.Unlock()
	if !canRefresh {
		return errors.New("no refresh token held")
	}
	_, err := s.refresh(ctx)
	return err
}

// AccessTokenExpiry reports the exp claim of the held access token.
// The token is not signature-checked; only the server can truly
// validate it.
func (s *Store) AccessTokenExpiry() (time.Time, bool) {
	s.mu.Lock()
	token := s.state.Credentials.AccessToken
	s.mu.Unlock()
	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// refresh performs the single-flight token renewal. Concurrent 401s
// collapse into one refresh call; every waiter receives the same
// replacement access token or the same failure.
func (s *Store) refresh(ctx context.Context) (string, error) {
	val, err, _ := s.refreshGroup.Do("token_refresh", func() (any, error) {
		s.mu.Lock()
		creds := s.state.Credentials
		s.mu.Unlock()
		if !creds.CanRefresh() {
			return "", errors.New("no refresh token held")
		}

		s.metrics.RecordRefresh()
		resp, err := s.api.Do(ctx, http.MethodPost, "/auth/token/refresh/", "",
			dto.RefreshRequest{Refresh: creds.RefreshToken})
		if err != nil {
			return "", err
		}
		if !resp.OK() {
			return "", resp.Err()
		}

		var out dto.RefreshResponse
		if err := resp.Decode(&out); err != nil {
			return "", err
		}

		s.dispatch(ctx, accessRefreshed{access: out.Access})

		s.mu.Lock()
		user := s.state.User
		newCreds := s.state.Credentials
		s.mu.Unlock()
		if user != nil {
			if err := s.persist(ctx, *user, newCreds); err != nil {
				s.logger.Error("failed to persist refreshed token", zap.Error(err))
			}
		}

		s.logger.Info("access token refreshed")
		return out.Access, nil
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}

// dispatch applies one reducer step under the store lock and notifies
// subscribers. Login success and logout advance the generation.
func (s *Store) dispatch(ctx context.Context, ev event) {
	s.mu.Lock()
	s.state = apply(s.state, ev)
	switch ev.(type) {
	case authSucceeded, loggedOut:
		s.generation++
	}
	gen := s.generation
	s.mu.Unlock()

	if s.dispatcher != nil {
		s.dispatcher.Publish(ctx, events.Event{Type: events.EventSessionChanged, Generation: gen})
	}
}

// hydrate restores a persisted session. Malformed entries wipe the
// store and leave the session anonymous.
func (s *Store) hydrate(ctx context.Context) {
	rawTokens, errTokens := s.creds.Get(ctx, credstore.KeyTokens)
	rawUser, errUser := s.creds.Get(ctx, credstore.KeyUser)
	if errTokens != nil || errUser != nil {
		return
	}

	var creds domain.Credentials
	var user domain.UserProfile
	if err := json.Unmarshal([]byte(rawTokens), &creds); err != nil {
		s.logger.Error("invalid persisted tokens, wiping", zap.Error(err))
		s.wipe(ctx)
		return
	}
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		s.logger.Error("invalid persisted user, wiping", zap.Error(err))
		s.wipe(ctx)
		return
	}
	if creds.AccessToken == "" {
		s.wipe(ctx)
		return
	}

	s.dispatch(ctx, authSucceeded{user: user, creds: creds})
	s.logger.Info("session restored", zap.String("email", user.Email))
}

func (s *Store) persist(ctx context.Context, user domain.UserProfile, creds domain.Credentials) error {
	tokenJSON, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	userJSON, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.creds.Set(ctx, credstore.KeyTokens, string(tokenJSON)); err != nil {
		return err
	}
	return s.creds.Set(ctx, credstore.KeyUser, string(userJSON))
}

func (s *Store) wipe(ctx context.Context) {
	if err := s.creds.Remove(ctx, credstore.KeyTokens); err != nil {
		s.logger.Warn("failed to remove stored tokens", zap.Error(err))
	}
	if err := s.creds.Remove(ctx, credstore.KeyUser); err != nil {
		s.logger.Warn("failed to remove stored user", zap.Error(err))
	}
}

func (s *Store) copyStateLocked() State {
	state := s.state
	if state.User != nil {
		user := *state.User
		state.User = &user
	}
	return state
}
