package session

import (
	"github.com/spec-kit/ticket-client/internal/domain"
	"github.com/spec-kit/ticket-client/pkg/util"
)

// Phase names the session state machine states.
type Phase string

const (
	PhaseAnonymous      Phase = "anonymous"
	PhaseAuthenticating Phase = "authenticating"
	PhaseAuthenticated  Phase = "authenticated"
	PhaseError          Phase = "error"
)

// State is the session store's view of authentication. Invariant:
// Authenticated is true iff User is set and an access token is held.
type State struct {
	Phase         Phase
	User          *domain.UserProfile
	Credentials   domain.Credentials
	Authenticated bool
	Loading       bool
	Err           *util.APIError
}

func initialState() State {
	return State{Phase: PhaseAnonymous}
}

// event is a tagged transition input for the reducer.
type event interface {
	isEvent()
}

// authStarted begins a login or register attempt, clearing any prior
// error.
type authStarted struct{}

// authSucceeded installs the server-issued identity and tokens.
type authSucceeded struct {
	user  domain.UserProfile
	creds domain.Credentials
}

// authFailed records the backend's error payload and drops partial
// credentials.
type authFailed struct {
	payload *util.APIError
}

// loggedOut resets to the anonymous state.
type loggedOut struct{}

// accessRefreshed swaps in a renewed access token, keeping the
// refresh token.
type accessRefreshed struct {
	access string
}

// errorCleared drops the displayable error without changing phase.
type errorCleared struct{}

func (authStarted) isEvent()     {}
func (authSucceeded) isEvent()   {}
func (authFailed) isEvent()      {}
func (loggedOut) isEvent()       {}
func (accessRefreshed) isEvent() {}
func (errorCleared) isEvent()    {}

// apply is the pure state-transition function. It never performs I/O;
// persistence and network effects live in the store.
func apply(state State, ev event) State {
	switch ev := ev.(type) {
	case authStarted:
		state.Phase = PhaseAuthenticating
		state.Loading = true
		state.Err = nil
		return state

	case authSucceeded:
		user := ev.user
		return State{
			Phase:         PhaseAuthenticated,
			User:          &user,
			Credentials:   ev.creds,
			Authenticated: true,
		}

	case authFailed:
		return State{
			Phase: PhaseError,
			Err:   ev.payload,
		}

	case loggedOut:
		return initialState()

	case accessRefreshed:
		if !state.Authenticated {
			return state
		}
		state.Credentials.AccessToken = ev.access
		return state

	case errorCleared:
		state.Err = nil
		return state
	}
	return state
}
