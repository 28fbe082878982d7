// Package session is the client-side auth state machine:
// signed out -> authenticating -> signed in(profile) -> signed out.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Profile is what a signed-in client knows about its user.
type Profile struct {
	ID                     string  `json:"id"`
	FullName               string  `json:"full_name"`
	Role                   string  `json:"role"`
	CompanyID              *string `json:"company_id,omitempty"`
	AvatarURL              string  `json:"avatar_url,omitempty"`
	XPPoints               int64   `json:"xp_points"`
	RequiresPasswordChange bool    `json:"requires_password_change"`
}

// Tokens are the credentials returned by sign-in.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type Status int

const (
	SignedOut Status = iota
	Authenticating
	SignedIn
)

func (s Status) String() string {
	switch s {
	case SignedOut:
		return "signed_out"
	case Authenticating:
		return "authenticating"
	case SignedIn:
		return "signed_in"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// State is immutable; Profile and Tokens are set only when SignedIn.
type State struct {
	Status  Status
	Profile *Profile
	Tokens  *Tokens
	// LastErr is the failure that sent the state back to SignedOut, if any.
	LastErr error
}

// Event drives a transition.
type Event interface{ event() }

type SignInRequested struct{}

type SignInSucceeded struct {
	Profile Profile
	Tokens  Tokens
}

type SignInFailed struct{ Err error }

type ProfileRefreshed struct{ Profile Profile }

type SignedOutEvent struct{}

func (SignInRequested) event()  {}
func (SignInSucceeded) event()  {}
func (SignInFailed) event()     {}
func (ProfileRefreshed) event() {}
func (SignedOutEvent) event()   {}

var ErrIllegalTransition = errors.New("illegal session transition")

// Reduce returns the state that follows ev, or ErrIllegalTransition.
func Reduce(s State, ev Event) (State, error) {
	switch e := ev.(type) {
	case SignInRequested:
		if s.Status == SignedOut {
			return State{Status: Authenticating}, nil
		}
	case SignInSucceeded:
		if s.Status == Authenticating {
			p, tok := e.Profile, e.Tokens
			return State{Status: SignedIn, Profile: &p, Tokens: &tok}, nil
		}
	case SignInFailed:
		if s.Status == Authenticating {
			return State{Status: SignedOut, LastErr: e.Err}, nil
		}
	case ProfileRefreshed:
		if s.Status == SignedIn {
			p := e.Profile
			return State{Status: SignedIn, Profile: &p, Tokens: s.Tokens}, nil
		}
	case SignedOutEvent:
		if s.Status == SignedIn {
			return State{Status: SignedOut}, nil
		}
	}
	return s, fmt.Errorf("%w: %T from %s", ErrIllegalTransition, ev, s.Status)
}

// RequiresPasswordChange gates a signed-in user into the forced change flow.
func (s State) RequiresPasswordChange() bool {
	return s.Status == SignedIn && s.Profile != nil && s.Profile.RequiresPasswordChange
}

// Store serializes transitions and notifies subscribers after each one.
type Store struct {
	mu     sync.Mutex
	state  State
	nextID int
	subs   map[int]func(State)
}

func NewStore() *Store {
	return &Store{subs: make(map[int]func(State))}
}

// Restore seeds the store, e.g. from a persisted session. Subscribers are not
// notified.
func (st *Store) Restore(s State) {
	st.mu.Lock()
	st.state = s
	st.mu.Unlock()
}

func (st *Store) State() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// Dispatch applies ev and, on success, calls every subscriber with the new
// state outside the lock.
func (st *Store) Dispatch(ev Event) (State, error) {
	st.mu.Lock()
	next, err := Reduce(st.state, ev)
	if err != nil {
		st.mu.Unlock()
		return next, err
	}
	st.state = next
	subs := make([]func(State), 0, len(st.subs))
	for _, fn := range st.subs {
		subs = append(subs, fn)
	}
	st.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next, nil
}

// Subscribe registers fn and returns a function that removes it.
func (st *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	st.mu.Lock()
	id := st.nextID
	st.nextID++
	st.subs[id] = fn
	st.mu.Unlock()

	return func() {
		st.mu.Lock()
		delete(st.subs, id)
		st.mu.Unlock()
	}
}

func (st *Store) RequiresPasswordChange() bool { return st.State().RequiresPasswordChange() }
