package statemachine

import (
	"errors"
	"fmt"

	"qrmenu-api/models"
)

// StateKind enumerates account lifecycle states. Every consumer switches on it
// instead of comparing status strings.
type StateKind int

const (
	StateAnonymous StateKind = iota
	StatePending
	StateRejected
	StateOnboarding
	StateActive
)

func (k StateKind) String() string {
	switch k {
	case StateAnonymous:
		return "anonymous"
	case StatePending:
		return "pending"
	case StateRejected:
		return "rejected"
	case StateOnboarding:
		return "onboarding"
	case StateActive:
		return "active"
	}
	return fmt.Sprintf("StateKind(%d)", int(k))
}

// AccountState is the combination of status, role and first-login flag that
// the access gate and the approval flow branch on.
type AccountState struct {
	Kind StateKind
	Role models.UserRole
	// FirstLogin stays true from signup until business setup completes, so it
	// is also true for pending accounts.
	FirstLogin bool
}

// Anonymous is the state of a request without a usable session.
var Anonymous = AccountState{Kind: StateAnonymous}

// StateOf derives the lifecycle state of an account. A nil account is anonymous.
func StateOf(a *models.Account) AccountState {
	if a == nil {
		return Anonymous
	}
	s := AccountState{Role: a.Role, FirstLogin: a.FirstLogin}
	switch a.Status {
	case models.AccountApproved:
		if a.FirstLogin {
			s.Kind = StateOnboarding
		} else {
			s.Kind = StateActive
		}
	case models.AccountRejected:
		s.Kind = StateRejected
	default:
		s.Kind = StatePending
	}
	return s
}

// Authenticated reports whether the state belongs to a signed-in account.
func (s AccountState) Authenticated() bool {
	return s.Kind != StateAnonymous
}

// Approved reports whether the account passed review.
func (s AccountState) Approved() bool {
	return s.Kind == StateOnboarding || s.Kind == StateActive
}

// Event drives an account from one state to the next.
type Event int

const (
	EventApprove Event = iota
	EventReject
	EventSetupCompleted
)

var ErrInvalidAccountTransition = errors.New("invalid account transition")

// Apply is the single transition function for accounts.
func Apply(s AccountState, ev Event) (AccountState, error) {
	switch s.Kind {
	case StatePending:
		switch ev {
		case EventApprove:
			if s.FirstLogin {
				s.Kind = StateOnboarding
			} else {
				s.Kind = StateActive
			}
			return s, nil
		case EventReject:
			s.Kind = StateRejected
			return s, nil
		}
	case StateOnboarding:
		if ev == EventSetupCompleted {
			s.Kind = StateActive
			s.FirstLogin = false
			return s, nil
		}
	case StateAnonymous, StateRejected, StateActive:
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidAccountTransition, ev, s.Kind)
}

func (ev Event) String() string {
	switch ev {
	case EventApprove:
		return "approve"
	case EventReject:
		return "reject"
	case EventSetupCompleted:
		return "setup_completed"
	}
	return fmt.Sprintf("Event(%d)", int(ev))
}

// Status maps a state back onto the persisted account status.
func (s AccountState) Status() models.AccountStatus {
	switch s.Kind {
	case StateOnboarding, StateActive:
		return models.AccountApproved
	case StateRejected:
		return models.AccountRejected
	}
	return models.AccountPending
}
