package statemachine

import (
	"errors"
	"strings"

	"qrmenu-api/models"
)

// ErrTerminal is returned when a transition is requested out of a state that
// has no exits.
var ErrTerminal = errors.New("signup request already processed")

// Transition defines a valid state change and who can perform it
type Transition struct {
	From  models.SignupStatus
	To    models.SignupStatus
	Actor models.UserRole
}

// validTransitions is the authoritative signup review definition. Both targets
// are terminal.
var validTransitions = []Transition{
	{From: models.SignupPending, To: models.SignupApproved, Actor: models.RoleSuperAdmin},
	{From: models.SignupPending, To: models.SignupRejected, Actor: models.RoleSuperAdmin},
}

type transitionKey struct {
	From  models.SignupStatus
	To    models.SignupStatus
	Actor models.UserRole
}

var transitionMap = func() map[transitionKey]bool {
	m := make(map[transitionKey]bool)
	for _, t := range validTransitions {
		m[transitionKey{t.From, t.To, t.Actor}] = true
	}
	return m
}()

// ValidTransitionsFrom returns all valid next states from a given state
func ValidTransitionsFrom(status models.SignupStatus) []models.SignupStatus {
	var nexts []models.SignupStatus
	seen := map[models.SignupStatus]bool{}
	for _, t := range validTransitions {
		if t.From == status && !seen[t.To] {
			nexts = append(nexts, t.To)
			seen[t.To] = true
		}
	}
	return nexts
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status models.SignupStatus) bool {
	return len(ValidTransitionsFrom(status)) == 0
}

// CanTransition checks if a given actor can move a signup request from one
// state to another. Leaving a terminal state yields ErrTerminal.
func CanTransition(from, to models.SignupStatus, actor models.UserRole) error {
	if transitionMap[transitionKey{From: from, To: to, Actor: actor}] {
		return nil
	}
	if IsTerminal(from) {
		return ErrTerminal
	}
	return errors.New(
		"invalid transition: " + string(from) + " → " + string(to) +
			" is not allowed for actor '" + string(actor) + "'. " +
			"Valid transitions from " + string(from) + " are: " + describeValidFrom(from),
	)
}

func describeValidFrom(status models.SignupStatus) string {
	nexts := ValidTransitionsFrom(status)
	parts := make([]string, len(nexts))
	for i, s := range nexts {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

// GetAllTransitions returns the full state machine for documentation
func GetAllTransitions() []Transition {
	return validTransitions
}
