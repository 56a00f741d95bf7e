package statemachine

import (
	"errors"
	"testing"

	"qrmenu-api/models"
)

func TestStateOf(t *testing.T) {
	tests := []struct {
		name    string
		account *models.Account
		want    StateKind
	}{
		{"nil", nil, StateAnonymous},
		{"pending", &models.Account{Status: models.AccountPending, FirstLogin: true}, StatePending},
		{"empty status", &models.Account{}, StatePending},
		{"rejected", &models.Account{Status: models.AccountRejected}, StateRejected},
		{"approved first login", &models.Account{Status: models.AccountApproved, FirstLogin: true}, StateOnboarding},
		{"approved", &models.Account{Status: models.AccountApproved}, StateActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StateOf(tt.account).Kind; got != tt.want {
				t.Fatalf("StateOf=%s, want %s", got, tt.want)
			}
		})
	}
}

func TestApply(t *testing.T) {
	pending := AccountState{Kind: StatePending, Role: models.RoleOwner, FirstLogin: true}

	next, err := Apply(pending, EventApprove)
	if err != nil || next.Kind != StateOnboarding || next.Status() != models.AccountApproved {
		t.Fatalf("approve: %+v, %v", next, err)
	}

	active, err := Apply(next, EventSetupCompleted)
	if err != nil || active.Kind != StateActive || active.FirstLogin {
		t.Fatalf("setup: %+v, %v", active, err)
	}

	rejected, err := Apply(pending, EventReject)
	if err != nil || rejected.Kind != StateRejected || rejected.Status() != models.AccountRejected {
		t.Fatalf("reject: %+v, %v", rejected, err)
	}

	returning := AccountState{Kind: StatePending, Role: models.RoleOwner}
	if next, _ := Apply(returning, EventApprove); next.Kind != StateActive {
		t.Fatalf("approve without first login: %s", next.Kind)
	}

	invalid := []struct {
		state AccountState
		ev    Event
	}{
		{Anonymous, EventApprove},
		{active, EventApprove},
		{active, EventSetupCompleted},
		{rejected, EventApprove},
		{pending, EventSetupCompleted},
		{next, EventReject},
	}
	for _, tt := range invalid {
		if _, err := Apply(tt.state, tt.ev); !errors.Is(err, ErrInvalidAccountTransition) {
			t.Errorf("%s on %s: err=%v, want ErrInvalidAccountTransition", tt.ev, tt.state.Kind, err)
		}
	}
}
