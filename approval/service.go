// Package approval processes super-admin decisions on signup requests.
//
// A decision commits in one transaction: the request leaves pending (guarded so
// only one caller can do it) and the account is either approved or deleted.
// The notification email is sent after commit and its failure is reported in
// the Outcome, never rolled back.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qrmenu-api/metrics"
	"qrmenu-api/models"
	"qrmenu-api/notify"
	"qrmenu-api/statemachine"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"gorm.io/gorm"
)

var (
	ErrNotFound         = errors.New("signup request not found")
	ErrAlreadyProcessed = errors.New("signup request already processed")
	ErrInvalidDecision  = errors.New("decision must be approved or rejected")
	ErrAccountMissing   = errors.New("account for signup request not found")
)

// Outcome reports what a decision did.
type Outcome struct {
	Request     models.SignupRequest `json:"request"`
	UserDeleted bool                 `json:"user_deleted"`
	EmailSent   bool                 `json:"email_sent"`
}

type Service struct {
	db     *gorm.DB
	mailer notify.Mailer
	logger log.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, mailer notify.Mailer, logger log.Logger) *Service {
	return &Service{db: db, mailer: mailer, logger: logger, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// List returns signup requests, newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, status models.SignupStatus) ([]models.SignupRequest, error) {
	q := s.db.WithContext(ctx).Order("created_at desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.SignupRequest
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing signup requests: %w", err)
	}
	return out, nil
}

// Get returns one signup request.
func (s *Service) Get(ctx context.Context, id uint) (models.SignupRequest, error) {
	var req models.SignupRequest
	if err := s.db.WithContext(ctx).First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return req, ErrNotFound
		}
		return req, fmt.Errorf("loading signup request: %w", err)
	}
	return req, nil
}

// Decide moves a pending signup request to decision. Approving marks the
// account approved; rejecting deletes the account so its email and phone can
// register again. A request that is no longer pending yields
// ErrAlreadyProcessed and no side effects.
func (s *Service) Decide(ctx context.Context, requestID uint, decision models.SignupStatus, reason string, reviewerID uint) (Outcome, error) {
	if decision != models.SignupApproved && decision != models.SignupRejected {
		return Outcome{}, ErrInvalidDecision
	}

	var out Outcome
	var account models.Account
	now := s.now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.SignupRequest
		if err := tx.First(&req, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("loading signup request: %w", err)
		}
		if err := statemachine.CanTransition(req.Status, decision, models.RoleSuperAdmin); err != nil {
			if errors.Is(err, statemachine.ErrTerminal) {
				return ErrAlreadyProcessed
			}
			return err
		}

		updates := map[string]interface{}{
			"status":      decision,
			"reviewed_by": reviewerID,
			"reviewed_at": now,
		}
		if decision == models.SignupRejected {
			updates["rejection_reason"] = reason
		}
		// Test-and-set: a concurrent decision that already left pending makes
		// this update match nothing.
		res := tx.Model(&models.SignupRequest{}).
			Where("id = ? AND status = ?", req.ID, models.SignupPending).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("updating signup request: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return ErrAlreadyProcessed
		}

		if err := tx.First(&account, req.AccountID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountMissing
			}
			return fmt.Errorf("loading account: %w", err)
		}

		event := statemachine.EventApprove
		if decision == models.SignupRejected {
			event = statemachine.EventReject
		}
		next, err := statemachine.Apply(statemachine.StateOf(&account), event)
		if err != nil {
			return err
		}

		switch next.Kind {
		case statemachine.StateRejected:
			if err := tx.Where("account_id = ?", account.ID).Delete(&models.PasswordResetChallenge{}).Error; err != nil {
				return fmt.Errorf("deleting reset challenges: %w", err)
			}
			res := tx.Delete(&models.Account{}, account.ID)
			if res.Error != nil {
				return fmt.Errorf("deleting account: %w", res.Error)
			}
			if res.RowsAffected != 1 {
				return ErrAccountMissing
			}
			out.UserDeleted = true
		default:
			if err := tx.Model(&account).Update("status", next.Status()).Error; err != nil {
				return fmt.Errorf("approving account: %w", err)
			}
		}

		return tx.First(&out.Request, req.ID).Error
	})
	if err != nil {
		metrics.SignupDecisions.With("decision", string(decision), "outcome", "error").Add(1)
		return Outcome{}, err
	}
	metrics.SignupDecisions.With("decision", string(decision), "outcome", "committed").Add(1)

	out.EmailSent = s.notify(ctx, out.Request, account.Email, decision, reason)
	return out, nil
}

func (s *Service) notify(ctx context.Context, req models.SignupRequest, email string, decision models.SignupStatus, reason string) bool {
	if email == "" {
		email = req.BusinessEmail
	}
	var err error
	if decision == models.SignupApproved {
		err = s.mailer.SendApproval(ctx, email, req.BusinessName)
	} else {
		err = s.mailer.SendRejection(ctx, email, req.BusinessName, reason)
	}
	if err != nil {
		metrics.NotificationFailures.With("kind", string(decision)).Add(1)
		level.Error(s.logger).Log("msg", "signup decision email failed", "request_id", req.ID, "decision", decision, "err", err)
		return false
	}
	return true
}
