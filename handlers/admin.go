package handlers

import (
	"errors"

	"qrmenu-api/apperror"
	"qrmenu-api/approval"
	"qrmenu-api/middleware"
	"qrmenu-api/models"
	"qrmenu-api/response"
	"qrmenu-api/statemachine"

	"github.com/gin-gonic/gin"
)

type DecisionRequest struct {
	Decision models.SignupStatus `json:"decision" binding:"required,oneof=approved rejected"`
	Reason   string              `json:"reason" binding:"max=500"`
}

// ListSignupRequests returns signup requests, optionally filtered by status (super admin only)
func (h *Handler) ListSignupRequests(c *gin.Context) {
	status := models.SignupStatus(c.Query("status"))
	switch status {
	case "", models.SignupPending, models.SignupApproved, models.SignupRejected:
	default:
		response.Fail(c, apperror.Field("status", "must be one of: pending, approved, rejected"))
		return
	}

	requests, err := h.Approval.List(c.Request.Context(), status)
	if err != nil {
		response.Fail(c, apperror.Upstream("Failed to load signup requests", err))
		return
	}

	summary := map[models.SignupStatus]int{}
	for _, r := range requests {
		summary[r.Status]++
	}
	response.OK(c, "", gin.H{
		"count":    len(requests),
		"summary":  summary,
		"requests": requests,
	})
}

// GetSignupRequest returns one signup request
func (h *Handler) GetSignupRequest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	req, err := h.Approval.Get(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, approvalError(err))
		return
	}
	response.OK(c, "", gin.H{
		"request":     req,
		"next_states": statemachine.ValidTransitionsFrom(req.Status),
		"is_terminal": statemachine.IsTerminal(req.Status),
	})
}

// DecideSignupRequest approves or rejects a pending signup request.
func (h *Handler) DecideSignupRequest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req DecisionRequest
	if !bind(c, &req) {
		return
	}

	out, err := h.Approval.Decide(c.Request.Context(), id, req.Decision, req.Reason, middleware.GetUserID(c))
	if err != nil {
		response.Fail(c, approvalError(err))
		return
	}

	msg := "Signup request approved"
	if req.Decision == models.SignupRejected {
		msg = "Signup request rejected"
	}
	if !out.EmailSent {
		msg += ", but the notification email could not be sent"
	}
	response.OK(c, msg, out)
}

func approvalError(err error) error {
	switch {
	case errors.Is(err, approval.ErrNotFound):
		return apperror.NotFound("Signup request not found")
	case errors.Is(err, approval.ErrAlreadyProcessed):
		return apperror.AlreadyProcessed("Signup request has already been processed")
	case errors.Is(err, approval.ErrInvalidDecision):
		return apperror.Field("decision", "must be one of: approved, rejected")
	case errors.Is(err, approval.ErrAccountMissing):
		return apperror.Upstream("Account for signup request could not be removed", err)
	}
	return apperror.Upstream("Failed to process signup request", err)
}

// ListBusinesses returns every business with its owner's account (super admin only)
func (h *Handler) ListBusinesses(c *gin.Context) {
	type row struct {
		models.Business
		OwnerEmail string `json:"owner_email"`
		ItemCount  int64  `json:"item_count"`
		TableCount int64  `json:"table_count"`
	}

	var businesses []models.Business
	if err := h.DB.WithContext(c.Request.Context()).Order("created_at desc").Find(&businesses).Error; err != nil {
		response.Fail(c, apperror.Upstream("Failed to load businesses", err))
		return
	}

	rows := make([]row, 0, len(businesses))
	for _, b := range businesses {
		r := row{Business: b}
		db := h.DB.WithContext(c.Request.Context())
		var owner models.Account
		if err := db.Select("email").First(&owner, b.AccountID).Error; err == nil {
			r.OwnerEmail = owner.Email
		}
		db.Model(&models.MenuItem{}).Where("business_id = ?", b.ID).Count(&r.ItemCount)
		db.Model(&models.Table{}).Where("business_id = ?", b.ID).Count(&r.TableCount)
		rows = append(rows, r)
	}
	response.OK(c, "", gin.H{"count": len(rows), "businesses": rows})
}

// GetSignupStateMachine returns the signup review transitions for documentation
func (h *Handler) GetSignupStateMachine(c *gin.Context) {
	transitions := statemachine.GetAllTransitions()
	info := make([]gin.H, len(transitions))
	for i, t := range transitions {
		info[i] = gin.H{"from": t.From, "to": t.To, "actor": t.Actor}
	}
	response.OK(c, "", gin.H{
		"state_machine":   info,
		"terminal_states": []models.SignupStatus{models.SignupApproved, models.SignupRejected},
		"description":     "Signup request review lifecycle",
	})
}
