package models

import "time"

// SignupStatus is the review status of a signup request.
type SignupStatus string

const (
	SignupPending  SignupStatus = "pending"
	SignupApproved SignupStatus = "approved"
	SignupRejected SignupStatus = "rejected"
)

// SignupRequest is the record a super admin reviews. AccountID keeps pointing at
// the removed account after a rejection so the review history survives.
type SignupRequest struct {
	ID                 uint         `json:"id" gorm:"primaryKey"`
	AccountID          uint         `json:"account_id" gorm:"index;not null"`
	BusinessName       string       `json:"business_name" gorm:"not null"`
	BusinessEmail      string       `json:"business_email" gorm:"not null"`
	Phone              string       `json:"phone"`
	LicenseDocumentURL string       `json:"license_document_url"`
	Status             SignupStatus `json:"status" gorm:"not null;default:'pending';index"`
	ReviewedBy         *uint        `json:"reviewed_by"`
	ReviewedAt         *time.Time   `json:"reviewed_at"`
	RejectionReason    string       `json:"rejection_reason,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}
