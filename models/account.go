package models

import (
	"time"
)

// UserRole defines allowed roles in the system
type UserRole string

const (
	RoleOwner      UserRole = "restaurant_owner"
	RoleSuperAdmin UserRole = "super_admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == RoleOwner || r == RoleSuperAdmin
}

// AccountStatus is the approval status of an account.
type AccountStatus string

const (
	AccountPending  AccountStatus = "pending"
	AccountApproved AccountStatus = "approved"
	AccountRejected AccountStatus = "rejected"
)

type Account struct {
	ID           uint          `json:"id" gorm:"primaryKey"`
	Email        string        `json:"email" gorm:"uniqueIndex;not null"`
	Phone        string        `json:"phone" gorm:"uniqueIndex;not null"`
	PasswordHash string        `json:"-" gorm:"not null"`
	Role         UserRole      `json:"role" gorm:"not null;default:'restaurant_owner'"`
	Status       AccountStatus `json:"status" gorm:"not null;default:'pending'"`
	FirstLogin   bool          `json:"first_login" gorm:"not null;default:true"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
