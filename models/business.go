package models

import "time"

// Business is the restaurant profile an owner completes during onboarding.
type Business struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	AccountID   uint       `json:"account_id" gorm:"uniqueIndex;not null"`
	Name        string     `json:"name" gorm:"not null"`
	Slug        string     `json:"slug" gorm:"uniqueIndex;not null"`
	Cuisine     string     `json:"cuisine"`
	Address     string     `json:"address"`
	Phone       string     `json:"phone"`
	Description string     `json:"description"`
	LogoURL     string     `json:"logo_url"`
	IsOpen      bool       `json:"is_open" gorm:"default:true"`
	MenuItems   []MenuItem `json:"menu_items,omitempty" gorm:"foreignKey:BusinessID"`
	Tables      []Table    `json:"tables,omitempty" gorm:"foreignKey:BusinessID"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type MenuItem struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	BusinessID  uint      `json:"business_id" gorm:"index;not null"`
	Name        string    `json:"name" gorm:"not null"`
	Description string    `json:"description"`
	Price       float64   `json:"price" gorm:"not null"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url"`
	IsAvailable bool      `json:"is_available" gorm:"default:true"`
	IsVeg       bool      `json:"is_veg" gorm:"default:false"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Table is a physical table with a QR code pointing at the public menu.
type Table struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	BusinessID uint      `json:"business_id" gorm:"uniqueIndex:idx_business_table;not null"`
	Number     int       `json:"number" gorm:"uniqueIndex:idx_business_table;not null"`
	Label      string    `json:"label"`
	Code       string    `json:"code" gorm:"uniqueIndex;not null"`
	QRTarget   string    `json:"qr_target" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
}
