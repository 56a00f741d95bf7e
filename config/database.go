package config

import (
	"fmt"
	"strings"

	"qrmenu-api/models"

	"github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB connects to the configured driver and migrates all models.
func OpenDB(cfg *Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DBDSN)
	case "mysql":
		dialector = mysql.Open(cfg.DBDSN)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (sqlite or mysql)", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate auto-migrates all models.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Account{},
		&models.SignupRequest{},
		&models.PasswordResetChallenge{},
		&models.Business{},
		&models.MenuItem{},
		&models.Table{},
	)
	if err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// SeedSuperAdmin creates the super-admin account when no account uses email.
// It reports whether an account was created.
func SeedSuperAdmin(db *gorm.DB, email, password string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return false, nil
	}
	var count int64
	if err := db.Model(&models.Account{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking super admin: %w", err)
	}
	if count > 0 {
		return false, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hashing super admin password: %w", err)
	}
	admin := models.Account{
		Email:        email,
		Phone:        "super-admin:" + email,
		PasswordHash: string(hash),
		Role:         models.RoleSuperAdmin,
		Status:       models.AccountApproved,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&admin).Error; err != nil {
			return fmt.Errorf("creating super admin: %w", err)
		}
		// first_login defaults to true in the schema; admins have no onboarding.
		return tx.Model(&admin).Update("first_login", false).Error
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
