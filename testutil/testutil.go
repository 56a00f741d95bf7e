// Package testutil holds database and HTTP helpers shared by package tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"qrmenu-api/config"
	"qrmenu-api/models"

	"github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens a fresh sqlite database in a temp dir with the full schema.
// A single connection serializes access, like a one-writer production sqlite.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := config.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

var phoneSeq atomic.Int64

// HashPassword hashes with the minimum bcrypt cost to keep tests fast.
func HashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	return string(hash)
}

// CreateTestAccount inserts an account with the given state.
func CreateTestAccount(t *testing.T, db *gorm.DB, email, password string, role models.UserRole, status models.AccountStatus, firstLogin bool) *models.Account {
	t.Helper()

	a := &models.Account{
		Email:        email,
		Phone:        fmt.Sprintf("+1555%07d", phoneSeq.Add(1)),
		PasswordHash: HashPassword(t, password),
		Role:         role,
		Status:       status,
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}
	// FirstLogin has a database default of true, so false must be written explicitly.
	if err := db.Model(a).Update("first_login", firstLogin).Error; err != nil {
		t.Fatalf("Failed to set first_login: %v", err)
	}
	a.FirstLogin = firstLogin
	return a
}

// CreateTestSignup inserts a pending account with its pending signup request.
func CreateTestSignup(t *testing.T, db *gorm.DB, email, businessName string) (*models.Account, *models.SignupRequest) {
	t.Helper()

	a := CreateTestAccount(t, db, email, "password123", models.RoleOwner, models.AccountPending, true)
	req := &models.SignupRequest{
		AccountID:          a.ID,
		BusinessName:       businessName,
		BusinessEmail:      email,
		Phone:              a.Phone,
		LicenseDocumentURL: "https://files.example.com/licenses/" + businessName + ".pdf",
		Status:             models.SignupPending,
	}
	if err := db.Create(req).Error; err != nil {
		t.Fatalf("Failed to create test signup request: %v", err)
	}
	return a, req
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
