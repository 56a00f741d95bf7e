package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"qrmenu-api/apperror"
	"qrmenu-api/models"
	"qrmenu-api/response"
	"qrmenu-api/statemachine"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// SessionCookie carries the session token for page requests.
const SessionCookie = "session"

const accountKey = "account"

type Claims struct {
	UserID uint            `json:"user_id"`
	Email  string          `json:"email"`
	Role   models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies HS256 session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(secret []byte, ttl time.Duration) *Sessions {
	return &Sessions{secret: secret, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (s *Sessions) WithClock(now func() time.Time) *Sessions {
	s.now = now
	return s
}

// TTL is how long an issued token stays valid.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Issue creates a signed token for an account.
func (s *Sessions) Issue(a *models.Account) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := Claims{
		UserID: a.ID,
		Email:  a.Email,
		Role:   a.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Parse verifies a token and returns its claims.
func (s *Sessions) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// SetCookie stores token in the session cookie.
func SetCookie(c *gin.Context, token string, ttl time.Duration, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, int(ttl.Seconds()), "/", "", secure, true)
}

// ClearCookie expires the session cookie.
func ClearCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", secure, true)
}

func tokenFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if v, err := c.Cookie(SessionCookie); err == nil {
		return v
	}
	return ""
}

// Authenticate resolves the caller's session, from the bearer header or the
// session cookie, to the live account row. Requests without a usable session
// continue as anonymous.
func Authenticate(sessions *Sessions, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := tokenFrom(c)
		if tokenStr == "" {
			c.Next()
			return
		}
		claims, err := sessions.Parse(tokenStr)
		if err != nil {
			c.Next()
			return
		}
		var account models.Account
		err = db.WithContext(c.Request.Context()).First(&account, claims.UserID).Error
		switch {
		case err == nil:
			c.Set(accountKey, &account)
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Rejected accounts are deleted; their tokens resolve to nobody.
		default:
			response.Abort(c, apperror.Upstream("Could not load session", err))
			return
		}
		c.Next()
	}
}

// CurrentAccount returns the authenticated account, or nil.
func CurrentAccount(c *gin.Context) *models.Account {
	v, ok := c.Get(accountKey)
	if !ok {
		return nil
	}
	a, _ := v.(*models.Account)
	return a
}

// CurrentState returns the lifecycle state of the caller.
func CurrentState(c *gin.Context) statemachine.AccountState {
	return statemachine.StateOf(CurrentAccount(c))
}

// AuthRequired rejects anonymous callers with 401 and accounts that have not
// been approved with 403.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		state := CurrentState(c)
		if !state.Authenticated() {
			response.Abort(c, apperror.Unauthorized("Authentication required"))
			return
		}
		if !state.Approved() {
			response.Abort(c, apperror.Forbidden("Account is not approved"))
			return
		}
		c.Next()
	}
}

// RoleRequired enforces that caller has one of the allowed roles
func RoleRequired(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		account := CurrentAccount(c)
		if account == nil {
			response.Abort(c, apperror.Unauthorized("Authentication required"))
			return
		}
		for _, r := range roles {
			if account.Role == r {
				c.Next()
				return
			}
		}
		response.Abort(c, apperror.Forbidden("Access denied. Required role(s): "+rolesString(roles)))
	}
}

func rolesString(roles []models.UserRole) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}

// GetUserID extracts caller user ID from context
func GetUserID(c *gin.Context) uint {
	if a := CurrentAccount(c); a != nil {
		return a.ID
	}
	return 0
}
