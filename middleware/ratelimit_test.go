package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"qrmenu-api/ratelimit"
	"qrmenu-api/response"
	"qrmenu-api/testutil"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
)

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), "otp", 5*time.Minute, 3)

	r := gin.New()
	r.POST("/api/otp", RateLimit(limiter, ClientIP, log.NewNopLogger()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 1; i <= 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, testutil.MakeRequest(http.MethodPost, "/api/otp", nil, nil))
		testutil.AssertStatus(t, w, http.StatusOK)
		if got := w.Header().Get("X-RateLimit-Remaining"); got != string(rune('0'+3-i)) {
			t.Fatalf("request %d remaining=%q", i, got)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, testutil.MakeRequest(http.MethodPost, "/api/otp", nil, nil))
	testutil.AssertStatus(t, w, http.StatusTooManyRequests)
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}

	var body response.Envelope
	testutil.AssertJSON(t, w, &body)
	if body.Success || !strings.Contains(body.Error, "Too many attempts") {
		t.Fatalf("body=%+v", body)
	}

	// Another address has its own budget.
	req := testutil.MakeRequest(http.MethodPost, "/api/otp", nil, nil)
	req.RemoteAddr = "10.0.0.2:4000"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)
}

type brokenStore struct{}

var errBroken = errors.New("store down")

func (brokenStore) Increment(context.Context, string, time.Duration) (ratelimit.Record, error) {
	return ratelimit.Record{}, errBroken
}
func (brokenStore) Get(context.Context, string) (ratelimit.Record, bool, error) {
	return ratelimit.Record{}, false, errBroken
}
func (brokenStore) Set(context.Context, string, ratelimit.Record) error { return errBroken }
func (brokenStore) Delete(context.Context, string) error                { return errBroken }

func TestRateLimitFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var logs bytes.Buffer
	limiter := ratelimit.New(brokenStore{}, "reset", time.Minute, 1)

	r := gin.New()
	r.GET("/x", RateLimit(limiter, ClientIP, log.NewLogfmtLogger(&logs)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, testutil.MakeRequest(http.MethodGet, "/x", nil, nil))
		testutil.AssertStatus(t, w, http.StatusOK)
	}
	if !strings.Contains(logs.String(), "rate limit store unavailable") {
		t.Fatalf("store failure not logged: %q", logs.String())
	}
}

func TestRetryMessage(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want string
	}{
		{0, "Too many attempts. Try again in 1 second."},
		{30 * time.Second, "Too many attempts. Try again in 30 seconds."},
		{61 * time.Second, "Too many attempts. Try again in 2 minutes."},
		{time.Minute, "Too many attempts. Try again in 1 minute."},
		{15 * time.Minute, "Too many attempts. Try again in 15 minutes."},
	}
	for _, tt := range tests {
		if got := retryMessage(tt.wait); got != tt.want {
			t.Errorf("retryMessage(%v)=%q, want %q", tt.wait, got, tt.want)
		}
	}
}
