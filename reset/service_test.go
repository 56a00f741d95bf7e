package reset

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"qrmenu-api/models"
	"qrmenu-api/testutil"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *testutil.Clock) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	clock := testutil.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := NewService(db, DefaultConfig).WithClock(clock.Now)
	return svc, db, clock
}

func TestPasswordResetRoundTrip(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	account := testutil.CreateTestAccount(t, db, "owner@example.com", "old-password", models.RoleOwner, models.AccountApproved, false)

	ch, err := svc.CreateChallenge(ctx, "  Owner@Example.com ")
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	if len(ch.Code) != 6 {
		t.Fatalf("code %q should have 6 digits", ch.Code)
	}

	v, _, err := svc.VerifyOTP(ctx, "owner@example.com", ch.Code)
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if len(v.Token) != 64 {
		t.Fatalf("token %q should be 32 hex bytes", v.Token)
	}

	// The OTP is consumed by the first successful verification.
	if _, _, err := svc.VerifyOTP(ctx, "owner@example.com", ch.Code); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("second VerifyOTP err=%v, want ErrInvalidOrExpiredToken", err)
	}

	if err := svc.ResetPassword(ctx, v.Token, "new-password-1"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	var got models.Account
	if err := db.First(&got, account.ID).Error; err != nil {
		t.Fatalf("load account: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(got.PasswordHash), []byte("new-password-1")) != nil {
		t.Fatal("password was not updated")
	}

	if err := svc.ResetPassword(ctx, v.Token, "another-password"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("replayed token err=%v, want ErrInvalidOrExpiredToken", err)
	}

	var count int64
	db.Model(&models.PasswordResetChallenge{}).Count(&count)
	if count != 0 {
		t.Fatalf("challenge should be deleted after reset, %d left", count)
	}
}

func TestCreateChallengeUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.CreateChallenge(context.Background(), "nobody@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err=%v, want ErrAccountNotFound", err)
	}
}

func TestNewChallengeSupersedesOld(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	testutil.CreateTestAccount(t, db, "owner@example.com", "old-password", models.RoleOwner, models.AccountApproved, false)

	first, err := svc.CreateChallenge(ctx, "owner@example.com")
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	second, err := svc.CreateChallenge(ctx, "owner@example.com")
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}

	var count int64
	db.Model(&models.PasswordResetChallenge{}).Where("email = ?", "owner@example.com").Count(&count)
	if count != 1 {
		t.Fatalf("want exactly one challenge, got %d", count)
	}

	if first.Code != second.Code {
		if _, _, err := svc.VerifyOTP(ctx, "owner@example.com", first.Code); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("old code err=%v, want ErrInvalidCode", err)
		}
	}
	if _, _, err := svc.VerifyOTP(ctx, "owner@example.com", second.Code); err != nil {
		t.Fatalf("new code: %v", err)
	}
}

func TestSupersedingInvalidatesIssuedToken(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	testutil.CreateTestAccount(t, db, "owner@example.com", "old-password", models.RoleOwner, models.AccountApproved, false)

	ch, _ := svc.CreateChallenge(ctx, "owner@example.com")
	v, _, err := svc.VerifyOTP(ctx, "owner@example.com", ch.Code)
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if _, err := svc.CreateChallenge(ctx, "owner@example.com"); err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	if err := svc.ResetPassword(ctx, v.Token, "new-password-1"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("err=%v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestVerifyOTPExpired(t *testing.T) {
	svc, db, clock := newTestService(t)
	ctx := context.Background()
	testutil.CreateTestAccount(t, db, "owner@example.com", "old-password", models.RoleOwner, models.AccountApproved, false)

	ch, err := svc.CreateChallenge(ctx, "owner@example.com")
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}

	clock.Advance(5*time.Minute + time.Second)

	if _, _, err := svc.VerifyOTP(ctx, "owner@example.com", ch.Code); !errors.Is(err, ErrExpiredOTP) {
		t.Fatalf("err=%v, want ErrExpiredOTP", err)
	}
	// Expired challenges are purged when seen.
	if _, _, err := svc.VerifyOTP(ctx, "owner@example.com", ch.Code); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("err=%v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestVerifyOTPAttempts(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	testutil.CreateTestAccount(t, db, "owner@example.com", "old-password", models.RoleOwner, models.AccountApproved, false)

	ch, err := svc.CreateChallenge(ctx, "owner@example.com")
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	wrong := "000000"
	if ch.Code == wrong {
		wrong = "111111"
	}

	for want := 2; want >= 0; want-- {
		_, remaining, err := svc.VerifyOTP(ctx, "owner@example.com", wrong)
		if !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("err=%v, want ErrInvalidCode", err)
		}
		if remaining != want {
			t.Fatalf("remaining=%d, want %d", remaining, want)
		}
	}

	// Even the right code is refused once attempts are used up.
	if _, _, err := svc.VerifyOTP(ctx, "owner@example.com", ch.Code); !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("err=%v, want ErrAttemptsExhausted", err)
	}
}

func TestResetTokenExpiry(t *testing.T) {
	svc, db, clock := newTestService(t)
	ctx := context.Background()
	testutil.CreateTestAccount(t, db, "owner@example.com", "old-password", models.RoleOwner, models.AccountApproved, false)

	ch, _ := svc.CreateChallenge(ctx, "owner@example.com")
	v, _, err := svc.VerifyOTP(ctx, "owner@example.com", ch.Code)
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}

	clock.Advance(15*time.Minute + time.Second)

	if err := svc.ResetPassword(ctx, v.Token, "new-password-1"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("err=%v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestResetPasswordValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.ResetPassword(ctx, "whatever", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("err=%v, want ErrWeakPassword", err)
	}
	if err := svc.ResetPassword(ctx, "", "long-enough-password"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("err=%v, want ErrInvalidOrExpiredToken", err)
	}
	if err := svc.ResetPassword(ctx, "deadbeef", "long-enough-password"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("err=%v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestResetPasswordConcurrentRedemption(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	testutil.CreateTestAccount(t, db, "owner@example.com", "old-password", models.RoleOwner, models.AccountApproved, false)

	ch, _ := svc.CreateChallenge(ctx, "owner@example.com")
	v, _, err := svc.VerifyOTP(ctx, "owner@example.com", ch.Code)
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}

	const n = 5
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.ResetPassword(ctx, v.Token, "concurrent-password")
		}()
	}
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInvalidOrExpiredToken):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("successes=%d, want exactly 1", successes)
	}
}

func TestRandomDigitsLength(t *testing.T) {
	for _, n := range []int{4, 6, 8} {
		for i := 0; i < 50; i++ {
			code, err := randomDigits(n)
			if err != nil {
				t.Fatalf("randomDigits: %v", err)
			}
			if len(code) != n {
				t.Fatalf("len(%q)=%d, want %d", code, len(code), n)
			}
			for _, r := range code {
				if r < '0' || r > '9' {
					t.Fatalf("non-digit in %q", code)
				}
			}
		}
	}
}
