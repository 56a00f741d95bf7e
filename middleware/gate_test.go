package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"qrmenu-api/models"
	"qrmenu-api/statemachine"

	"github.com/gin-gonic/gin"
)

func state(status models.AccountStatus, role models.UserRole, firstLogin bool) statemachine.AccountState {
	return statemachine.StateOf(&models.Account{Status: status, Role: role, FirstLogin: firstLogin})
}

func TestDecide(t *testing.T) {
	anon := statemachine.Anonymous
	pending := state(models.AccountPending, models.RoleOwner, true)
	onboarding := state(models.AccountApproved, models.RoleOwner, true)
	owner := state(models.AccountApproved, models.RoleOwner, false)
	admin := state(models.AccountApproved, models.RoleSuperAdmin, false)
	stranger := state(models.AccountApproved, models.UserRole("waiter"), false)

	tests := []struct {
		name  string
		path  string
		state statemachine.AccountState
		want  Decision
	}{
		{"anonymous owner page", "/owner-dashboard/menu-setup", anon, redirect(LoginPath)},
		{"anonymous unclassified page", "/settings", anon, redirect(LoginPath)},
		{"anonymous onboarding", OnboardingPath, anon, redirect(LoginPath)},
		{"anonymous login", "/login", anon, allow()},
		{"anonymous root", "/", anon, allow()},
		{"anonymous public menu", "/menu/taco-stand", anon, allow()},
		{"anonymous asset", "/assets/app.js", anon, allow()},
		{"anonymous favicon", "/favicon.ico", anon, allow()},
		{"anonymous file", "/robots.txt", anon, allow()},
		{"anonymous api", "/api/business", anon, allow()},

		{"onboarding trapped", "/owner-dashboard/tables", onboarding, redirect(OnboardingPath)},
		{"onboarding unclassified", "/settings", onboarding, redirect(OnboardingPath)},
		{"onboarding setup page", OnboardingPath, onboarding, allow()},
		{"onboarding api", "/api/business/setup", onboarding, allow()},
		{"onboarding public", "/login", onboarding, allow()},

		{"pending owner page", "/owner-dashboard/menu-setup", pending, redirect(LoginPath)},
		{"pending admin page", "/super-admin-dashboard/dashboard", pending, redirect(LoginPath)},
		{"pending unclassified", "/settings", pending, redirect(LoginPath)},
		{"pending api", "/api/auth/me", pending, allow()},
		{"pending setup page", OnboardingPath, pending, allow()},

		{"owner in admin section", "/super-admin-dashboard/dashboard", owner, redirect(OwnerHome)},
		{"owner in own section", "/owner-dashboard/tables", owner, allow()},
		{"owner trailing slash", "/owner-dashboard/", owner, allow()},
		{"owner unclassified", "/settings", owner, allow()},
		{"admin in owner section", "/owner-dashboard/menu-setup", admin, redirect(SuperAdminHome)},
		{"admin in own section", "/super-admin-dashboard/requests", admin, allow()},
		{"unknown role", "/owner-dashboard/menu-setup", stranger, redirect(LoginPath)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.path, tt.state); got != tt.want {
				t.Fatalf("Decide(%q)=%+v, want %+v", tt.path, got, tt.want)
			}
		})
	}
}

func TestClassifySectionBoundaries(t *testing.T) {
	if classify("/owner-dashboardx") != routeAuthenticated {
		t.Error("/owner-dashboardx must not match the owner section")
	}
	if classify("/menus") != routeAuthenticated {
		t.Error("/menus must not match the public menu")
	}
	if classify("/api/menu/items/1.json") != routeAPI {
		t.Error("api paths take precedence over file extensions")
	}
}

func TestAccessGateRedirects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.GetHeader("X-Test-Owner") != "" {
			c.Set(accountKey, &models.Account{ID: 1, Role: models.RoleOwner, Status: models.AccountApproved})
		}
		c.Next()
	}, AccessGate())
	r.GET("/owner-dashboard/menu-setup", func(c *gin.Context) { c.String(http.StatusOK, "menu") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/owner-dashboard/menu-setup", nil))
	if w.Code != http.StatusFound || w.Header().Get("Location") != LoginPath {
		t.Fatalf("anonymous: status=%d location=%q", w.Code, w.Header().Get("Location"))
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/owner-dashboard/menu-setup", nil)
	req.Header.Set("X-Test-Owner", "1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "menu" {
		t.Fatalf("owner: status=%d body=%q", w.Code, w.Body.String())
	}
}
