package middleware

import (
	"net/http"
	"path"
	"strings"

	"qrmenu-api/models"
	"qrmenu-api/statemachine"

	"github.com/gin-gonic/gin"
)

// Page paths the gate redirects to.
const (
	LoginPath         = "/login"
	OnboardingPath    = "/information-setup"
	SuperAdminHome    = "/super-admin-dashboard/dashboard"
	OwnerHome         = "/owner-dashboard/menu-setup"
	superAdminSection = "/super-admin-dashboard"
	ownerSection      = "/owner-dashboard"
)

type routeClass int

const (
	routeAuthenticated routeClass = iota
	routePublic
	routeStatic
	routeAPI
	routeSuperAdmin
	routeOwner
	routeOnboarding
)

var publicPaths = map[string]bool{
	"/":                true,
	LoginPath:          true,
	"/signup":          true,
	"/forgot-password": true,
	"/reset-password":  true,
	"/health":          true,
	"/metrics":         true,
}

var staticPrefixes = []string{"/static/", "/assets/", "/uploads/"}

func under(p, section string) bool {
	return p == section || strings.HasPrefix(p, section+"/")
}

func classify(p string) routeClass {
	switch {
	case publicPaths[p], under(p, "/menu"):
		return routePublic
	case under(p, "/api"):
		return routeAPI
	case p == "/favicon.ico":
		return routeStatic
	case under(p, superAdminSection):
		return routeSuperAdmin
	case under(p, ownerSection):
		return routeOwner
	case p == OnboardingPath:
		return routeOnboarding
	}
	for _, prefix := range staticPrefixes {
		if strings.HasPrefix(p, prefix) {
			return routeStatic
		}
	}
	if path.Ext(p) != "" {
		return routeStatic
	}
	return routeAuthenticated
}

// Decision is the gate's verdict for one request. Redirect is set when Allow is false.
type Decision struct {
	Allow    bool
	Redirect string
}

func allow() Decision { return Decision{Allow: true} }

func redirect(to string) Decision { return Decision{Redirect: to} }

// HomeFor returns the landing page of a role, or "" for unknown roles.
func HomeFor(role models.UserRole) string {
	switch role {
	case models.RoleSuperAdmin:
		return SuperAdminHome
	case models.RoleOwner:
		return OwnerHome
	}
	return ""
}

// Decide evaluates the routing rules for a request path. The checks run in a
// fixed order and the first that applies wins: public and static paths,
// authentication, the onboarding exemption, approval, the first-login trap,
// then role sections. API paths are never redirected once a rule would send
// them to a page; their handlers answer with status codes instead.
func Decide(p string, s statemachine.AccountState) Decision {
	class := classify(path.Clean("/" + p))

	if class == routePublic || class == routeStatic {
		return allow()
	}

	if !s.Authenticated() {
		if class == routeAPI {
			return allow()
		}
		return redirect(LoginPath)
	}

	if class == routeOnboarding && s.FirstLogin {
		return allow()
	}

	if !s.Approved() {
		if class == routeAPI {
			return allow()
		}
		return redirect(LoginPath)
	}

	if s.FirstLogin && class != routeAPI {
		return redirect(OnboardingPath)
	}

	var need models.UserRole
	switch class {
	case routeSuperAdmin:
		need = models.RoleSuperAdmin
	case routeOwner:
		need = models.RoleOwner
	default:
		return allow()
	}
	if s.Role == need {
		return allow()
	}
	if home := HomeFor(s.Role); home != "" {
		return redirect(home)
	}
	return redirect(LoginPath)
}

// AccessGate applies Decide to every request, answering 302 for redirects.
// It expects Authenticate to have run.
func AccessGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		d := Decide(c.Request.URL.Path, CurrentState(c))
		if !d.Allow {
			c.Redirect(http.StatusFound, d.Redirect)
			c.Abort()
			return
		}
		c.Next()
	}
}
