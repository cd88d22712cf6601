package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/melkam/therapy-api/internal/core/domain"
)

func invokeRBAC(t *testing.T, role string, allowed ...domain.Role) error {
	t.Helper()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if role != "" {
		c.Set("role", role)
	}
	next := func(c echo.Context) error { return nil }
	return RBAC(allowed...)(next)(c)
}

func TestRBAC_AllowsListedRole(t *testing.T) {
	if err := invokeRBAC(t, "ADMIN", domain.RoleAdmin); err != nil {
		t.Fatalf("admin rejected: %v", err)
	}
	if err := invokeRBAC(t, "THERAPIST", domain.RoleAdmin, domain.RoleTherapist); err != nil {
		t.Fatalf("therapist rejected: %v", err)
	}
}

func TestRBAC_RejectsOtherRoles(t *testing.T) {
	for _, role := range []string{"PATIENT", "THERAPIST", "", "admin"} {
		err := invokeRBAC(t, role, domain.RoleAdmin)
		var he *echo.HTTPError
		if !errors.As(err, &he) || he.Code != http.StatusForbidden {
			t.Fatalf("role %q: expected 403, got %v", role, err)
		}
	}
}
