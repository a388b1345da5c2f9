package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name       string
		user       *AppUser
		wantStatus int
	}{
		{
			name:       "no user",
			user:       nil,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing permission",
			user:       &AppUser{Username: "ann1", Role: "user", Permissions: []string{"markup.view"}},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "granted permission",
			user:       &AppUser{Username: "ann1", Role: "user", Permissions: []string{"markup.apply"}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "admin without explicit permissions",
			user:       &AppUser{Username: "root", Role: "admin"},
			wantStatus: http.StatusOK,
		},
	}

	e := echo.New()
	handler := RequirePermission("markup.apply")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			rec := httptest.NewRecorder()
			cc := &AppContext{e.NewContext(req, rec), nil, tt.user}

			if err := handler(cc); err != nil {
				t.Fatalf("handler: %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Fatalf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHasPermission(t *testing.T) {
	if HasPermission(nil, "markup.view") {
		t.Fatal("nil user must hold no permissions")
	}
	user := &AppUser{Username: "ann1", Permissions: []string{"markup.view"}}
	if !HasPermission(user, "markup.view") {
		t.Fatal("granted permission not recognized")
	}
	if HasPermission(user, "markup.delete") {
		t.Fatal("absent permission reported as granted")
	}
}

func TestIsAdmin(t *testing.T) {
	if IsAdmin(nil) {
		t.Fatal("nil user must not be admin")
	}
	if IsAdmin(&AppUser{Username: "ann1", Role: "user"}) {
		t.Fatal("user role reported as admin")
	}
	if !IsAdmin(&AppUser{Username: "root", Role: "admin"}) {
		t.Fatal("admin role not recognized")
	}
}
