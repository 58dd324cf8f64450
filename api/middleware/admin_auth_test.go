package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgauth "github.com/baselhussain/ketoplan-backend/pkg/auth"
	"github.com/baselhussain/ketoplan-backend/pkg/config"
)

func adminTestConfig() config.AdminJWTConfig {
	return config.AdminJWTConfig{
		Secret:            "test-secret",
		Issuer:            "ketoplan-admin",
		ExpirationMinutes: 60,
	}
}

func TestAdminAuthAcceptsValidToken(t *testing.T) {
	cfg := adminTestConfig()
	token, err := pkgauth.MintAdminToken(cfg, time.Now(), "ops@ketoplan.app")
	require.NoError(t, err)

	var subject string
	handler := AdminAuth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = AdminSubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/resolution", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops@ketoplan.app", subject)
}

func TestAdminAuthRejectsMissingHeader(t *testing.T) {
	handler := AdminAuth(adminTestConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/resolution", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuthRejectsForgedToken(t *testing.T) {
	other := adminTestConfig()
	other.Secret = "attacker-secret"
	token, err := pkgauth.MintAdminToken(other, time.Now(), "ops@ketoplan.app")
	require.NoError(t, err)

	handler := AdminAuth(adminTestConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/resolution", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuthRejectsExpiredToken(t *testing.T) {
	cfg := adminTestConfig()
	token, err := pkgauth.MintAdminToken(cfg, time.Now().Add(-2*time.Hour), "ops@ketoplan.app")
	require.NoError(t, err)

	handler := AdminAuth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/resolution", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
