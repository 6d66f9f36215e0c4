package middleware

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence/pkg/requestcontext"
	"presence/pkg/testutil"
)

type staticValidator struct {
	claims *TokenClaims
	err    error
}

func (v staticValidator) ValidateToken(string) (*TokenClaims, error) {
	return v.claims, v.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func captureContext(captured *map[string]string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = map[string]string{
			"operator_id": requestcontext.OperatorID(r.Context()).String(),
			"role":        string(requestcontext.RoleOf(r.Context())),
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth(t *testing.T) {
	subject := uuid.NewString()

	t.Run("valid token injects operator and role", func(t *testing.T) {
		var captured map[string]string
		mw := RequireAuth(staticValidator{claims: &TokenClaims{Subject: subject, Role: "attendant"}}, discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/checkin", nil)
		req.Header.Set("Authorization", "Bearer some-token")
		rr := httptest.NewRecorder()
		mw(captureContext(&captured)).ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, subject, captured["operator_id"])
		assert.Equal(t, "attendant", captured["role"])
	})

	t.Run("missing role defaults to participant", func(t *testing.T) {
		var captured map[string]string
		mw := RequireAuth(staticValidator{claims: &TokenClaims{Subject: subject}}, discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/checkin", nil)
		req.Header.Set("Authorization", "Bearer some-token")
		rr := httptest.NewRecorder()
		mw(captureContext(&captured)).ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "participant", captured["role"])
	})

	t.Run("missing header", func(t *testing.T) {
		mw := RequireAuth(staticValidator{}, discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/checkin", nil)
		rr := httptest.NewRecorder()
		mw(http.NotFoundHandler()).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		mw := RequireAuth(staticValidator{err: errors.New("signature mismatch")}, discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/checkin", nil)
		req.Header.Set("Authorization", "Bearer forged")
		rr := httptest.NewRecorder()
		mw(http.NotFoundHandler()).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("non-uuid subject", func(t *testing.T) {
		mw := RequireAuth(staticValidator{claims: &TokenClaims{Subject: "service-account"}}, discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/checkin", nil)
		req.Header.Set("Authorization", "Bearer some-token")
		rr := httptest.NewRecorder()
		mw(http.NotFoundHandler()).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestRequireCheckinOperator(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mw := RequireCheckinOperator(discardLogger())

	t.Run("attendant passes", func(t *testing.T) {
		req := testutil.WithAttendant(httptest.NewRequest(http.MethodPost, "/checkin", nil))
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("participant rejected", func(t *testing.T) {
		req := testutil.WithParticipant(httptest.NewRequest(http.MethodPost, "/checkin", nil))
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.JSONEq(t, `{"error":"forbidden","error_description":"Only attendants and admins may record check-ins"}`, rr.Body.String())
	})

	t.Run("anonymous rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/checkin", nil)
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}
