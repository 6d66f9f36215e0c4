package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "presence/pkg/domain"
	"presence/pkg/requestcontext"
)

// TokenClaims are the verified claims the presence service reads from the
// identity token. Verification happens locally against the issuer's key; no
// callback to the identity service is made per request, so revocation is only
// effective at token expiry.
type TokenClaims struct {
	Subject string
	Role    string
}

// TokenValidator verifies a bearer token's signature and validity window.
type TokenValidator interface {
	ValidateToken(tokenString string) (*TokenClaims, error)
}

// writeJSONError writes a JSON error response with the given status code and
// error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth verifies the bearer token and injects the operator identity and
// role into the request context. A token without a role claim is treated as a
// participant.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")

			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			operatorID, err := id.ParseOperatorID(claims.Subject)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid subject claim",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid token subject")
				return
			}

			role := requestcontext.Role(claims.Role)
			if role == "" {
				role = requestcontext.RoleParticipant
			}

			ctx = requestcontext.WithOperator(ctx, operatorID, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCheckinOperator rejects callers whose role may not perform check-ins.
// Must run after RequireAuth.
func RequireCheckinOperator(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			role := requestcontext.RoleOf(ctx)
			if !role.CanOperateCheckin() {
				logger.WarnContext(ctx, "forbidden - insufficient role for check-in",
					"role", string(role),
					"operator_id", requestcontext.OperatorID(ctx).String(),
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "Only attendants and admins may record check-ins")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
