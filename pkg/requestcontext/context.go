// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
// Tests inject them directly:
//
//	ctx = requestcontext.WithOperator(ctx, operatorID, requestcontext.RoleAttendant)
//	ctx = requestcontext.WithClientIP(ctx, "203.0.113.9")
package requestcontext

import (
	"context"

	id "presence/pkg/domain"
)

// Role is the role claim carried by the identity token.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleAttendant   Role = "attendant"
	RoleAdmin       Role = "admin"
)

// CanOperateCheckin reports whether the role may perform check-ins on behalf
// of registrations.
func (r Role) CanOperateCheckin() bool {
	return r == RoleAttendant || r == RoleAdmin
}

type (
	operatorIDKey struct{}
	roleKey       struct{}
	clientIPKey   struct{}
	requestIDKey  struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyOperatorID = operatorIDKey{}
	ContextKeyRole       = roleKey{}
	ContextKeyClientIP   = clientIPKey{}
	ContextKeyRequestID  = requestIDKey{}
)

// OperatorID retrieves the authenticated operator from the context.
// Returns the zero value if not set.
func OperatorID(ctx context.Context) id.OperatorID {
	if operatorID, ok := ctx.Value(ContextKeyOperatorID).(id.OperatorID); ok {
		return operatorID
	}
	return id.OperatorID{}
}

// RoleOf retrieves the authenticated role from the context.
// Absence of a role claim is treated as participant.
func RoleOf(ctx context.Context) Role {
	if role, ok := ctx.Value(ContextKeyRole).(Role); ok && role != "" {
		return role
	}
	return RoleParticipant
}

// WithOperator injects the authenticated operator identity and role.
func WithOperator(ctx context.Context, operatorID id.OperatorID, role Role) context.Context {
	ctx = context.WithValue(ctx, ContextKeyOperatorID, operatorID)
	return context.WithValue(ctx, ContextKeyRole, role)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// WithClientIP injects a client IP address into the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ContextKeyClientIP, ip)
}

// RequestID retrieves the correlation ID from the context.
func RequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}
