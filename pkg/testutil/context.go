package testutil

import (
	"net/http"

	"github.com/google/uuid"

	id "presence/pkg/domain"
	"presence/pkg/requestcontext"
)

// WithOperator adds an operator identity and role to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithOperator(req *http.Request, operatorID id.OperatorID, role requestcontext.Role) *http.Request {
	ctx := requestcontext.WithOperator(req.Context(), operatorID, role)
	return req.WithContext(ctx)
}

// WithAttendant adds a fresh attendant identity to the request context.
func WithAttendant(req *http.Request) *http.Request {
	return WithOperator(req, id.OperatorID(uuid.New()), requestcontext.RoleAttendant)
}

// WithParticipant adds a fresh participant identity to the request context.
func WithParticipant(req *http.Request) *http.Request {
	return WithOperator(req, id.OperatorID(uuid.New()), requestcontext.RoleParticipant)
}
