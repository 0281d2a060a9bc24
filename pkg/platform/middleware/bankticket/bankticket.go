// Package bankticket guards ledger routes behind access-ticket validation.
// On success it attaches the typed ticket claims to the request context; on
// failure it short-circuits with a single undifferentiated unauthorized
// response before the handler runs.
package bankticket

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "giro/pkg/domain-errors"
	"giro/pkg/platform/httputil"
)

// DedicatedHeader carries a raw ticket on its own.
const DedicatedHeader = "X-Bank-Ticket"

// Scheme is the only authorization scheme word the bank domain accepts.
// Anything else, including the identity domain's Bearer, is rejected
// outright, never silently ignored.
const Scheme = "BankTicket "

// TicketValidator verifies a raw ticket under the bank-domain secret.
type TicketValidator interface {
	Validate(rawTicket string) (*TicketClaims, error)
}

// TicketClaims is the validated claim set handlers work with.
type TicketClaims struct {
	BankRef  string
	SeatID   string
	BankCode string
	TicketID string
}

type contextKeyTicket struct{}

// ContextKeyTicket is exported for use in handler tests.
var ContextKeyTicket = contextKeyTicket{}

// GetTicket retrieves the validated ticket claims from the context.
func GetTicket(ctx context.Context) (TicketClaims, bool) {
	claims, ok := ctx.Value(ContextKeyTicket).(TicketClaims)
	return claims, ok
}

// WithTicket attaches claims to ctx; exported for handler tests.
func WithTicket(ctx context.Context, claims TicketClaims) context.Context {
	return context.WithValue(ctx, ContextKeyTicket, claims)
}

// RequireTicket returns middleware enforcing ticket validation on every
// request it wraps.
func RequireTicket(validator TicketValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := extractTicket(r)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - no usable ticket", "error", err)
				httputil.WriteError(w, err)
				return
			}

			claims, err := validator.Validate(raw)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - ticket rejected", "error", err)
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithTicket(r.Context(), *claims)))
		})
	}
}

// extractTicket accepts the dedicated header or a bank-scheme authorization
// header. A generic authorization header with any other scheme word fails.
func extractTicket(r *http.Request) (string, error) {
	if raw := r.Header.Get(DedicatedHeader); raw != "" {
		return raw, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "missing ticket")
	}
	raw, ok := strings.CutPrefix(authHeader, Scheme)
	if !ok || raw == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "unsupported authorization scheme")
	}
	return raw, nil
}
