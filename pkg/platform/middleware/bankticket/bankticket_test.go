package bankticket

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "giro/pkg/domain-errors"
)

type fakeValidator struct {
	accept string
}

func (f fakeValidator) Validate(raw string) (*TicketClaims, error) {
	if raw == f.accept {
		return &TicketClaims{BankRef: "brf_abc", SeatID: "7", BankCode: "GIRO01", TicketID: "tid"}, nil
	}
	return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid ticket")
}

func newGuardedServer() http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard := RequireTicket(fakeValidator{accept: "good-ticket"}, log)
	return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetTicket(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(claims.BankRef))
	}))
}

func TestRequireTicket(t *testing.T) {
	handler := newGuardedServer()

	do := func(t *testing.T, mutate func(*http.Request)) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/bank/balance", nil)
		mutate(req)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	t.Run("accepts the dedicated header", func(t *testing.T) {
		w := do(t, func(r *http.Request) { r.Header.Set(DedicatedHeader, "good-ticket") })
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "brf_abc", w.Body.String())
	})

	t.Run("accepts the bank scheme in the authorization header", func(t *testing.T) {
		w := do(t, func(r *http.Request) { r.Header.Set("Authorization", "BankTicket good-ticket") })
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rejects the identity domain's bearer scheme", func(t *testing.T) {
		w := do(t, func(r *http.Request) { r.Header.Set("Authorization", "Bearer good-ticket") })
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects a missing credential", func(t *testing.T) {
		w := do(t, func(r *http.Request) {})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects an invalid ticket", func(t *testing.T) {
		w := do(t, func(r *http.Request) { r.Header.Set(DedicatedHeader, "forged-ticket") })
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
