package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"giro/internal/bankauth"
	"giro/internal/ledger"
	dErrors "giro/pkg/domain-errors"
	"giro/pkg/platform/httputil"
	"giro/pkg/platform/middleware/bankticket"
)

// AuthService is the issuance half of the authentication firewall.
type AuthService interface {
	Challenge(ctx context.Context, address string) (bankauth.ChallengeResult, error)
	IssueTicket(ctx context.Context, claimedAddress, signature, nonce string) (bankauth.TicketResult, error)
}

// LedgerService covers every ticket-gated ledger operation.
type LedgerService interface {
	Balance(ctx context.Context, bankRef string) (ledger.BalanceResult, error)
	History(ctx context.Context, bankRef string, limit int) ([]ledger.HistoryEntry, error)
	Transfer(ctx context.Context, senderRef, recipientRef string, amount decimal.Decimal, memo string) (ledger.TransferResult, error)
	ResolveRecipient(ctx context.Context, bankRef string) ledger.Resolution
}

// HealthChecker pings one dependency.
type HealthChecker struct {
	Name  string
	Check func(ctx context.Context) error
}

// BankHandler exposes the settlement bank over HTTP.
type BankHandler struct {
	auth   AuthService
	ledger LedgerService
	health []HealthChecker
}

func NewBankHandler(auth AuthService, ledgerSvc LedgerService, health []HealthChecker) *BankHandler {
	return &BankHandler{auth: auth, ledger: ledgerSvc, health: health}
}

type challengeRequest struct {
	Address string `json:"address"`
}

type challengeResponse struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *BankHandler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	res, err := h.auth.Challenge(r.Context(), req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, challengeResponse{
		Nonce:     res.Nonce,
		Message:   res.Message,
		ExpiresAt: res.ExpiresAt,
	})
}

type ticketRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce"`
}

type ticketResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int64  `json:"expires_in"`
}

func (h *BankHandler) handleIssueTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	res, err := h.auth.IssueTicket(r.Context(), req.Address, req.Signature, req.Nonce)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ticketResponse{
		Ticket:    res.Ticket,
		ExpiresIn: int64(res.ExpiresIn.Seconds()),
	})
}

type balanceResponse struct {
	Balance      string     `json:"balance"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

func (h *BankHandler) handleBalance(w http.ResponseWriter, r *http.Request) {
	claims, ok := bankticket.GetTicket(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing ticket"))
		return
	}

	res, err := h.ledger.Balance(r.Context(), claims.BankRef)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body := balanceResponse{Balance: res.Balance.String()}
	if !res.LastSyncedAt.IsZero() {
		body.LastSyncedAt = &res.LastSyncedAt
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

type historyEntryView struct {
	TransferID          string    `json:"transfer_id"`
	Direction           string    `json:"direction"`
	CounterpartyBankRef string    `json:"counterparty_bank_ref"`
	Kind                string    `json:"kind"`
	Amount              string    `json:"amount"`
	Fee                 string    `json:"fee"`
	Memo                string    `json:"memo,omitempty"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
}

func (h *BankHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := bankticket.GetTicket(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing ticket"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid limit"))
			return
		}
		limit = parsed
	}

	entries, err := h.ledger.History(r.Context(), claims.BankRef, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	views := make([]historyEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, historyEntryView{
			TransferID:          e.TransferID,
			Direction:           e.Direction,
			CounterpartyBankRef: e.CounterpartyBankRef,
			Kind:                string(e.Kind),
			Amount:              e.Amount.String(),
			Fee:                 e.Fee.String(),
			Memo:                e.Memo,
			Status:              e.Status,
			CreatedAt:           e.CreatedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"transactions": views})
}

type transferRequest struct {
	RecipientRef string `json:"recipient_ref"`
	Amount       string `json:"amount"`
	Memo         string `json:"memo"`
}

type transferResponse struct {
	TransferID string `json:"transfer_id"`
	Amount     string `json:"amount"`
	Fee        string `json:"fee"`
	Status     string `json:"status"`
}

func (h *BankHandler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	claims, ok := bankticket.GetTicket(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing ticket"))
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid amount"))
		return
	}

	res, err := h.ledger.Transfer(r.Context(), claims.BankRef, req.RecipientRef, amount, req.Memo)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, transferResponse{
		TransferID: res.TransferID,
		Amount:     res.Amount.String(),
		Fee:        res.Fee.String(),
		Status:     res.Status,
	})
}

type resolveResponse struct {
	Exists   bool   `json:"exists"`
	BankCode string `json:"bank_code,omitempty"`
}

func (h *BankHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	res := h.ledger.ResolveRecipient(r.Context(), chi.URLParam(r, "ref"))
	httputil.WriteJSON(w, http.StatusOK, resolveResponse{Exists: res.Exists, BankCode: res.BankCode})
}

// handleHealth pings all configured dependencies in parallel and reports the
// first failure.
func (h *BankHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, checker := range h.health {
		g.Go(func() error { return checker.Check(ctx) })
	}
	if err := g.Wait(); err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
