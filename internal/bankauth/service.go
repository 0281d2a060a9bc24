// Package bankauth implements the authentication firewall in front of the
// settlement ledger. It never trusts identity-domain credentials: eligibility
// is re-verified against the ownership oracle on every issuance, and the
// tickets it mints are signed with a secret the identity domain never sees.
package bankauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"giro/internal/bankauth/metrics"
	"giro/internal/bankauth/nonce"
	"giro/internal/bankauth/signature"
	"giro/internal/bankauth/ticket"
	"giro/internal/ledger"
	dErrors "giro/pkg/domain-errors"
	"giro/pkg/platform/sentinel"
)

// Stable issuance failure reasons. Tests and clients match on these.
const (
	ReasonInvalidNonceFormat       = "invalid nonce format"
	ReasonInvalidNonce             = "invalid nonce"
	ReasonNonceAlreadyUsed         = "nonce already used"
	ReasonNonceExpired             = "nonce expired"
	ReasonAddressMismatch          = "address mismatch"
	ReasonInvalidSignature         = "invalid signature"
	ReasonSignatureAddressMismatch = "signature address mismatch"
	ReasonNoEligibilityToken       = "no eligibility token"
	ReasonNoLinkedAccount          = "no linked account"
	ReasonLinkInactive             = "link inactive"
)

// NonceStore issues and consumes single-use challenges.
type NonceStore interface {
	Issue(ctx context.Context, subject string, domain nonce.Domain) (nonce.Challenge, error)
	Consume(ctx context.Context, value string) (nonce.Consumed, error)
}

// LinkResolver resolves a holder address to its pseudonymous link.
type LinkResolver interface {
	LinkByAddress(ctx context.Context, holderAddress string) (ledger.IdentityLink, error)
}

// Oracle is the external ownership check; see internal/oracle.
type Oracle interface {
	HolderToken(ctx context.Context, holderAddress string) (tokenID string, ok bool, err error)
}

// ChallengeResult is what a caller signs off-system.
type ChallengeResult struct {
	Nonce     string
	Message   string
	ExpiresAt time.Time
}

// TicketResult is a freshly minted access ticket.
type TicketResult struct {
	Ticket    string
	ExpiresIn time.Duration
}

// Service runs the nonce/signature/oracle issuance protocol.
type Service struct {
	nonces    NonceStore
	links     LinkResolver
	oracle    Oracle
	tickets   *ticket.Service
	ticketTTL time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewService(
	nonces NonceStore,
	links LinkResolver,
	oracle Oracle,
	tickets *ticket.Service,
	ticketTTL time.Duration,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		nonces:    nonces,
		links:     links,
		oracle:    oracle,
		tickets:   tickets,
		ticketTTL: ticketTTL,
		logger:    logger,
		metrics:   m,
	}
}

// ChallengeMessage builds the text a wallet signs for the given domain. The
// wording differs per domain so a signature collected for one domain cannot
// authenticate in the other even if nonce values collided.
func ChallengeMessage(domain nonce.Domain, value string) string {
	switch domain {
	case nonce.DomainBank:
		return fmt.Sprintf("Authorize access to your settlement account.\n\nNonce: %s", value)
	default:
		return fmt.Sprintf("Verify your identity.\n\nNonce: %s", value)
	}
}

// Challenge issues a bank-domain nonce for the address to sign.
func (s *Service) Challenge(ctx context.Context, address string) (ChallengeResult, error) {
	if !common.IsHexAddress(address) {
		return ChallengeResult{}, dErrors.New(dErrors.CodeValidation, "malformed address")
	}
	subject := common.HexToAddress(address).Hex()

	c, err := s.nonces.Issue(ctx, subject, nonce.DomainBank)
	if err != nil {
		return ChallengeResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue challenge")
	}

	s.metrics.IncrementChallenges()
	return ChallengeResult{
		Nonce:     c.Value,
		Message:   ChallengeMessage(nonce.DomainBank, c.Value),
		ExpiresAt: c.ExpiresAt,
	}, nil
}

// IssueTicket runs the full issuance protocol. The nonce is burned as soon as
// it is consumed; a failure in any later step does not un-burn it. That trade
// favors replay safety over issuance convenience.
func (s *Service) IssueTicket(ctx context.Context, claimedAddress, sigHex, nonceValue string) (TicketResult, error) {
	// Step 1: structural domain check before touching any state.
	if err := nonce.ParseValue(nonceValue, nonce.DomainBank); err != nil {
		return TicketResult{}, s.reject(ReasonInvalidNonceFormat)
	}

	// Step 2: consume. Irreversible from here on.
	consumed, err := s.nonces.Consume(ctx, nonceValue)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			return TicketResult{}, s.reject(ReasonNonceAlreadyUsed)
		case errors.Is(err, sentinel.ErrExpired):
			return TicketResult{}, s.reject(ReasonNonceExpired)
		case errors.Is(err, sentinel.ErrNotFound):
			return TicketResult{}, s.reject(ReasonInvalidNonce)
		default:
			return TicketResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume nonce")
		}
	}
	if consumed.Domain != nonce.DomainBank {
		return TicketResult{}, s.reject(ReasonInvalidNonceFormat)
	}

	claimed := common.HexToAddress(claimedAddress)
	if !common.IsHexAddress(claimedAddress) || consumed.Subject != claimed.Hex() {
		return TicketResult{}, s.reject(ReasonAddressMismatch)
	}

	// Step 3: recover the signer from the reconstructed challenge message.
	message := ChallengeMessage(nonce.DomainBank, nonceValue)
	recovered, err := signature.RecoverAddressHex(message, sigHex)
	if err != nil {
		return TicketResult{}, s.reject(ReasonInvalidSignature)
	}
	if recovered != claimed {
		return TicketResult{}, s.reject(ReasonSignatureAddressMismatch)
	}

	// Step 4: independent eligibility check against the ownership oracle.
	start := time.Now()
	tokenID, holds, err := s.oracle.HolderToken(ctx, claimed.Hex())
	s.metrics.ObserveOracleLatency(time.Since(start))
	if err != nil {
		return TicketResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "eligibility check unavailable")
	}
	if !holds {
		return TicketResult{}, s.reject(ReasonNoEligibilityToken)
	}

	// Step 5: require an active pseudonymous link.
	link, err := s.links.LinkByAddress(ctx, claimed.Hex())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return TicketResult{}, s.reject(ReasonNoLinkedAccount)
		}
		return TicketResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve link")
	}
	if !link.Active() {
		return TicketResult{}, s.reject(ReasonLinkInactive)
	}

	// Step 6: mint.
	signed, err := s.tickets.Mint(link.BankRef, tokenID, link.BankCode, s.ticketTTL)
	if err != nil {
		return TicketResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint ticket")
	}

	s.metrics.IncrementOutcome("issued")
	s.logger.InfoContext(ctx, "ticket issued",
		"bank_ref", truncateRef(link.BankRef),
		"expires_in", s.ticketTTL.String(),
	)
	return TicketResult{Ticket: signed, ExpiresIn: s.ticketTTL}, nil
}

func (s *Service) reject(reason string) error {
	s.metrics.IncrementOutcome(strings.ReplaceAll(reason, " ", "_"))
	return dErrors.New(dErrors.CodeUnauthorized, reason)
}

// truncateRef shortens a bank reference for logging. Underlying account
// identity is never logged at all.
func truncateRef(ref string) string {
	if len(ref) > 8 {
		return ref[:8]
	}
	return ref
}
