// Package ticket mints and validates the short-lived signed capability that
// gates every ledger operation. Tickets are signed with the bank-domain secret
// only; they carry the pseudonymous bank reference and never the underlying
// account identity.
package ticket

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "giro/pkg/domain-errors"
)

// Claims is the full claim set of an access ticket.
type Claims struct {
	BankRef  string `json:"bank_ref"`
	SeatID   string `json:"seat_id"`
	BankCode string `json:"bank_code"`
	jwt.RegisteredClaims
}

// Service handles ticket creation and validation under the bank-domain secret.
type Service struct {
	signingKey []byte
	issuer     string
}

func NewService(signingKey string, issuer string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// Mint signs a ticket bound to the pseudonymous reference.
func (s *Service) Mint(bankRef, seatID, bankCode string, expiresIn time.Duration) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		BankRef:  bankRef,
		SeatID:   seatID,
		BankCode: bankCode,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

// Validate verifies the signature and the claim set. Every verification
// failure surfaces as the same undifferentiated unauthorized error; callers
// get no oracle for guessing which check failed.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "ticket has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid ticket")
	}

	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid ticket")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid ticket claims")
	}

	// An incomplete payload is rejected even when the signature verifies.
	if claims.BankRef == "" || claims.SeatID == "" || claims.BankCode == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "incomplete ticket claims")
	}

	return claims, nil
}
