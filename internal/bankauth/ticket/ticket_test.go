package ticket

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "giro/pkg/domain-errors"
)

func TestMintAndValidate(t *testing.T) {
	svc := NewService("bank-domain-secret", "giro")

	t.Run("round trip preserves claims", func(t *testing.T) {
		raw, err := svc.Mint("brf_12345", "seat-7", "GIRO01", 5*time.Minute)
		require.NoError(t, err)

		claims, err := svc.Validate(raw)
		require.NoError(t, err)
		assert.Equal(t, "brf_12345", claims.BankRef)
		assert.Equal(t, "seat-7", claims.SeatID)
		assert.Equal(t, "GIRO01", claims.BankCode)
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("ticket IDs are unique", func(t *testing.T) {
		a, err := svc.Mint("brf_12345", "seat-7", "GIRO01", time.Minute)
		require.NoError(t, err)
		b, err := svc.Mint("brf_12345", "seat-7", "GIRO01", time.Minute)
		require.NoError(t, err)

		claimsA, err := svc.Validate(a)
		require.NoError(t, err)
		claimsB, err := svc.Validate(b)
		require.NoError(t, err)
		assert.NotEqual(t, claimsA.ID, claimsB.ID)
	})

	t.Run("rejects ticket signed with another secret", func(t *testing.T) {
		other := NewService("identity-domain-secret", "giro")
		raw, err := other.Mint("brf_12345", "seat-7", "GIRO01", time.Minute)
		require.NoError(t, err)

		_, err = svc.Validate(raw)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("rejects expired ticket", func(t *testing.T) {
		raw, err := svc.Mint("brf_12345", "seat-7", "GIRO01", -time.Minute)
		require.NoError(t, err)

		_, err = svc.Validate(raw)
		require.Error(t, err)
		assert.Equal(t, "ticket has expired", dErrors.MessageOf(err))
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := svc.Validate("not.a.ticket")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

// TestIncompleteClaims verifies that a correctly signed ticket with missing
// claims is still rejected.
func TestIncompleteClaims(t *testing.T) {
	svc := NewService("bank-domain-secret", "giro")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		BankRef: "brf_12345",
		// SeatID and BankCode deliberately empty.
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        "tid-1",
		},
	})
	raw, err := token.SignedString([]byte("bank-domain-secret"))
	require.NoError(t, err)

	_, err = svc.Validate(raw)
	require.Error(t, err)
	assert.Equal(t, "incomplete ticket claims", dErrors.MessageOf(err))
}
