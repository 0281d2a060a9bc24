// Package signature recovers signer addresses from EIP-191 personal_sign
// signatures. Pure functions, no state.
package signature

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignature covers malformed and unrecoverable signatures.
var ErrInvalidSignature = errors.New("invalid signature")

// RecoverAddress returns the address that produced signature over message.
// The message is hashed with the EIP-191 personal_sign prefix, which is what
// wallets apply, so a raw transaction signature can never double as a login.
func RecoverAddress(message string, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}

	// Wallets emit v as 27/28; SigToPub expects 0/1.
	adjusted := make([]byte, crypto.SignatureLength)
	copy(adjusted, sig)
	if adjusted[64] == 27 || adjusted[64] == 28 {
		adjusted[64] -= 27
	}
	if adjusted[64] > 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id out of range", ErrInvalidSignature)
	}

	hash := personalSignHash(message)
	pub, err := crypto.SigToPub(hash, adjusted)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// RecoverAddressHex is RecoverAddress for a 0x-prefixed hex signature.
func RecoverAddressHex(message, sigHex string) (common.Address, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return RecoverAddress(message, sig)
}

// personalSignHash applies the "\x19Ethereum Signed Message:\n" prefix and
// keccak-hashes the result.
func personalSignHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}
