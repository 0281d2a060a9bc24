// Package nonce issues and consumes single-use authentication challenges.
//
// A nonce value is "<domain>:<uuid>". The domain tag is part of the value
// itself, so a challenge minted for one domain can never parse as a challenge
// for another: cross-domain replay is structurally impossible, not just
// checked.
package nonce

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Domain scopes a challenge to exactly one authentication path.
type Domain string

const (
	DomainBank     Domain = "bank"
	DomainIdentity Domain = "identity"
)

// Challenge is a freshly issued nonce bound to a subject address.
type Challenge struct {
	Value     string
	Subject   string
	Domain    Domain
	ExpiresAt time.Time
	Consumed  bool
}

// Consumed reports what a spent nonce was bound to.
type Consumed struct {
	Subject string
	Domain  Domain
}

// NewValue mints a globally unique nonce value carrying its domain tag.
func NewValue(d Domain) string {
	return string(d) + ":" + uuid.NewString()
}

// ParseValue validates that value carries the tag of the given domain.
func ParseValue(value string, d Domain) error {
	rest, ok := strings.CutPrefix(value, string(d)+":")
	if !ok || rest == "" {
		return fmt.Errorf("nonce value does not carry %q domain tag", d)
	}
	return nil
}
