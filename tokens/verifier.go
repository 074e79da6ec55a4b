package tokens

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ruteri/shardvault/interfaces"
)

var (
	// ErrUntrustedIssuer is returned for tokens whose iss is not registered.
	ErrUntrustedIssuer = errors.New("untrusted issuer")
)

// Verifier checks tokens presented to a node.
type Verifier struct {
	audience string
	issuers  map[string]*ecdsa.PublicKey
	leeway   time.Duration
	clock    interfaces.Clock
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithLeeway tolerates clock skew on exp/iat checks.
func WithLeeway(leeway time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.leeway = leeway
	}
}

// WithVerifierClock overrides the time source used to check expiry.
func WithVerifierClock(clock interfaces.Clock) VerifierOption {
	return func(v *Verifier) {
		v.clock = clock
	}
}

// NewVerifier accepts tokens addressed to audience and signed by one of the
// trusted issuers.
func NewVerifier(audience string, trusted map[string]*ecdsa.PublicKey, opts ...VerifierOption) *Verifier {
	issuers := make(map[string]*ecdsa.PublicKey, len(trusted))
	for iss, pub := range trusted {
		issuers[iss] = pub
	}

	v := &Verifier{
		audience: audience,
		issuers:  issuers,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify parses and validates a token, returning its claims.
// Expired tokens, wrong audiences and unknown issuers all fail with ErrAuth.
func (v *Verifier) Verify(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, v.keyfunc,
		jwt.WithValidMethods([]string{SigningMethodES256K.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrAuth, err)
	}
	return claims, nil
}

func (v *Verifier) keyfunc(t *jwt.Token) (interface{}, error) {
	iss, err := t.Claims.GetIssuer()
	if err != nil {
		return nil, err
	}
	pub, found := v.issuers[iss]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUntrustedIssuer, iss)
	}
	return pub, nil
}
