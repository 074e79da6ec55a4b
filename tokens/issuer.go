package tokens

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ruteri/shardvault/cryptoutils"
	"github.com/ruteri/shardvault/interfaces"
)

// DefaultTTL is the lifetime of node tokens when none is configured.
const DefaultTTL = 60 * time.Second

// Issuer mints per-node tokens signed by the organization key.
// It never caches tokens: every call signs a fresh set.
type Issuer struct {
	key      *cryptoutils.OrgKey
	identity string
	ttl      time.Duration
	clock    interfaces.Clock
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source used for iat/exp.
func WithClock(clock interfaces.Clock) Option {
	return func(i *Issuer) {
		i.clock = clock
	}
}

// NewIssuer creates an issuer for the given organization identity.
func NewIssuer(key *cryptoutils.OrgKey, identity string, ttl time.Duration, opts ...Option) (*Issuer, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: organization key is missing", interfaces.ErrConfig)
	}
	if identity == "" {
		return nil, fmt.Errorf("%w: issuer identity is empty", interfaces.ErrConfig)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: token ttl must be positive", interfaces.ErrConfig)
	}

	issuer := &Issuer{
		key:      key,
		identity: identity,
		ttl:      ttl,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer, nil
}

// Identity returns the iss claim placed in every token.
func (i *Issuer) Identity() string {
	return i.identity
}

// IssueSet mints one token per audience and returns them as an immutable snapshot.
// Any signing failure fails the whole batch.
func (i *Issuer) IssueSet(audiences []string) (interfaces.TokenSet, error) {
	if len(audiences) == 0 {
		return interfaces.TokenSet{}, fmt.Errorf("%w: no audiences", interfaces.ErrConfig)
	}

	now := i.clock().UTC()
	expiry := now.Add(i.ttl)
	tokens := make(map[string]interfaces.NodeToken, len(audiences))

	err := i.key.WithPrivateKey(func(privateKey *ecdsa.PrivateKey) error {
		for _, aud := range audiences {
			if aud == "" {
				return errors.New("empty audience")
			}
			signed, err := sign(privateKey, i.identity, aud, now, expiry)
			if err != nil {
				return fmt.Errorf("could not sign token for %s: %w", aud, err)
			}
			tokens[aud] = interfaces.NodeToken{Token: signed, Expiry: expiry}
		}
		return nil
	})
	if err != nil {
		return interfaces.TokenSet{}, fmt.Errorf("%w: %v", interfaces.ErrAuth, err)
	}

	return interfaces.NewTokenSet(tokens), nil
}

// Issue mints tokens and returns them keyed by audience.
func (i *Issuer) Issue(audiences []string) (map[string]string, error) {
	set, err := i.IssueSet(audiences)
	if err != nil {
		return nil, err
	}
	res := make(map[string]string, set.Len())
	for _, aud := range audiences {
		t, _ := set.For(aud)
		res[aud] = t.Token
	}
	return res, nil
}

// Issue is the one-shot form: it parses secretKeyHex, signs one token per
// audience valid for ttl and discards the key afterwards.
func Issue(secretKeyHex, issuerIdentity string, audiences []string, ttl time.Duration) (map[string]string, error) {
	key, err := cryptoutils.ParseOrgKey(secretKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrConfig, err)
	}
	defer key.Destroy()

	issuer, err := NewIssuer(key, issuerIdentity, ttl)
	if err != nil {
		return nil, err
	}
	return issuer.Issue(audiences)
}

func sign(privateKey *ecdsa.PrivateKey, iss, aud string, now, expiry time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    iss,
		Audience:  jwt.ClaimStrings{aud},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiry),
	}
	tk := jwt.NewWithClaims(SigningMethodES256K, claims)
	tk.Header["typ"] = "JWT"
	return tk.SignedString(privateKey)
}
