package tokens

import (
	"crypto/ecdsa"
	"encoding/base64"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ruteri/shardvault/cryptoutils"
	"github.com/ruteri/shardvault/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orgDID = "did:nil:testnet:org"

var nodeDIDs = []string{"did:nil:node_a", "did:nil:node_b", "did:nil:node_c"}

func newTestIssuer(t *testing.T, opts ...Option) (*Issuer, *cryptoutils.OrgKey) {
	key, _, err := cryptoutils.GenerateOrgKey()
	require.NoError(t, err)

	issuer, err := NewIssuer(key, orgDID, DefaultTTL, opts...)
	require.NoError(t, err)
	return issuer, key
}

func trusted(key *cryptoutils.OrgKey) map[string]*ecdsa.PublicKey {
	return map[string]*ecdsa.PublicKey{orgDID: key.Public}
}

func TestIssuer_IssueSet(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	issuer, key := newTestIssuer(t, WithClock(func() time.Time { return now }))

	set, err := issuer.IssueSet(nodeDIDs)
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())

	for _, aud := range nodeDIDs {
		tk, ok := set.For(aud)
		require.True(t, ok)
		assert.Equal(t, now.Add(DefaultTTL), tk.Expiry)
		assert.Equal(t, 3, len(strings.Split(tk.Token, ".")))

		verifier := NewVerifier(aud, trusted(key), WithVerifierClock(func() time.Time { return now.Add(time.Second) }))
		claims, err := verifier.Verify(tk.Token)
		require.NoError(t, err)
		assert.Equal(t, orgDID, claims.Issuer)
		assert.Equal(t, jwt.ClaimStrings{aud}, claims.Audience)
		assert.Equal(t, now.Add(DefaultTTL).Unix(), claims.ExpiresAt.Unix())
	}
}

func TestIssuer_FreshTokensPerBatch(t *testing.T) {
	tick := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	issuer, _ := newTestIssuer(t, WithClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}))

	first, err := issuer.Issue(nodeDIDs[:1])
	require.NoError(t, err)
	second, err := issuer.Issue(nodeDIDs[:1])
	require.NoError(t, err)

	assert.NotEqual(t, first[nodeDIDs[0]], second[nodeDIDs[0]])
}

func TestVerifier_Rejections(t *testing.T) {
	now := time.Now()
	issuer, key := newTestIssuer(t)
	tokens, err := issuer.Issue(nodeDIDs)
	require.NoError(t, err)

	t.Run("wrong audience", func(t *testing.T) {
		verifier := NewVerifier(nodeDIDs[1], trusted(key))
		_, err := verifier.Verify(tokens[nodeDIDs[0]])
		assert.ErrorIs(t, err, interfaces.ErrAuth)
	})

	t.Run("expired", func(t *testing.T) {
		verifier := NewVerifier(nodeDIDs[0], trusted(key), WithVerifierClock(func() time.Time {
			return now.Add(DefaultTTL + time.Minute)
		}))
		_, err := verifier.Verify(tokens[nodeDIDs[0]])
		assert.ErrorIs(t, err, interfaces.ErrAuth)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("untrusted issuer", func(t *testing.T) {
		other, _, err := cryptoutils.GenerateOrgKey()
		require.NoError(t, err)
		verifier := NewVerifier(nodeDIDs[0], map[string]*ecdsa.PublicKey{"did:nil:someone-else": other.Public})
		_, err = verifier.Verify(tokens[nodeDIDs[0]])
		assert.ErrorIs(t, err, interfaces.ErrAuth)
	})

	t.Run("wrong key for issuer", func(t *testing.T) {
		other, _, err := cryptoutils.GenerateOrgKey()
		require.NoError(t, err)
		verifier := NewVerifier(nodeDIDs[0], trusted(other))
		_, err = verifier.Verify(tokens[nodeDIDs[0]])
		assert.ErrorIs(t, err, interfaces.ErrAuth)
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.Split(tokens[nodeDIDs[0]], ".")
		other := strings.Split(tokens[nodeDIDs[1]], ".")
		forged := strings.Join([]string{parts[0], other[1], parts[2]}, ".")
		verifier := NewVerifier(nodeDIDs[1], trusted(key))
		_, err := verifier.Verify(forged)
		assert.ErrorIs(t, err, interfaces.ErrAuth)
	})
}

func TestIssue_MalformedKey(t *testing.T) {
	_, err := Issue("not-hex", orgDID, nodeDIDs, time.Minute)
	assert.ErrorIs(t, err, interfaces.ErrConfig)

	key, secretHex, err := cryptoutils.GenerateOrgKey()
	require.NoError(t, err)

	issued, err := Issue(secretHex, orgDID, nodeDIDs, time.Minute)
	require.NoError(t, err)
	require.Len(t, issued, 3)

	_, err = NewVerifier(nodeDIDs[2], trusted(key)).Verify(issued[nodeDIDs[2]])
	assert.NoError(t, err)
}

func TestNewIssuer_Validation(t *testing.T) {
	key, _, err := cryptoutils.GenerateOrgKey()
	require.NoError(t, err)

	_, err = NewIssuer(nil, orgDID, time.Minute)
	assert.ErrorIs(t, err, interfaces.ErrConfig)

	_, err = NewIssuer(key, "", time.Minute)
	assert.ErrorIs(t, err, interfaces.ErrConfig)

	_, err = NewIssuer(key, orgDID, 0)
	assert.ErrorIs(t, err, interfaces.ErrConfig)

	issuer, err := NewIssuer(key, orgDID, time.Minute)
	require.NoError(t, err)

	_, err = issuer.IssueSet(nil)
	assert.ErrorIs(t, err, interfaces.ErrConfig)

	key.Destroy()
	_, err = issuer.IssueSet(nodeDIDs)
	assert.ErrorIs(t, err, interfaces.ErrAuth)
}

// withSignatureS re-encodes token with the s half of its signature replaced by fn(s).
func withSignatureS(t *testing.T, token string, fn func(s, n *big.Int) *big.Int) string {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	require.Len(t, sig, 64)

	s := fn(new(big.Int).SetBytes(sig[32:]), crypto.S256().Params().N)
	s.FillBytes(sig[32:])

	parts[2] = base64.RawURLEncoding.EncodeToString(sig)
	return strings.Join(parts, ".")
}

func TestVerifier_HighS(t *testing.T) {
	issuer, key := newTestIssuer(t)
	tokens, err := issuer.Issue(nodeDIDs[:1])
	require.NoError(t, err)
	verifier := NewVerifier(nodeDIDs[0], trusted(key))

	token := tokens[nodeDIDs[0]]
	_, err = verifier.Verify(token)
	require.NoError(t, err)

	// (r, n-s) is the other valid signature for the same digest.
	twin := withSignatureS(t, token, func(s, n *big.Int) *big.Int { return new(big.Int).Sub(n, s) })
	require.NotEqual(t, token, twin)
	claims, err := verifier.Verify(twin)
	require.NoError(t, err)
	assert.Equal(t, orgDID, claims.Issuer)

	tampered := withSignatureS(t, token, func(s, n *big.Int) *big.Int { return new(big.Int).Add(s, big.NewInt(1)) })
	_, err = verifier.Verify(tampered)
	assert.ErrorIs(t, err, interfaces.ErrAuth)

	zero := withSignatureS(t, token, func(s, n *big.Int) *big.Int { return new(big.Int) })
	_, err = verifier.Verify(zero)
	assert.ErrorIs(t, err, interfaces.ErrAuth)
}
