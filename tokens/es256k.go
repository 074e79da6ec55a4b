package tokens

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
)

// SigningMethodES256K signs JWTs with ECDSA over secp256k1 and SHA-256,
// encoding the signature as the 64-byte R||S concatenation required by JWS.
var SigningMethodES256K = &signingMethodES256K{}

type signingMethodES256K struct{}

func init() {
	jwt.RegisterSigningMethod(SigningMethodES256K.Alg(), func() jwt.SigningMethod {
		return SigningMethodES256K
	})
}

func (m *signingMethodES256K) Alg() string {
	return "ES256K"
}

// Sign expects an *ecdsa.PrivateKey on the secp256k1 curve.
func (m *signingMethodES256K) Sign(signingString string, key interface{}) ([]byte, error) {
	privateKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: ES256K sign expects *ecdsa.PrivateKey", jwt.ErrInvalidKeyType)
	}

	digest := sha256.Sum256([]byte(signingString))
	sig, err := crypto.Sign(digest[:], privateKey)
	if err != nil {
		return nil, err
	}

	// drop the recovery id
	return sig[:64], nil
}

// Verify expects an *ecdsa.PublicKey on the secp256k1 curve.
func (m *signingMethodES256K) Verify(signingString string, sig []byte, key interface{}) error {
	publicKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: ES256K verify expects *ecdsa.PublicKey", jwt.ErrInvalidKeyType)
	}

	if len(sig) != 64 {
		return jwt.ErrSignatureInvalid
	}

	normalized, err := lowS(sig)
	if err != nil {
		return err
	}

	digest := sha256.Sum256([]byte(signingString))
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), digest[:], normalized) {
		return jwt.ErrSignatureInvalid
	}
	return nil
}

// lowS folds s into the lower half of the curve order. ES256K does not
// require low-S, but go-ethereum only verifies that form.
func lowS(sig []byte) ([]byte, error) {
	n := crypto.S256().Params().N
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	if r.Sign() == 0 || s.Sign() == 0 || r.Cmp(n) >= 0 || s.Cmp(n) >= 0 {
		return nil, jwt.ErrSignatureInvalid
	}

	if s.Cmp(new(big.Int).Rsh(n, 1)) <= 0 {
		return sig, nil
	}

	normalized := make([]byte, 64)
	copy(normalized, sig[:32])
	new(big.Int).Sub(n, s).FillBytes(normalized[32:])
	return normalized, nil
}
