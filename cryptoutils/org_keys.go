package cryptoutils

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// DIDPrefix is prepended to compressed public keys to form node and
// organization identities.
const DIDPrefix = "did:nil:"

// OrgKey is an organization secp256k1 signing key kept in a SecureKey.
// Only the public half is available without opening the enclave.
type OrgKey struct {
	secret *SecureKey
	Public *ecdsa.PublicKey
}

// ParseOrgKey parses a hex encoded secp256k1 private key, with or without 0x prefix.
func ParseOrgKey(secretHex string) (*OrgKey, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(secretHex), "0x")
	if clean == "" {
		return nil, errors.New("organization secret key is empty")
	}

	privateKey, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid organization secret key: %w", err)
	}

	raw := crypto.FromECDSA(privateKey)
	defer Wipe(raw)

	secret, err := NewSecureKey(raw)
	if err != nil {
		return nil, err
	}

	return &OrgKey{secret: secret, Public: &privateKey.PublicKey}, nil
}

// GenerateOrgKey creates a new random organization key and returns it together
// with its hex encoding so it can be handed to the operator once.
func GenerateOrgKey() (*OrgKey, string, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate key: %w", err)
	}
	secretHex := hex.EncodeToString(crypto.FromECDSA(privateKey))
	key, err := ParseOrgKey(secretHex)
	if err != nil {
		return nil, "", err
	}
	return key, secretHex, nil
}

// WithPrivateKey opens the enclave, materializes the private key for the
// duration of fn and wipes the buffer afterwards.
func (k *OrgKey) WithPrivateKey(fn func(*ecdsa.PrivateKey) error) error {
	locked, err := k.secret.Open()
	if err != nil {
		return fmt.Errorf("could not open organization key: %w", err)
	}
	defer locked.Destroy()

	privateKey, err := crypto.ToECDSA(locked.Bytes())
	if err != nil {
		return fmt.Errorf("could not load organization key: %w", err)
	}
	return fn(privateKey)
}

// PublicKeyHex returns the compressed public key in hex.
func (k *OrgKey) PublicKeyHex() string {
	return PublicKeyHex(k.Public)
}

// DID returns the identity derived from the public key.
func (k *OrgKey) DID() string {
	return DIDPrefix + k.PublicKeyHex()
}

// Destroy releases the protected key material.
func (k *OrgKey) Destroy() {
	k.secret.Destroy()
}

// PublicKeyHex encodes a secp256k1 public key in compressed hex form.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return hex.EncodeToString(crypto.CompressPubkey(pub))
}

// ParsePublicKeyHex accepts a compressed (33 byte) or uncompressed (65 byte)
// secp256k1 public key in hex.
func ParsePublicKeyHex(pubHex string) (*ecdsa.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(pubHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex format: %w", err)
	}

	switch len(raw) {
	case 33:
		return crypto.DecompressPubkey(raw)
	case 65:
		return crypto.UnmarshalPubkey(raw)
	default:
		return nil, fmt.Errorf("invalid public key length %d", len(raw))
	}
}

// PublicKeyFromDID extracts the public key embedded in an identity of the form
// did:nil:<compressed pubkey hex>. A network segment such as did:nil:testnet:<hex>
// is tolerated.
func PublicKeyFromDID(did string) (*ecdsa.PublicKey, error) {
	if !strings.HasPrefix(did, DIDPrefix) {
		return nil, fmt.Errorf("unsupported identity %q", did)
	}
	rest := strings.TrimPrefix(did, DIDPrefix)
	if idx := strings.LastIndex(rest, ":"); idx >= 0 {
		rest = rest[idx+1:]
	}
	return ParsePublicKeyHex(rest)
}
