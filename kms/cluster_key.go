package kms

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/shardvault/cryptoutils"
	"github.com/ruteri/shardvault/interfaces"
	"golang.org/x/crypto/chacha20poly1305"
)

// ClusterKeySize is the length of the symmetric cluster key.
const ClusterKeySize = chacha20poly1305.KeySize

// KeyIDSize is the length of the key fingerprint embedded in every share.
const KeyIDSize = 8

// ClusterKey parameterizes split and reconstruct: the node count and the
// symmetric key sealing every plaintext before it is split. It must stay the
// same for the lifetime of a store; shares produced under another key are rejected.
type ClusterKey struct {
	nodeCount int
	secret    *cryptoutils.SecureKey
	id        [KeyIDSize]byte
}

// GenerateClusterKey creates a random cluster key for nodeCount nodes.
func GenerateClusterKey(nodeCount int) (*ClusterKey, error) {
	raw := make([]byte, ClusterKeySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate cluster key: %w", err)
	}
	defer cryptoutils.Wipe(raw)

	return NewClusterKey(nodeCount, raw)
}

// ClusterKeyFromHex loads a pinned cluster key so shares stay readable across restarts.
func ClusterKeyFromHex(nodeCount int, keyHex string) (*ClusterKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(keyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid cluster key hex: %v", interfaces.ErrConfig, err)
	}
	defer cryptoutils.Wipe(raw)

	return NewClusterKey(nodeCount, raw)
}

// NewClusterKey wraps raw key bytes. The caller keeps ownership of raw.
func NewClusterKey(nodeCount int, raw []byte) (*ClusterKey, error) {
	if nodeCount < 1 || nodeCount > 255 {
		return nil, fmt.Errorf("%w: node count must be between 1 and 255, got %d", interfaces.ErrConfig, nodeCount)
	}
	if len(raw) != ClusterKeySize {
		return nil, fmt.Errorf("%w: cluster key must be %d bytes", interfaces.ErrConfig, ClusterKeySize)
	}

	secret, err := cryptoutils.NewSecureKey(raw)
	if err != nil {
		return nil, err
	}

	key := &ClusterKey{nodeCount: nodeCount, secret: secret}
	copy(key.id[:], crypto.Keccak256([]byte("shardvault-cluster-key"), raw)[:KeyIDSize])
	return key, nil
}

// NodeCount returns N, the number of shares per record.
func (k *ClusterKey) NodeCount() int {
	return k.nodeCount
}

// ID returns the public fingerprint of the key.
func (k *ClusterKey) ID() [KeyIDSize]byte {
	return k.id
}

// Destroy releases the protected key material.
func (k *ClusterKey) Destroy() {
	k.secret.Destroy()
}

func (k *ClusterKey) seal(plaintext []byte) ([]byte, error) {
	locked, err := k.secret.Open()
	if err != nil {
		return nil, err
	}
	defer locked.Destroy()

	aead, err := chacha20poly1305.NewX(locked.Bytes())
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, k.id[:]), nil
}

func (k *ClusterKey) open(sealed []byte) ([]byte, error) {
	locked, err := k.secret.Open()
	if err != nil {
		return nil, err
	}
	defer locked.Destroy()

	aead, err := chacha20poly1305.NewX(locked.Bytes())
	if err != nil {
		return nil, err
	}

	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("sealed payload too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, k.id[:])
}
