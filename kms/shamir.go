package kms

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/hashicorp/vault/shamir"
	"github.com/ruteri/shardvault/interfaces"
)

// shareVersion prefixes every encoded share.
const shareVersion byte = 1

const shareHeaderSize = 1 + KeyIDSize

// ShamirCipher implements interfaces.ShareCipher on top of Shamir's Secret
// Sharing with the threshold equal to the node count, so every share is
// required and any smaller subset reveals nothing.
//
// The plaintext is sealed with the cluster key (XChaCha20-Poly1305) before it
// is split. The seal turns a wrong combination of shares (shares from
// different writes, corrupted shares) into an authentication failure instead
// of a silently wrong plaintext.
//
// Share encoding: base64(version || cluster key id || shamir part).
// With a single node the sealed payload is the only share.
type ShamirCipher struct {
	key *ClusterKey
}

// NewShamirCipher creates a cipher bound to one cluster key for its lifetime.
func NewShamirCipher(key *ClusterKey) *ShamirCipher {
	return &ShamirCipher{key: key}
}

// NodeCount returns the number of shares produced per plaintext.
func (c *ShamirCipher) NodeCount() int {
	return c.key.NodeCount()
}

// Split seals plaintext and splits it into nodeCount shares using fresh
// randomness on every call.
func (c *ShamirCipher) Split(plaintext []byte, nodeCount int) ([]string, error) {
	if nodeCount != c.key.NodeCount() {
		return nil, fmt.Errorf("%w: cluster key is for %d nodes, asked to split for %d", interfaces.ErrConfig, c.key.NodeCount(), nodeCount)
	}

	sealed, err := c.key.seal(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to seal plaintext: %w", err)
	}

	var parts [][]byte
	if nodeCount == 1 {
		parts = [][]byte{sealed}
	} else {
		parts, err = shamir.Split(sealed, nodeCount, nodeCount)
		if err != nil {
			return nil, fmt.Errorf("failed to split plaintext: %w", err)
		}
	}

	id := c.key.ID()
	shares := make([]string, len(parts))
	for i, part := range parts {
		encoded := make([]byte, 0, shareHeaderSize+len(part))
		encoded = append(encoded, shareVersion)
		encoded = append(encoded, id[:]...)
		encoded = append(encoded, part...)
		shares[i] = base64.StdEncoding.EncodeToString(encoded)
	}

	return shares, nil
}

// Reconstruct recovers the plaintext from exactly NodeCount shares in any order.
// Every failure wraps interfaces.ErrReconstruction.
func (c *ShamirCipher) Reconstruct(shares []string) ([]byte, error) {
	if len(shares) != c.key.NodeCount() {
		return nil, fmt.Errorf("%w: expected %d shares, got %d", interfaces.ErrReconstruction, c.key.NodeCount(), len(shares))
	}

	id := c.key.ID()
	parts := make([][]byte, 0, len(shares))
	for i, share := range shares {
		raw, err := base64.StdEncoding.DecodeString(share)
		if err != nil {
			return nil, fmt.Errorf("%w: share %d is not valid base64: %v", interfaces.ErrReconstruction, i, err)
		}
		if len(raw) <= shareHeaderSize {
			return nil, fmt.Errorf("%w: share %d is too short", interfaces.ErrReconstruction, i)
		}
		if raw[0] != shareVersion {
			return nil, fmt.Errorf("%w: share %d has unsupported version %d", interfaces.ErrReconstruction, i, raw[0])
		}
		if !bytes.Equal(raw[1:shareHeaderSize], id[:]) {
			return nil, fmt.Errorf("%w: share %d was produced under a different cluster key", interfaces.ErrReconstruction, i)
		}
		parts = append(parts, raw[shareHeaderSize:])
	}

	sealed, err := combine(parts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrReconstruction, err)
	}

	plaintext, err := c.key.open(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: shares do not belong together: %v", interfaces.ErrReconstruction, err)
	}

	return plaintext, nil
}

func combine(parts [][]byte) ([]byte, error) {
	if len(parts) == 1 {
		return parts[0], nil
	}

	for _, part := range parts[1:] {
		if len(part) != len(parts[0]) {
			return nil, errors.New("shares have different lengths")
		}
	}

	return shamir.Combine(parts)
}
