package kms

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/ruteri/shardvault/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T, nodeCount int) *ShamirCipher {
	key, err := GenerateClusterKey(nodeCount)
	require.NoError(t, err, "Failed to generate cluster key")
	return NewShamirCipher(key)
}

func TestShamirCipher_RoundTrip(t *testing.T) {
	plaintexts := map[string][]byte{
		"simple string": []byte("hello"),
		"json":          []byte(`{"username":"admin","password":"secret123"}`),
		"binary":        {0x00, 0x01, 0x02, 0xFF, 0xFE},
		"empty":         {},
		"long":          make([]byte, 4096),
	}

	for _, nodeCount := range []int{1, 2, 3, 5} {
		cipher := newTestCipher(t, nodeCount)
		for name, plaintext := range plaintexts {
			t.Run(name, func(t *testing.T) {
				shares, err := cipher.Split(plaintext, nodeCount)
				require.NoError(t, err)
				require.Len(t, shares, nodeCount)

				recovered, err := cipher.Reconstruct(shares)
				require.NoError(t, err)
				assert.Equal(t, len(plaintext), len(recovered))
				assert.Equal(t, string(plaintext), string(recovered))
			})
		}
	}
}

func TestShamirCipher_OrderInsensitive(t *testing.T) {
	cipher := newTestCipher(t, 3)
	shares, err := cipher.Split([]byte("secret"), 3)
	require.NoError(t, err)

	recovered, err := cipher.Reconstruct([]string{shares[2], shares[0], shares[1]})
	require.NoError(t, err)
	assert.Equal(t, "secret", string(recovered))
}

func TestShamirCipher_FreshRandomness(t *testing.T) {
	cipher := newTestCipher(t, 3)
	first, err := cipher.Split([]byte("secret"), 3)
	require.NoError(t, err)
	second, err := cipher.Split([]byte("secret"), 3)
	require.NoError(t, err)

	for i := range first {
		assert.NotEqual(t, first[i], second[i], "share %d repeated across splits", i)
	}
}

func TestShamirCipher_FewerSharesFail(t *testing.T) {
	cipher := newTestCipher(t, 3)
	shares, err := cipher.Split([]byte("secret"), 3)
	require.NoError(t, err)

	for n := 0; n < 3; n++ {
		recovered, err := cipher.Reconstruct(shares[:n])
		assert.ErrorIs(t, err, interfaces.ErrReconstruction)
		assert.Nil(t, recovered)
	}

	_, err = cipher.Reconstruct(append(shares, shares[0]))
	assert.ErrorIs(t, err, interfaces.ErrReconstruction)
}

func TestShamirCipher_MismatchedShares(t *testing.T) {
	cipher := newTestCipher(t, 3)
	first, err := cipher.Split([]byte("first secret"), 3)
	require.NoError(t, err)
	second, err := cipher.Split([]byte("other secret"), 3)
	require.NoError(t, err)

	t.Run("shares from different splits", func(t *testing.T) {
		_, err := cipher.Reconstruct([]string{first[0], first[1], second[2]})
		assert.ErrorIs(t, err, interfaces.ErrReconstruction)
	})

	t.Run("duplicate share", func(t *testing.T) {
		_, err := cipher.Reconstruct([]string{first[0], first[0], first[1]})
		assert.ErrorIs(t, err, interfaces.ErrReconstruction)
	})

	t.Run("different cluster key", func(t *testing.T) {
		other := newTestCipher(t, 3)
		foreign, err := other.Split([]byte("first secret"), 3)
		require.NoError(t, err)
		_, err = cipher.Reconstruct([]string{first[0], first[1], foreign[2]})
		assert.ErrorIs(t, err, interfaces.ErrReconstruction)
		_, err = cipher.Reconstruct(foreign)
		assert.ErrorIs(t, err, interfaces.ErrReconstruction)
	})

	t.Run("not base64", func(t *testing.T) {
		_, err := cipher.Reconstruct([]string{first[0], first[1], "%%%"})
		assert.ErrorIs(t, err, interfaces.ErrReconstruction)
	})

	t.Run("corrupted payload", func(t *testing.T) {
		raw, err := base64.StdEncoding.DecodeString(first[2])
		require.NoError(t, err)
		raw[len(raw)/2] ^= 0xFF
		_, err = cipher.Reconstruct([]string{first[0], first[1], base64.StdEncoding.EncodeToString(raw)})
		assert.ErrorIs(t, err, interfaces.ErrReconstruction)
	})

	t.Run("truncated share", func(t *testing.T) {
		raw, err := base64.StdEncoding.DecodeString(first[2])
		require.NoError(t, err)
		_, err = cipher.Reconstruct([]string{first[0], first[1], base64.StdEncoding.EncodeToString(raw[:len(raw)-1])})
		assert.ErrorIs(t, err, interfaces.ErrReconstruction)
	})

	t.Run("unknown version", func(t *testing.T) {
		raw, err := base64.StdEncoding.DecodeString(first[2])
		require.NoError(t, err)
		raw[0] = 9
		_, err = cipher.Reconstruct([]string{first[0], first[1], base64.StdEncoding.EncodeToString(raw)})
		assert.ErrorIs(t, err, interfaces.ErrReconstruction)
	})
}

func TestShamirCipher_NodeCountMismatch(t *testing.T) {
	cipher := newTestCipher(t, 3)
	_, err := cipher.Split([]byte("secret"), 2)
	assert.ErrorIs(t, err, interfaces.ErrConfig)
}

func TestClusterKey_Pinned(t *testing.T) {
	keyHex := hex.EncodeToString(make([]byte, ClusterKeySize))

	first, err := ClusterKeyFromHex(3, keyHex)
	require.NoError(t, err)
	second, err := ClusterKeyFromHex(3, "0x"+keyHex)
	require.NoError(t, err)
	assert.Equal(t, first.ID(), second.ID())

	shares, err := NewShamirCipher(first).Split([]byte("survives restart"), 3)
	require.NoError(t, err)
	recovered, err := NewShamirCipher(second).Reconstruct(shares)
	require.NoError(t, err)
	assert.Equal(t, "survives restart", string(recovered))

	_, err = ClusterKeyFromHex(3, "abcd")
	assert.ErrorIs(t, err, interfaces.ErrConfig)
	_, err = ClusterKeyFromHex(3, "zz")
	assert.ErrorIs(t, err, interfaces.ErrConfig)
	_, err = ClusterKeyFromHex(0, keyHex)
	assert.ErrorIs(t, err, interfaces.ErrConfig)
	_, err = ClusterKeyFromHex(256, keyHex)
	assert.ErrorIs(t, err, interfaces.ErrConfig)
}

func TestClusterKey_Destroyed(t *testing.T) {
	key, err := GenerateClusterKey(2)
	require.NoError(t, err)
	cipher := NewShamirCipher(key)
	shares, err := cipher.Split([]byte("secret"), 2)
	require.NoError(t, err)

	key.Destroy()
	_, err = cipher.Split([]byte("secret"), 2)
	assert.Error(t, err)
	_, err = cipher.Reconstruct(shares)
	assert.ErrorIs(t, err, interfaces.ErrReconstruction)
}
