package cryptoutils

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrKeyDestroyed is returned when a destroyed SecureKey is opened.
var ErrKeyDestroyed = errors.New("key material destroyed")

// SecureKey holds key material encrypted at rest in memory.
// It wraps memguard.Enclave; plaintext bytes only exist inside the
// LockedBuffer returned by Open and must be destroyed after use.
type SecureKey struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	size      int
	destroyed bool
}

// NewSecureKey copies key into a protected enclave. The caller's slice is left
// untouched; callers holding the only other copy should wipe it.
func NewSecureKey(key []byte) (*SecureKey, error) {
	if len(key) == 0 {
		return nil, errors.New("empty key material")
	}

	// memguard wipes the source buffer, so hand it a copy
	buf := make([]byte, len(key))
	copy(buf, key)

	return &SecureKey{
		enclave: memguard.NewEnclave(buf),
		size:    len(key),
	}, nil
}

// Open decrypts the key into a locked buffer.
//
//	locked, err := key.Open()
//	if err != nil {
//	    return err
//	}
//	defer locked.Destroy()
func (k *SecureKey) Open() (*memguard.LockedBuffer, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.destroyed {
		return nil, ErrKeyDestroyed
	}
	return k.enclave.Open()
}

// Size returns the key length in bytes.
func (k *SecureKey) Size() int {
	return k.size
}

// Destroy drops the enclave. Calling it more than once is safe.
func (k *SecureKey) Destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.enclave = nil
	k.destroyed = true
}

// Wipe zeroes a byte slice in place.
func Wipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
