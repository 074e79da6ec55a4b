package interfaces

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned for missing or malformed node configuration,
	// signing keys or schema ids. It is fatal and never retried.
	ErrConfig = errors.New("invalid configuration")

	// ErrAuth is returned when a token cannot be signed or a node rejects it.
	ErrAuth = errors.New("authentication failed")

	// ErrNodeUnavailable is returned for transport failures and non-200 responses.
	ErrNodeUnavailable = errors.New("node unavailable")

	// ErrPartialWrite is returned when a write stopped before every node
	// accepted its share. Shares already written are not rolled back.
	ErrPartialWrite = errors.New("partial write")

	// ErrReconstruction is returned when shares cannot be recombined, either
	// because the count is wrong or because they are malformed or mismatched.
	ErrReconstruction = errors.New("reconstruction failed")
)

// FailureKind tags why a single node call failed.
type FailureKind int

const (
	// KindUnavailable covers transport errors, timeouts and unexpected statuses.
	KindUnavailable FailureKind = iota
	// KindAuth means the node refused the bearer token (401/403).
	KindAuth
	// KindRejected means the node answered 200 but listed errors in the body.
	KindRejected
	// KindMalformed means the response body could not be decoded.
	KindMalformed
)

// String returns the kind name used in logs and metrics labels.
func (k FailureKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindAuth:
		return "auth"
	case KindRejected:
		return "rejected"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// NodeError is the tagged failure of one node call.
type NodeError struct {
	Node   string
	Op     string
	Kind   FailureKind
	Status int
	Err    error
}

func (e *NodeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("node %s %s: %s (status %d): %v", e.Node, e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("node %s %s: %s: %v", e.Node, e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause.
func (e *NodeError) Unwrap() []error {
	sentinel := ErrNodeUnavailable
	if e.Kind == KindAuth {
		sentinel = ErrAuth
	}
	return []error{sentinel, e.Err}
}

// KindOf returns the failure kind of err if it wraps a NodeError.
func KindOf(err error) (FailureKind, bool) {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr.Kind, true
	}
	return 0, false
}
