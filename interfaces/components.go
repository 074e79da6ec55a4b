package interfaces

import (
	"context"
	"time"
)

// TokenIssuer mints short-lived node tokens signed by the organization key.
type TokenIssuer interface {
	// IssueSet mints one fresh token per audience identity.
	IssueSet(audiences []string) (TokenSet, error)
}

// ShareCipher splits plaintext into opaque shares and recombines them.
type ShareCipher interface {
	// Split returns exactly nodeCount shares, ordered by node.
	Split(plaintext []byte, nodeCount int) ([]string, error)

	// Reconstruct recovers the plaintext from a complete set of shares in any order.
	Reconstruct(shares []string) ([]byte, error)

	// NodeCount returns the share count the cipher was created for.
	NodeCount() int
}

// NodeClient performs authenticated operations against one storage node.
// Every call is independent and never retried internally.
type NodeClient interface {
	// Write creates records; success requires 200 and no embedded errors.
	Write(ctx context.Context, node NodeDescriptor, token string, schemaID string, records []StoredRecord) error

	// Read returns the records matching filter.
	Read(ctx context.Context, node NodeDescriptor, token string, schemaID string, filter map[string]any) ([]StoredRecord, error)

	// CreateSchema registers a collection.
	CreateSchema(ctx context.Context, node NodeDescriptor, token string, schema Schema) error

	// CreateQuery registers a stored query.
	CreateQuery(ctx context.Context, node NodeDescriptor, token string, query Query) error

	// ExecuteQuery runs a stored query with the given variables.
	ExecuteQuery(ctx context.Context, node NodeDescriptor, token string, queryID string, variables map[string]any) ([]map[string]any, error)
}

// Clock returns the current time; tests substitute a fixed or skewed clock.
type Clock func() time.Time
