// Package interfaces defines core interfaces and types for the shardvault
// credential store, separating interface definitions from implementations.
//
// # Cluster Types
//
// NodeDescriptor and ClusterConfig describe the ordered set of independent
// storage nodes a store writes to. All nodes of a cluster share one schema id.
//
// TokenSet is an immutable snapshot of per-node bearer tokens minted for one
// batch of node operations. It is passed explicitly to each node call and is
// never written back into the cluster configuration.
//
// # Record Types
//
// SecretRecord is the logical record exposed to callers. StoredRecord is what a
// single node holds for it: the public fields plus exactly one opaque share.
//
// # Component Interfaces
//
// TokenIssuer mints tokens, ShareCipher splits and reconstructs plaintext and
// NodeClient talks to one node. The ReplicatedStore in package storage
// orchestrates all three.
//
// # Errors
//
// ErrConfig, ErrAuth, ErrNodeUnavailable, ErrPartialWrite and ErrReconstruction
// form the error taxonomy. Node calls return *NodeError values tagged with a
// FailureKind so callers can distinguish failures before they are collapsed
// into a boolean or an empty result at the store boundary.
package interfaces
