// Package credentials implements the credential gateway: a small HTTP API in
// front of a storage.ReplicatedStore, plus a client for it.
//
// Plaintext values only travel between the caller and the gateway; nodes only
// ever see shares.
package credentials
