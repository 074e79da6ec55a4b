// Package kms provides the share cipher of the credential store: the cluster
// key and the split/reconstruct operations built on Shamir's Secret Sharing
// (github.com/hashicorp/vault/shamir).
//
// # Cluster Key
//
// A ClusterKey fixes the share count N and holds a 32-byte symmetric key in a
// memguard enclave. It is generated once per store instance, or pinned by the
// operator with ClusterKeyFromHex so records written before a restart remain
// readable. Its keccak fingerprint is embedded in every share, so shares from
// another cluster key are detected before any math is done.
//
// # Split and Reconstruct
//
// Split seals the plaintext with XChaCha20-Poly1305 under the cluster key and
// splits the sealed payload with threshold N out of N parts. Reconstruct needs
// all N shares; fewer shares, malformed shares or shares from different writes
// fail with interfaces.ErrReconstruction and never yield a wrong plaintext.
//
//	key, _ := kms.GenerateClusterKey(3)
//	cipher := kms.NewShamirCipher(key)
//	shares, _ := cipher.Split([]byte("hello"), 3)
//	plaintext, _ := cipher.Reconstruct(shares)
package kms
