// Package tokens mints and verifies the short-lived bearer tokens that
// authorize node operations.
//
// A token is a JWT with claims {iss, aud, iat, exp}: iss is the organization
// identity, aud is exactly one node identity and exp is now+ttl. Tokens are
// signed with ES256K (secp256k1, SHA-256, 64-byte R||S signature), registered
// with golang-jwt as SigningMethodES256K.
//
// Issuer holds the organization key inside a memguard enclave and mints a fresh
// interfaces.TokenSet for every batch of node operations; nothing is cached
// between batches. Verifier is the node-side counterpart used by package
// api/nodeapi.
//
//	issuer, _ := tokens.NewIssuer(orgKey, "did:nil:org", tokens.DefaultTTL)
//	set, err := issuer.IssueSet(cluster.Audiences())
package tokens
