/*
Package cryptoutils keeps key material out of ordinary heap memory.

SecureKey wraps a memguard enclave; OrgKey is the organization's secp256k1
signing key built on top of it. Organization identities are DIDs of the form
did:nil:<compressed public key hex> and can be turned back into a public key
with PublicKeyFromDID, which is how nodes learn whom to trust.
*/
package cryptoutils
