// Package cryptox holds the primitives the dev issuer needs for credentials:
// Argon2id password hashes, opaque bearer secrets with their stored
// fingerprints, and Ed25519 signing keys.
package cryptox
