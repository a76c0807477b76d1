package jwtx

// Signer mints compact JWTs from Claims.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	Validate() error
}
