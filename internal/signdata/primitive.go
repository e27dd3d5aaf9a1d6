package signdata

import (
	"crypto/ed25519"
	"fmt"
)

// Primitive is the detached-signature scheme the digest is handed to.
type Primitive interface {
	SignDetached(digest, secretKey []byte) ([]byte, error)
	VerifyDetached(digest, signature, publicKey []byte) bool
}

// Ed25519 signs with crypto/ed25519. Secret keys may be the 64-byte private
// key or its 32-byte seed.
type Ed25519 struct{}

func (Ed25519) SignDetached(digest, secretKey []byte) ([]byte, error) {
	var priv ed25519.PrivateKey
	switch len(secretKey) {
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(secretKey)
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(secretKey)
	default:
		return nil, fmt.Errorf("ed25519: secret key is %d bytes, want %d or %d",
			len(secretKey), ed25519.PrivateKeySize, ed25519.SeedSize)
	}
	return ed25519.Sign(priv, digest), nil
}

func (Ed25519) VerifyDetached(digest, signature, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), digest, signature)
}
