package auth

import (
	"crypto/ed25519"
	"encoding/base64"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// SignatureVerifier validates a wallet signature over a message. Defined
// once so sign-in and payment flows share a single identity contract.
type SignatureVerifier interface {
	Verify(publicKey, signature string, message []byte) bool
}

// Ed25519Verifier checks ed25519 signatures from base58-encoded wallet
// public keys (the signature itself travels base64-encoded).
type Ed25519Verifier struct{}

// NewEd25519Verifier returns the stateless verifier.
func NewEd25519Verifier() Ed25519Verifier {
	return Ed25519Verifier{}
}

// Verify reports whether signature is a valid ed25519 signature of message
// by the holder of publicKey.
func (Ed25519Verifier) Verify(publicKey, signature string, message []byte) bool {
	pub := base58.Decode(publicKey)
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, sig)
}
