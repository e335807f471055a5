// Package security provides cryptographic identity, message signing and
// content hashing for the coordination protocols.
// Every participant has an Ed25519 keypair; the hex public key is its
// on-chain address.
package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidKey is returned when key material cannot be decoded.
var ErrInvalidKey = errors.New("invalid key material")

// Keypair holds a participant's Ed25519 identity.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeypair creates a new Ed25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 keypair: %w", err)
	}
	return &Keypair{Public: pub, Private: priv}, nil
}

// KeypairFromPrivate derives the public identity from a private key.
func KeypairFromPrivate(priv ed25519.PrivateKey) (*Keypair, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key len %d", ErrInvalidKey, len(priv))
	}
	return &Keypair{
		Public:  priv.Public().(ed25519.PublicKey),
		Private: priv,
	}, nil
}

// ParsePrivateKeyHex accepts either a 64-byte private key or a 32-byte seed.
func ParsePrivateKeyHex(s string) (*Keypair, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return KeypairFromPrivate(ed25519.NewKeyFromSeed(raw))
	case ed25519.PrivateKeySize:
		return KeypairFromPrivate(ed25519.PrivateKey(raw))
	default:
		return nil, fmt.Errorf("%w: private key len %d", ErrInvalidKey, len(raw))
	}
}

// LoadOrCreateKeypair loads an existing keypair from disk, or generates
// a new one on first run. Keys are stored in home/keys/.
func LoadOrCreateKeypair(home string) (*Keypair, error) {
	keyDir := filepath.Join(home, "keys")
	privPath := filepath.Join(keyDir, "node.key")
	pubPath := filepath.Join(keyDir, "node.pub")

	if privBytes, err := os.ReadFile(privPath); err == nil {
		kp, err := ParsePrivateKeyHex(string(privBytes))
		if err != nil {
			return nil, fmt.Errorf("decode private key: %w", err)
		}
		return kp, nil
	}

	kp, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(pubPath, []byte(kp.PublicKeyHex()), 0644); err != nil {
		return nil, fmt.Errorf("write public key: %w", err)
	}
	if err := os.WriteFile(privPath, []byte(hex.EncodeToString(kp.Private)), 0600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}

	return kp, nil
}

// PublicKeyHex returns the public key as a hex string (the address).
func (kp *Keypair) PublicKeyHex() string {
	return hex.EncodeToString(kp.Public)
}

// Sign signs a message with the private key.
func (kp *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(kp.Private, message)
}

// SignHex signs message and hex-encodes the signature.
func (kp *Keypair) SignHex(message []byte) string {
	return hex.EncodeToString(kp.Sign(message))
}

// Verify checks a signature against a public key.
func Verify(message, signature []byte, publicKey ed25519.PublicKey) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}

// VerifyHex checks a hex signature against a hex public key. Malformed
// input verifies as false.
func VerifyHex(publicKeyHex string, message []byte, signatureHex string) bool {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return Verify(message, sig, ed25519.PublicKey(pub))
}
