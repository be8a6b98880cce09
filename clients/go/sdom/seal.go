package sdom

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// SealAlgorithm names the envelope sealing scheme: X25519 key agreement
// with an ephemeral key, HKDF-SHA256, ChaCha20-Poly1305.
const SealAlgorithm = "sdom-seal-v1"

const (
	ephemeralPKSize = 32
	nonceSize       = chacha20poly1305.NonceSize
	keySize         = chacha20poly1305.KeySize
	tagSize         = chacha20poly1305.Overhead
	minSealedLen    = ephemeralPKSize + nonceSize + tagSize
)

// ErrUnsealable is returned when a sealed envelope cannot be opened.
var ErrUnsealable = errors.New("sdom: envelope cannot be opened")

// SealedEnvelope is the JSON value sent as an envelope when the payload is
// encrypted for its recipient. The gateway treats it as opaque.
type SealedEnvelope struct {
	Alg string `json:"alg"`
	// CT is base64(ephemeral_pk[32] | nonce[12] | ciphertext | tag[16]).
	CT string `json:"ct"`
}

// edPubToX25519 converts an Ed25519 public key to its X25519 form.
func edPubToX25519(edPub ed25519.PublicKey) ([]byte, error) {
	p, err := new(edwards25519.Point).SetBytes(edPub)
	if err != nil {
		return nil, fmt.Errorf("invalid Ed25519 public key: %w", err)
	}
	return p.BytesMontgomery(), nil
}

// edSeedToX25519 converts an Ed25519 seed to an X25519 private key.
func edSeedToX25519(seed []byte) []byte {
	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	return h[:32]
}

func sealKey(shared, ephPub, recipientPub []byte) ([]byte, error) {
	salt := make([]byte, 0, len(ephPub)+len(recipientPub))
	salt = append(salt, ephPub...)
	salt = append(salt, recipientPub...)

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, salt, []byte(SealAlgorithm)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts plaintext for the holder of the Ed25519 key recipientPubB64
// (standard base64).
func Seal(plaintext []byte, recipientPubB64 string) (*SealedEnvelope, error) {
	edPub, err := base64.StdEncoding.DecodeString(recipientPubB64)
	if err != nil {
		return nil, fmt.Errorf("decode recipient key: %w", err)
	}
	if len(edPub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("recipient key is %d bytes, want %d", len(edPub), ed25519.PublicKeySize)
	}
	recipientPub, err := edPubToX25519(edPub)
	if err != nil {
		return nil, err
	}

	ephPriv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(ephPriv); err != nil {
		return nil, err
	}
	ephPub, err := curve25519.X25519(ephPriv, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	shared, err := curve25519.X25519(ephPriv, recipientPub)
	if err != nil {
		return nil, err
	}
	key, err := sealKey(shared, ephPub, recipientPub)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	wire := make([]byte, ephemeralPKSize+nonceSize, ephemeralPKSize+nonceSize+len(plaintext)+tagSize)
	copy(wire, ephPub)
	nonce := wire[ephemeralPKSize:]
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	wire = aead.Seal(wire, nonce, plaintext, []byte(SealAlgorithm))

	return &SealedEnvelope{Alg: SealAlgorithm, CT: base64.StdEncoding.EncodeToString(wire)}, nil
}

// Open decrypts env with the recipient's Ed25519 private key. Every
// failure wraps ErrUnsealable.
func Open(env *SealedEnvelope, priv ed25519.PrivateKey) ([]byte, error) {
	if env == nil || env.Alg != SealAlgorithm {
		return nil, fmt.Errorf("%w: unsupported algorithm", ErrUnsealable)
	}
	wire, err := base64.StdEncoding.DecodeString(env.CT)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsealable, err)
	}
	if len(wire) < minSealedLen {
		return nil, fmt.Errorf("%w: %d bytes, minimum %d", ErrUnsealable, len(wire), minSealedLen)
	}

	ephPub := wire[:ephemeralPKSize]
	nonce := wire[ephemeralPKSize : ephemeralPKSize+nonceSize]
	ciphertext := wire[ephemeralPKSize+nonceSize:]

	ownPriv := edSeedToX25519(priv.Seed())
	ownPub, err := curve25519.X25519(ownPriv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsealable, err)
	}
	shared, err := curve25519.X25519(ownPriv, ephPub)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ephemeral key", ErrUnsealable)
	}
	key, err := sealKey(shared, ephPub, ownPub)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(SealAlgorithm))
	if err != nil {
		return nil, fmt.Errorf("%w: wrong key or tampered ciphertext", ErrUnsealable)
	}
	return plaintext, nil
}
