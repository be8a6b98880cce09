// Package crypto derives agent ids from public keys and connection
// fingerprints.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
)

// IDLength is the length, in hex characters, of every derived agent id.
const IDLength = 16

const fingerprintInfo = "sdom-agent-fingerprint"

// HashPublicKey returns the agent id bound to a caller-declared public key.
func HashPublicKey(publicKey string) string {
	sum := blake2b.Sum256([]byte(publicKey))
	return hex.EncodeToString(sum[:])[:IDLength]
}

// Fingerprinter derives stable ids from connection metadata under an
// operator secret. Nothing is stored server-side: the same secret and
// inputs always produce the same id.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter expands secret into a BLAKE2b MAC key. It returns nil
// when secret is empty.
func NewFingerprinter(secret string) *Fingerprinter {
	if secret == "" {
		return nil
	}

	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(fingerprintInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		// HKDF-SHA256 can produce up to 8160 bytes; 32 never fails.
		panic(err)
	}
	return &Fingerprinter{key: key}
}

// ID returns the keyed hash of "remoteAddr|userAgent".
func (f *Fingerprinter) ID(remoteAddr, userAgent string) string {
	mac, err := blake2b.New256(f.key)
	if err != nil {
		panic(err) // key is always 32 bytes
	}
	mac.Write([]byte(remoteAddr + "|" + userAgent))
	return hex.EncodeToString(mac.Sum(nil))[:IDLength]
}

// RandomID returns a fresh random agent id.
func RandomID() string {
	b := make([]byte, IDLength/2)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
