package crypto

import (
	"regexp"
	"testing"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{16}$`)

func TestHashPublicKeyDeterministic(t *testing.T) {
	a := HashPublicKey("MCowBQYDK2VwAyEAexamplekey")
	b := HashPublicKey("MCowBQYDK2VwAyEAexamplekey")
	if a != b {
		t.Fatalf("expected same id, got %q and %q", a, b)
	}
	if !hexID.MatchString(a) {
		t.Fatalf("expected 16 hex chars, got %q", a)
	}
	if HashPublicKey("another-public-key") == a {
		t.Fatal("different keys should hash differently")
	}
}

func TestFingerprinterStable(t *testing.T) {
	f := NewFingerprinter("s3cret")

	a := f.ID("203.0.113.7", "agent/1.0")
	b := NewFingerprinter("s3cret").ID("203.0.113.7", "agent/1.0")
	if a != b {
		t.Fatalf("expected stable fingerprint, got %q and %q", a, b)
	}
	if !hexID.MatchString(a) {
		t.Fatalf("expected 16 hex chars, got %q", a)
	}
}

func TestFingerprinterDistinguishesInputs(t *testing.T) {
	f := NewFingerprinter("s3cret")

	seen := map[string]string{}
	pairs := [][2]string{
		{"203.0.113.7", "agent/1.0"},
		{"203.0.113.8", "agent/1.0"},
		{"203.0.113.7", "agent/1.1"},
		{"203.0.113.7|agent", "/1.0"},
	}
	for _, p := range pairs {
		id := f.ID(p[0], p[1])
		if prev, ok := seen[id]; ok {
			t.Fatalf("collision between %q and %v", prev, p)
		}
		seen[id] = p[0] + "|" + p[1]
	}
}

func TestFingerprinterDependsOnSecret(t *testing.T) {
	a := NewFingerprinter("one").ID("198.51.100.1", "ua")
	b := NewFingerprinter("two").ID("198.51.100.1", "ua")
	if a == b {
		t.Fatal("different secrets should produce different ids")
	}
}

func TestNewFingerprinterEmptySecret(t *testing.T) {
	if NewFingerprinter("") != nil {
		t.Fatal("expected nil fingerprinter without a secret")
	}
}

func TestRandomID(t *testing.T) {
	a, b := RandomID(), RandomID()
	if !hexID.MatchString(a) {
		t.Fatalf("expected 16 hex chars, got %q", a)
	}
	if a == b {
		t.Fatal("random ids should differ")
	}
}
