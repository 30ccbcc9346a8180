package refresh

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	tok, err := New(sid)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	wire, err := tok.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(wire) != 64 {
		t.Fatalf("expected 64-char token, got %d", len(wire))
	}

	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.SessionID != sid || got.Secret != tok.Secret {
		t.Fatal("decoded token does not match")
	}
	if got.Hash() != tok.Hash() {
		t.Fatal("hash must be stable")
	}
}

func TestTokensForSameSessionDiffer(t *testing.T) {
	sid, _ := NewSessionID()
	a, _ := New(sid)
	b, _ := New(sid)
	if a.Secret == b.Secret || a.Hash() == b.Hash() {
		t.Fatal("each rotation must produce a new secret")
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "not base64!!", strings.Repeat("A", 10), strings.Repeat("A", 65)} {
		if _, err := Decode(in); !errors.Is(err, ErrMalformed) {
			t.Fatalf("expected ErrMalformed for %q, got %v", in, err)
		}
	}
}

func TestNewRejectsBadSessionID(t *testing.T) {
	if _, err := New("short"); err == nil {
		t.Fatal("expected invalid session id error")
	}
}
