package refresh

import "testing"

// FuzzRefreshDecode feeds arbitrary strings to the token decoder. Anything
// it accepts must encode back to a token carrying the same session id and
// secret.
func FuzzRefreshDecode(f *testing.F) {
	sid, err := NewSessionID()
	if err != nil {
		f.Fatal(err)
	}
	tok, err := New(sid)
	if err != nil {
		f.Fatal(err)
	}
	valid, err := tok.Encode()
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add("")
	f.Add("abc")
	f.Add("!!!not-base64!!!")
	f.Add(valid[:len(valid)-1])
	f.Add(valid + "A")
	f.Add(valid + "==")

	f.Fuzz(func(t *testing.T, input string) {
		decoded, err := Decode(input)
		if err != nil {
			return
		}

		encoded, err := decoded.Encode()
		if err != nil {
			t.Fatalf("encode of a decoded token failed: %v", err)
		}
		again, err := Decode(encoded)
		if err != nil {
			t.Fatalf("decode of a re-encoded token failed: %v", err)
		}
		if again.SessionID != decoded.SessionID || again.Secret != decoded.Secret {
			t.Fatal("round trip changed the token")
		}
	})
}
