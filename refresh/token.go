package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const (
	sessionIDSize = 16
	secretSize    = 32
	rawSize       = sessionIDSize + secretSize
)

// ErrMalformed is returned for tokens that do not decode to the expected layout.
var ErrMalformed = errors.New("malformed refresh token")

// Token is a decoded refresh token.
type Token struct {
	SessionID string
	Secret    [secretSize]byte
}

// NewSessionID returns a random 128-bit session identifier, base64url encoded.
func NewSessionID() (string, error) {
	var sid [sessionIDSize]byte
	if _, err := rand.Read(sid[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sid[:]), nil
}

// New mints a token for sessionID with a fresh secret.
func New(sessionID string) (Token, error) {
	if _, err := parseSessionID(sessionID); err != nil {
		return Token{}, err
	}
	t := Token{SessionID: sessionID}
	if _, err := rand.Read(t.Secret[:]); err != nil {
		return Token{}, err
	}
	return t, nil
}

// Hash is the value stored in the session record for this token.
func (t Token) Hash() [32]byte {
	return sha256.Sum256(t.Secret[:])
}

// Encode returns the wire form of the token.
func (t Token) Encode() (string, error) {
	sid, err := parseSessionID(t.SessionID)
	if err != nil {
		return "", err
	}

	var raw [rawSize]byte
	copy(raw[:sessionIDSize], sid[:])
	copy(raw[sessionIDSize:], t.Secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// Decode parses the wire form.
func Decode(token string) (Token, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != rawSize {
		return Token{}, ErrMalformed
	}

	t := Token{SessionID: base64.RawURLEncoding.EncodeToString(raw[:sessionIDSize])}
	copy(t.Secret[:], raw[sessionIDSize:])
	return t, nil
}

func parseSessionID(sessionID string) ([sessionIDSize]byte, error) {
	var sid [sessionIDSize]byte
	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil || len(raw) != sessionIDSize {
		return sid, errors.New("invalid session id")
	}
	copy(sid[:], raw)
	return sid, nil
}
