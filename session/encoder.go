package session

import (
	"encoding/binary"
	"errors"
)

const sessionFormatVersion = 1

const flagRevoked byte = 1 << 0

// Header offsets (0-based). The Lua scripts use the same layout 1-based.
const (
	offVersion    = 0
	offFlags      = 1
	offRefresh    = 2
	offCreatedAt  = 34
	offExpiresAt  = 42
	offGeneration = 50
	headerLen     = 54
)

var errCorrupt = errors.New("session blob corrupt")

// Encode serializes s into its stored form.
func Encode(s *Session) ([]byte, error) {
	if len(s.UserID) == 0 || len(s.UserID) > 255 {
		return nil, errors.New("userID length out of range")
	}
	if len(s.DeviceFingerprint) > 255 {
		return nil, errors.New("device fingerprint too long")
	}
	if len(s.CSRFToken) > 255 {
		return nil, errors.New("csrf token too long")
	}

	buf := make([]byte, headerLen, headerLen+3+len(s.UserID)+len(s.DeviceFingerprint)+len(s.CSRFToken))
	buf[offVersion] = sessionFormatVersion
	if s.Revoked {
		buf[offFlags] |= flagRevoked
	}
	copy(buf[offRefresh:offCreatedAt], s.RefreshHash[:])
	binary.BigEndian.PutUint64(buf[offCreatedAt:], uint64(s.CreatedAt))
	binary.BigEndian.PutUint64(buf[offExpiresAt:], uint64(s.ExpiresAt))
	binary.BigEndian.PutUint32(buf[offGeneration:], s.Generation)

	buf = appendString(buf, s.UserID)
	buf = appendString(buf, s.DeviceFingerprint)
	buf = appendString(buf, s.CSRFToken)
	return buf, nil
}

// Decode parses a stored session. SessionID is not part of the blob and is
// left empty.
func Decode(data []byte) (*Session, error) {
	if len(data) < headerLen {
		return nil, errCorrupt
	}
	if data[offVersion] != sessionFormatVersion {
		return nil, errors.New("invalid session version")
	}

	s := &Session{
		Revoked:    data[offFlags]&flagRevoked != 0,
		CreatedAt:  int64(binary.BigEndian.Uint64(data[offCreatedAt:])),
		ExpiresAt:  int64(binary.BigEndian.Uint64(data[offExpiresAt:])),
		Generation: binary.BigEndian.Uint32(data[offGeneration:]),
	}
	copy(s.RefreshHash[:], data[offRefresh:offCreatedAt])

	rest := data[headerLen:]
	var err error
	if s.UserID, rest, err = readString(rest); err != nil {
		return nil, err
	}
	if s.DeviceFingerprint, rest, err = readString(rest); err != nil {
		return nil, err
	}
	if s.CSRFToken, rest, err = readString(rest); err != nil {
		return nil, err
	}
	if len(rest) != 0 || s.UserID == "" {
		return nil, errCorrupt
	}
	return s, nil
}

func encodeExpiry(ms int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(ms))
	return b[:]
}

func appendString(buf []byte, v string) []byte {
	buf = append(buf, byte(len(v)))
	return append(buf, v...)
}

func readString(data []byte) (string, []byte, error) {
	if len(data) < 1 {
		return "", nil, errCorrupt
	}
	n := int(data[0])
	if len(data) < 1+n {
		return "", nil, errCorrupt
	}
	return string(data[1 : 1+n]), data[1+n:], nil
}
