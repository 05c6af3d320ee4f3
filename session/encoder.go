package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const sessionFormatVersion = 1

var errInvalidEncoding = errors.New("invalid session encoding")

// Encode serialises the session value stored under its Redis key. The id is the key
// itself and is not repeated in the payload.
//
// Layout v1: version(1) | len(userID)(1) | userID | issuedAt ms(8) | expiresAt ms(8)
func Encode(s *Session) ([]byte, error) {
	if len(s.UserID) == 0 || len(s.UserID) > 255 {
		return nil, errors.New("userID length out of range")
	}

	var buf bytes.Buffer
	buf.Grow(2 + len(s.UserID) + 16)

	buf.WriteByte(sessionFormatVersion)
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)

	if err := binary.Write(&buf, binary.BigEndian, s.IssuedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a payload produced by Encode. The caller sets ID.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errInvalidEncoding
	}
	if version != sessionFormatVersion {
		return nil, errInvalidEncoding
	}

	userLen, err := reader.ReadByte()
	if err != nil || userLen == 0 {
		return nil, errInvalidEncoding
	}
	userID := make([]byte, userLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, errInvalidEncoding
	}

	var issued, expires int64
	if err := binary.Read(reader, binary.BigEndian, &issued); err != nil {
		return nil, errInvalidEncoding
	}
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return nil, errInvalidEncoding
	}
	if reader.Len() != 0 {
		return nil, errInvalidEncoding
	}

	return &Session{
		UserID:    string(userID),
		IssuedAt:  time.UnixMilli(issued),
		ExpiresAt: time.UnixMilli(expires),
	}, nil
}
