package session

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// Cache entries use a versioned binary layout instead of JSON: session
// reads sit on the hot path of every authenticated request.
const codecVersion byte = 1

var (
	// ErrCodecVersion reports an entry written by an unknown layout.
	ErrCodecVersion = errors.New("session: unsupported codec version")

	// ErrCodecCorrupt reports a truncated or malformed entry.
	ErrCodecCorrupt = errors.New("session: corrupt encoded session")
)

// Encode serializes a session for cache storage.
func Encode(s *Session) []byte {
	buf := make([]byte, 0, 192)
	buf = append(buf, codecVersion)

	buf = appendString(buf, s.ID)
	buf = appendString(buf, s.UserID)
	buf = appendString(buf, s.FingerprintHash)
	buf = appendString(buf, s.IP)
	buf = appendString(buf, s.Country)
	buf = appendString(buf, s.DeviceType)
	buf = appendString(buf, s.OSFamily)

	buf = binary.AppendVarint(buf, s.CreatedAt.UnixMilli())
	buf = binary.AppendVarint(buf, s.LastActivity.UnixMilli())
	buf = binary.AppendVarint(buf, s.ExpiresAt.UnixMilli())

	buf = append(buf, byte(s.State))
	buf = append(buf, clampScore(s.TrustScore))

	var flags byte
	if s.Suspicious {
		flags |= 1
	}
	buf = append(buf, flags)

	buf = binary.AppendUvarint(buf, uint64(len(s.SuspicionReasons)))
	for _, r := range s.SuspicionReasons {
		buf = appendString(buf, r)
	}
	buf = appendString(buf, s.EndReason)

	return buf
}

// Decode parses an encoded session.
func Decode(raw []byte) (*Session, error) {
	if len(raw) == 0 {
		return nil, ErrCodecCorrupt
	}
	if raw[0] != codecVersion {
		return nil, fmt.Errorf("%w: %d", ErrCodecVersion, raw[0])
	}

	r := reader{buf: raw[1:]}
	s := &Session{}

	s.ID = r.string()
	s.UserID = r.string()
	s.FingerprintHash = r.string()
	s.IP = r.string()
	s.Country = r.string()
	s.DeviceType = r.string()
	s.OSFamily = r.string()

	s.CreatedAt = r.timeMilli()
	s.LastActivity = r.timeMilli()
	s.ExpiresAt = r.timeMilli()

	s.State = State(r.byte())
	s.TrustScore = int(r.byte())

	if r.byte()&1 != 0 {
		s.Suspicious = true
	}

	n := r.uvarint()
	if n > 64 {
		return nil, ErrCodecCorrupt
	}
	for i := uint64(0); i < n; i++ {
		s.SuspicionReasons = append(s.SuspicionReasons, r.string())
	}
	s.EndReason = r.string()

	if r.failed {
		return nil, ErrCodecCorrupt
	}
	return s, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func clampScore(score int) byte {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return byte(score)
}

type reader struct {
	buf    []byte
	failed bool
}

func (r *reader) uvarint() uint64 {
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.failed = true
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *reader) varint() int64 {
	v, n := binary.Varint(r.buf)
	if n <= 0 {
		r.failed = true
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *reader) string() string {
	n := r.uvarint()
	if r.failed || n > math.MaxInt32 || uint64(len(r.buf)) < n {
		r.failed = true
		return ""
	}
	s := string(r.buf[:n])
	r.buf = r.buf[n:]
	return s
}

func (r *reader) byte() byte {
	if len(r.buf) == 0 {
		r.failed = true
		return 0
	}
	b := r.buf[0]
	r.buf = r.buf[1:]
	return b
}

func (r *reader) timeMilli() time.Time {
	ms := r.varint()
	if r.failed {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
