// Package uuidv7 generates time-ordered UUIDv7 strings. Journal rows use
// these as primary keys so append order survives in the id itself.
package uuidv7

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// New returns a UUIDv7 string.
func New() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[6:]); err != nil {
		return "", err
	}
	ms := uint64(time.Now().UnixMilli())
	b[0] = byte(ms >> 40)
	b[1] = byte(ms >> 32)
	b[2] = byte(ms >> 24)
	b[3] = byte(ms >> 16)
	b[4] = byte(ms >> 8)
	b[5] = byte(ms)
	b[6] = (b[6] & 0x0f) | 0x70 // version 7
	b[8] = (b[8] & 0x3f) | 0x80 // RFC 4122 variant

	var out [36]byte
	hex.Encode(out[0:8], b[0:4])
	out[8] = '-'
	hex.Encode(out[9:13], b[4:6])
	out[13] = '-'
	hex.Encode(out[14:18], b[6:8])
	out[18] = '-'
	hex.Encode(out[19:23], b[8:10])
	out[23] = '-'
	hex.Encode(out[24:36], b[10:16])
	return string(out[:]), nil
}

// Must returns a UUIDv7 string, panicking if the system entropy source fails.
func Must() string {
	s, err := New()
	if err != nil {
		panic(err)
	}
	return s
}
