package providers

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"hash"
	"net/http"
	"strings"
)

// ErrSignatureMismatch is returned when a webhook signature is missing or
// does not match the body.
var ErrSignatureMismatch = errors.New("signature mismatch")

// Encoding is how a provider renders the MAC in its signature header.
type Encoding int

const (
	EncodingHex Encoding = iota
	EncodingBase64
)

// Signature describes one provider's webhook signing scheme: an HMAC over
// the raw body (optionally prefixed by a timestamp header value) carried in
// a single header.
type Signature struct {
	Header          string
	Hash            func() hash.Hash
	Encoding        Encoding
	Prefix          string // e.g. "sha256=", stripped before decoding
	TimestampHeader string // when set, the MAC covers timestamp + body
}

var (
	hmacSHA1   = sha1.New
	hmacSHA256 = sha256.New
)

// Enabled reports whether the scheme can verify anything.
func (s Signature) Enabled() bool { return s.Header != "" && s.Hash != nil }

func (s Signature) mac(secret string, body []byte, timestamp string) []byte {
	m := hmac.New(s.Hash, []byte(secret))
	if s.TimestampHeader != "" {
		m.Write([]byte(timestamp))
	}
	m.Write(body)
	return m.Sum(nil)
}

// Sign renders the header value a provider would send for body.
func (s Signature) Sign(secret string, body []byte, timestamp string) string {
	sum := s.mac(secret, body, timestamp)
	if s.Encoding == EncodingBase64 {
		return s.Prefix + base64.StdEncoding.EncodeToString(sum)
	}
	return s.Prefix + hex.EncodeToString(sum)
}

// Verify recomputes the MAC over body with secret and compares it with the
// header value in constant time.
func (s Signature) Verify(h http.Header, body []byte, secret string) error {
	if !s.Enabled() || secret == "" {
		return ErrSignatureMismatch
	}
	got := strings.TrimSpace(h.Get(s.Header))
	if got == "" {
		return ErrSignatureMismatch
	}
	if s.Prefix != "" {
		if len(got) < len(s.Prefix) || !strings.EqualFold(got[:len(s.Prefix)], s.Prefix) {
			return ErrSignatureMismatch
		}
		got = got[len(s.Prefix):]
	}
	var ts string
	if s.TimestampHeader != "" {
		if ts = strings.TrimSpace(h.Get(s.TimestampHeader)); ts == "" {
			return ErrSignatureMismatch
		}
	}

	var (
		provided []byte
		err      error
	)
	if s.Encoding == EncodingBase64 {
		provided, err = base64.StdEncoding.DecodeString(got)
	} else {
		provided, err = hex.DecodeString(strings.ToLower(got))
	}
	if err != nil {
		return ErrSignatureMismatch
	}
	if !hmac.Equal(provided, s.mac(secret, body, ts)) {
		return ErrSignatureMismatch
	}
	return nil
}
