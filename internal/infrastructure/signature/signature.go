// Package signature computes and verifies the signatures exchanged with
// payment processors. Verification never returns an error: anything that
// cannot be verified is reported as invalid.
package signature

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	errInvalidUTF8  = errors.New("body is not valid UTF-8")
	errTrailingData = errors.New("unexpected data after JSON document")
)

// Integrity returns the hex SHA-256 of reference, amount in minor units,
// currency and secret, concatenated in that order.
func Integrity(reference string, amountMinor int64, currency, secret string) string {
	sum := sha256.Sum256([]byte(reference + strconv.FormatInt(amountMinor, 10) + currency + secret))
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity recomputes the integrity signature and compares it in
// constant time.
func VerifyIntegrity(signature, reference string, amountMinor int64, currency, secret string) bool {
	if signature == "" || reference == "" || currency == "" || secret == "" {
		return false
	}
	return equalHex(signature, Integrity(reference, amountMinor, currency, secret))
}

// EventChecksum returns the hex SHA-256 of the property values, then the
// timestamp, then the secret.
func EventChecksum(values []string, timestamp int64, secret string) string {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(v)
	}
	b.WriteString(strconv.FormatInt(timestamp, 10))
	b.WriteString(secret)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyEventChecksum compares checksum against the expected one.
func VerifyEventChecksum(checksum string, values []string, timestamp int64, secret string) bool {
	if checksum == "" || secret == "" || len(values) == 0 {
		return false
	}
	return equalHex(checksum, EventChecksum(values, timestamp, secret))
}

// Canonicalize re-encodes a JSON document with object keys sorted at every
// level. Array order and number text are kept, and HTML characters are not
// escaped. The body must be exactly one valid UTF-8 JSON value.
func Canonicalize(body []byte) ([]byte, error) {
	if !utf8.Valid(body) {
		return nil, errInvalidUTF8
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		return nil, errTrailingData
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// maps are encoded with sorted keys
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SignIPN returns the hex HMAC-SHA512 of the canonical form of body.
func SignIPN(body []byte, secret string) (string, error) {
	canonical, err := Canonicalize(body)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyIPN reports whether signature is the HMAC of body's canonical form.
func VerifyIPN(body []byte, signature, secret string) bool {
	if len(body) == 0 || signature == "" || secret == "" {
		return false
	}
	expected, err := SignIPN(body, secret)
	if err != nil {
		return false
	}
	return equalHex(signature, expected)
}

func equalHex(got, want string) bool {
	return hmac.Equal([]byte(strings.ToLower(got)), []byte(want))
}
