// Package crypto provides payload signing for outbound webhook deliveries.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrEmptySecret is returned when a signer is constructed without a secret.
	ErrEmptySecret = errors.New("signing secret must not be empty")
)

// Signer computes HMAC-SHA256 signatures over webhook payloads so receivers
// can authenticate deliveries. The signed input is "{timestamp}.{body}" to
// bind the signature to the delivery time and defeat replay.
type Signer struct {
	secret []byte
}

// NewSigner creates a webhook payload signer.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	return &Signer{
		secret: secret,
	}, nil
}

// Sign returns the hex-encoded HMAC-SHA256 of "{timestamp}.{body}".
// The timestamp is the delivery time in Unix seconds.
func (s *Signer) Sign(body []byte, at time.Time) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strconv.FormatInt(at.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature against the expected one.
// It is constant-time and returns an error naming the mismatch.
func (s *Signer) Verify(body []byte, at time.Time, signature string) error {
	expected := s.Sign(body, at)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch for timestamp %d", at.Unix())
	}
	return nil
}
