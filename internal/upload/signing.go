package upload

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ComputeIntegrityTag returns the hex encoded HMAC-SHA256 of filename.
func ComputeIntegrityTag(filename string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(filename))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyIntegrityTag recomputes the tag for filename and compares it with tag
// in constant time.
func VerifyIntegrityTag(tag, filename string, secret []byte) bool {
	expected := ComputeIntegrityTag(filename, secret)
	return hmac.Equal([]byte(tag), []byte(expected))
}

// Signer binds the server secret to the tag functions.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("signing secret must not be empty")
	}
	return &Signer{secret: []byte(secret)}, nil
}

func (s *Signer) Sign(filename string) string {
	return ComputeIntegrityTag(filename, s.secret)
}

func (s *Signer) Verify(tag, filename string) bool {
	return VerifyIntegrityTag(tag, filename, s.secret)
}
