package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"

	"github.com/inkwave/core/internal/models"
)

// ErrMissingSecret marks a webhook whose secret is blank. This is a
// configuration error: delivery fails immediately and is never retried.
var ErrMissingSecret = errors.New("webhook: secret is missing")

// Signatures carries the hex HMAC digests attached to a delivery. SHA1 is
// kept alongside SHA256 for receivers that still verify the legacy header.
type Signatures struct {
	SHA256 string
	SHA1   string
}

// Signer computes request signatures for a webhook. Secret handling stays
// behind this interface so rotation strategies never touch delivery logic.
type Signer interface {
	Sign(hook *models.WebhookModel, body []byte) (Signatures, error)
}

// HMACSigner signs with the hook's stored secret.
type HMACSigner struct{}

// Sign computes HMAC digests over the exact raw bytes that go on the wire.
// The caller must send body unmodified; re-serializing JSON after signing is
// the classic way to produce unverifiable signatures.
func (HMACSigner) Sign(hook *models.WebhookModel, body []byte) (Signatures, error) {
	if hook.Secret == "" {
		return Signatures{}, ErrMissingSecret
	}
	return Signatures{
		SHA256: signWithHash(sha256.New, hook.Secret, body),
		SHA1:   signWithHash(sha1.New, hook.Secret, body),
	}, nil
}

func signWithHash(newHash func() hash.Hash, secret string, body []byte) string {
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
