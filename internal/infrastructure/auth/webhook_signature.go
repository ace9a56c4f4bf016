package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	svix "github.com/svix/svix-webhooks/go"
)

// Webhook signature headers sent by the identity provider (Svix format).
const (
	HeaderWebhookID        = "svix-id"
	HeaderWebhookTimestamp = "svix-timestamp"
	HeaderWebhookSignature = "svix-signature"

	webhookSecretPrefix = "whsec_"
)

var (
	ErrMissingSignatureHeaders = errors.New("missing webhook signature headers")
	ErrInvalidSignature        = errors.New("webhook signature does not match")
	ErrTimestampOutOfRange     = errors.New("webhook timestamp outside tolerance")
	ErrInvalidWebhookSecret    = errors.New("invalid webhook signing secret")
)

// WebhookVerifier checks that a delivery was signed with the shared secret
// and that its timestamp is within the configured tolerance. Signatures are
// checked by the Svix library; the tolerance is applied here because the
// library's window is fixed.
type WebhookVerifier struct {
	wh        *svix.Webhook
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookVerifier decodes a "whsec_" secret. A non-positive tolerance
// defaults to five minutes.
func NewWebhookVerifier(secret string, tolerance time.Duration) (*WebhookVerifier, error) {
	if strings.TrimPrefix(strings.TrimSpace(secret), webhookSecretPrefix) == "" {
		return nil, ErrInvalidWebhookSecret
	}
	wh, err := svix.NewWebhook(strings.TrimSpace(secret))
	if err != nil {
		return nil, errors.Join(ErrInvalidWebhookSecret, err)
	}
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &WebhookVerifier{wh: wh, tolerance: tolerance, now: time.Now}, nil
}

// Verify checks body against the signature headers and returns the delivery id.
func (v *WebhookVerifier) Verify(header http.Header, body []byte) (string, error) {
	id := header.Get(HeaderWebhookID)
	ts := header.Get(HeaderWebhookTimestamp)
	if id == "" || ts == "" || header.Get(HeaderWebhookSignature) == "" {
		return "", ErrMissingSignatureHeaders
	}

	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", ErrTimestampOutOfRange
	}
	sent := time.Unix(sec, 0)
	now := v.now()
	if sent.Before(now.Add(-v.tolerance)) || sent.After(now.Add(v.tolerance)) {
		return "", ErrTimestampOutOfRange
	}

	if err := v.wh.VerifyIgnoringTimestamp(body, header); err != nil {
		return "", errors.Join(ErrInvalidSignature, err)
	}
	return id, nil
}

// Sign returns the header values for a delivery, for tests and local tooling.
func (v *WebhookVerifier) Sign(id string, at time.Time, body []byte) (timestamp, signature string, err error) {
	signature, err = v.wh.Sign(id, at, body)
	if err != nil {
		return "", "", err
	}
	return strconv.FormatInt(at.Unix(), 10), signature, nil
}
