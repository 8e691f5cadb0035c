package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/example/storefront/internal/payment"
)

var (
	ErrMissingSecret      = errors.New("webhook secret is not configured")
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrSignatureMismatch  = errors.New("signature mismatch")
)

// VerifyWebhook checks the Stripe-Signature header against the raw
// request body. The header carries a timestamp and one or more v1
// signatures: HMAC-SHA256 over "<timestamp>.<body>" with the
// endpoint's signing secret.
func (a *Adapter) VerifyWebhook(payload []byte, signature string) (*payment.WebhookEvent, error) {
	if a.cfg.WebhookSecret == "" {
		return nil, ErrMissingSecret
	}

	timestamp, candidates, err := parseSignatureHeader(signature)
	if err != nil {
		return nil, err
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	valid := false
	for _, candidate := range candidates {
		decoded, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		// hmac.Equal is constant-time.
		if hmac.Equal(decoded, expected) {
			valid = true
		}
	}
	if !valid {
		return nil, ErrSignatureMismatch
	}

	return parseEvent(payload)
}

// parseSignatureHeader splits "t=<ts>,v1=<hex>[,v1=<hex>...]".
func parseSignatureHeader(header string) (timestamp string, signatures []string, err error) {
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, ErrMalformedSignature
	}
	return timestamp, signatures, nil
}

func parseEvent(payload []byte) (*payment.WebhookEvent, error) {
	var envelope struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID            string `json:"id"`
				PaymentIntent string `json:"payment_intent"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, errors.New("payload is not a valid event envelope")
	}
	if envelope.Type == "" {
		return nil, errors.New("payload is not a valid event envelope")
	}

	event := &payment.WebhookEvent{
		Type:       payment.EventUnhandled,
		SessionID:  envelope.Data.Object.ID,
		PaymentRef: envelope.Data.Object.PaymentIntent,
	}
	switch envelope.Type {
	case "checkout.session.completed":
		event.Type = payment.EventCheckoutCompleted
	case "checkout.session.expired":
		event.Type = payment.EventCheckoutExpired
	}
	return event, nil
}
