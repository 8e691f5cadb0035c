package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/example/storefront/internal/payment"
)

var (
	ErrMissingSecret     = errors.New("webhook signature key is not configured")
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// VerifyWebhook checks the signature header against HMAC-SHA256 over
// the notification URL concatenated with the raw body, base64
// encoded. The URL is part of the signed material, so the configured
// NotificationURL must match what the provider delivers to.
func (a *Adapter) VerifyWebhook(payload []byte, signature string) (*payment.WebhookEvent, error) {
	if a.cfg.SignatureKey == "" {
		return nil, ErrMissingSecret
	}
	if signature == "" {
		return nil, ErrSignatureMismatch
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.SignatureKey))
	mac.Write([]byte(a.cfg.NotificationURL))
	mac.Write(payload)
	expected := mac.Sum(nil)

	provided, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return nil, ErrSignatureMismatch
	}
	// hmac.Equal is constant-time.
	if !hmac.Equal(provided, expected) {
		return nil, ErrSignatureMismatch
	}

	return parseEvent(payload)
}

func parseEvent(payload []byte) (*payment.WebhookEvent, error) {
	var envelope struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				Payment struct {
					ID      string `json:"id"`
					Status  string `json:"status"`
					OrderID string `json:"order_id"`
				} `json:"payment"`
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
		SessionID:  envelope.Data.Object.Payment.OrderID,
		PaymentRef: envelope.Data.Object.Payment.ID,
	}
	if envelope.Type == "payment.updated" {
		switch envelope.Data.Object.Payment.Status {
		case "COMPLETED":
			event.Type = payment.EventCheckoutCompleted
		case "CANCELED", "FAILED":
			event.Type = payment.EventCheckoutExpired
		}
	}
	return event, nil
}
