// Package payment defines the capability interface the checkout and
// settlement flows depend on, without knowing which provider is
// active. Concrete adapters live in the stripe and square
// subpackages.
package payment

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotConfigured distinguishes a missing provider from a
	// provider failure; remediation differs.
	ErrNotConfigured = errors.New("no payment provider configured")

	// ErrSetupNotSupported is returned by providers whose webhook
	// endpoints can only be registered through their dashboard.
	ErrSetupNotSupported = errors.New("webhook setup is not supported by this provider")

	ErrSessionNotFound = errors.New("checkout session not found")
)

// EventType classifies a verified webhook event after
// provider-specific event names have been interpreted.
type EventType string

const (
	EventCheckoutCompleted EventType = "checkout.completed"
	EventCheckoutExpired   EventType = "checkout.expired"
	// EventUnhandled marks events that verified correctly but carry
	// no settlement meaning for this system.
	EventUnhandled EventType = "unhandled"
)

// WebhookEvent is a settlement event that passed signature
// verification.
type WebhookEvent struct {
	Type       EventType
	SessionID  string
	PaymentRef string
}

// LineItem is a checkout line priced from the store's own catalog.
// UnitAmount is in the smallest currency unit.
type LineItem struct {
	Name       string
	UnitAmount int
	Quantity   int
}

type CreateSessionParams struct {
	LineItems  []LineItem
	Currency   string
	SuccessURL string
	CancelURL  string
}

// Session is the provider-side unit of settlement: a checkout
// session for hosted-checkout providers, an order for payment-link
// providers.
type Session struct {
	ID         string    `json:"id"`
	URL        string    `json:"url,omitempty"`
	Status     string    `json:"status"`
	Amount     int       `json:"amount"`
	Currency   string    `json:"currency"`
	PaymentRef string    `json:"payment_ref,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type ListParams struct {
	Limit  int
	Cursor string
}

type SessionPage struct {
	Sessions []Session `json:"sessions"`
	HasMore  bool      `json:"has_more"`
	Cursor   string    `json:"cursor,omitempty"`
}

// Provider is the capability set a payment backend must satisfy.
//
// RefundPayment never surfaces provider errors: all failures collapse
// to false with the detail logged, because a refund failure must be
// user-visible but not crash the surrounding admin action.
// ListSessions likewise degrades to an empty page; it feeds a
// best-effort admin listing.
type Provider interface {
	Name() string
	// SignatureHeader names the HTTP header carrying the webhook
	// signature for this provider.
	SignatureHeader() string
	CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, params ListParams) *SessionPage
	// VerifyWebhook checks the signature over the raw payload and
	// parses the event envelope. It rejects on missing secret,
	// malformed or mismatching signature (constant-time comparison),
	// and unparseable payloads.
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
	// PaymentReference resolves the provider-specific reference a
	// refund needs from a session id.
	PaymentReference(ctx context.Context, sessionID string) (string, error)
	RefundPayment(ctx context.Context, reference string) bool
	SetupWebhook(ctx context.Context, url string) error
}

// Registry holds the provider resolved at startup. Callers resolve
// the capability reference at call time, so "not configured" is a
// typed condition rather than a nil dereference.
type Registry struct {
	active Provider
}

func NewRegistry(active Provider) *Registry {
	return &Registry{active: active}
}

func (r *Registry) Active() (Provider, error) {
	if r == nil || r.active == nil {
		return nil, ErrNotConfigured
	}
	return r.active, nil
}
