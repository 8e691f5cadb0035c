package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/example/storefront/internal/catalog"
	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/inventory"
	"github.com/example/storefront/internal/payment"
)

var ErrEmptyCart = errors.New("cart must contain at least one item")

// InvalidCartError marks a cart line that cannot be checked out:
// unknown SKU, inactive product, or a non-positive quantity.
type InvalidCartError struct {
	SKU    string
	Reason string
}

func (e *InvalidCartError) Error() string {
	return fmt.Sprintf("invalid cart item %q: %s", e.SKU, e.Reason)
}

// ProviderError wraps an upstream session-creation failure after the
// temporary reservations have been compensated.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return "payment provider session creation failed: " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// CartItem is one requested line, identified by SKU. Quantity must be
// a positive integer.
type CartItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type Request struct {
	Items      []CartItem `json:"items"`
	SuccessURL string     `json:"success_url"`
	CancelURL  string     `json:"cancel_url"`
}

type Result struct {
	URL       string `json:"url"`
	SessionID string `json:"-"`
}

// Orchestrator runs the checkout flow: validate the cart against the
// catalog, reserve atomically under a temporary session token, create
// the provider session, and bind the provider's session id back onto
// the reservations. Prices and names always come from the catalog,
// never from the client.
type Orchestrator struct {
	catalog   *catalog.Service
	engine    *inventory.Engine
	providers *payment.Registry
}

func NewOrchestrator(cat *catalog.Service, engine *inventory.Engine, providers *payment.Registry) *Orchestrator {
	return &Orchestrator{catalog: cat, engine: engine, providers: providers}
}

func (o *Orchestrator) Checkout(ctx context.Context, req Request) (*Result, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}

	// Resolve the provider before holding any stock.
	provider, err := o.providers.Active()
	if err != nil {
		return nil, err
	}

	items := make([]inventory.Item, 0, len(req.Items))
	lines := make([]payment.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidCartError{SKU: item.SKU, Reason: "quantity must be a positive integer"}
		}
		p, err := o.catalog.BySKU(ctx, item.SKU)
		if err != nil {
			if errors.Is(err, store.ErrProductNotFound) {
				return nil, &InvalidCartError{SKU: item.SKU, Reason: "unknown sku"}
			}
			return nil, err
		}
		if !p.Active {
			return nil, &InvalidCartError{SKU: item.SKU, Reason: "product is not available"}
		}
		items = append(items, inventory.Item{ProductID: p.ID, SKU: p.SKU, Quantity: item.Quantity})
		lines = append(lines, payment.LineItem{Name: p.Name, UnitAmount: p.Price, Quantity: item.Quantity})
	}

	// Reserve first under a locally generated token, so the stock is
	// held before the provider round trip.
	tempSession := "tmp_" + uuid.New().String()
	if _, err := o.engine.ReserveBatch(ctx, items, tempSession); err != nil {
		return nil, err
	}

	session, err := provider.CreateSession(ctx, payment.CreateSessionParams{
		LineItems:  lines,
		Currency:   o.catalog.Currency(),
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		// Compensating action: reservations must never outlive a
		// failed provider call.
		if _, expireErr := o.engine.Expire(ctx, tempSession); expireErr != nil {
			zlog.Error().Err(expireErr).Str("session", tempSession).Str("code", "compensation_failed").
				Msg("failed to expire reservations after provider failure")
		}
		zlog.Error().Err(err).Str("provider", provider.Name()).Str("code", "provider_session_failed").
			Msg("checkout session creation failed")
		return nil, &ProviderError{Err: err}
	}

	// The rebind does not move quantities; a failure here is
	// recoverable by querying reservations under the temporary token.
	if err := o.engine.RebindSession(ctx, tempSession, session.ID); err != nil {
		zlog.Error().Err(err).Str("temp_session", tempSession).Str("session", session.ID).
			Str("code", "session_rebind_failed").Msg("reservations still carry the temporary token")
	}

	return &Result{URL: session.URL, SessionID: session.ID}, nil
}
