package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/example/storefront/internal/inventory"
	"github.com/example/storefront/internal/payment"
)

// ErrRefundRejected means the provider did not perform the refund;
// no stock was returned.
var ErrRefundRejected = errors.New("provider rejected the refund")

// Publisher is the settlement-topic producer. Satisfied by the kafka
// producer; nil disables publishing.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Reconciler drives reservation state from verified provider webhook
// events and admin-initiated refunds. All its operations are safe to
// replay: the underlying transitions match zero rows the second time.
type Reconciler struct {
	engine    *inventory.Engine
	providers *payment.Registry
	publisher Publisher
}

func NewReconciler(engine *inventory.Engine, providers *payment.Registry, publisher Publisher) *Reconciler {
	return &Reconciler{engine: engine, providers: providers, publisher: publisher}
}

// HandleEvent applies one verified webhook event. The caller must
// have verified the signature already; unverifiable requests never
// reach here.
func (r *Reconciler) HandleEvent(ctx context.Context, ev *payment.WebhookEvent) error {
	switch ev.Type {
	case payment.EventCheckoutCompleted:
		count, err := r.engine.Confirm(ctx, ev.SessionID)
		if err != nil {
			return fmt.Errorf("confirm reservations: %w", err)
		}
		zlog.Info().Str("session", ev.SessionID).Int("count", count).Msg("checkout completed")
		if count > 0 {
			r.publish(ctx, EventCheckoutCompleted, ev.SessionID, count)
		}
	case payment.EventCheckoutExpired:
		count, err := r.engine.Expire(ctx, ev.SessionID)
		if err != nil {
			return fmt.Errorf("expire reservations: %w", err)
		}
		zlog.Info().Str("session", ev.SessionID).Int("count", count).Msg("checkout expired")
		if count > 0 {
			r.publish(ctx, EventCheckoutExpired, ev.SessionID, count)
		}
	default:
		// Verified but carries no settlement meaning.
	}
	return nil
}

// Refund performs the provider refund and, only if the provider
// confirms it, restocks the session's confirmed reservations. Stock
// is never returned for a refund that did not happen, and never
// skipped for one that did.
func (r *Reconciler) Refund(ctx context.Context, sessionID string) (int, error) {
	provider, err := r.providers.Active()
	if err != nil {
		return 0, err
	}

	reference, err := provider.PaymentReference(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("resolve payment reference: %w", err)
	}

	if !provider.RefundPayment(ctx, reference) {
		return 0, ErrRefundRejected
	}

	count, err := r.engine.RestockFromRefund(ctx, sessionID)
	if err != nil {
		// The refund went through but the restock write failed; the
		// session's confirmed rows remain for a retried restock.
		return 0, fmt.Errorf("restock after refund: %w", err)
	}
	zlog.Info().Str("session", sessionID).Int("count", count).Msg("refund restocked")
	if count > 0 {
		r.publish(ctx, EventRefundRestocked, sessionID, count)
	}
	return count, nil
}

func (r *Reconciler) publish(ctx context.Context, eventType, sessionID string, count int) {
	if r.publisher == nil {
		return
	}
	err := r.publisher.Publish(ctx, sessionID, Event{
		Type:       eventType,
		SessionID:  sessionID,
		Count:      count,
		OccurredAt: time.Now(),
	})
	if err != nil {
		// Notification fan-out is best-effort; reconciliation already
		// committed.
		zlog.Error().Err(err).Str("session", sessionID).Str("code", "settlement_publish_failed").
			Msg("failed to publish settlement event")
	}
}
