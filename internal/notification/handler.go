// Package notification turns settlement events from the Kafka topic
// into operator emails.
package notification

import (
	"context"
	"encoding/json"

	zlog "github.com/rs/zerolog/log"

	"github.com/example/storefront/internal/email"
	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/settlement"
)

// Handler processes settlement events and notifies the store operator
type Handler struct {
	emailService *email.Service
	store        store.Store
	to           string
}

// NewHandler creates a new notification handler
func NewHandler(emailSvc *email.Service, st store.Store, to string) *Handler {
	return &Handler{
		emailService: emailSvc,
		store:        st,
		to:           to,
	}
}

func headline(eventType string) string {
	switch eventType {
	case settlement.EventCheckoutCompleted:
		return "決済完了"
	case settlement.EventCheckoutExpired:
		return "チェックアウト期限切れ"
	case settlement.EventRefundRestocked:
		return "返金・在庫戻し"
	default:
		return ""
	}
}

// HandleEvent processes one event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event settlement.Event
	if err := json.Unmarshal(value, &event); err != nil {
		zlog.Error().Err(err).Msg("failed to unmarshal settlement event")
		return err
	}

	subject := headline(event.Type)
	if subject == "" {
		// Unknown event types are skipped, not retried.
		zlog.Warn().Str("type", event.Type).Msg("unknown settlement event type")
		return nil
	}

	lines, err := h.sessionLines(ctx, event.SessionID)
	if err != nil {
		zlog.Error().Err(err).Str("session", event.SessionID).Msg("failed to load reservations")
		return err
	}

	if err := h.emailService.SendSettlementNotice(h.to, event.SessionID, subject, lines); err != nil {
		zlog.Error().Err(err).Str("session", event.SessionID).Msg("failed to send settlement notice")
		return err
	}

	zlog.Info().Str("session", event.SessionID).Str("type", event.Type).
		Msg("settlement notice sent")
	return nil
}

func (h *Handler) sessionLines(ctx context.Context, sessionID string) ([]email.Line, error) {
	reservations, err := h.store.ReservationsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	lines := make([]email.Line, 0, len(reservations))
	for _, r := range reservations {
		line := email.Line{Quantity: r.Quantity}
		if product, err := h.store.ProductByID(ctx, r.ProductID); err == nil {
			line.SKU = product.SKU
			line.Name = product.Name
		} else {
			line.SKU = r.ProductID
		}
		lines = append(lines, line)
	}
	return lines, nil
}
