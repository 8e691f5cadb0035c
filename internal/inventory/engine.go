package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/example/storefront/internal/infrastructure/store"
)

// DefaultStaleAfter is the staleness window: the maximum time a
// pending reservation may remain un-confirmed before it becomes
// eligible for automatic expiry. Enforcement is lazy, by sweeps.
const DefaultStaleAfter = 30 * time.Minute

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrProductInactive   = errors.New("product is not active")
)

// InsufficientStockError identifies the first cart item a batch
// reservation could not satisfy. errors.Is matches it against
// ErrInsufficientStock.
type InsufficientStockError struct {
	SKU       string
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (requested %d)", e.SKU, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Item is one cart line passed to ReserveBatch. The caller resolves
// SKUs to product ids beforehand; the SKU is carried only for error
// reporting.
type Item struct {
	ProductID string
	SKU       string
	Quantity  int
}

// Engine owns reservation creation and status transitions. Reserve
// and ReserveBatch run as one atomic transaction each: the check and
// the insert cannot be separated, so concurrent checkouts against the
// same product serialize and the accepted total never exceeds stock.
type Engine struct {
	store      store.Store
	staleAfter time.Duration
	now        func() time.Time
}

func NewEngine(s store.Store) *Engine {
	return NewEngineWithTTL(s, DefaultStaleAfter)
}

// NewEngineWithTTL overrides the staleness window after which pending
// reservations stop counting against availability.
func NewEngineWithTTL(s store.Store, staleAfter time.Duration) *Engine {
	return &Engine{
		store:      s,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Reserve inserts a single pending reservation if availability covers
// the quantity, or unconditionally for unlimited-stock products.
// Returns the new reservation id, or ErrInsufficientStock with no
// partial effect.
func (e *Engine) Reserve(ctx context.Context, productID string, quantity int, sessionID string) (string, error) {
	if quantity <= 0 {
		return "", ErrInvalidQuantity
	}

	var reservationID string
	err := e.store.InReservationTx(ctx, func(tx store.ReservationTx) error {
		id, err := e.reserveOne(tx, productID, quantity, sessionID)
		if err != nil {
			return err
		}
		reservationID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	return reservationID, nil
}

// reserveOne is the shared check-and-insert. The caller must hold a
// reservation transaction; the product row lock taken here is what
// serializes concurrent attempts.
func (e *Engine) reserveOne(tx store.ReservationTx, productID string, quantity int, sessionID string) (string, error) {
	p, err := tx.ProductForUpdate(productID)
	if err != nil {
		return "", err
	}
	if !p.Active {
		return "", ErrProductInactive
	}

	if !p.Unlimited() {
		reserved, err := tx.ActiveReservedQuantity(productID)
		if err != nil {
			return "", err
		}
		available := p.Stock - reserved
		if available < quantity {
			return "", ErrInsufficientStock
		}
	}

	r := &store.Reservation{
		ID:        uuid.New().String(),
		ProductID: productID,
		Quantity:  quantity,
		SessionID: sessionID,
		Status:    store.StatusPending,
		CreatedAt: e.now(),
	}
	if err := tx.InsertReservation(r); err != nil {
		return "", err
	}
	return r.ID, nil
}

// ReserveBatch reserves every item or none. It first sweeps stale
// pending reservations inside the same transaction, then attempts the
// items in caller order. On the first failing item the reservations
// already inserted for this session are expired (compensating
// transition) and the committed state holds no stock for the batch.
func (e *Engine) ReserveBatch(ctx context.Context, items []Item, sessionID string) ([]string, error) {
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	var ids []string
	var failure error
	err := e.store.InReservationTx(ctx, func(tx store.ReservationTx) error {
		swept, err := tx.ExpirePendingBefore(e.now().Add(-e.staleAfter))
		if err != nil {
			return err
		}
		if swept > 0 {
			zlog.Info().Int("count", swept).Msg("expired stale reservations during batch reserve")
		}

		for _, item := range items {
			id, err := e.reserveOne(tx, item.ProductID, item.Quantity, sessionID)
			if err == nil {
				ids = append(ids, id)
				continue
			}

			// First failure wins; expire whatever this batch already
			// holds and commit, so the sweep and the compensation
			// survive while no stock stays held for the session.
			if _, expireErr := tx.ExpirePendingBySession(sessionID); expireErr != nil {
				return expireErr
			}
			if errors.Is(err, ErrInsufficientStock) {
				failure = &InsufficientStockError{SKU: item.SKU, Requested: item.Quantity}
			} else {
				failure = err
			}
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}
	return ids, nil
}

// Confirm transitions all pending reservations for a session to
// confirmed. Idempotent: a replayed call matches zero rows.
func (e *Engine) Confirm(ctx context.Context, sessionID string) (int, error) {
	return e.store.TransitionBySession(ctx, sessionID, store.StatusPending, store.StatusConfirmed)
}

// Expire transitions all pending reservations for a session to
// expired, releasing their stock. Used for cancellation and for the
// compensating action after a failed provider call.
func (e *Engine) Expire(ctx context.Context, sessionID string) (int, error) {
	return e.store.TransitionBySession(ctx, sessionID, store.StatusPending, store.StatusExpired)
}

// RestockFromRefund returns a refunded session's stock to the pool.
// This is the only transition out of confirmed.
func (e *Engine) RestockFromRefund(ctx context.Context, sessionID string) (int, error) {
	return e.store.TransitionBySession(ctx, sessionID, store.StatusConfirmed, store.StatusExpired)
}

// SweepStale expires pending reservations older than maxAge. Run
// opportunistically; a failed sweep leaves stale rows for the next one.
func (e *Engine) SweepStale(ctx context.Context, maxAge time.Duration) (int, error) {
	return e.store.ExpirePendingBefore(ctx, e.now().Add(-maxAge))
}

// RebindSession replaces the temporary session token with the
// provider's real session id after session creation succeeds.
func (e *Engine) RebindSession(ctx context.Context, oldID, newID string) error {
	_, err := e.store.RebindSession(ctx, oldID, newID)
	return err
}
