package inventory

import (
	"context"
	"errors"

	"github.com/example/storefront/internal/infrastructure/store"
)

// Availability is the stock actually offerable to new buyers:
// physical stock minus all pending and confirmed reservations,
// floored at zero. Unlimited products report Unlimited instead of a
// count.
type Availability struct {
	Unlimited bool
	Count     int
}

// InStock reports whether at least one unit can still be reserved.
func (a Availability) InStock() bool {
	return a.Unlimited || a.Count > 0
}

// Ledger computes availability from the persisted stock level and the
// reservation log. Read-only; it never mutates state.
type Ledger struct {
	store store.Store
}

func NewLedger(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// Available computes availability for one product. Unknown or
// inactive products report zero availability rather than an error.
func (l *Ledger) Available(ctx context.Context, productID string) (Availability, error) {
	p, err := l.store.ProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			return Availability{}, nil
		}
		return Availability{}, err
	}
	if !p.Active {
		return Availability{}, nil
	}

	avail, err := l.ForProducts(ctx, []store.Product{*p})
	if err != nil {
		return Availability{}, err
	}
	return avail[p.ID], nil
}

// ForProducts computes availability for a set of already-loaded
// products in one round trip, keyed by product id. Used by the
// catalog listing.
func (l *Ledger) ForProducts(ctx context.Context, products []store.Product) (map[string]Availability, error) {
	ids := make([]string, 0, len(products))
	for i := range products {
		if !products[i].Unlimited() {
			ids = append(ids, products[i].ID)
		}
	}

	reserved, err := l.store.ActiveReservedQuantities(ctx, ids)
	if err != nil {
		return nil, err
	}

	avail := make(map[string]Availability, len(products))
	for i := range products {
		p := &products[i]
		if p.Unlimited() {
			avail[p.ID] = Availability{Unlimited: true}
			continue
		}
		count := p.Stock - reserved[p.ID]
		if count < 0 {
			count = 0
		}
		avail[p.ID] = Availability{Count: count}
	}
	return avail, nil
}
