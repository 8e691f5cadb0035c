package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests. InReservationTx
// holds one mutex for the whole unit, which gives the same isolation
// the postgres row locks provide.
type MemoryStore struct {
	mu           sync.Mutex
	products     map[string]*Product
	reservations []*Reservation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{products: make(map[string]*Product)}
}

// Products

func (s *MemoryStore) CreateProduct(ctx context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if existing.SKU == p.SKU {
			return ErrDuplicateSKU
		}
	}
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateProduct(ctx context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[p.ID]; !ok {
		return ErrProductNotFound
	}
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *MemoryStore) ProductByID(ctx context.Context, id string) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.productByID(id)
}

func (s *MemoryStore) productByID(id string) (*Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ProductBySKU(ctx context.Context, sku string) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.products {
		if p.SKU == sku {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrProductNotFound
}

func (s *MemoryStore) ActiveProducts(ctx context.Context) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := make([]Product, 0)
	for _, p := range s.products {
		if p.Active {
			products = append(products, *p)
		}
	}
	return products, nil
}

// Reservations

type memoryTx struct {
	store *MemoryStore
	// inserted tracks reservations added by this unit so a failed
	// unit can be undone as if rolled back.
	inserted int
}

func (t *memoryTx) ProductForUpdate(productID string) (*Product, error) {
	return t.store.productByID(productID)
}

func (t *memoryTx) ActiveReservedQuantity(productID string) (int, error) {
	return t.store.activeReservedQuantity(productID), nil
}

func (t *memoryTx) InsertReservation(r *Reservation) error {
	cp := *r
	t.store.reservations = append(t.store.reservations, &cp)
	t.inserted++
	return nil
}

func (t *memoryTx) ExpirePendingBefore(cutoff time.Time) (int, error) {
	return t.store.expirePendingBefore(cutoff), nil
}

func (t *memoryTx) ExpirePendingBySession(sessionID string) (int, error) {
	count := 0
	for _, r := range t.store.reservations {
		if r.SessionID == sessionID && r.Status == StatusPending {
			r.Status = StatusExpired
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) InReservationTx(ctx context.Context, fn func(tx ReservationTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s}
	if err := fn(tx); err != nil {
		// Undo inserts made by the failed unit. Status changes are
		// not undone; the engine only returns errors before mutating
		// statuses, matching the rollback the SQL store performs.
		if tx.inserted > 0 {
			s.reservations = s.reservations[:len(s.reservations)-tx.inserted]
		}
		return err
	}
	return nil
}

func (s *MemoryStore) activeReservedQuantity(productID string) int {
	total := 0
	for _, r := range s.reservations {
		if r.ProductID == productID && (r.Status == StatusPending || r.Status == StatusConfirmed) {
			total += r.Quantity
		}
	}
	return total
}

func (s *MemoryStore) expirePendingBefore(cutoff time.Time) int {
	count := 0
	for _, r := range s.reservations {
		if r.Status == StatusPending && !r.CreatedAt.After(cutoff) {
			r.Status = StatusExpired
			count++
		}
	}
	return count
}

func (s *MemoryStore) TransitionBySession(ctx context.Context, sessionID string, from, to ReservationStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, r := range s.reservations {
		if r.SessionID == sessionID && r.Status == from {
			r.Status = to
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) RebindSession(ctx context.Context, oldID, newID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, r := range s.reservations {
		if r.SessionID == oldID {
			r.SessionID = newID
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expirePendingBefore(cutoff), nil
}

func (s *MemoryStore) ReservationsBySession(ctx context.Context, sessionID string) ([]Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reservations := make([]Reservation, 0)
	for _, r := range s.reservations {
		if r.SessionID == sessionID {
			reservations = append(reservations, *r)
		}
	}
	return reservations, nil
}

func (s *MemoryStore) RecentReservations(ctx context.Context, limit int) ([]Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reservations := make([]Reservation, 0)
	for i := len(s.reservations) - 1; i >= 0 && len(reservations) < limit; i-- {
		reservations = append(reservations, *s.reservations[i])
	}
	return reservations, nil
}

func (s *MemoryStore) ActiveReservedQuantities(ctx context.Context, productIDs []string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reserved := make(map[string]int, len(productIDs))
	for _, id := range productIDs {
		if qty := s.activeReservedQuantity(id); qty > 0 {
			reserved[id] = qty
		}
	}
	return reserved, nil
}
