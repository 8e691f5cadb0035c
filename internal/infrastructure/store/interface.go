package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrDuplicateSKU    = errors.New("sku already exists")
)

// ReservationTx is the unit the reservation engine runs inside. All
// calls made through it belong to one atomic transaction; the product
// row returned by ProductForUpdate stays locked until the transaction
// ends, so concurrent reservations of the same product serialize.
type ReservationTx interface {
	ProductForUpdate(productID string) (*Product, error)
	ActiveReservedQuantity(productID string) (int, error)
	InsertReservation(r *Reservation) error
	ExpirePendingBefore(cutoff time.Time) (int, error)
	ExpirePendingBySession(sessionID string) (int, error)
}

// Store is the persistence interface for products and stock
// reservations. PostgresStore is the production implementation;
// MemoryStore backs tests.
type Store interface {
	// Products
	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error
	ProductByID(ctx context.Context, id string) (*Product, error)
	ProductBySKU(ctx context.Context, sku string) (*Product, error)
	ActiveProducts(ctx context.Context) ([]Product, error)

	// Reservations
	InReservationTx(ctx context.Context, fn func(tx ReservationTx) error) error
	TransitionBySession(ctx context.Context, sessionID string, from, to ReservationStatus) (int, error)
	RebindSession(ctx context.Context, oldID, newID string) (int, error)
	ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int, error)
	ReservationsBySession(ctx context.Context, sessionID string) ([]Reservation, error)
	RecentReservations(ctx context.Context, limit int) ([]Reservation, error)
	ActiveReservedQuantities(ctx context.Context, productIDs []string) (map[string]int, error)
}
