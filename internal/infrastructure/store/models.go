package store

import "time"

// UnlimitedStock is the persisted sentinel for products without a
// finite stock pool. Code should test with Product.Unlimited rather
// than comparing against the sentinel directly.
const UnlimitedStock = -1

// ReservationStatus is the lifecycle state of a stock reservation.
// Both pending and confirmed reservations count against available
// stock; expired reservations do not. Expired is terminal.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusExpired   ReservationStatus = "expired"
)

// Product is a catalog entry. Stock is the physical pool size in
// units, or UnlimitedStock. Price is in the smallest currency unit.
type Product struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int       `json:"price"`
	Stock       int       `json:"stock"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Unlimited reports whether the product has no finite stock pool.
func (p *Product) Unlimited() bool {
	return p.Stock == UnlimitedStock
}

// Reservation is a provisional hold of quantity against a product's
// stock, tied to one checkout attempt via SessionID.
type Reservation struct {
	ID        string            `json:"id"`
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	SessionID string            `json:"provider_session_id"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}
