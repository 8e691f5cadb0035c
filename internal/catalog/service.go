package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/inventory"
)

var (
	ErrInvalidSKU   = errors.New("sku must not be empty")
	ErrInvalidName  = errors.New("name must not be empty")
	ErrInvalidPrice = errors.New("price must be positive")
	ErrInvalidStock = errors.New("stock must be non-negative or unlimited")
)

// Listing is the public catalog shape. Stock is omitted for
// unlimited products.
type Listing struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	UnitPrice      int    `json:"unit_price"`
	PriceFormatted string `json:"price_formatted"`
	Currency       string `json:"currency"`
	Stock          *int   `json:"stock,omitempty"`
	InStock        bool   `json:"in_stock"`
}

// ProductInput is the admin-facing create/update payload.
type ProductInput struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int    `json:"price"`
	Stock       int    `json:"stock"`
	Active      bool   `json:"active"`
}

func (in *ProductInput) validate() error {
	if in.SKU == "" {
		return ErrInvalidSKU
	}
	if in.Name == "" {
		return ErrInvalidName
	}
	if in.Price <= 0 {
		return ErrInvalidPrice
	}
	if in.Stock < 0 && in.Stock != store.UnlimitedStock {
		return ErrInvalidStock
	}
	return nil
}

// Service owns the product catalog. Products are mutated only through
// the admin operations here; the checkout path reads them.
type Service struct {
	store    store.Store
	ledger   *inventory.Ledger
	currency string
}

func NewService(st store.Store, ledger *inventory.Ledger, currency string) *Service {
	return &Service{store: st, ledger: ledger, currency: currency}
}

// List returns active products with their computed availability in
// one reservation-sum round trip.
func (s *Service) List(ctx context.Context) ([]Listing, error) {
	products, err := s.store.ActiveProducts(ctx)
	if err != nil {
		return nil, err
	}
	avail, err := s.ledger.ForProducts(ctx, products)
	if err != nil {
		return nil, err
	}

	listings := make([]Listing, 0, len(products))
	for i := range products {
		p := &products[i]
		a := avail[p.ID]
		listing := Listing{
			SKU:            p.SKU,
			Name:           p.Name,
			Description:    p.Description,
			UnitPrice:      p.Price,
			PriceFormatted: FormatPrice(p.Price, s.currency),
			Currency:       s.currency,
			InStock:        a.InStock(),
		}
		if !a.Unlimited {
			count := a.Count
			listing.Stock = &count
		}
		listings = append(listings, listing)
	}
	return listings, nil
}

func (s *Service) Create(ctx context.Context, in ProductInput) (*store.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	p := &store.Product{
		ID:          uuid.New().String(),
		SKU:         in.SKU,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		Active:      in.Active,
		CreatedAt:   time.Now(),
	}
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, id string, in ProductInput) (*store.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.ProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	existing.SKU = in.SKU
	existing.Name = in.Name
	existing.Description = in.Description
	existing.Price = in.Price
	existing.Stock = in.Stock
	existing.Active = in.Active

	if err := s.store.UpdateProduct(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Service) BySKU(ctx context.Context, sku string) (*store.Product, error) {
	return s.store.ProductBySKU(ctx, sku)
}

func (s *Service) Currency() string {
	return s.currency
}
