package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/inventory"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore, *inventory.Engine) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewService(st, inventory.NewLedger(st), "jpy"), st, inventory.NewEngine(st)
}

func TestService_Create_ValidProduct(t *testing.T) {
	service, _, _ := newTestService(t)

	p, err := service.Create(context.Background(), ProductInput{
		SKU: "MUG-01", Name: "Mug", Description: "A mug", Price: 1200, Stock: 8, Active: true,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "MUG-01", p.SKU)
	assert.Equal(t, 1200, p.Price)
	assert.Equal(t, 8, p.Stock)
}

func TestService_Create_Invalid(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Create(ctx, ProductInput{Name: "Mug", Price: 100, Stock: 1})
	assert.ErrorIs(t, err, ErrInvalidSKU)

	_, err = service.Create(ctx, ProductInput{SKU: "A", Price: 100, Stock: 1})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = service.Create(ctx, ProductInput{SKU: "A", Name: "Mug", Price: 0, Stock: 1})
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = service.Create(ctx, ProductInput{SKU: "A", Name: "Mug", Price: 100, Stock: -2})
	assert.ErrorIs(t, err, ErrInvalidStock)
}

func TestService_Create_UnlimitedStockAllowed(t *testing.T) {
	service, _, _ := newTestService(t)

	p, err := service.Create(context.Background(), ProductInput{
		SKU: "PDF-01", Name: "Download", Price: 500, Stock: store.UnlimitedStock, Active: true,
	})

	require.NoError(t, err)
	assert.True(t, p.Unlimited())
}

func TestService_Create_DuplicateSKU(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Create(ctx, ProductInput{SKU: "MUG-01", Name: "Mug", Price: 100, Stock: 1, Active: true})
	require.NoError(t, err)

	_, err = service.Create(ctx, ProductInput{SKU: "MUG-01", Name: "Other", Price: 200, Stock: 1, Active: true})
	assert.ErrorIs(t, err, store.ErrDuplicateSKU)
}

func TestService_Update(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	p, err := service.Create(ctx, ProductInput{SKU: "MUG-01", Name: "Mug", Price: 100, Stock: 1, Active: true})
	require.NoError(t, err)

	updated, err := service.Update(ctx, p.ID, ProductInput{
		SKU: "MUG-01", Name: "Mug v2", Price: 150, Stock: 4, Active: false,
	})

	require.NoError(t, err)
	assert.Equal(t, "Mug v2", updated.Name)
	assert.Equal(t, 150, updated.Price)
	assert.False(t, updated.Active)
}

func TestService_Update_UnknownProduct(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.Update(context.Background(), "missing", ProductInput{
		SKU: "X", Name: "X", Price: 1, Stock: 1,
	})

	assert.ErrorIs(t, err, store.ErrProductNotFound)
}

func TestService_List_IncludesAvailability(t *testing.T) {
	service, _, engine := newTestService(t)
	ctx := context.Background()

	limited, err := service.Create(ctx, ProductInput{SKU: "MUG-01", Name: "Mug", Price: 1200, Stock: 5, Active: true})
	require.NoError(t, err)
	_, err = service.Create(ctx, ProductInput{SKU: "PDF-01", Name: "Download", Price: 500, Stock: store.UnlimitedStock, Active: true})
	require.NoError(t, err)
	_, err = service.Create(ctx, ProductInput{SKU: "OLD-01", Name: "Retired", Price: 100, Stock: 1, Active: false})
	require.NoError(t, err)

	_, err = engine.Reserve(ctx, limited.ID, 2, "sess-1")
	require.NoError(t, err)

	listings, err := service.List(ctx)
	require.NoError(t, err)

	bySKU := map[string]Listing{}
	for _, l := range listings {
		bySKU[l.SKU] = l
	}
	// Inactive products do not appear.
	assert.Len(t, listings, 2)
	assert.NotContains(t, bySKU, "OLD-01")

	mug := bySKU["MUG-01"]
	require.NotNil(t, mug.Stock)
	assert.Equal(t, 3, *mug.Stock)
	assert.True(t, mug.InStock)
	assert.Equal(t, "¥1,200", mug.PriceFormatted)

	// Stock is omitted for unlimited products.
	pdf := bySKU["PDF-01"]
	assert.Nil(t, pdf.Stock)
	assert.True(t, pdf.InStock)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "¥1,200", FormatPrice(1200, "jpy"))
	assert.Equal(t, "¥980", FormatPrice(980, "jpy"))
	assert.Equal(t, "¥1,234,567", FormatPrice(1234567, "jpy"))
	assert.Equal(t, "$15.00", FormatPrice(1500, "usd"))
	assert.Equal(t, "$0.99", FormatPrice(99, "usd"))
	assert.Equal(t, "€1,234.05", FormatPrice(123405, "eur"))
	assert.Equal(t, "CHF 12.50", FormatPrice(1250, "chf"))
}
