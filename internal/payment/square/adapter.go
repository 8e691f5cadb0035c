// Package square adapts the payment-link provider model: there is no
// separate checkout-session object, an order is the unit of
// settlement, and a refund needs the payment's amount and currency
// retrieved first. Webhook endpoints can only be registered in the
// provider dashboard.
package square

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/example/storefront/internal/payment"
)

const defaultBaseURL = "https://connect.squareup.com"

// Config carries the credentials for one store. NotificationURL is
// the public webhook URL; the signature covers it together with the
// request body. BaseURL is overridable for tests.
type Config struct {
	AccessToken     string
	SignatureKey    string
	LocationID      string
	NotificationURL string
	BaseURL         string
}

// apiClient is the process-scoped HTTP client for the Square API,
// cached per access token. A credential change invalidates the cache.
type apiClient struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

var cache struct {
	mu     sync.Mutex
	key    string
	client *apiClient
}

func cachedClient(cfg Config) *apiClient {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if cache.client != nil && cache.key == cfg.AccessToken {
		return cache.client
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	cache.key = cfg.AccessToken
	cache.client = &apiClient{
		baseURL:     baseURL,
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
	return cache.client
}

// ResetClientCache drops the cached API client. For tests.
func ResetClientCache() {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.key = ""
	cache.client = nil
}

// Adapter implements payment.Provider against the Square Orders and
// Payment Links APIs.
type Adapter struct {
	cfg Config
}

func NewAdapter(cfg Config) *Adapter {
	return &Adapter{cfg: cfg}
}

func (a *Adapter) Name() string { return "square" }

func (a *Adapter) SignatureHeader() string { return "X-Square-HmacSha256-Signature" }

func (a *Adapter) do(ctx context.Context, method, path string, in, out any) error {
	client := cachedClient(a.cfg)

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+client.accessToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("square request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return payment.ErrSessionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("square returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type money struct {
	Amount   int    `json:"amount"`
	Currency string `json:"currency"`
}

type order struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	TotalMoney money  `json:"total_money"`
	Tenders    []struct {
		ID        string `json:"id"`
		PaymentID string `json:"payment_id"`
	} `json:"tenders"`
	CreatedAt time.Time `json:"created_at"`
}

func (o *order) toSession() payment.Session {
	s := payment.Session{
		ID:        o.ID,
		Status:    o.State,
		Amount:    o.TotalMoney.Amount,
		Currency:  o.TotalMoney.Currency,
		CreatedAt: o.CreatedAt,
	}
	if len(o.Tenders) > 0 {
		s.PaymentRef = o.Tenders[0].PaymentID
	}
	return s
}

// CreateSession creates a payment link. The embedded order becomes
// the session: its id is what settlement webhooks will reference.
func (a *Adapter) CreateSession(ctx context.Context, params payment.CreateSessionParams) (*payment.Session, error) {
	type lineItem struct {
		Name           string `json:"name"`
		Quantity       string `json:"quantity"`
		BasePriceMoney money  `json:"base_price_money"`
	}
	reqBody := struct {
		IdempotencyKey string `json:"idempotency_key"`
		Order          struct {
			LocationID string     `json:"location_id"`
			LineItems  []lineItem `json:"line_items"`
		} `json:"order"`
		CheckoutOptions struct {
			RedirectURL string `json:"redirect_url,omitempty"`
		} `json:"checkout_options"`
	}{
		IdempotencyKey: uuid.New().String(),
	}
	reqBody.Order.LocationID = a.cfg.LocationID
	currency := strings.ToUpper(params.Currency)
	for _, item := range params.LineItems {
		reqBody.Order.LineItems = append(reqBody.Order.LineItems, lineItem{
			Name:           item.Name,
			Quantity:       strconv.Itoa(item.Quantity),
			BasePriceMoney: money{Amount: item.UnitAmount, Currency: currency},
		})
	}
	reqBody.CheckoutOptions.RedirectURL = params.SuccessURL

	var resp struct {
		PaymentLink struct {
			ID        string    `json:"id"`
			URL       string    `json:"url"`
			OrderID   string    `json:"order_id"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"payment_link"`
	}
	if err := a.do(ctx, http.MethodPost, "/v2/online-checkout/payment-links", &reqBody, &resp); err != nil {
		return nil, fmt.Errorf("create payment link: %w", err)
	}

	return &payment.Session{
		ID:        resp.PaymentLink.OrderID,
		URL:       resp.PaymentLink.URL,
		Status:    "OPEN",
		CreatedAt: resp.PaymentLink.CreatedAt,
	}, nil
}

func (a *Adapter) GetSession(ctx context.Context, id string) (*payment.Session, error) {
	var resp struct {
		Order order `json:"order"`
	}
	if err := a.do(ctx, http.MethodGet, "/v2/orders/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	session := resp.Order.toSession()
	return &session, nil
}

func (a *Adapter) ListSessions(ctx context.Context, params payment.ListParams) *payment.SessionPage {
	empty := &payment.SessionPage{Sessions: []payment.Session{}}

	reqBody := struct {
		LocationIDs []string `json:"location_ids"`
		Limit       int      `json:"limit,omitempty"`
		Cursor      string   `json:"cursor,omitempty"`
	}{
		LocationIDs: []string{a.cfg.LocationID},
		Limit:       params.Limit,
		Cursor:      params.Cursor,
	}

	var resp struct {
		Orders []order `json:"orders"`
		Cursor string  `json:"cursor"`
	}
	if err := a.do(ctx, http.MethodPost, "/v2/orders/search", &reqBody, &resp); err != nil {
		zlog.Warn().Err(err).Str("code", "provider_list_failed").Msg("square order listing degraded to empty page")
		return empty
	}

	page := &payment.SessionPage{
		Sessions: make([]payment.Session, 0, len(resp.Orders)),
		HasMore:  resp.Cursor != "",
		Cursor:   resp.Cursor,
	}
	for i := range resp.Orders {
		page.Sessions = append(page.Sessions, resp.Orders[i].toSession())
	}
	return page
}

// PaymentReference resolves the payment id from the order's tender.
func (a *Adapter) PaymentReference(ctx context.Context, sessionID string) (string, error) {
	session, err := a.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session.PaymentRef == "" {
		return "", fmt.Errorf("order %s has no tendered payment", sessionID)
	}
	return session.PaymentRef, nil
}

// RefundPayment retrieves the payment's amount and currency first;
// the refund API does not accept stand-alone references.
func (a *Adapter) RefundPayment(ctx context.Context, reference string) bool {
	var paymentResp struct {
		Payment struct {
			ID          string `json:"id"`
			AmountMoney money  `json:"amount_money"`
		} `json:"payment"`
	}
	if err := a.do(ctx, http.MethodGet, "/v2/payments/"+url.PathEscape(reference), nil, &paymentResp); err != nil {
		zlog.Error().Err(err).Str("code", "provider_refund_failed").Str("payment_id", reference).
			Msg("square payment lookup for refund failed")
		return false
	}

	reqBody := struct {
		IdempotencyKey string `json:"idempotency_key"`
		PaymentID      string `json:"payment_id"`
		AmountMoney    money  `json:"amount_money"`
	}{
		IdempotencyKey: uuid.New().String(),
		PaymentID:      reference,
		AmountMoney:    paymentResp.Payment.AmountMoney,
	}
	if err := a.do(ctx, http.MethodPost, "/v2/refunds", &reqBody, nil); err != nil {
		zlog.Error().Err(err).Str("code", "provider_refund_failed").Str("payment_id", reference).
			Msg("square refund rejected")
		return false
	}
	return true
}

// SetupWebhook is a dashboard-only operation for this provider.
func (a *Adapter) SetupWebhook(ctx context.Context, endpointURL string) error {
	return payment.ErrSetupNotSupported
}
