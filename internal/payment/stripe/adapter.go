// Package stripe adapts the hosted-checkout-session provider model:
// checkout sessions are the unit of settlement, completion and expiry
// arrive as distinct webhook event types, and refunds reference the
// payment intent tied to a session.
package stripe

import (
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

	zlog "github.com/rs/zerolog/log"

	"github.com/example/storefront/internal/payment"
)

const defaultBaseURL = "https://api.stripe.com"

// Config carries the credentials and endpoints for one store.
// BaseURL is overridable for tests.
type Config struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
}

// apiClient is the process-scoped HTTP client for the Stripe API,
// cached per secret key. A credential change invalidates the cache.
type apiClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

var cache struct {
	mu     sync.Mutex
	key    string
	client *apiClient
}

func cachedClient(cfg Config) *apiClient {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if cache.client != nil && cache.key == cfg.SecretKey {
		return cache.client
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	cache.key = cfg.SecretKey
	cache.client = &apiClient{
		baseURL:    baseURL,
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
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

// Adapter implements payment.Provider against the Stripe Checkout
// API.
type Adapter struct {
	cfg Config
}

func NewAdapter(cfg Config) *Adapter {
	return &Adapter{cfg: cfg}
}

func (a *Adapter) Name() string { return "stripe" }

func (a *Adapter) SignatureHeader() string { return "Stripe-Signature" }

// do performs a Stripe API call. Stripe takes form-encoded request
// bodies and returns JSON.
func (a *Adapter) do(ctx context.Context, method, path string, form url.Values, out any) error {
	client := cachedClient(a.cfg)

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+client.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stripe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return payment.ErrSessionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("stripe returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type checkoutSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Status        string `json:"status"`
	AmountTotal   int    `json:"amount_total"`
	Currency      string `json:"currency"`
	PaymentIntent string `json:"payment_intent"`
	Created       int64  `json:"created"`
}

func (s *checkoutSession) toSession() payment.Session {
	return payment.Session{
		ID:         s.ID,
		URL:        s.URL,
		Status:     s.Status,
		Amount:     s.AmountTotal,
		Currency:   s.Currency,
		PaymentRef: s.PaymentIntent,
		CreatedAt:  time.Unix(s.Created, 0),
	}
}

func (a *Adapter) CreateSession(ctx context.Context, params payment.CreateSessionParams) (*payment.Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	for i, item := range params.LineItems {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", params.Currency)
		form.Set(prefix+"[price_data][product_data][name]", item.Name)
		form.Set(prefix+"[price_data][unit_amount]", strconv.Itoa(item.UnitAmount))
		form.Set(prefix+"[quantity]", strconv.Itoa(item.Quantity))
	}

	var session checkoutSession
	if err := a.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	result := session.toSession()
	return &result, nil
}

func (a *Adapter) GetSession(ctx context.Context, id string) (*payment.Session, error) {
	var session checkoutSession
	if err := a.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(id), nil, &session); err != nil {
		return nil, err
	}
	result := session.toSession()
	return &result, nil
}

func (a *Adapter) ListSessions(ctx context.Context, params payment.ListParams) *payment.SessionPage {
	empty := &payment.SessionPage{Sessions: []payment.Session{}}

	query := url.Values{}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Cursor != "" {
		query.Set("starting_after", params.Cursor)
	}
	path := "/v1/checkout/sessions"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var list struct {
		Data    []checkoutSession `json:"data"`
		HasMore bool              `json:"has_more"`
	}
	if err := a.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		zlog.Warn().Err(err).Str("code", "provider_list_failed").Msg("stripe session listing degraded to empty page")
		return empty
	}

	page := &payment.SessionPage{
		Sessions: make([]payment.Session, 0, len(list.Data)),
		HasMore:  list.HasMore,
	}
	for i := range list.Data {
		page.Sessions = append(page.Sessions, list.Data[i].toSession())
	}
	if list.HasMore && len(list.Data) > 0 {
		page.Cursor = list.Data[len(list.Data)-1].ID
	}
	return page
}

// PaymentReference resolves the payment intent tied to a session; it
// is the reference a refund requires.
func (a *Adapter) PaymentReference(ctx context.Context, sessionID string) (string, error) {
	session, err := a.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session.PaymentRef == "" {
		return "", fmt.Errorf("session %s has no payment intent", sessionID)
	}
	return session.PaymentRef, nil
}

func (a *Adapter) RefundPayment(ctx context.Context, reference string) bool {
	form := url.Values{}
	form.Set("payment_intent", reference)

	if err := a.do(ctx, http.MethodPost, "/v1/refunds", form, nil); err != nil {
		zlog.Error().Err(err).Str("code", "provider_refund_failed").Str("payment_intent", reference).
			Msg("stripe refund rejected")
		return false
	}
	return true
}

func (a *Adapter) SetupWebhook(ctx context.Context, endpointURL string) error {
	form := url.Values{}
	form.Set("url", endpointURL)
	form.Add("enabled_events[]", "checkout.session.completed")
	form.Add("enabled_events[]", "checkout.session.expired")

	if err := a.do(ctx, http.MethodPost, "/v1/webhook_endpoints", form, nil); err != nil {
		return fmt.Errorf("register webhook endpoint: %w", err)
	}
	return nil
}
