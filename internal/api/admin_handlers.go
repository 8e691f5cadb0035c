package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/example/storefront/internal/catalog"
	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/inventory"
	"github.com/example/storefront/internal/payment"
	"github.com/example/storefront/internal/settlement"
)

const defaultReservationLimit = 100

// AdminHandlers serves the operator surface: product management,
// reservation inspection, provider session listing, refunds and
// webhook registration.
type AdminHandlers struct {
	catalog    *catalog.Service
	engine     *inventory.Engine
	store      store.Store
	reconciler *settlement.Reconciler
	providers  *payment.Registry
	staleAfter time.Duration
}

func NewAdminHandlers(cat *catalog.Service, engine *inventory.Engine, st store.Store, rec *settlement.Reconciler, providers *payment.Registry, staleAfter time.Duration) *AdminHandlers {
	return &AdminHandlers{
		catalog:    cat,
		engine:     engine,
		store:      st,
		reconciler: rec,
		providers:  providers,
		staleAfter: staleAfter,
	}
}

// Product Handlers

func (h *AdminHandlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	product, err := h.catalog.Create(r.Context(), in)
	if err != nil {
		h.respondProductError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

func (h *AdminHandlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/admin/products/")
	if id == "" {
		respondJSONError(w, "product id is required", http.StatusBadRequest)
		return
	}

	var in catalog.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	product, err := h.catalog.Update(r.Context(), id, in)
	if err != nil {
		h.respondProductError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (h *AdminHandlers) respondProductError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrProductNotFound):
		respondJSONError(w, "product not found", http.StatusNotFound)
	case errors.Is(err, store.ErrDuplicateSKU):
		respondJSONError(w, "sku already exists", http.StatusConflict)
	case errors.Is(err, catalog.ErrInvalidSKU),
		errors.Is(err, catalog.ErrInvalidName),
		errors.Is(err, catalog.ErrInvalidPrice),
		errors.Is(err, catalog.ErrInvalidStock):
		respondJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		zlog.Error().Err(err).Str("code", "product_write_failed").Msg("product write failed")
		respondJSONError(w, "failed to save product", http.StatusInternalServerError)
	}
}

// Reservation Handlers

// GetReservations sweeps stale holds first so the listing reflects
// reality rather than abandoned checkouts.
func (h *AdminHandlers) GetReservations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	swept, err := h.engine.SweepStale(ctx, h.staleAfter)
	if err != nil {
		zlog.Error().Err(err).Str("code", "sweep_failed").Msg("stale reservation sweep failed")
		respondJSONError(w, "failed to sweep reservations", http.StatusInternalServerError)
		return
	}

	limit := defaultReservationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	reservations, err := h.store.RecentReservations(ctx, limit)
	if err != nil {
		respondJSONError(w, "failed to list reservations", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"reservations": reservations,
		"swept":        swept,
	})
}

// Session Handlers

func (h *AdminHandlers) GetSessions(w http.ResponseWriter, r *http.Request) {
	provider, err := h.providers.Active()
	if err != nil {
		respondJSONError(w, "no payment provider configured", http.StatusServiceUnavailable)
		return
	}

	params := payment.ListParams{
		Limit:  20,
		Cursor: r.URL.Query().Get("cursor"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			params.Limit = parsed
		}
	}

	respondJSON(w, http.StatusOK, provider.ListSessions(r.Context(), params))
}

// Refund Handlers

type RefundRequest struct {
	SessionID string `json:"session_id"`
}

func (h *AdminHandlers) Refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		respondJSONError(w, "session_id is required", http.StatusBadRequest)
		return
	}

	count, err := h.reconciler.Refund(r.Context(), req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrNotConfigured):
			respondJSONError(w, "no payment provider configured", http.StatusServiceUnavailable)
		case errors.Is(err, payment.ErrSessionNotFound):
			respondJSONError(w, "session not found", http.StatusNotFound)
		case errors.Is(err, settlement.ErrRefundRejected):
			respondJSONError(w, "provider rejected the refund", http.StatusConflict)
		default:
			zlog.Error().Err(err).Str("session", req.SessionID).Str("code", "refund_failed").
				Msg("refund failed")
			respondJSONError(w, "refund failed", http.StatusInternalServerError)
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": req.SessionID,
		"restocked":  count,
	})
}

// Webhook registration

type SetupWebhookRequest struct {
	URL string `json:"url"`
}

func (h *AdminHandlers) SetupWebhook(w http.ResponseWriter, r *http.Request) {
	provider, err := h.providers.Active()
	if err != nil {
		respondJSONError(w, "no payment provider configured", http.StatusServiceUnavailable)
		return
	}

	var req SetupWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		respondJSONError(w, "url is required", http.StatusBadRequest)
		return
	}

	if err := provider.SetupWebhook(r.Context(), req.URL); err != nil {
		if errors.Is(err, payment.ErrSetupNotSupported) {
			respondJSONError(w, "provider requires webhook registration through its dashboard", http.StatusNotImplemented)
			return
		}
		zlog.Error().Err(err).Str("provider", provider.Name()).Str("code", "webhook_setup_failed").
			Msg("webhook registration failed")
		respondJSONError(w, "webhook registration failed", http.StatusBadGateway)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "registered", "url": req.URL})
}
