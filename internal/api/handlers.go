package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	zlog "github.com/rs/zerolog/log"

	"github.com/example/storefront/internal/catalog"
	"github.com/example/storefront/internal/checkout"
	"github.com/example/storefront/internal/inventory"
	"github.com/example/storefront/internal/payment"
	"github.com/example/storefront/internal/settlement"
)

type Handlers struct {
	catalog      *catalog.Service
	orchestrator *checkout.Orchestrator
	reconciler   *settlement.Reconciler
	providers    *payment.Registry
}

func NewHandlers(cat *catalog.Service, orch *checkout.Orchestrator, rec *settlement.Reconciler, providers *payment.Registry) *Handlers {
	return &Handlers{
		catalog:      cat,
		orchestrator: orch,
		reconciler:   rec,
		providers:    providers,
	}
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Storefront Handlers

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	listings, err := h.catalog.List(r.Context())
	if err != nil {
		zlog.Error().Err(err).Str("code", "catalog_list_failed").Msg("failed to list products")
		respondJSONError(w, "failed to list products", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"products": listings})
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.orchestrator.Checkout(r.Context(), req)
	if err != nil {
		h.respondCheckoutError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *Handlers) respondCheckoutError(w http.ResponseWriter, err error) {
	var invalid *checkout.InvalidCartError
	var insufficient *inventory.InsufficientStockError
	var providerErr *checkout.ProviderError

	switch {
	case errors.As(err, &insufficient):
		respondJSON(w, http.StatusConflict, map[string]any{
			"error": "insufficient stock",
			"details": []map[string]any{
				{"sku": insufficient.SKU, "requested": insufficient.Requested},
			},
		})
	case errors.As(err, &invalid):
		respondJSONError(w, invalid.Error(), http.StatusBadRequest)
	case errors.Is(err, checkout.ErrEmptyCart), errors.Is(err, inventory.ErrInvalidQuantity):
		respondJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, payment.ErrNotConfigured):
		respondJSONError(w, "checkout is not available", http.StatusServiceUnavailable)
	case errors.As(err, &providerErr):
		respondJSONError(w, "payment provider unavailable", http.StatusBadGateway)
	default:
		zlog.Error().Err(err).Str("code", "checkout_failed").Msg("checkout failed")
		respondJSONError(w, "checkout failed", http.StatusInternalServerError)
	}
}

// Webhook receives payment provider callbacks. The signature is
// verified over the raw body before anything else happens; an
// unverifiable request changes no state.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	provider, err := h.providers.Active()
	if err != nil {
		respondJSONError(w, "no payment provider configured", http.StatusServiceUnavailable)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		respondJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	event, err := provider.VerifyWebhook(payload, r.Header.Get(provider.SignatureHeader()))
	if err != nil {
		zlog.Warn().Err(err).Str("provider", provider.Name()).Str("code", "webhook_rejected").
			Msg("webhook signature verification failed")
		respondJSONError(w, "signature verification failed", http.StatusUnauthorized)
		return
	}

	if err := h.reconciler.HandleEvent(r.Context(), event); err != nil {
		zlog.Error().Err(err).Str("session", event.SessionID).Str("code", "webhook_reconcile_failed").
			Msg("failed to reconcile webhook event")
		respondJSONError(w, "failed to process event", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
