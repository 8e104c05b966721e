package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/avrach/go_storefront/internal/cartsync"
	"github.com/avrach/go_storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type CartHandler struct {
	sync    *cartsync.Service
	timeout time.Duration
}

func NewCartHandler(sync *cartsync.Service, timeout time.Duration) *CartHandler {
	return &CartHandler{
		sync:    sync,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ServiceID     string `json:"service_id"`
	OptionID      string `json:"option_id,omitempty"`
	QuantityDelta int    `json:"quantity_delta"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	cart, err := h.sync.GetCart(ctx, principal)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// AddItem requires an Idempotency-Key header: the coordinator generates
// one per send, and a retry reusing it must not double-apply.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ServiceID == "" {
		respondError(w, http.StatusBadRequest, "invalid_service_id", "service_id is required")
		return
	}
	if req.QuantityDelta == 0 || req.QuantityDelta > 99 || req.QuantityDelta < -99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity_delta must be between -99 and 99 and not zero")
		return
	}

	intent := domain.NewAddIntent(req.ServiceID, req.OptionID, req.QuantityDelta)
	cart, err := h.sync.Mutate(ctx, principal, intent, r.Header.Get("Idempotency-Key"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, cart)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	itemID := chi.URLParam(r, "itemID")
	if itemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item id is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity < 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 0 and 99")
		return
	}

	intent := domain.NewSetQuantityIntent(itemID, req.Quantity)
	cart, err := h.sync.Mutate(ctx, principal, intent, idempotencyKeyOrNew(r))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	itemID := chi.URLParam(r, "itemID")
	if itemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item id is required")
		return
	}

	intent := domain.NewRemoveIntent(itemID)
	cart, err := h.sync.Mutate(ctx, principal, intent, idempotencyKeyOrNew(r))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	if err := h.sync.ClearCart(ctx, principal); err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, &domain.Cart{OwnerID: principal.UserID, Items: []domain.CartItem{}})
}

// idempotencyKeyOrNew keeps single-shot operations working without a
// client-provided key; only POST /cart demands one.
func idempotencyKeyOrNew(r *http.Request) string {
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		return key
	}
	return uuid.NewString()
}
