package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/avrach/go_storefront/internal/assembler"
	"github.com/avrach/go_storefront/internal/domain"
	"github.com/avrach/go_storefront/internal/repository"
	"github.com/avrach/go_storefront/internal/statemachine"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrdersHandler struct {
	assembler *assembler.Assembler
	machine   *statemachine.Machine
	orders    repository.OrderRepository
	timeout   time.Duration
}

func NewOrdersHandler(asm *assembler.Assembler, machine *statemachine.Machine, orders repository.OrderRepository, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		assembler: asm,
		machine:   machine,
		orders:    orders,
		timeout:   timeout,
	}
}

type CreateOrderRequestDTO struct {
	Notes         string     `json:"notes,omitempty"`
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`
	PaymentMethod string     `json:"payment_method"`
	ReceiptRef    string     `json:"receipt_ref,omitempty"`
}

type AttachReceiptRequestDTO struct {
	ReceiptRef string `json:"receipt_ref"`
}

type DecisionRequestDTO struct {
	Action     string `json:"action"`
	AdminNotes string `json:"admin_notes,omitempty"`
}

type SetStatusRequestDTO struct {
	Status string `json:"status"`
}

// CreateOrder freezes the caller's cart into an order. Card orders are
// charged immediately; a decline still returns the created order, which
// stays PENDING with payment_status FAILED for retry.
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req CreateOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.assembler.Assemble(ctx, principal, assembler.Request{
		Notes:         req.Notes,
		ScheduledDate: req.ScheduledDate,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		ReceiptRef:    req.ReceiptRef,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	if order.PaymentMethod == domain.PaymentMethodCard {
		charged, chargeErr := h.machine.ChargeCard(ctx, principal, order.ID)
		if chargeErr != nil && !errors.Is(chargeErr, statemachine.ErrChargeDeclined) {
			// The order exists; surface it with its current state even
			// though the charge could not run.
			respondJSON(w, http.StatusCreated, order)
			return
		}
		order = charged
	}

	respondJSON(w, http.StatusCreated, order)
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var (
		orders []*domain.Order
		err    error
	)
	if principal.Admin {
		orders, err = h.orders.ListOrders(ctx)
	} else {
		orders, err = h.orders.ListOrdersByOwner(ctx, principal.UserID)
	}
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	order, err := h.machine.Get(ctx, principal, orderID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) AttachBankTransfer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req AttachReceiptRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.machine.AttachReceipt(ctx, principal, orderID, req.ReceiptRef)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// Decide drives the bank-transfer admin branch.
func (h *OrdersHandler) Decide(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	admin, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req DecisionRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	var (
		order *domain.Order
		err   error
	)
	switch req.Action {
	case "approve":
		order, err = h.machine.Approve(ctx, admin, orderID, req.AdminNotes)
	case "reject":
		order, err = h.machine.Reject(ctx, admin, orderID, req.AdminNotes)
	default:
		respondError(w, http.StatusBadRequest, "invalid_action", "action must be approve or reject")
		return
	}
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	admin, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req SetStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.machine.SetStatus(ctx, admin, orderID, domain.OrderStatus(req.Status))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order id must be a uuid")
		return uuid.Nil, false
	}
	return orderID, true
}
