package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/avrach/go_storefront/internal/assembler"
	"github.com/avrach/go_storefront/internal/cartsync"
	"github.com/avrach/go_storefront/internal/repository"
	"github.com/avrach/go_storefront/internal/statemachine"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleDomainError converts typed domain failures to HTTP statuses:
// validation 400, missing resources 404, lost races and illegal
// transitions 409, stale/unavailable services 422, timeouts 504.
func handleDomainError(w http.ResponseWriter, err error) {
	var stale *assembler.StaleCartItemError

	switch {
	case errors.Is(err, cartsync.ErrInvalidQuantity),
		errors.Is(err, cartsync.ErrUnknownIntent),
		errors.Is(err, cartsync.ErrIdempotencyKeyRequired),
		errors.Is(err, cartsync.ErrServiceNotFound),
		errors.Is(err, assembler.ErrInvalidPaymentMethod),
		errors.Is(err, assembler.ErrReceiptRequired),
		errors.Is(err, assembler.ErrEmptyCart),
		errors.Is(err, statemachine.ErrReceiptRefRequired),
		errors.Is(err, statemachine.ErrAdminNotesRequired),
		errors.Is(err, statemachine.ErrNotBankTransfer),
		errors.Is(err, statemachine.ErrNotCardPayment):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())

	case errors.Is(err, repository.ErrCartNotFound),
		errors.Is(err, repository.ErrItemNotFound),
		errors.Is(err, repository.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, repository.ErrStaleOrderState),
		errors.Is(err, statemachine.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "conflict", err.Error())

	case errors.As(err, &stale):
		resp := ErrorResponse{
			Error:   "cart contains an item that is no longer orderable",
			Code:    "stale_cart_item",
			Details: stale.Error(),
		}
		respondJSON(w, http.StatusUnprocessableEntity, resp)

	case errors.Is(err, cartsync.ErrServiceUnavailable):
		respondError(w, http.StatusUnprocessableEntity, "service_unavailable", err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")

	default:
		log.Printf("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
