package http

import (
	"context"
	"net/http"
	"time"

	"github.com/avrach/go_storefront/internal/domain"
	"github.com/avrach/go_storefront/internal/repository"
)

type ServicesHandler struct {
	catalog repository.CatalogRepository
	timeout time.Duration
}

func NewServicesHandler(catalog repository.CatalogRepository, timeout time.Duration) *ServicesHandler {
	return &ServicesHandler{
		catalog: catalog,
		timeout: timeout,
	}
}

func (h *ServicesHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	services, err := h.catalog.ListServices(ctx)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if services == nil {
		services = []*domain.Service{}
	}
	respondJSON(w, http.StatusOK, services)
}
