package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(cart *CartHandler, orders *OrdersHandler, services *ServicesHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(RequestIDMiddleware)
	r.Use(HeaderAuthMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/services", services.ListServices)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cart.GetCart)
			r.Post("/", cart.AddItem)
			r.Delete("/", cart.ClearCart)
			r.Put("/items/{itemID}", cart.UpdateQuantity)
			r.Delete("/items/{itemID}", cart.RemoveItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orders.ListOrders)
			r.Post("/", orders.CreateOrder)
			r.Get("/{orderID}", orders.GetOrder)
			r.Post("/{orderID}/bank-transfer", orders.AttachBankTransfer)
			r.Post("/{orderID}/approve", orders.Decide)
			r.Post("/{orderID}/status", orders.SetStatus)
		})
	})

	return r
}
