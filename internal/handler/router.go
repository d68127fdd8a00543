package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/docflow-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса докфлоу.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/documents", h.UploadDocument)
		r.Post("/documents/bulk", h.UploadDocuments)
		r.Get("/documents", h.ListDocuments)
		r.Get("/documents/{documentID}", h.GetDocument)

		r.Get("/purchase-orders", h.ListPurchaseOrders)

		r.Post("/mock-ai-extract", h.MockRecognize)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
