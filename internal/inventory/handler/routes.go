package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/medsupply/medsupply-backend/pkg/permissions"
)

// Handlers groups the HTTP handlers of the inventory API
type Handlers struct {
	Import     *ImportHandler
	Lots       *LotHandler
	Categories *CategoryHandler
	Dashboard  *DashboardHandler
}

// Mount registers the API routes on r, relative to the API base path.
// Routes expect an authenticated user in the request context.
func (h Handlers) Mount(r chi.Router) {
	read := permissions.Require(permissions.InventoryRead)
	importer := permissions.Require(permissions.CatalogImport)

	// Catalog import sessions
	r.Route("/import/sessions", func(r chi.Router) {
		r.Use(importer)
		r.Get("/", h.Import.List)
		r.Post("/", h.Import.Begin)
		r.Get("/history", h.Import.History)
		r.Get("/{id}", h.Import.Get)
		r.Post("/{id}/commit", h.Import.Commit)
		r.Delete("/{id}", h.Import.Delete)
	})

	r.Route("/inventory", func(r chi.Router) {
		// Lot routes
		r.Route("/lots", func(r chi.Router) {
			r.With(read).Get("/", h.Lots.List)
			r.With(read).Get("/{id}", h.Lots.Get)
			r.With(read).Get("/{id}/adjustments", h.Lots.Adjustments)
			r.With(permissions.Require(permissions.InventoryAdjust)).Post("/{id}/adjust", h.Lots.AdjustStock)
		})

		// Expiry category routes
		r.Route("/expiry-categories", func(r chi.Router) {
			manage := permissions.Require(permissions.ExpiryManage)
			r.With(read).Get("/", h.Categories.List)
			r.With(read).Get("/{id}", h.Categories.Get)
			r.With(manage).Post("/", h.Categories.Create)
			r.With(manage).Put("/{id}", h.Categories.Update)
			r.With(manage).Post("/{id}/deactivate", h.Categories.Deactivate)
		})

		// Dashboard
		r.With(read).Get("/dashboard", h.Dashboard.Get)
	})
}
