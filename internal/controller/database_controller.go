package controller

import (
	"net/http"

	"github.com/cassiomorais/storefront/internal/service"
	"github.com/go-chi/chi/v5"
)

// DatabaseController exposes the aggregator's read-only collections.
type DatabaseController struct {
	database *service.DatabaseService
}

func NewDatabaseController(database *service.DatabaseService) *DatabaseController {
	return &DatabaseController{database: database}
}

func (h *DatabaseController) Collections(w http.ResponseWriter, r *http.Request) {
	names := h.database.Collections(r.Context())
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (h *DatabaseController) Collection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.database.Collection(r.Context(), chi.URLParam(r, "collection")))
}

func (h *DatabaseController) Record(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	rec, err := h.database.Record(r.Context(), chi.URLParam(r, "collection"), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec.Data)
}
