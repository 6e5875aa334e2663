package handlers

import (
	"net/http"

	"github.com/dvloznov/piggyflow/internal/api/middleware"
	"github.com/dvloznov/piggyflow/internal/domain"
)

// CategoriesHandler handles category-related endpoints.
type CategoriesHandler struct {
	svc Ledger
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(svc Ledger) *CategoriesHandler {
	return &CategoriesHandler{svc: svc}
}

// ListCategories handles GET /api/categories?kind=
func (h *CategoriesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	var kind domain.Kind
	if s := r.URL.Query().Get("kind"); s != "" {
		k, err := domain.ParseKind(s)
		if err != nil {
			writeServiceError(w, r, err, "")
			return
		}
		kind = k
	}

	categories, err := h.svc.Categories(r.Context(), kind)
	if err != nil {
		writeServiceError(w, r, err, "Failed to list categories")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// CreateCategory handles POST /api/categories
func (h *CategoriesHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Emoji string `json:"emoji"`
	}
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cat, err := h.svc.CreateCategory(r.Context(), domain.NewCategory{Name: req.Name, Emoji: req.Emoji})
	if err != nil {
		writeServiceError(w, r, err, "Failed to create category")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, cat)
}

// DeleteCategory handles DELETE /api/categories/{id}
func (h *CategoriesHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	if err := h.svc.DeleteCategory(r.Context(), id); err != nil {
		writeServiceError(w, r, err, "Failed to delete category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
