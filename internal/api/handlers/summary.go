package handlers

import (
	"net/http"

	"github.com/dvloznov/piggyflow/internal/api/middleware"
	"github.com/dvloznov/piggyflow/internal/domain"
)

// SummaryHandler serves the statistics view.
type SummaryHandler struct {
	svc       Ledger
	dashboard Dashboard
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(svc Ledger, dashboard Dashboard) *SummaryHandler {
	return &SummaryHandler{svc: svc, dashboard: dashboard}
}

// GetSummary handles GET /api/summary. Without parameters it returns the
// cached dashboard for the current month; month=YYYY-MM or from/to
// compute an ad hoc summary.
func (h *SummaryHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	month, from, to := q.Get("month"), q.Get("from"), q.Get("to")

	if month == "" && from == "" && to == "" {
		view, err := h.dashboard.View(r.Context())
		if err != nil {
			writeServiceError(w, r, err, "Failed to load summary")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, view)
		return
	}

	var p domain.Period
	var err error
	switch {
	case month != "":
		p, err = domain.MonthPeriod(month)
	default:
		if from != "" {
			if p.From, err = domain.ParseDate(from); err != nil {
				break
			}
		}
		if to != "" {
			p.To, err = domain.ParseDate(to)
		}
		if err == nil && p.From.IsValid() && p.To.IsValid() && p.To.Before(p.From) {
			err = domain.NewValidationError("to", "must not be before from")
		}
	}
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	s, err := h.svc.Summary(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, err, "Failed to compute summary")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"summary": s,
	})
}
