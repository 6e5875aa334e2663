package handlers

import (
	"net/http"
	"strconv"

	"github.com/dvloznov/piggyflow/internal/api/middleware"
	"github.com/dvloznov/piggyflow/internal/domain"
)

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	svc Ledger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(svc Ledger) *TransactionsHandler {
	return &TransactionsHandler{svc: svc}
}

type transactionRequest struct {
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	Note        string `json:"note"`
	Date        string `json:"date"`
	CategoryKey string `json:"category_key"`
	CategoryID  int64  `json:"category_id"`
}

type editRequest struct {
	Amount string `json:"amount"`
	Note   string `json:"note"`
	Date   string `json:"date"`
}

// parseAmountAndDate collects field errors for both values.
func parseAmountAndDate(amount, date string) (domain.TransactionEdit, []domain.FieldError) {
	var edit domain.TransactionEdit
	var errs []domain.FieldError
	a, err := domain.ParseAmount(amount)
	if ve, ok := err.(*domain.ValidationError); ok {
		errs = append(errs, ve.Errors...)
	}
	d, err := domain.ParseDate(date)
	if ve, ok := err.(*domain.ValidationError); ok {
		errs = append(errs, ve.Errors...)
	}
	edit.Amount, edit.Date = a, d
	return edit, errs
}

// ListTransactions handles GET /api/transactions?kind=&from=&to=&limit=
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f domain.TransactionFilter
	var errs []domain.FieldError

	if s := q.Get("kind"); s != "" {
		k, err := domain.ParseKind(s)
		if err != nil {
			errs = append(errs, domain.FieldError{Field: "kind", Message: "must be expense or income"})
		}
		f.Kind = k
	}
	if s := q.Get("from"); s != "" {
		d, err := domain.ParseDate(s)
		if err != nil {
			errs = append(errs, domain.FieldError{Field: "from", Message: "want YYYY-MM-DD"})
		}
		f.From = d
	}
	if s := q.Get("to"); s != "" {
		d, err := domain.ParseDate(s)
		if err != nil {
			errs = append(errs, domain.FieldError{Field: "to", Message: "want YYYY-MM-DD"})
		}
		f.To = d
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			errs = append(errs, domain.FieldError{Field: "limit", Message: "must be a non-negative integer"})
		}
		f.Limit = n
	}
	if len(errs) > 0 {
		writeServiceError(w, r, domain.NewValidationErrors(errs), "")
		return
	}

	txs, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err, "Failed to list transactions")
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// CreateTransaction handles POST /api/transactions
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	in := domain.NewTransaction{
		Note:     req.Note,
		Category: domain.CategoryRef{Key: req.CategoryKey, ID: req.CategoryID},
	}
	vals, errs := parseAmountAndDate(req.Amount, req.Date)
	in.Amount, in.Date = vals.Amount, vals.Date
	kind, err := domain.ParseKind(req.Kind)
	if ve, ok := err.(*domain.ValidationError); ok {
		errs = append(errs, ve.Errors...)
	}
	in.Kind = kind
	if len(errs) > 0 {
		writeServiceError(w, r, domain.NewValidationErrors(errs), "")
		return
	}

	tx, err := h.svc.Record(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err, "Failed to record transaction")
		return
	}

	requestLogger(r).Info().Str("kind", string(tx.Kind)).Int64("id", tx.ID).Msg("Transaction recorded")
	middleware.WriteJSON(w, http.StatusCreated, tx)
}

// GetTransaction handles GET /api/transactions/{kind}/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}

	tx, err := h.svc.Get(r.Context(), kind, id)
	if err != nil {
		writeServiceError(w, r, err, "Failed to get transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tx)
}

// UpdateTransaction handles PUT /api/transactions/{kind}/{id}.
// Only amount, note and date can change.
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}

	var req editRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	edit, errs := parseAmountAndDate(req.Amount, req.Date)
	if len(errs) > 0 {
		writeServiceError(w, r, domain.NewValidationErrors(errs), "")
		return
	}
	edit.Note = req.Note

	tx, err := h.svc.Edit(r.Context(), kind, id, edit)
	if err != nil {
		writeServiceError(w, r, err, "Failed to update transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tx)
}

// DeleteTransaction handles DELETE /api/transactions/{kind}/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}

	if err := h.svc.Remove(r.Context(), kind, id); err != nil {
		writeServiceError(w, r, err, "Failed to delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TransactionsHandler) target(w http.ResponseWriter, r *http.Request) (domain.Kind, int64, bool) {
	kind, err := pathKind(r)
	if err != nil {
		writeServiceError(w, r, err, "")
		return "", 0, false
	}
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err, "")
		return "", 0, false
	}
	return kind, id, true
}
