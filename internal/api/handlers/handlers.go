package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dvloznov/piggyflow/internal/api/middleware"
	"github.com/dvloznov/piggyflow/internal/domain"
	"github.com/dvloznov/piggyflow/internal/ledger"
	"github.com/dvloznov/piggyflow/internal/logger"
	"github.com/dvloznov/piggyflow/internal/store"
)

// Ledger is the service surface used by the transaction, category and
// summary handlers. *ledger.Service implements it.
type Ledger interface {
	Record(ctx context.Context, in domain.NewTransaction) (domain.Transaction, error)
	Edit(ctx context.Context, kind domain.Kind, id int64, edit domain.TransactionEdit) (domain.Transaction, error)
	Remove(ctx context.Context, kind domain.Kind, id int64) error
	Get(ctx context.Context, kind domain.Kind, id int64) (domain.Transaction, error)
	List(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error)
	Categories(ctx context.Context, kind domain.Kind) ([]domain.Category, error)
	CreateCategory(ctx context.Context, in domain.NewCategory) (domain.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	Summary(ctx context.Context, p domain.Period) (domain.Summary, error)
}

// Dashboard serves the cached current-month view. *ledger.Watcher implements it.
type Dashboard interface {
	View(ctx context.Context) (ledger.View, error)
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "Validation failed",
			"fields": ve.Errors,
		})
	case errors.Is(err, domain.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, store.ErrStoreUnavailable):
		w.Header().Set("Retry-After", "1")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Store is being backed up or restored, try again shortly")
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg(msg)
		middleware.WriteError(w, http.StatusInternalServerError, msg)
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func pathKind(r *http.Request) (domain.Kind, error) {
	return domain.ParseKind(r.PathValue("kind"))
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}

func requestLogger(r *http.Request) *zerolog.Logger {
	log := logger.FromContext(r.Context())
	return &log
}
