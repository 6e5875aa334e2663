// Package api assembles the HTTP surface of piggyflowd.
package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/piggyflow/internal/api/handlers"
	"github.com/dvloznov/piggyflow/internal/api/middleware"
	"github.com/dvloznov/piggyflow/internal/jobs"
)

// Deps are the collaborators behind the routes.
type Deps struct {
	Ledger    handlers.Ledger
	Dashboard handlers.Dashboard
	Backups   handlers.Backups
	Publisher jobs.Publisher
	JobStore  jobs.JobStore
	Log       zerolog.Logger
}

// NewRouter registers every route and wraps the mux in the middleware stack.
func NewRouter(d Deps) http.Handler {
	transactions := handlers.NewTransactionsHandler(d.Ledger)
	categories := handlers.NewCategoriesHandler(d.Ledger)
	summary := handlers.NewSummaryHandler(d.Ledger, d.Dashboard)
	backup := handlers.NewBackupHandler(d.Backups, d.Publisher)
	jobsHandler := handlers.NewJobsHandler(d.JobStore)

	mux := http.NewServeMux()

	// Transactions endpoints
	mux.HandleFunc("GET /api/transactions", transactions.ListTransactions)
	mux.HandleFunc("POST /api/transactions", transactions.CreateTransaction)
	mux.HandleFunc("GET /api/transactions/{kind}/{id}", transactions.GetTransaction)
	mux.HandleFunc("PUT /api/transactions/{kind}/{id}", transactions.UpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{kind}/{id}", transactions.DeleteTransaction)

	// Categories endpoints
	mux.HandleFunc("GET /api/categories", categories.ListCategories)
	mux.HandleFunc("POST /api/categories", categories.CreateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", categories.DeleteCategory)

	mux.HandleFunc("GET /api/summary", summary.GetSummary)

	// Backup endpoints
	mux.HandleFunc("GET /api/backup", backup.GetBackup)
	mux.HandleFunc("POST /api/backup", backup.StartBackup)
	mux.HandleFunc("POST /api/backup/restore", backup.StartRestore)
	mux.HandleFunc("DELETE /api/backup", backup.DeleteBackup)

	// Jobs endpoints
	mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", jobsHandler.GetJob)

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Chain(mux, d.Log)
}
