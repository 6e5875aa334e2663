package handlers

import (
	"context"
	"net/http"

	"github.com/dvloznov/piggyflow/internal/api/middleware"
	"github.com/dvloznov/piggyflow/internal/jobs"
	"github.com/dvloznov/piggyflow/internal/store"
)

// Backups exposes coordinator state. *store.Coordinator implements it.
type Backups interface {
	Status() store.Status
	Remote() store.RemoteInfo
	RefreshRemote(ctx context.Context) (store.RemoteInfo, error)
}

// BackupHandler handles backup, restore and remote delete.
type BackupHandler struct {
	backups   Backups
	publisher jobs.Publisher
}

// NewBackupHandler creates a new backup handler.
func NewBackupHandler(backups Backups, publisher jobs.Publisher) *BackupHandler {
	return &BackupHandler{backups: backups, publisher: publisher}
}

// GetBackup handles GET /api/backup. refresh=true stats the remote first.
func (h *BackupHandler) GetBackup(w http.ResponseWriter, r *http.Request) {
	remote := h.backups.Remote()
	if r.URL.Query().Get("refresh") == "true" {
		info, err := h.backups.RefreshRemote(r.Context())
		if err != nil {
			requestLogger(r).Warn().Err(err).Msg("Refreshing remote backup stat")
		}
		remote = info
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": h.backups.Status(),
		"remote": remote,
	})
}

// StartBackup handles POST /api/backup
func (h *BackupHandler) StartBackup(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, store.OpBackup)
}

// StartRestore handles POST /api/backup/restore
func (h *BackupHandler) StartRestore(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, store.OpRestore)
}

// DeleteBackup handles DELETE /api/backup
func (h *BackupHandler) DeleteBackup(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, store.OpDeleteBackup)
}

func (h *BackupHandler) enqueue(w http.ResponseWriter, r *http.Request, op store.Operation) {
	if st := h.backups.Status(); st.State == store.StateInProgress {
		middleware.WriteJSON(w, http.StatusConflict, map[string]interface{}{
			"error":  "A backup operation is already in progress",
			"status": st,
		})
		return
	}

	job := &jobs.BackupJob{Operation: op}
	if err := h.publisher.PublishBackup(r.Context(), job); err != nil {
		requestLogger(r).Error().Err(err).Str("operation", string(op)).Msg("Failed to enqueue backup job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	requestLogger(r).Info().Str("job_id", job.JobID).Str("operation", string(op)).Msg("Backup job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":    job.JobID,
		"operation": string(op),
		"status":    string(job.Status),
	})
}
