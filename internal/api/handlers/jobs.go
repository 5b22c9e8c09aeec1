package handlers

import (
	"context"
	"net/http"

	"github.com/ndewijer/portfolio-valuation/internal/api/response"
	"github.com/ndewijer/portfolio-valuation/internal/model"
)

// SnapshotRunner runs the price snapshot job once.
type SnapshotRunner interface {
	Run(ctx context.Context) (model.SnapshotJobMetrics, error)
}

// JobHandler triggers background jobs on demand.
type JobHandler struct {
	snapshot SnapshotRunner
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(snapshot SnapshotRunner) *JobHandler {
	return &JobHandler{snapshot: snapshot}
}

// RunSnapshot runs the snapshot job and waits for its report. The run is
// not cancelled when the client disconnects.
//
// Endpoint: POST /api/jobs/snapshot
// Response: 200 OK with model.SnapshotJobMetrics
// Error: 409 Conflict if a run is already in progress
// Error: 500 Internal Server Error if the working set cannot be built
func (h *JobHandler) RunSnapshot(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.snapshot.Run(context.WithoutCancel(r.Context()))
	if err != nil {
		respondServiceError(w, "snapshot job failed", err)
		return
	}
	if metrics.Errors == nil {
		metrics.Errors = []model.InstrumentError{}
	}
	response.RespondJSON(w, http.StatusOK, metrics)
}
