package api

import (
	"errors"
	"net/http"

	service "github.com/okian/finishline/internal/app"
	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/pkg/logger"
)

// JobsHandler accepts fusion jobs.
type JobsHandler struct {
	deps Dependencies
	log  logger.Logger
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(deps Dependencies, log logger.Logger) *JobsHandler {
	return &JobsHandler{deps: deps, log: log}
}

// jobRequest mirrors the OpenAPI schema for POST /fusion/jobs.
type jobRequest struct {
	JobID      string `json:"job_id"`
	ImageID    string `json:"image_id"`
	EventID    string `json:"event_id"`
	ImageRef   string `json:"image_ref"`
	Collection string `json:"collection"`
}

// HandleSubmit handles POST /fusion/jobs. Accepted jobs answer 202; a
// redelivered job id answers 200 with duplicate set.
func (h *JobsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_job"
	var req jobRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	job, err := h.deps.SubmitJob(r.Context(), ActorFrom(r), model.FusionJob{
		JobID:      req.JobID,
		ImageID:    req.ImageID,
		EventID:    req.EventID,
		ImageRef:   req.ImageRef,
		Collection: req.Collection,
	})
	switch {
	case errors.Is(err, service.ErrDuplicateJob):
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true, JobID: job.JobID})
	case err != nil:
		fail(r.Context(), h.log, w, op, err)
	default:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", JobID: job.JobID})
	}
}
