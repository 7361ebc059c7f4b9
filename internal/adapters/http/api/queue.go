package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/pkg/logger"
)

// QueueHandler serves the validation queue routes.
type QueueHandler struct {
	deps         Dependencies
	log          logger.Logger
	defaultLimit int
	maxLimit     int
}

// NewQueueHandler creates a queue handler.
func NewQueueHandler(deps Dependencies, log logger.Logger, defaultLimit, maxLimit int) *QueueHandler {
	return &QueueHandler{deps: deps, log: log, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

type approveRequest struct {
	Notes string `json:"notes"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

type reassignRequest struct {
	Target string `json:"target"`
}

type claimResponse struct {
	LeaseExpiry *time.Time      `json:"lease_expiry"`
	Item        model.QueueItem `json:"item"`
}

// HandleList handles GET /queue?status=&page=&limit=.
func (h *QueueHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_queue"
	q := r.URL.Query()

	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	limit, err := intParam(q.Get("limit"), h.defaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if limit > h.maxLimit {
		limit = h.maxLimit
	}

	result, err := h.deps.ListQueue(r.Context(), ActorFrom(r), q.Get("status"), page, limit)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleGet handles GET /queue/{id}.
func (h *QueueHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	item, err := h.deps.GetQueueItem(r.Context(), ActorFrom(r), r.PathValue("id"))
	if err != nil {
		fail(r.Context(), h.log, w, "api.get_queue_item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleClaim handles POST /queue/{id}/claim.
func (h *QueueHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	item, err := h.deps.Claim(r.Context(), ActorFrom(r), r.PathValue("id"))
	if err != nil {
		fail(r.Context(), h.log, w, "api.claim", err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{LeaseExpiry: item.ClaimedUntil, Item: item})
}

// HandleApprove handles POST /queue/{id}/approve.
func (h *QueueHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	const op = "api.approve"
	var req approveRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	item, err := h.deps.Approve(r.Context(), ActorFrom(r), r.PathValue("id"), req.Notes)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleReject handles POST /queue/{id}/reject.
func (h *QueueHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	const op = "api.reject"
	var req rejectRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	item, err := h.deps.Reject(r.Context(), ActorFrom(r), r.PathValue("id"), req.Reason, req.Notes)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleReassign handles POST /queue/{id}/reassign.
func (h *QueueHandler) HandleReassign(w http.ResponseWriter, r *http.Request) {
	const op = "api.reassign"
	var req reassignRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	item, err := h.deps.Reassign(r.Context(), ActorFrom(r), r.PathValue("id"), req.Target)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid positive integer %q", raw)
	}
	return n, nil
}
