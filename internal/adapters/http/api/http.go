// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/internal/domain/types"
	"github.com/okian/finishline/pkg/logger"
)

// Identity headers set by the authenticating proxy.
const (
	HeaderUser = "X-Auth-User"
	HeaderRole = "X-Auth-Role"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers.
type Dependencies interface {
	ListQueue(ctx context.Context, actor model.Actor, status string, page, limit int) (types.Page[model.QueueItem], error)
	GetQueueItem(ctx context.Context, actor model.Actor, id string) (model.QueueItem, error)
	Claim(ctx context.Context, actor model.Actor, id string) (model.QueueItem, error)
	Approve(ctx context.Context, actor model.Actor, id, notes string) (model.QueueItem, error)
	Reject(ctx context.Context, actor model.Actor, id, reason, notes string) (model.QueueItem, error)
	Reassign(ctx context.Context, actor model.Actor, id, target string) (model.QueueItem, error)
	GetImage(ctx context.Context, actor model.Actor, imageID string) (model.ImageRecord, error)

	// SubmitJob queues a fusion job.
	SubmitJob(ctx context.Context, actor model.Actor, job model.FusionJob) (model.FusionJob, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	queueHandler  *QueueHandler
	imageHandler  *ImageHandler
	jobsHandler   *JobsHandler
	stream        http.Handler
	log           logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		queueHandler:  NewQueueHandler(deps, o.log, o.defaultLimit, o.maxLimit),
		imageHandler:  NewImageHandler(deps, o.log),
		jobsHandler:   NewJobsHandler(deps, o.log),
		stream:        o.stream,
		log:           o.log,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /queue", MetricsMiddleware(s.queueHandler.HandleList, "queue"))
	mux.HandleFunc("GET /queue/{id}", MetricsMiddleware(s.queueHandler.HandleGet, "queue_item"))
	mux.HandleFunc("POST /queue/{id}/claim", MetricsMiddleware(s.queueHandler.HandleClaim, "queue_claim"))
	mux.HandleFunc("POST /queue/{id}/approve", MetricsMiddleware(s.queueHandler.HandleApprove, "queue_approve"))
	mux.HandleFunc("POST /queue/{id}/reject", MetricsMiddleware(s.queueHandler.HandleReject, "queue_reject"))
	mux.HandleFunc("POST /queue/{id}/reassign", MetricsMiddleware(s.queueHandler.HandleReassign, "queue_reassign"))

	mux.HandleFunc("GET /images/{id}", MetricsMiddleware(s.imageHandler.HandleGet, "image"))
	mux.HandleFunc("POST /fusion/jobs", MetricsMiddleware(s.jobsHandler.HandleSubmit, "fusion_jobs"))

	if s.stream != nil {
		mux.Handle("GET /ws/queue", RequireRole(model.RoleViewer, s.stream))
	}
}

// ActorFrom reads the caller identity from the proxy headers. A missing user
// yields an anonymous actor.
func ActorFrom(r *http.Request) model.Actor {
	return model.Actor{
		ID:   strings.TrimSpace(r.Header.Get(HeaderUser)),
		Role: model.ParseRole(r.Header.Get(HeaderRole)),
	}
}

// RequireRole rejects callers below min before next runs.
func RequireRole(min model.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := ActorFrom(r)
		switch {
		case !actor.Authenticated():
			writeError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		case !actor.Can(min):
			writeError(w, http.StatusForbidden, "forbidden", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	JobID     string `json:"job_id,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail maps err to a response. Server errors are logged.
func fail(ctx context.Context, log logger.Logger, w http.ResponseWriter, op string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
	}
	writeError(w, status, code, Wrap(op, err))
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, op string, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}
