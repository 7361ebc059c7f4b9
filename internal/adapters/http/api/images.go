package api

import (
	"net/http"

	"github.com/okian/finishline/pkg/logger"
)

// ImageHandler serves image recognition summaries.
type ImageHandler struct {
	deps Dependencies
	log  logger.Logger
}

// NewImageHandler creates an image handler.
func NewImageHandler(deps Dependencies, log logger.Logger) *ImageHandler {
	return &ImageHandler{deps: deps, log: log}
}

// HandleGet handles GET /images/{id}.
func (h *ImageHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	img, err := h.deps.GetImage(r.Context(), ActorFrom(r), r.PathValue("id"))
	if err != nil {
		fail(r.Context(), h.log, w, "api.get_image", err)
		return
	}
	writeJSON(w, http.StatusOK, img)
}
