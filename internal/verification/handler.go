package verification

import (
	"github.com/gin-gonic/gin"

	"github.com/akashbiswas0/Avenger/pkg/response"
)

// Handler exposes the cron trigger endpoint. The route is protected by
// middleware.CronAuth; the scheduler only needs the shared secret.
type Handler struct {
	runner *Runner
}

// NewHandler creates a verification handler.
func NewHandler(runner *Runner) *Handler {
	return &Handler{runner: runner}
}

// Trigger handles POST /cron/verify-rentals. It runs a full verification
// pass synchronously and reports the counts.
func (h *Handler) Trigger(c *gin.Context) {
	sum, err := h.runner.Run(c.Request.Context())
	if err != nil {
		response.Internal(c, "verification run failed")
		return
	}
	response.OK(c, sum)
}
