package sweeper

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coworking/internal/pkg/response"
)

type Handler struct {
	sweeper *Sweeper
}

func NewHandler(s *Sweeper) *Handler {
	return &Handler{sweeper: s}
}

// RegisterRoutes mounts the manual sweep trigger. Internal token only.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sweep", h.Sweep)
}

func (h *Handler) Sweep(c *gin.Context) {
	res, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		response.ErrorWithDetails(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Sweep could not list pending work", res)
		return
	}
	response.Success(c, http.StatusOK, res)
}
