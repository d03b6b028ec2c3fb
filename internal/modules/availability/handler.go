package availability

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coworking/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes expects optional auth in front; user_id is 0 for anonymous callers.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/slots/:space_id/:date", h.GetSlots)
}

func (h *Handler) GetSlots(c *gin.Context) {
	spaceID, err := strconv.ParseInt(c.Param("space_id"), 10, 64)
	if err != nil || spaceID <= 0 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid space_id")
		return
	}
	date := c.Param("date")

	slots, err := h.service.ComputeStatus(c.Request.Context(), spaceID, date, c.GetInt64("user_id"))
	if err != nil {
		response.DomainError(c, err)
		return
	}

	response.Success(c, http.StatusOK, GridResponse{SpaceID: spaceID, Date: date, Slots: slots})
}
