package reservation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coworking/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the owner-facing routes. JWT auth must run first.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/reservations", h.Create)
	rg.GET("/reservations", h.ListMine)
	rg.GET("/reservations/:id", h.Get)
	rg.POST("/reservations/:id/cancel", h.CancelOwn)
}

// RegisterInternalRoutes mounts the payment callbacks behind the internal token.
func (h *Handler) RegisterInternalRoutes(rg *gin.RouterGroup) {
	rg.POST("/reservations/:id/confirm", h.Confirm)
	rg.POST("/reservations/:id/cancel", h.Cancel)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	res, err := h.service.Create(c.Request.Context(), req.SpaceID, c.GetInt64("user_id"), req.StartAt, req.EndAt)
	if err != nil {
		response.DomainError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"reservation": res})
}

func (h *Handler) ListMine(c *gin.Context) {
	q := ListQuery{Limit: 20}
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid pagination")
		return
	}

	items, err := h.service.ListMine(c.Request.Context(), c.GetInt64("user_id"), q.Limit, q.Offset)
	if err != nil {
		response.DomainError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reservations": items})
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.service.Get(c.Request.Context(), c.Param("id"), c.GetInt64("user_id"))
	if err != nil {
		response.DomainError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reservation": res})
}

func (h *Handler) CancelOwn(c *gin.Context) {
	res, err := h.service.CancelOwn(c.Request.Context(), c.Param("id"), c.GetInt64("user_id"))
	if err != nil {
		response.DomainError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reservation": res})
}

func (h *Handler) Confirm(c *gin.Context) {
	res, err := h.service.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.DomainError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reservation": res})
}

// Cancel is the payment collaborator's failure callback.
func (h *Handler) Cancel(c *gin.Context) {
	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = ReasonPaymentFailed
	}

	res, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		response.DomainError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reservation": res})
}
