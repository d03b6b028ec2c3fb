package holds

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coworking/internal/domain"
	"coworking/internal/modules/availability"
	"coworking/internal/pkg/response"
)

type GridReader interface {
	ComputeStatus(ctx context.Context, spaceID int64, date string, viewerID int64) ([]domain.SlotView, error)
}

type Handler struct {
	service *Service
	grids   GridReader
}

func NewHandler(service *Service, grids GridReader) *Handler {
	return &Handler{service: service, grids: grids}
}

// RegisterRoutes expects JWT auth (and the hold rate limiter) in front.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/slots/:slot_key/hold", h.Hold)
	r.POST("/slots/:slot_key/release", h.Release)
	r.POST("/slot-ranges/hold", h.HoldRange)
	r.POST("/slot-ranges/release", h.ReleaseRange)
}

func (h *Handler) Hold(c *gin.Context) {
	slot, req, ok := bindSlot(c)
	if !ok {
		return
	}
	userID := c.GetInt64("user_id")

	held, err := h.service.Acquire(c.Request.Context(), req.SpaceID, req.Date, slot, userID)
	if err != nil {
		response.DomainError(c, err)
		return
	}
	h.respond(c, http.StatusOK, req.SpaceID, req.Date, HoldResponse{Holds: []domain.Hold{held}})
}

func (h *Handler) Release(c *gin.Context) {
	slot, req, ok := bindSlot(c)
	if !ok {
		return
	}
	userID := c.GetInt64("user_id")

	freed, err := h.service.ReleaseRange(c.Request.Context(), req.SpaceID, req.Date, slot, slot, userID)
	if err != nil {
		response.DomainError(c, err)
		return
	}
	h.respond(c, http.StatusOK, req.SpaceID, req.Date, HoldResponse{Released: freed})
}

func (h *Handler) HoldRange(c *gin.Context) {
	var req RangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	userID := c.GetInt64("user_id")

	held, err := h.service.AcquireRange(c.Request.Context(), req.SpaceID, req.Date, req.StartSlot, req.EndSlot, userID)
	if err != nil {
		response.DomainError(c, err)
		return
	}
	h.respond(c, http.StatusOK, req.SpaceID, req.Date, HoldResponse{Holds: held})
}

func (h *Handler) ReleaseRange(c *gin.Context) {
	var req RangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	userID := c.GetInt64("user_id")

	freed, err := h.service.ReleaseRange(c.Request.Context(), req.SpaceID, req.Date, req.StartSlot, req.EndSlot, userID)
	if err != nil {
		response.DomainError(c, err)
		return
	}
	h.respond(c, http.StatusOK, req.SpaceID, req.Date, HoldResponse{Released: freed})
}

func (h *Handler) respond(c *gin.Context, status int, spaceID int64, date string, body HoldResponse) {
	slots, err := h.grids.ComputeStatus(c.Request.Context(), spaceID, date, c.GetInt64("user_id"))
	if err != nil {
		response.DomainError(c, err)
		return
	}
	body.Grid = availability.GridResponse{SpaceID: spaceID, Date: date, Slots: slots}
	response.Success(c, status, body)
}

func bindSlot(c *gin.Context) (int, SlotRequest, bool) {
	var req SlotRequest
	slot, err := strconv.Atoi(c.Param("slot_key"))
	if err != nil || slot <= 0 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "slot_key must be a positive slot index")
		return 0, req, false
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return 0, req, false
	}
	return slot, req, true
}
