package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"coworking/internal/domain"
)

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// DomainError maps core errors onto the API error envelope. Unknown errors
// are attached to the gin context for the request logger.
func DomainError(c *gin.Context, err error) {
	var conflict *domain.SlotConflictError
	switch {
	case errors.As(err, &conflict):
		ErrorWithDetails(c, http.StatusConflict, "SLOT_UNAVAILABLE", "Someone else is booking this slot", gin.H{
			"space_id":   conflict.SpaceID,
			"date":       conflict.Date,
			"slot_index": conflict.SlotIndex,
			"reason":     conflict.Reason,
		})
	case errors.Is(err, domain.ErrSlotUnavailable):
		Error(c, http.StatusConflict, "SLOT_UNAVAILABLE", "Someone else is booking this slot")
	case errors.Is(err, domain.ErrOverlap):
		Error(c, http.StatusConflict, "BOOKING_CONFLICT", "The time range overlaps a confirmed booking")
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		Error(c, http.StatusConflict, "INVALID_STATUS", err.Error())
	case errors.Is(err, domain.ErrInvalidRange), errors.Is(err, domain.ErrInvalidSlot):
		Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, domain.ErrSpaceNotFound):
		Error(c, http.StatusNotFound, "NOT_FOUND", "Space not found")
	case errors.Is(err, domain.ErrReservationNotFound):
		Error(c, http.StatusNotFound, "NOT_FOUND", "Reservation not found")
	case errors.Is(err, domain.ErrForbidden):
		Error(c, http.StatusForbidden, "FORBIDDEN", "You don't own this resource")
	case errors.Is(err, domain.ErrStoreUnavailable):
		_ = c.Error(err)
		Error(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Temporarily unavailable, please retry")
	default:
		_ = c.Error(err)
		Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
