package reservation

import "time"

type CreateReservationRequest struct {
	SpaceID int64     `json:"space_id" binding:"required,gt=0"`
	StartAt time.Time `json:"start_at" binding:"required"`
	EndAt   time.Time `json:"end_at" binding:"required,gtfield=StartAt"`
}

type CancelRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

type ListQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}
