package availability

import "coworking/internal/domain"

type GridResponse struct {
	SpaceID int64             `json:"space_id"`
	Date    string            `json:"date"`
	Slots   []domain.SlotView `json:"slots"`
}
