package model

import "time"

// Event 活動：主辦方 (organizer) 負責確認或拒絕該活動底下的交易
type Event struct {
	ID          int64     `json:"id" db:"id"`
	OrganizerID int64     `json:"organizer_id" db:"organizer_id"`
	Name        string    `json:"name" db:"name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// IsOrganizedBy 檢查是否為活動主辦方
func (e *Event) IsOrganizedBy(userID int64) bool {
	return e.OrganizerID == userID
}
