package model

import "time"

type PromotionType string

const (
	PromotionTypeFlat       PromotionType = "FLAT"
	PromotionTypePercentage PromotionType = "PERCENTAGE"
)

func (t PromotionType) IsValid() bool {
	switch t {
	case PromotionTypeFlat, PromotionTypePercentage:
		return true
	}
	return false
}

// Promotion 活動促銷碼。MaxUsage 只做紀錄，不在交易流程中扣減
type Promotion struct {
	ID        int64         `json:"id" db:"id"`
	EventID   int64         `json:"event_id" db:"event_id"`
	Code      string        `json:"code" db:"code"`
	Type      PromotionType `json:"type" db:"type"`
	Value     int64         `json:"value" db:"value"`
	StartDate time.Time     `json:"start_date" db:"start_date"`
	EndDate   time.Time     `json:"end_date" db:"end_date"`
	MaxUsage  int           `json:"max_usage" db:"max_usage"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// IsActiveAt 檢查 now 是否落在 [StartDate, EndDate]
func (p *Promotion) IsActiveAt(now time.Time) bool {
	return !now.Before(p.StartDate) && !now.After(p.EndDate)
}
