package model

import "time"

// Coupon 個人優惠券：單次使用，IsUsed 在建立交易時設為 true，只有回滾會還原
type Coupon struct {
	ID         int64     `json:"id" db:"id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	Code       string    `json:"code" db:"code"`
	Percentage int64     `json:"percentage" db:"percentage"`
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at"`
	IsUsed     bool      `json:"is_used" db:"is_used"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// IsRedeemableAt 未使用且尚未過期
func (c *Coupon) IsRedeemableAt(now time.Time) bool {
	return !c.IsUsed && now.Before(c.ExpiresAt)
}
