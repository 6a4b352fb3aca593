package model

import "time"

// PointBatch 點數批次：依 ExpiresAt 由早到晚 (FIFO) 扣抵
type PointBatch struct {
	ID         int64     `json:"id" db:"id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	Amount     int64     `json:"amount" db:"amount"` // 批次剩餘點數
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at"`
	IsRedeemed bool      `json:"is_redeemed" db:"is_redeemed"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// IsSpendableAt 未兌換完且尚未過期
func (b *PointBatch) IsSpendableAt(now time.Time) bool {
	return !b.IsRedeemed && b.Amount > 0 && b.ExpiresAt.After(now)
}
