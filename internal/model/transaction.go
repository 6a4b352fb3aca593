package model

import (
	"time"

	apperrors "ticket-transaction-engine/pkg/app_errors"
)

// TransactionStatus 交易狀態類型
type TransactionStatus string

const (
	TransactionStatusWaitingPayment      TransactionStatus = "WAITING_PAYMENT"
	TransactionStatusWaitingConfirmation TransactionStatus = "WAITING_CONFIRMATION"
	TransactionStatusDone                TransactionStatus = "DONE"
	TransactionStatusRejected            TransactionStatus = "REJECTED"
	TransactionStatusExpired             TransactionStatus = "EXPIRED"
	TransactionStatusCancelled           TransactionStatus = "CANCELLED"
)

// transitions 唯一的狀態轉換表，所有狀態變更都必須經過 Transition
var transitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusWaitingPayment:      {TransactionStatusWaitingConfirmation, TransactionStatusExpired},
	TransactionStatusWaitingConfirmation: {TransactionStatusDone, TransactionStatusRejected, TransactionStatusCancelled},
	TransactionStatusDone:                {},
	TransactionStatusRejected:            {},
	TransactionStatusExpired:             {},
	TransactionStatusCancelled:           {},
}

// IsValid 驗證狀態是否有效
func (s TransactionStatus) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal 終態不能再轉換到任何狀態
func (s TransactionStatus) IsTerminal() bool {
	allowed, ok := transitions[s]
	return ok && len(allowed) == 0
}

// IsRollbackReason 會觸發補償 (回滾) 的終態
func (s TransactionStatus) IsRollbackReason() bool {
	switch s {
	case TransactionStatusRejected, TransactionStatusExpired, TransactionStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo 檢查是否可以轉換到目標狀態
func (s TransactionStatus) CanTransitionTo(target TransactionStatus) bool {
	for _, status := range transitions[s] {
		if status == target {
			return true
		}
	}
	return false
}

// Transition 檢查 from -> to 是否合法，不合法回傳 ErrInvalidState
func Transition(from, to TransactionStatus) error {
	if !from.CanTransitionTo(to) {
		return apperrors.InvalidTransition(string(from), string(to))
	}
	return nil
}

// Transaction 購票交易
type Transaction struct {
	ID                        int64             `json:"id" db:"id"`
	UserID                    int64             `json:"user_id" db:"user_id"`
	EventID                   int64             `json:"event_id" db:"event_id"`
	TicketTypeID              int64             `json:"ticket_type_id" db:"ticket_type_id"`
	Qty                       int               `json:"qty" db:"qty"`
	TotalPrice                int64             `json:"total_price" db:"total_price"` // 折扣前
	FinalPrice                int64             `json:"final_price" db:"final_price"` // 折扣後，最低 0
	PointsUsed                int64             `json:"points_used" db:"points_used"`
	CouponID                  *int64            `json:"coupon_id,omitempty" db:"coupon_id"`
	PromotionID               *int64            `json:"promotion_id,omitempty" db:"promotion_id"`
	Status                    TransactionStatus `json:"status" db:"status"`
	PaymentProof              *string           `json:"payment_proof,omitempty" db:"payment_proof"`
	PaymentProofUploadedAt    *time.Time        `json:"payment_proof_uploaded_at,omitempty" db:"payment_proof_uploaded_at"`
	ExpiresAt                 time.Time         `json:"expires_at" db:"expires_at"`
	OrganizerResponseDeadline *time.Time        `json:"organizer_response_deadline,omitempty" db:"organizer_response_deadline"`
	ReminderSent              bool              `json:"reminder_sent" db:"reminder_sent"`
	CreatedAt                 time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt                 time.Time         `json:"updated_at" db:"updated_at"`
}

// IsOwnedBy 檢查交易是否屬於該使用者
func (t *Transaction) IsOwnedBy(userID int64) bool {
	return t.UserID == userID
}

// CreateTransactionRequest 創建交易請求
type CreateTransactionRequest struct {
	UserID          int64  `json:"-"`
	EventID         int64  `json:"event_id" binding:"required"`
	TicketTypeID    int64  `json:"ticket_type_id" binding:"required"`
	Qty             int    `json:"qty" binding:"required,min=1"`
	PromotionCode   string `json:"promotion_code"`
	CouponCode      string `json:"coupon_code"`
	PointsRequested int64  `json:"points_requested" binding:"min=0"`
}

// UploadPaymentProofRequest 上傳付款證明請求
type UploadPaymentProofRequest struct {
	TransactionID int64  `json:"-"`
	UserID        int64  `json:"-"`
	PaymentProof  string `json:"payment_proof" binding:"required"`
}

// RejectTransactionRequest 主辦方拒絕交易請求
type RejectTransactionRequest struct {
	Reason string `json:"reason"`
}

// RollbackResult 補償結果
type RollbackResult struct {
	TransactionID  int64             `json:"transaction_id"`
	SeatsRestored  int               `json:"seats_restored"`
	PointsRestored int64             `json:"points_restored"`
	CouponRestored bool              `json:"coupon_restored"`
	Reason         TransactionStatus `json:"reason"`
}
