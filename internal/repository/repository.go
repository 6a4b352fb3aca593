package repository

import (
	"context"
	"time"

	"ticket-transaction-engine/internal/model"
)

// Store 提供 atomic unit：fn 內所有讀寫一起提交或一起回滾
type Store interface {
	// WithAtomicUnit 在單一資料庫交易中執行 fn，fn 回傳錯誤即全部回滾
	WithAtomicUnit(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
	// View 唯讀查詢，不開交易
	View(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

// UnitOfWork 綁定在同一個 atomic unit 上的 repositories
type UnitOfWork interface {
	Events() EventRepository
	TicketTypes() TicketTypeRepository
	PointBatches() PointBatchRepository
	Coupons() CouponRepository
	Promotions() PromotionRepository
	Transactions() TransactionRepository
}

type EventRepository interface {
	Create(ctx context.Context, event *model.Event) (*model.Event, error)
	FindByID(ctx context.Context, id int64) (*model.Event, error)
}

type TicketTypeRepository interface {
	Create(ctx context.Context, ticketType *model.TicketType) (*model.TicketType, error)
	FindByID(ctx context.Context, id int64) (*model.TicketType, error)
	FindByIDWithLock(ctx context.Context, id int64) (*model.TicketType, error)
	// DecrementSeats seats < qty 時回傳 ErrInsufficientSeats，不做任何變更
	DecrementSeats(ctx context.Context, id int64, qty int) error
	IncrementSeats(ctx context.Context, id int64, qty int) error
}

type PointBatchRepository interface {
	Create(ctx context.Context, batch *model.PointBatch) (*model.PointBatch, error)
	// ListSpendableWithLock 未兌換且 expires_at > now，依 expires_at 由早到晚
	ListSpendableWithLock(ctx context.Context, userID int64, now time.Time) ([]*model.PointBatch, error)
	ListByUserID(ctx context.Context, userID int64) ([]*model.PointBatch, error)
	UpdateAmount(ctx context.Context, id int64, amount int64, redeemed bool) error
}

type CouponRepository interface {
	Create(ctx context.Context, coupon *model.Coupon) (*model.Coupon, error)
	FindByID(ctx context.Context, id int64) (*model.Coupon, error)
	FindByIDWithLock(ctx context.Context, id int64) (*model.Coupon, error)
	FindByUserAndCodeWithLock(ctx context.Context, userID int64, code string) (*model.Coupon, error)
	SetUsed(ctx context.Context, id int64, used bool) error
}

type PromotionRepository interface {
	Create(ctx context.Context, promotion *model.Promotion) (*model.Promotion, error)
	FindByEventAndCode(ctx context.Context, eventID int64, code string) (*model.Promotion, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, transaction *model.Transaction) (*model.Transaction, error)
	FindByID(ctx context.Context, id int64) (*model.Transaction, error)
	FindByIDWithLock(ctx context.Context, id int64) (*model.Transaction, error)
	ListByUserID(ctx context.Context, userID int64) ([]*model.Transaction, error)
	// Update 只有在目前狀態仍為 expected 時才寫入 (compare-and-set)，否則回傳 ErrInvalidState
	Update(ctx context.Context, transaction *model.Transaction, expected model.TransactionStatus) (*model.Transaction, error)
	// MarkReminderSent 仍在 WAITING_PAYMENT 且尚未提醒才會標記，回傳是否有標記
	MarkReminderSent(ctx context.Context, id int64) (bool, error)

	// 排程掃描
	ListDueForReminder(ctx context.Context, from, to time.Time) ([]*model.Transaction, error)
	ListPaymentExpired(ctx context.Context, now time.Time) ([]*model.Transaction, error)
	ListConfirmationOverdue(ctx context.Context, now time.Time) ([]*model.Transaction, error)
}
