package service

import (
	"context"
	"time"

	"ticket-transaction-engine/internal/model"
	"ticket-transaction-engine/internal/repository"
	apperrors "ticket-transaction-engine/pkg/app_errors"
	"ticket-transaction-engine/pkg/clock"
)

// PointsLedger FIFO 點數帳本：扣點依到期日由早到晚，回補一律新增一個批次
type PointsLedger struct {
	store       repository.Store
	clock       clock.Clock
	restoredTTL time.Duration
}

func NewPointsLedger(store repository.Store, clk clock.Clock, restoredTTL time.Duration) *PointsLedger {
	return &PointsLedger{store: store, clock: clk, restoredTTL: restoredTTL}
}

// Deduct 在呼叫端的 atomic unit 中扣點，餘額不足回傳 *InsufficientPointsError
func (l *PointsLedger) Deduct(ctx context.Context, batches repository.PointBatchRepository, userID int64, amount int64, now time.Time) error {
	if amount <= 0 {
		return nil
	}

	spendable, err := batches.ListSpendableWithLock(ctx, userID, now)
	if err != nil {
		return err
	}

	var available int64
	for _, b := range spendable {
		available += b.Amount
	}
	if available < amount {
		return &apperrors.InsufficientPointsError{Available: available, Required: amount}
	}

	remaining := amount
	for _, b := range spendable {
		if remaining == 0 {
			break
		}
		if b.Amount <= remaining {
			remaining -= b.Amount
			if err := batches.UpdateAmount(ctx, b.ID, 0, true); err != nil {
				return err
			}
			continue
		}
		if err := batches.UpdateAmount(ctx, b.ID, b.Amount-remaining, false); err != nil {
			return err
		}
		remaining = 0
	}

	return nil
}

// Restore 回補點數：新增一個 now + restoredTTL 到期的批次 (不保留原批次的到期日)
func (l *PointsLedger) Restore(ctx context.Context, batches repository.PointBatchRepository, userID int64, amount int64, now time.Time) (*model.PointBatch, error) {
	if amount <= 0 {
		return nil, nil
	}
	return batches.Create(ctx, &model.PointBatch{
		UserID:    userID,
		Amount:    amount,
		ExpiresAt: now.Add(l.restoredTTL),
	})
}

// Grant 發放點數 (例如推薦獎勵)
func (l *PointsLedger) Grant(ctx context.Context, userID int64, amount int64, expiresAt time.Time) (*model.PointBatch, error) {
	if userID <= 0 {
		return nil, apperrors.Validation("user id must be positive")
	}
	if amount <= 0 {
		return nil, apperrors.Validation("grant amount must be positive")
	}

	var created *model.PointBatch
	err := l.store.WithAtomicUnit(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		var err error
		created, err = uow.PointBatches().Create(ctx, &model.PointBatch{
			UserID:    userID,
			Amount:    amount,
			ExpiresAt: expiresAt,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Balance 目前可用點數
func (l *PointsLedger) Balance(ctx context.Context, userID int64) (int64, error) {
	var total int64
	err := l.store.View(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		batches, err := uow.PointBatches().ListByUserID(ctx, userID)
		if err != nil {
			return err
		}
		now := l.clock.Now()
		for _, b := range batches {
			if b.IsSpendableAt(now) {
				total += b.Amount
			}
		}
		return nil
	})
	return total, err
}
