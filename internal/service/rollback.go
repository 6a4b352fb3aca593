package service

import (
	"context"
	"fmt"
	"time"

	"ticket-transaction-engine/internal/model"
	"ticket-transaction-engine/internal/monitoring"
	"ticket-transaction-engine/internal/notification"
	"ticket-transaction-engine/internal/repository"
	"ticket-transaction-engine/internal/tracing"
	apperrors "ticket-transaction-engine/pkg/app_errors"
	"ticket-transaction-engine/pkg/clock"
	"ticket-transaction-engine/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type RollbackCoordinator interface {
	// Rollback 還座位、優惠券、點數並把交易標成 reason (REJECTED / EXPIRED / CANCELLED)
	Rollback(ctx context.Context, transactionID int64, reason model.TransactionStatus) (*model.RollbackResult, error)
	// RollbackWithNote 同 Rollback，note 會帶在通知內容裡 (例如拒絕原因)
	RollbackWithNote(ctx context.Context, transactionID int64, reason model.TransactionStatus, note string) (*model.RollbackResult, error)
}

type RollbackCoordinatorImpl struct {
	store     repository.Store
	inventory *InventoryManager
	ledger    *PointsLedger
	notifier  notification.Notifier
	clock     clock.Clock
}

func NewRollbackCoordinator(
	store repository.Store,
	inventory *InventoryManager,
	ledger *PointsLedger,
	notifier notification.Notifier,
	clk clock.Clock,
) RollbackCoordinator {
	return &RollbackCoordinatorImpl{
		store:     store,
		inventory: inventory,
		ledger:    ledger,
		notifier:  notifier,
		clock:     clk,
	}
}

func (c *RollbackCoordinatorImpl) Rollback(ctx context.Context, transactionID int64, reason model.TransactionStatus) (*model.RollbackResult, error) {
	return c.RollbackWithNote(ctx, transactionID, reason, "")
}

func (c *RollbackCoordinatorImpl) RollbackWithNote(ctx context.Context, transactionID int64, reason model.TransactionStatus, note string) (result *model.RollbackResult, err error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "RollbackCoordinator.Rollback")
	span.SetAttributes(
		attribute.Int64("transaction.id", transactionID),
		attribute.String("rollback.reason", string(reason)),
	)
	defer func() {
		monitoring.TrackRollback(string(reason), apperrors.Kind(err))
		endSpan(span, err)
	}()

	if !reason.IsRollbackReason() {
		return nil, apperrors.Validation("%s is not a rollback reason", reason)
	}

	now := c.clock.Now()
	err = c.store.WithAtomicUnit(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		// 1. 鎖住交易並重新檢查狀態，避免排程與主辦方同時處理
		t, err := uow.Transactions().FindByIDWithLock(ctx, transactionID)
		if err != nil {
			return err
		}
		if err := model.Transition(t.Status, reason); err != nil {
			return err
		}
		if err := checkDeadlinePassed(t, reason, now); err != nil {
			return err
		}

		res := &model.RollbackResult{TransactionID: t.ID, Reason: reason}

		// 2. 還座位
		if err := c.inventory.Release(ctx, uow.TicketTypes(), t.TicketTypeID, t.Qty); err != nil {
			return fmt.Errorf("release seats: %w", err)
		}
		res.SeatsRestored = t.Qty

		// 3. 還優惠券
		if t.CouponID != nil {
			if _, err := uow.Coupons().FindByIDWithLock(ctx, *t.CouponID); err != nil {
				return err
			}
			if err := uow.Coupons().SetUsed(ctx, *t.CouponID, false); err != nil {
				return fmt.Errorf("restore coupon: %w", err)
			}
			res.CouponRestored = true
		}

		// 4. 還點數 (新批次)
		if t.PointsUsed > 0 {
			if _, err := c.ledger.Restore(ctx, uow.PointBatches(), t.UserID, t.PointsUsed, now); err != nil {
				return fmt.Errorf("restore points: %w", err)
			}
			res.PointsRestored = t.PointsUsed
		}

		// 5. 更新狀態 (compare-and-set)
		previous := t.Status
		t.Status = reason
		t.UpdatedAt = now
		if _, err := uow.Transactions().Update(ctx, t, previous); err != nil {
			return err
		}

		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithComponent("rollback").Info("transaction rolled back",
		zap.Int64("transaction_id", result.TransactionID),
		zap.String("reason", string(reason)),
		zap.Int("seats_restored", result.SeatsRestored),
		zap.Int64("points_restored", result.PointsRestored),
		zap.Bool("coupon_restored", result.CouponRestored),
	)

	if kind, ok := model.NotificationKindFor(reason); ok {
		var extra map[string]string
		if note != "" {
			extra = map[string]string{"reason": note}
		}
		c.notifier.Notify(ctx, kind, result.TransactionID, extra)
	}

	return result, nil
}

// checkDeadlinePassed 排程觸發的回滾在 unit 內再確認期限確實已過
func checkDeadlinePassed(t *model.Transaction, reason model.TransactionStatus, now time.Time) error {
	switch reason {
	case model.TransactionStatusExpired:
		if !t.ExpiresAt.Before(now) {
			return fmt.Errorf("%w: payment window still open until %s", apperrors.ErrInvalidState, t.ExpiresAt.Format(time.RFC3339))
		}
	case model.TransactionStatusCancelled:
		if t.OrganizerResponseDeadline == nil || !t.OrganizerResponseDeadline.Before(now) {
			return fmt.Errorf("%w: organizer response deadline not reached", apperrors.ErrInvalidState)
		}
	}
	return nil
}
