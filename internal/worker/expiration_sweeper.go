package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-transaction-engine/config"
	"ticket-transaction-engine/internal/model"
	"ticket-transaction-engine/internal/monitoring"
	"ticket-transaction-engine/internal/notification"
	"ticket-transaction-engine/internal/repository"
	"ticket-transaction-engine/internal/service"
	"ticket-transaction-engine/internal/tracing"
	apperrors "ticket-transaction-engine/pkg/app_errors"
	"ticket-transaction-engine/pkg/clock"
	"ticket-transaction-engine/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	scanReminder = "reminder"
	scanExpiry   = "payment_expiry"
	scanTimeout  = "organizer_timeout"
)

// SweepReport 一輪掃描的結果；Skipped 為期間內已被其他流程處理掉的交易
type SweepReport struct {
	Reminded  int
	Expired   int
	Cancelled int
	Skipped   int
	Failed    int
}

type ExpirationSweeper interface {
	// RunExpirationSweep 依序執行三個掃描，單筆失敗只記錄不中斷
	RunExpirationSweep(ctx context.Context) (SweepReport, error)
}

type ExpirationSweeperImpl struct {
	store       repository.Store
	coordinator service.RollbackCoordinator
	notifier    notification.Notifier
	clock       clock.Clock
	cfg         config.EngineConfig
}

func NewExpirationSweeper(
	store repository.Store,
	coordinator service.RollbackCoordinator,
	notifier notification.Notifier,
	clk clock.Clock,
	cfg config.EngineConfig,
) ExpirationSweeper {
	return &ExpirationSweeperImpl{
		store:       store,
		coordinator: coordinator,
		notifier:    notifier,
		clock:       clk,
		cfg:         cfg,
	}
}

func (s *ExpirationSweeperImpl) RunExpirationSweep(ctx context.Context) (SweepReport, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "ExpirationSweeper.RunExpirationSweep")
	defer span.End()

	started := time.Now()
	now := s.clock.Now()
	var report SweepReport
	var errs []error

	if err := s.sendReminders(ctx, now, &report); err != nil {
		errs = append(errs, err)
	}
	if err := s.rollbackAll(ctx, scanExpiry, model.TransactionStatusExpired, now, &report); err != nil {
		errs = append(errs, err)
	}
	if err := s.rollbackAll(ctx, scanTimeout, model.TransactionStatusCancelled, now, &report); err != nil {
		errs = append(errs, err)
	}

	monitoring.ObserveSweepDuration(time.Since(started))
	span.SetAttributes(
		attribute.Int("sweep.reminded", report.Reminded),
		attribute.Int("sweep.expired", report.Expired),
		attribute.Int("sweep.cancelled", report.Cancelled),
		attribute.Int("sweep.failed", report.Failed),
	)
	logger.WithComponent("sweeper").Info("expiration sweep finished",
		zap.Int("reminded", report.Reminded),
		zap.Int("expired", report.Expired),
		zap.Int("cancelled", report.Cancelled),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("took", time.Since(started)),
	)

	return report, errors.Join(errs...)
}

// sendReminders 先以條件更新標記 reminderSent，標記成功才發通知
func (s *ExpirationSweeperImpl) sendReminders(ctx context.Context, now time.Time, report *SweepReport) error {
	var due []*model.Transaction
	err := s.store.View(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		var err error
		due, err = uow.Transactions().ListDueForReminder(ctx, now.Add(s.cfg.ReminderWindowStart), now.Add(s.cfg.ReminderWindowEnd))
		return err
	})
	if err != nil {
		logger.WithComponent("sweeper").Error("list reminder candidates failed", zap.Error(err))
		return fmt.Errorf("%s scan: %w", scanReminder, err)
	}

	for _, t := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var marked bool
		err := s.store.WithAtomicUnit(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
			var err error
			marked, err = uow.Transactions().MarkReminderSent(ctx, t.ID)
			return err
		})
		switch {
		case err != nil:
			report.Failed++
			monitoring.TrackSweepItem(scanReminder, "failed")
			logger.WithComponent("sweeper").Error("mark reminder failed", zap.Int64("transaction_id", t.ID), zap.Error(err))
		case !marked:
			report.Skipped++
			monitoring.TrackSweepItem(scanReminder, "skipped")
		default:
			report.Reminded++
			monitoring.TrackSweepItem(scanReminder, "ok")
			s.notifier.Notify(ctx, model.NotificationReminder, t.ID, map[string]string{
				"expires_at": t.ExpiresAt.Format(time.RFC3339),
			})
		}
	}
	return nil
}

// rollbackAll 逐筆回滾；狀態已改變 (InvalidState) 的交易視為已被處理，略過
func (s *ExpirationSweeperImpl) rollbackAll(ctx context.Context, scan string, reason model.TransactionStatus, now time.Time, report *SweepReport) error {
	var candidates []*model.Transaction
	err := s.store.View(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		var err error
		if reason == model.TransactionStatusExpired {
			candidates, err = uow.Transactions().ListPaymentExpired(ctx, now)
		} else {
			candidates, err = uow.Transactions().ListConfirmationOverdue(ctx, now)
		}
		return err
	})
	if err != nil {
		logger.WithComponent("sweeper").Error("list rollback candidates failed", zap.String("scan", scan), zap.Error(err))
		return fmt.Errorf("%s scan: %w", scan, err)
	}

	for _, t := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, err := s.coordinator.Rollback(ctx, t.ID, reason)
		switch {
		case err == nil:
			monitoring.TrackSweepItem(scan, "ok")
			if reason == model.TransactionStatusExpired {
				report.Expired++
			} else {
				report.Cancelled++
			}
		case errors.Is(err, apperrors.ErrInvalidState):
			report.Skipped++
			monitoring.TrackSweepItem(scan, "skipped")
			logger.WithComponent("sweeper").Info("transaction changed before rollback, skipped",
				zap.Int64("transaction_id", t.ID),
				zap.String("reason", string(reason)),
				zap.Error(err),
			)
		default:
			report.Failed++
			monitoring.TrackSweepItem(scan, "failed")
			logger.WithComponent("sweeper").Error("rollback failed",
				zap.Int64("transaction_id", t.ID),
				zap.String("reason", string(reason)),
				zap.Error(err),
			)
		}
	}
	return nil
}
