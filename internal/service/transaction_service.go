package service

import (
	"context"
	"strings"

	"ticket-transaction-engine/config"
	"ticket-transaction-engine/internal/model"
	"ticket-transaction-engine/internal/monitoring"
	"ticket-transaction-engine/internal/notification"
	"ticket-transaction-engine/internal/repository"
	"ticket-transaction-engine/internal/tracing"
	apperrors "ticket-transaction-engine/pkg/app_errors"
	"ticket-transaction-engine/pkg/clock"
	"ticket-transaction-engine/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type TransactionService interface {
	// 建立交易：扣座位、套用折扣、扣點數，全部在同一個 atomic unit
	CreateTransaction(ctx context.Context, req model.CreateTransactionRequest) (*model.Transaction, error)
	UploadPaymentProof(ctx context.Context, req model.UploadPaymentProofRequest) (*model.Transaction, error)
	AcceptTransaction(ctx context.Context, transactionID, organizerID int64) (*model.Transaction, error)
	RejectTransaction(ctx context.Context, transactionID, organizerID int64, reason string) (*model.RollbackResult, error)
	// GetTransaction 只有買家本人或活動主辦方可以查詢
	GetTransaction(ctx context.Context, transactionID, actorID int64) (*model.Transaction, error)
	ListUserTransactions(ctx context.Context, userID int64) ([]*model.Transaction, error)
}

type TransactionServiceImpl struct {
	store       repository.Store
	inventory   *InventoryManager
	ledger      *PointsLedger
	coordinator RollbackCoordinator
	notifier    notification.Notifier
	clock       clock.Clock
	cfg         config.EngineConfig
}

func NewTransactionService(
	store repository.Store,
	inventory *InventoryManager,
	ledger *PointsLedger,
	coordinator RollbackCoordinator,
	notifier notification.Notifier,
	clk clock.Clock,
	cfg config.EngineConfig,
) TransactionService {
	return &TransactionServiceImpl{
		store:       store,
		inventory:   inventory,
		ledger:      ledger,
		coordinator: coordinator,
		notifier:    notifier,
		clock:       clk,
		cfg:         cfg,
	}
}

func (s *TransactionServiceImpl) validateCreate(req model.CreateTransactionRequest) error {
	if req.UserID <= 0 {
		return apperrors.Validation("user id must be positive")
	}
	if req.EventID <= 0 || req.TicketTypeID <= 0 {
		return apperrors.Validation("event id and ticket type id must be positive")
	}
	if req.Qty < 1 || req.Qty > s.cfg.MaxTicketsPerTransaction {
		return apperrors.Validation("qty must be between 1 and %d", s.cfg.MaxTicketsPerTransaction)
	}
	if req.PointsRequested < 0 {
		return apperrors.Validation("points must not be negative")
	}
	return nil
}

func (s *TransactionServiceImpl) CreateTransaction(ctx context.Context, req model.CreateTransactionRequest) (created *model.Transaction, err error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "TransactionService.CreateTransaction")
	span.SetAttributes(
		attribute.Int64("user.id", req.UserID),
		attribute.Int64("ticket_type.id", req.TicketTypeID),
		attribute.Int("qty", req.Qty),
	)
	defer func() {
		monitoring.TrackTransactionCreated(apperrors.Kind(err))
		endSpan(span, err)
	}()

	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err = s.store.WithAtomicUnit(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		// 1. 鎖票種，確認屬於該活動
		ticketType, err := uow.TicketTypes().FindByIDWithLock(ctx, req.TicketTypeID)
		if err != nil {
			return err
		}
		if ticketType.EventID != req.EventID {
			return apperrors.Validation("ticket type %d does not belong to event %d", ticketType.ID, req.EventID)
		}
		if _, err := uow.Events().FindByID(ctx, req.EventID); err != nil {
			return err
		}

		// 2. 扣座位
		if err := s.inventory.Reserve(ctx, uow.TicketTypes(), ticketType.ID, req.Qty); err != nil {
			return err
		}

		// 3. 促銷碼 / 優惠券
		var promotion *model.Promotion
		if code := strings.TrimSpace(req.PromotionCode); code != "" {
			promotion, err = uow.Promotions().FindByEventAndCode(ctx, req.EventID, code)
			if err != nil {
				return err
			}
		}
		var coupon *model.Coupon
		if code := strings.TrimSpace(req.CouponCode); code != "" {
			coupon, err = uow.Coupons().FindByUserAndCodeWithLock(ctx, req.UserID, code)
			if err != nil {
				return err
			}
		}

		// 4. 計價
		price, err := CalculatePrice(PriceInput{
			TicketPrice:     ticketType.Price,
			Qty:             req.Qty,
			EventID:         req.EventID,
			UserID:          req.UserID,
			Promotion:       promotion,
			Coupon:          coupon,
			PointsRequested: req.PointsRequested,
			Now:             now,
		})
		if err != nil {
			return err
		}

		// 5. 標記優惠券、扣點數
		if coupon != nil {
			if err := uow.Coupons().SetUsed(ctx, coupon.ID, true); err != nil {
				return err
			}
		}
		if err := s.ledger.Deduct(ctx, uow.PointBatches(), req.UserID, req.PointsRequested, now); err != nil {
			return err
		}

		// 6. 寫入交易
		t := &model.Transaction{
			UserID:       req.UserID,
			EventID:      req.EventID,
			TicketTypeID: ticketType.ID,
			Qty:          req.Qty,
			TotalPrice:   price.TotalPrice,
			FinalPrice:   price.FinalPrice,
			PointsUsed:   req.PointsRequested,
			Status:       model.TransactionStatusWaitingPayment,
			ExpiresAt:    now.Add(s.cfg.PaymentWindow),
		}
		if promotion != nil {
			t.PromotionID = &promotion.ID
		}
		if coupon != nil {
			t.CouponID = &coupon.ID
		}
		created, err = uow.Transactions().Create(ctx, t)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.WithComponent("service").Info("transaction created",
		zap.Int64("transaction_id", created.ID),
		zap.Int64("user_id", created.UserID),
		zap.Int64("ticket_type_id", created.TicketTypeID),
		zap.Int("qty", created.Qty),
		zap.Int64("final_price", created.FinalPrice),
	)
	s.notifier.Notify(ctx, model.NotificationCreated, created.ID, nil)

	return created, nil
}

func (s *TransactionServiceImpl) UploadPaymentProof(ctx context.Context, req model.UploadPaymentProofRequest) (updated *model.Transaction, err error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "TransactionService.UploadPaymentProof")
	span.SetAttributes(attribute.Int64("transaction.id", req.TransactionID))
	defer func() {
		monitoring.TrackTransition(string(model.TransactionStatusWaitingConfirmation), apperrors.Kind(err))
		endSpan(span, err)
	}()

	proof := strings.TrimSpace(req.PaymentProof)
	if proof == "" {
		return nil, apperrors.Validation("payment proof is required")
	}
	if req.TransactionID <= 0 || req.UserID <= 0 {
		return nil, apperrors.Validation("transaction id and user id must be positive")
	}

	now := s.clock.Now()
	err = s.store.WithAtomicUnit(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		t, err := uow.Transactions().FindByIDWithLock(ctx, req.TransactionID)
		if err != nil {
			return err
		}
		if !t.IsOwnedBy(req.UserID) {
			return apperrors.ErrUnauthorized
		}
		// 已被排程標成 EXPIRED 或已超過付款期限
		if t.Status == model.TransactionStatusExpired {
			return apperrors.ErrTransactionExpired
		}
		if err := model.Transition(t.Status, model.TransactionStatusWaitingConfirmation); err != nil {
			return err
		}
		if now.After(t.ExpiresAt) {
			return apperrors.ErrTransactionExpired
		}

		deadline := now.Add(s.cfg.OrganizerResponseWindow)
		t.PaymentProof = &proof
		t.PaymentProofUploadedAt = &now
		t.OrganizerResponseDeadline = &deadline
		t.Status = model.TransactionStatusWaitingConfirmation
		updated, err = uow.Transactions().Update(ctx, t, model.TransactionStatusWaitingPayment)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.WithComponent("service").Info("payment proof uploaded",
		zap.Int64("transaction_id", updated.ID),
		zap.Time("organizer_response_deadline", *updated.OrganizerResponseDeadline),
	)
	return updated, nil
}

func (s *TransactionServiceImpl) AcceptTransaction(ctx context.Context, transactionID, organizerID int64) (updated *model.Transaction, err error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "TransactionService.AcceptTransaction")
	span.SetAttributes(attribute.Int64("transaction.id", transactionID))
	defer func() {
		monitoring.TrackTransition(string(model.TransactionStatusDone), apperrors.Kind(err))
		endSpan(span, err)
	}()

	now := s.clock.Now()
	err = s.store.WithAtomicUnit(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		t, err := uow.Transactions().FindByIDWithLock(ctx, transactionID)
		if err != nil {
			return err
		}
		if err := s.authorizeOrganizer(ctx, uow, t, organizerID); err != nil {
			return err
		}
		if err := model.Transition(t.Status, model.TransactionStatusDone); err != nil {
			return err
		}

		previous := t.Status
		t.Status = model.TransactionStatusDone
		t.UpdatedAt = now
		updated, err = uow.Transactions().Update(ctx, t, previous)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.WithComponent("service").Info("transaction accepted",
		zap.Int64("transaction_id", updated.ID),
		zap.Int64("organizer_id", organizerID),
	)
	s.notifier.Notify(ctx, model.NotificationAccepted, updated.ID, nil)

	return updated, nil
}

func (s *TransactionServiceImpl) RejectTransaction(ctx context.Context, transactionID, organizerID int64, reason string) (*model.RollbackResult, error) {
	// 權限先查；狀態由 RollbackCoordinator 在 unit 內重新檢查
	err := s.store.View(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		t, err := uow.Transactions().FindByID(ctx, transactionID)
		if err != nil {
			return err
		}
		if err := s.authorizeOrganizer(ctx, uow, t, organizerID); err != nil {
			return err
		}
		return model.Transition(t.Status, model.TransactionStatusRejected)
	})
	if err != nil {
		monitoring.TrackTransition(string(model.TransactionStatusRejected), apperrors.Kind(err))
		return nil, err
	}

	result, err := s.coordinator.RollbackWithNote(ctx, transactionID, model.TransactionStatusRejected, strings.TrimSpace(reason))
	monitoring.TrackTransition(string(model.TransactionStatusRejected), apperrors.Kind(err))
	return result, err
}

func (s *TransactionServiceImpl) GetTransaction(ctx context.Context, transactionID, actorID int64) (*model.Transaction, error) {
	var found *model.Transaction
	err := s.store.View(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		t, err := uow.Transactions().FindByID(ctx, transactionID)
		if err != nil {
			return err
		}
		if !t.IsOwnedBy(actorID) {
			if err := s.authorizeOrganizer(ctx, uow, t, actorID); err != nil {
				return err
			}
		}
		found = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (s *TransactionServiceImpl) ListUserTransactions(ctx context.Context, userID int64) ([]*model.Transaction, error) {
	if userID <= 0 {
		return nil, apperrors.Validation("user id must be positive")
	}
	var transactions []*model.Transaction
	err := s.store.View(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		var err error
		transactions, err = uow.Transactions().ListByUserID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

func (s *TransactionServiceImpl) authorizeOrganizer(ctx context.Context, uow repository.UnitOfWork, t *model.Transaction, organizerID int64) error {
	event, err := uow.Events().FindByID(ctx, t.EventID)
	if err != nil {
		return err
	}
	if !event.IsOrganizedBy(organizerID) {
		return apperrors.ErrUnauthorized
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperrors.Kind(err))
	}
	span.End()
}
