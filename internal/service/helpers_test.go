package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"ticket-transaction-engine/config"
	"ticket-transaction-engine/internal/model"
	"ticket-transaction-engine/internal/repository"
	"ticket-transaction-engine/internal/repository/memory"
	"ticket-transaction-engine/internal/service"
	"ticket-transaction-engine/pkg/clock"

	"github.com/stretchr/testify/require"
)

const (
	organizerID = int64(100)
	buyerID     = int64(7)
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type sentNotification struct {
	Kind          model.NotificationKind
	TransactionID int64
	Extra         map[string]string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) Notify(_ context.Context, kind model.NotificationKind, transactionID int64, extra map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{Kind: kind, TransactionID: transactionID, Extra: extra})
}

func (r *recordingNotifier) kinds() []model.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]model.NotificationKind, 0, len(r.sent))
	for _, s := range r.sent {
		kinds = append(kinds, s.Kind)
	}
	return kinds
}

func (r *recordingNotifier) last() sentNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

type fixture struct {
	store       *memory.Store
	clock       *clock.Manual
	notifier    *recordingNotifier
	ledger      *service.PointsLedger
	coordinator service.RollbackCoordinator
	svc         service.TransactionService
	cfg         config.EngineConfig

	event      *model.Event
	ticketType *model.TicketType
}

func newFixture(t *testing.T, seats int) *fixture {
	t.Helper()

	f := &fixture{
		store:    memory.NewStore(),
		clock:    clock.NewManual(baseTime),
		notifier: &recordingNotifier{},
		cfg:      config.DefaultEngineConfig(),
	}
	inventory := service.NewInventoryManager()
	f.ledger = service.NewPointsLedger(f.store, f.clock, f.cfg.RestoredPointsTTL)
	f.coordinator = service.NewRollbackCoordinator(f.store, inventory, f.ledger, f.notifier, f.clock)
	f.svc = service.NewTransactionService(f.store, inventory, f.ledger, f.coordinator, f.notifier, f.clock, f.cfg)

	f.seed(t, func(ctx context.Context, uow repository.UnitOfWork) error {
		var err error
		f.event, err = uow.Events().Create(ctx, &model.Event{OrganizerID: organizerID, Name: "Spring Concert"})
		if err != nil {
			return err
		}
		f.ticketType, err = uow.TicketTypes().Create(ctx, &model.TicketType{
			EventID: f.event.ID,
			Name:    "Regular",
			Price:   100_000,
			Seats:   seats,
		})
		return err
	})
	return f
}

func (f *fixture) seed(t *testing.T, fn func(ctx context.Context, uow repository.UnitOfWork) error) {
	t.Helper()
	require.NoError(t, f.store.WithAtomicUnit(context.Background(), fn))
}

func (f *fixture) addPromotion(t *testing.T, code string, typ model.PromotionType, value int64) *model.Promotion {
	t.Helper()
	var p *model.Promotion
	f.seed(t, func(ctx context.Context, uow repository.UnitOfWork) error {
		var err error
		p, err = uow.Promotions().Create(ctx, &model.Promotion{
			EventID:   f.event.ID,
			Code:      code,
			Type:      typ,
			Value:     value,
			StartDate: baseTime.Add(-24 * time.Hour),
			EndDate:   baseTime.Add(24 * time.Hour),
			MaxUsage:  100,
		})
		return err
	})
	return p
}

func (f *fixture) addCoupon(t *testing.T, userID int64, code string, pct int64) *model.Coupon {
	t.Helper()
	var c *model.Coupon
	f.seed(t, func(ctx context.Context, uow repository.UnitOfWork) error {
		var err error
		c, err = uow.Coupons().Create(ctx, &model.Coupon{
			UserID:     userID,
			Code:       code,
			Percentage: pct,
			ExpiresAt:  baseTime.Add(30 * 24 * time.Hour),
		})
		return err
	})
	return c
}

func (f *fixture) grant(t *testing.T, userID, amount int64, ttl time.Duration) *model.PointBatch {
	t.Helper()
	b, err := f.ledger.Grant(context.Background(), userID, amount, baseTime.Add(ttl))
	require.NoError(t, err)
	return b
}

func (f *fixture) seats(t *testing.T) int {
	t.Helper()
	var seats int
	require.NoError(t, f.store.View(context.Background(), func(ctx context.Context, uow repository.UnitOfWork) error {
		tt, err := uow.TicketTypes().FindByID(ctx, f.ticketType.ID)
		if err != nil {
			return err
		}
		seats = tt.Seats
		return nil
	}))
	return seats
}

func (f *fixture) coupon(t *testing.T, id int64) *model.Coupon {
	t.Helper()
	var c *model.Coupon
	require.NoError(t, f.store.View(context.Background(), func(ctx context.Context, uow repository.UnitOfWork) error {
		var err error
		c, err = uow.Coupons().FindByID(ctx, id)
		return err
	}))
	return c
}

func (f *fixture) transaction(t *testing.T, id int64) *model.Transaction {
	t.Helper()
	var tx *model.Transaction
	require.NoError(t, f.store.View(context.Background(), func(ctx context.Context, uow repository.UnitOfWork) error {
		var err error
		tx, err = uow.Transactions().FindByID(ctx, id)
		return err
	}))
	return tx
}

func (f *fixture) batches(t *testing.T, userID int64) []*model.PointBatch {
	t.Helper()
	var batches []*model.PointBatch
	require.NoError(t, f.store.View(context.Background(), func(ctx context.Context, uow repository.UnitOfWork) error {
		var err error
		batches, err = uow.PointBatches().ListByUserID(ctx, userID)
		return err
	}))
	return batches
}

func (f *fixture) balance(t *testing.T, userID int64) int64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func (f *fixture) create(t *testing.T, req model.CreateTransactionRequest) *model.Transaction {
	t.Helper()
	if req.EventID == 0 {
		req.EventID = f.event.ID
	}
	if req.TicketTypeID == 0 {
		req.TicketTypeID = f.ticketType.ID
	}
	if req.UserID == 0 {
		req.UserID = buyerID
	}
	if req.Qty == 0 {
		req.Qty = 1
	}
	tx, err := f.svc.CreateTransaction(context.Background(), req)
	require.NoError(t, err)
	return tx
}

func (f *fixture) upload(t *testing.T, id int64) *model.Transaction {
	t.Helper()
	tx, err := f.svc.UploadPaymentProof(context.Background(), model.UploadPaymentProofRequest{
		TransactionID: id,
		UserID:        buyerID,
		PaymentProof:  "receipts/" + time.Now().Format("150405") + ".jpg",
	})
	require.NoError(t, err)
	return tx
}
