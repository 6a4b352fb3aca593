package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ticket-transaction-engine/config"
	"ticket-transaction-engine/internal/model"
	"ticket-transaction-engine/internal/repository"
	"ticket-transaction-engine/internal/repository/memory"
	"ticket-transaction-engine/internal/service"
	"ticket-transaction-engine/internal/worker"
	apperrors "ticket-transaction-engine/pkg/app_errors"
	"ticket-transaction-engine/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	organizerID = int64(100)
	buyerID     = int64(7)
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []model.NotificationKind
	ids   []int64
}

func (r *recordingNotifier) Notify(_ context.Context, kind model.NotificationKind, transactionID int64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	r.ids = append(r.ids, transactionID)
}

func (r *recordingNotifier) count(kind model.NotificationKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, k := range r.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

type sweepFixture struct {
	store       *memory.Store
	clock       *clock.Manual
	notifier    *recordingNotifier
	ledger      *service.PointsLedger
	coordinator service.RollbackCoordinator
	svc         service.TransactionService
	sweeper     worker.ExpirationSweeper
	cfg         config.EngineConfig
	eventID     int64
	ticketType  int64
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	f := &sweepFixture{
		store:    memory.NewStore(),
		clock:    clock.NewManual(baseTime),
		notifier: &recordingNotifier{},
		cfg:      config.DefaultEngineConfig(),
	}
	inventory := service.NewInventoryManager()
	f.ledger = service.NewPointsLedger(f.store, f.clock, f.cfg.RestoredPointsTTL)
	f.coordinator = service.NewRollbackCoordinator(f.store, inventory, f.ledger, f.notifier, f.clock)
	f.svc = service.NewTransactionService(f.store, inventory, f.ledger, f.coordinator, f.notifier, f.clock, f.cfg)
	f.sweeper = worker.NewExpirationSweeper(f.store, f.coordinator, f.notifier, f.clock, f.cfg)

	require.NoError(t, f.store.WithAtomicUnit(context.Background(), func(ctx context.Context, uow repository.UnitOfWork) error {
		event, err := uow.Events().Create(ctx, &model.Event{OrganizerID: organizerID, Name: "Festival"})
		if err != nil {
			return err
		}
		tt, err := uow.TicketTypes().Create(ctx, &model.TicketType{EventID: event.ID, Name: "GA", Price: 50_000, Seats: 20})
		if err != nil {
			return err
		}
		f.eventID, f.ticketType = event.ID, tt.ID
		return nil
	}))
	return f
}

func (f *sweepFixture) create(t *testing.T, qty int, points int64) *model.Transaction {
	t.Helper()
	tx, err := f.svc.CreateTransaction(context.Background(), model.CreateTransactionRequest{
		UserID: buyerID, EventID: f.eventID, TicketTypeID: f.ticketType, Qty: qty, PointsRequested: points,
	})
	require.NoError(t, err)
	return tx
}

func (f *sweepFixture) status(t *testing.T, id int64) model.TransactionStatus {
	t.Helper()
	var s model.TransactionStatus
	require.NoError(t, f.store.View(context.Background(), func(ctx context.Context, uow repository.UnitOfWork) error {
		tx, err := uow.Transactions().FindByID(ctx, id)
		if err != nil {
			return err
		}
		s = tx.Status
		return nil
	}))
	return s
}

func (f *sweepFixture) seats(t *testing.T) int {
	t.Helper()
	var seats int
	require.NoError(t, f.store.View(context.Background(), func(ctx context.Context, uow repository.UnitOfWork) error {
		tt, err := uow.TicketTypes().FindByID(ctx, f.ticketType)
		if err != nil {
			return err
		}
		seats = tt.Seats
		return nil
	}))
	return seats
}

func TestRunExpirationSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("expires unpaid transaction and restores resources", func(t *testing.T) {
		f := newSweepFixture(t)
		_, err := f.ledger.Grant(ctx, buyerID, 10_000, baseTime.Add(24*time.Hour))
		require.NoError(t, err)
		tx := f.create(t, 2, 10_000)
		require.Equal(t, 18, f.seats(t))

		f.clock.Set(tx.ExpiresAt.Add(time.Minute))
		report, err := f.sweeper.RunExpirationSweep(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, report.Expired)
		assert.Equal(t, 0, report.Failed)
		assert.Equal(t, model.TransactionStatusExpired, f.status(t, tx.ID))
		assert.Equal(t, 20, f.seats(t))

		var batches []*model.PointBatch
		require.NoError(t, f.store.View(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
			batches, err = uow.PointBatches().ListByUserID(ctx, buyerID)
			return err
		}))
		require.Len(t, batches, 2)
		assert.Equal(t, int64(10_000), batches[1].Amount)
		assert.Equal(t, 1, f.notifier.count(model.NotificationExpired))
	})

	t.Run("reminds once inside the window", func(t *testing.T) {
		f := newSweepFixture(t)
		tx := f.create(t, 1, 0)
		f.create(t, 1, 0)

		// 距離到期 60 分鐘，落在 45~75 分鐘的提醒區間
		f.clock.Set(tx.ExpiresAt.Add(-60 * time.Minute))
		report, err := f.sweeper.RunExpirationSweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Reminded)

		report, err = f.sweeper.RunExpirationSweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, report.Reminded)
		assert.Equal(t, 2, f.notifier.count(model.NotificationReminder))
	})

	t.Run("no reminder outside the window", func(t *testing.T) {
		f := newSweepFixture(t)
		tx := f.create(t, 1, 0)

		f.clock.Set(tx.ExpiresAt.Add(-90 * time.Minute))
		report, err := f.sweeper.RunExpirationSweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, report.Reminded)
		assert.Equal(t, model.TransactionStatusWaitingPayment, f.status(t, tx.ID))
	})

	t.Run("cancels after organizer timeout but not accepted ones", func(t *testing.T) {
		f := newSweepFixture(t)
		waiting := f.create(t, 1, 0)
		accepted := f.create(t, 1, 0)
		for _, id := range []int64{waiting.ID, accepted.ID} {
			_, err := f.svc.UploadPaymentProof(ctx, model.UploadPaymentProofRequest{TransactionID: id, UserID: buyerID, PaymentProof: "proof.png"})
			require.NoError(t, err)
		}
		_, err := f.svc.AcceptTransaction(ctx, accepted.ID, organizerID)
		require.NoError(t, err)

		f.clock.Advance(f.cfg.OrganizerResponseWindow + time.Minute)
		report, err := f.sweeper.RunExpirationSweep(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, report.Cancelled)
		assert.Equal(t, model.TransactionStatusCancelled, f.status(t, waiting.ID))
		assert.Equal(t, model.TransactionStatusDone, f.status(t, accepted.ID))
		assert.Equal(t, 19, f.seats(t))
	})

	t.Run("nothing to do", func(t *testing.T) {
		f := newSweepFixture(t)
		report, err := f.sweeper.RunExpirationSweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, worker.SweepReport{}, report)
	})
}

// flakyCoordinator 模擬單筆失敗與競態 (已被主辦方處理)
type flakyCoordinator struct {
	service.RollbackCoordinator
	failID  int64
	raceID  int64
	visited []int64
}

func (c *flakyCoordinator) Rollback(ctx context.Context, id int64, reason model.TransactionStatus) (*model.RollbackResult, error) {
	c.visited = append(c.visited, id)
	switch id {
	case c.failID:
		return nil, errors.New("database hiccup")
	case c.raceID:
		return nil, apperrors.InvalidTransition(string(model.TransactionStatusDone), string(reason))
	}
	return c.RollbackCoordinator.Rollback(ctx, id, reason)
}

func TestRunExpirationSweep_ItemFailuresDoNotStopTheScan(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t)
	first := f.create(t, 1, 0)
	second := f.create(t, 1, 0)
	third := f.create(t, 1, 0)

	coordinator := &flakyCoordinator{RollbackCoordinator: f.coordinator, failID: first.ID, raceID: second.ID}
	sweeper := worker.NewExpirationSweeper(f.store, coordinator, f.notifier, f.clock, f.cfg)

	f.clock.Advance(3 * time.Hour)
	report, err := sweeper.RunExpirationSweep(ctx)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int64{first.ID, second.ID, third.ID}, coordinator.visited)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, model.TransactionStatusWaitingPayment, f.status(t, first.ID))
	assert.Equal(t, model.TransactionStatusExpired, f.status(t, third.ID))
}
