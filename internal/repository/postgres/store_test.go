package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ticket-transaction-engine/config"
	"ticket-transaction-engine/internal/model"
	"ticket-transaction-engine/internal/repository"
	"ticket-transaction-engine/internal/repository/postgres"
	"ticket-transaction-engine/internal/service"
	apperrors "ticket-transaction-engine/pkg/app_errors"
	"ticket-transaction-engine/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.NotificationKind, int64, map[string]string) {}

func seatsOf(t *testing.T, store repository.Store, id int64) int {
	t.Helper()
	var seats int
	require.NoError(t, store.View(context.Background(), func(ctx context.Context, uow repository.UnitOfWork) error {
		tt, err := uow.TicketTypes().FindByID(ctx, id)
		if err != nil {
			return err
		}
		seats = tt.Seats
		return nil
	}))
	return seats
}

func TestStore_WithAtomicUnit(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewStore(testDB)

	t.Run("error rolls back every write", func(t *testing.T) {
		truncateAll(t)
		s := seedEvent(t, store, 10)
		boom := errors.New("boom")

		err := store.WithAtomicUnit(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
			if err := uow.TicketTypes().DecrementSeats(ctx, s.ticketType.ID, 4); err != nil {
				return err
			}
			if _, err := uow.PointBatches().Create(ctx, &model.PointBatch{UserID: 7, Amount: 10, ExpiresAt: now().Add(time.Hour)}); err != nil {
				return err
			}
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 10, seatsOf(t, store, s.ticketType.ID))
		var batches []*model.PointBatch
		require.NoError(t, store.View(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
			batches, err = uow.PointBatches().ListByUserID(ctx, 7)
			return err
		}))
		assert.Empty(t, batches)
	})
}

func TestTicketTypeRepository_Seats(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewStore(testDB)
	truncateAll(t)
	s := seedEvent(t, store, 3)

	err := store.WithAtomicUnit(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		return uow.TicketTypes().DecrementSeats(ctx, s.ticketType.ID, 4)
	})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientSeats)

	err = store.WithAtomicUnit(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		return uow.TicketTypes().DecrementSeats(ctx, 9999, 1)
	})
	assert.ErrorIs(t, err, apperrors.ErrTicketTypeNotFound)

	require.NoError(t, store.WithAtomicUnit(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		if err := uow.TicketTypes().DecrementSeats(ctx, s.ticketType.ID, 3); err != nil {
			return err
		}
		return uow.TicketTypes().IncrementSeats(ctx, s.ticketType.ID, 1)
	}))
	assert.Equal(t, 1, seatsOf(t, store, s.ticketType.ID))
}

func TestPointBatchRepository_ListSpendableWithLock(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewStore(testDB)
	truncateAll(t)
	base := now()

	require.NoError(t, store.WithAtomicUnit(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		for _, b := range []model.PointBatch{
			{UserID: 7, Amount: 300, ExpiresAt: base.Add(72 * time.Hour)},
			{UserID: 7, Amount: 100, ExpiresAt: base.Add(24 * time.Hour)},
			{UserID: 7, Amount: 500, ExpiresAt: base.Add(-time.Hour)},
			{UserID: 7, Amount: 0, ExpiresAt: base.Add(48 * time.Hour), IsRedeemed: true},
			{UserID: 8, Amount: 900, ExpiresAt: base.Add(24 * time.Hour)},
		} {
			if _, err := uow.PointBatches().Create(ctx, &b); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, store.WithAtomicUnit(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		spendable, err := uow.PointBatches().ListSpendableWithLock(ctx, 7, base)
		require.NoError(t, err)
		require.Len(t, spendable, 2)
		assert.Equal(t, int64(100), spendable[0].Amount)
		assert.Equal(t, int64(300), spendable[1].Amount)
		return nil
	}))
}

func TestTransactionRepository_Guards(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewStore(testDB)
	truncateAll(t)
	s := seedEvent(t, store, 10)
	base := now()

	var tx *model.Transaction
	require.NoError(t, store.WithAtomicUnit(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		var err error
		tx, err = uow.Transactions().Create(ctx, &model.Transaction{
			UserID: 7, EventID: s.event.ID, TicketTypeID: s.ticketType.ID, Qty: 1,
			TotalPrice: 100_000, FinalPrice: 100_000,
			Status:    model.TransactionStatusWaitingPayment,
			ExpiresAt: base.Add(time.Hour),
		})
		return err
	}))

	t.Run("update with stale expected status fails", func(t *testing.T) {
		err := store.WithAtomicUnit(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
			stale := *tx
			stale.Status = model.TransactionStatusDone
			_, err := uow.Transactions().Update(ctx, &stale, model.TransactionStatusWaitingConfirmation)
			return err
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	})

	t.Run("reminder is marked once", func(t *testing.T) {
		var due []*model.Transaction
		require.NoError(t, store.View(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
			var err error
			due, err = uow.Transactions().ListDueForReminder(ctx, base.Add(45*time.Minute), base.Add(75*time.Minute))
			return err
		}))
		require.Len(t, due, 1)

		for i, want := range []bool{true, false} {
			var marked bool
			require.NoError(t, store.WithAtomicUnit(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
				var err error
				marked, err = uow.Transactions().MarkReminderSent(ctx, tx.ID)
				return err
			}))
			assert.Equal(t, want, marked, "attempt %d", i+1)
		}
	})

	t.Run("payment expired scan", func(t *testing.T) {
		var expired []*model.Transaction
		require.NoError(t, store.View(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
			var err error
			expired, err = uow.Transactions().ListPaymentExpired(ctx, base.Add(2*time.Hour))
			return err
		}))
		require.Len(t, expired, 1)
		assert.Equal(t, tx.ID, expired[0].ID)
	})
}

func TestConcurrentCreate_LastSeats(t *testing.T) {
	truncateAll(t)
	store := postgres.NewStore(testDB)
	const buyers = 8
	s := seedEvent(t, store, buyers-1)

	clk := clock.New()
	cfg := config.DefaultEngineConfig()
	inventory := service.NewInventoryManager()
	ledger := service.NewPointsLedger(store, clk, cfg.RestoredPointsTTL)
	coordinator := service.NewRollbackCoordinator(store, inventory, ledger, nopNotifier{}, clk)
	svc := service.NewTransactionService(store, inventory, ledger, coordinator, nopNotifier{}, clk, cfg)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		errs  []error
		okays int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := svc.CreateTransaction(context.Background(), model.CreateTransactionRequest{
				UserID: userID, EventID: s.event.ID, TicketTypeID: s.ticketType.ID, Qty: 1,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			okays++
		}(int64(1000 + i))
	}
	wg.Wait()

	assert.Equal(t, buyers-1, okays)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], apperrors.ErrInsufficientSeats)
	assert.Equal(t, 0, seatsOf(t, store, s.ticketType.ID))
}
