package seed_test

import (
	"context"
	"testing"
	"time"

	"ticket-transaction-engine/internal/model"
	"ticket-transaction-engine/internal/repository"
	"ticket-transaction-engine/internal/repository/memory"
	"ticket-transaction-engine/internal/seed"
	"ticket-transaction-engine/internal/service"
	apperrors "ticket-transaction-engine/pkg/app_errors"
	"ticket-transaction-engine/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	newLedger := func(store repository.Store, clk clock.Clock) *service.PointsLedger {
		return service.NewPointsLedger(store, clk, 90*24*time.Hour)
	}

	t.Run("Demo data grants referral points", func(t *testing.T) {
		store := memory.NewStore()
		clk := clock.NewManual(now)
		ledger := newLedger(store, clk)

		res, err := seed.Run(ctx, store, ledger, clk, seed.DemoOptions())
		require.NoError(t, err)

		assert.Equal(t, int64(100), res.Event.OrganizerID)
		require.Len(t, res.TicketTypes, 2)
		assert.Equal(t, res.Event.ID, res.TicketTypes[0].EventID)
		require.NotNil(t, res.Promotion)
		assert.Equal(t, now.Add(30*24*time.Hour), res.Promotion.EndDate)
		require.Len(t, res.Coupons, 1)
		assert.Equal(t, "WELCOME10", res.Coupons[0].Code)

		balance, err := ledger.Balance(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(50_000), balance)
		balance, err = ledger.Balance(ctx, 8)
		require.NoError(t, err)
		assert.Equal(t, int64(20_000), balance)
	})

	t.Run("Seeded promotion is active", func(t *testing.T) {
		store := memory.NewStore()
		clk := clock.NewManual(now)
		ledger := newLedger(store, clk)
		res, err := seed.Run(ctx, store, ledger, clk, seed.DemoOptions())
		require.NoError(t, err)

		var promo *model.Promotion
		require.NoError(t, store.View(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
			promo, err = uow.Promotions().FindByEventAndCode(ctx, res.Event.ID, "EARLYBIRD")
			return err
		}))
		assert.True(t, promo.IsActiveAt(now))
	})

	t.Run("Rerun reuses existing coupons", func(t *testing.T) {
		store := memory.NewStore()
		clk := clock.NewManual(now)
		ledger := newLedger(store, clk)

		first, err := seed.Run(ctx, store, ledger, clk, seed.DemoOptions())
		require.NoError(t, err)
		second, err := seed.Run(ctx, store, ledger, clk, seed.DemoOptions())
		require.NoError(t, err)

		assert.NotEqual(t, first.Event.ID, second.Event.ID)
		assert.Equal(t, first.Coupons[0].ID, second.Coupons[0].ID)
	})

	t.Run("Failed - invalid options leave nothing behind", func(t *testing.T) {
		store := memory.NewStore()
		clk := clock.NewManual(now)
		opts := seed.DemoOptions()
		opts.TicketTypes = nil

		_, err := seed.Run(ctx, store, newLedger(store, clk), clk, opts)
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		require.NoError(t, store.View(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
			_, err := uow.Events().FindByID(ctx, 1)
			assert.ErrorIs(t, err, apperrors.ErrEventNotFound)
			return nil
		}))
	})
}
