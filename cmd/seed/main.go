package main

import (
	"context"
	"os/signal"
	"syscall"

	"ticket-transaction-engine/config"
	"ticket-transaction-engine/internal/database"
	"ticket-transaction-engine/internal/repository/postgres"
	"ticket-transaction-engine/internal/seed"
	"ticket-transaction-engine/internal/service"
	"ticket-transaction-engine/pkg/clock"
	"ticket-transaction-engine/pkg/logger"

	"go.uber.org/zap"
)

// 本機開發用：建立 demo 活動、票種、促銷碼、優惠券與推薦點數
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	log := logger.WithComponent("seed")
	defer logger.Sync()

	pool, err := database.InitDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatal("Failed to ensure schema", zap.Error(err))
	}

	clk := clock.New()
	store := postgres.NewStore(pool)
	ledger := service.NewPointsLedger(store, clk, cfg.Engine.RestoredPointsTTL)

	res, err := seed.Run(ctx, store, ledger, clk, seed.DemoOptions())
	if err != nil {
		log.Fatal("Failed to seed demo data", zap.Error(err))
	}

	for _, tt := range res.TicketTypes {
		log.Info("ticket type ready",
			zap.Int64("event_id", res.Event.ID),
			zap.Int64("ticket_type_id", tt.ID),
			zap.String("name", tt.Name),
			zap.Int("seats", tt.Seats),
		)
	}
}
