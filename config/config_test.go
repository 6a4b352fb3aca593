package config_test

import (
	"testing"
	"time"

	"ticket-transaction-engine/config"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := config.LoadConfig()

	assert.Equal(t, 2*time.Hour, cfg.Engine.PaymentWindow)
	assert.Equal(t, 72*time.Hour, cfg.Engine.OrganizerResponseWindow)
	assert.Equal(t, 45*time.Minute, cfg.Engine.ReminderWindowStart)
	assert.Equal(t, 75*time.Minute, cfg.Engine.ReminderWindowEnd)
	assert.Equal(t, 90*24*time.Hour, cfg.Engine.RestoredPointsTTL)
	assert.Equal(t, 3, cfg.Engine.MaxTicketsPerTransaction)
	assert.Equal(t, 15*time.Minute, cfg.Sweeper.Interval)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("PAYMENT_WINDOW", "30m")
	t.Setenv("MAX_TICKETS_PER_TRANSACTION", "5")
	t.Setenv("SWEEP_LOCK_ENABLED", "false")
	t.Setenv("NOTIFICATION_TRANSPORT", "amqp")

	cfg := config.LoadConfig()

	assert.Equal(t, 30*time.Minute, cfg.Engine.PaymentWindow)
	assert.Equal(t, 5, cfg.Engine.MaxTicketsPerTransaction)
	assert.False(t, cfg.Sweeper.LockEnabled)
	assert.Equal(t, "amqp", cfg.Notification.Transport)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "soon")
	t.Setenv("MAX_TICKETS_PER_TRANSACTION", "many")

	cfg := config.LoadConfig()

	assert.Equal(t, 15*time.Minute, cfg.Sweeper.Interval)
	assert.Equal(t, 3, cfg.Engine.MaxTicketsPerTransaction)
}
