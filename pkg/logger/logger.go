package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	L     *zap.Logger
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "ts"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = level
	var err error
	L, err = config.Build()
	if err != nil {
		panic(err)
	}
}

// WithComponent 回傳帶有 component 欄位的 logger (service、rollback、sweeper、mq、handler ...)
func WithComponent(component string) *zap.Logger {
	return L.With(zap.String("component", component))
}

// SetLevel 動態調整等級，無法解析時維持原等級
func SetLevel(text string) error {
	l, err := zapcore.ParseLevel(text)
	if err != nil {
		return err
	}
	level.SetLevel(l)
	return nil
}

func Sync() {
	_ = L.Sync()
}
