package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNopDoesNotPanic(t *testing.T) {
	log := Nop()
	log.Debug("msg")
	log.Info("msg", zap.String("k", "v"))
	log.Warn("msg")
	log.Error("msg")
}

func TestNewAcceptsEveryLevelName(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		log := New(level)
		require.NotNil(t, log)
		log.Info("constructed at level " + level)
	}
}

func TestWithReturnsIndependentLogger(t *testing.T) {
	base := Nop()
	scoped := base.With(zap.String("symbol", "BTCUSDT"))
	require.NotNil(t, scoped)
	scoped.Info("scoped message")
}
