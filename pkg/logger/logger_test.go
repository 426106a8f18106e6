package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appctx "storeledger/internal/core/context"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{zap.New(core).Sugar()}, logs
}

func TestInfo_AddsRequestAndActor(t *testing.T) {
	l, logs := observed()
	ctx := WithLogger(context.Background(), l)
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{TraceID: "t-1", RequestID: "r-1"})
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: "u-1", Role: appctx.RoleClient, ClientID: "c-1"})

	Info(ctx, "receipt created", "id", "x")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, "r-1", fields["request_id"])
	assert.Equal(t, "u-1", fields["user_id"])
	assert.Equal(t, "c-1", fields["client_id"])
	assert.Equal(t, "x", fields["id"])
}

func TestWithContext_NoFieldsKeepsLogger(t *testing.T) {
	l, _ := observed()
	assert.Same(t, l, l.WithContext(context.Background()))
}

func TestWithComponent(t *testing.T) {
	l, logs := observed()
	l.WithComponent("outbox").Infow("claimed", "count", 3)

	entry := logs.All()[0]
	assert.Equal(t, "outbox", entry.LoggerName)
	assert.Equal(t, "outbox", entry.ContextMap()["component"])
}

func TestZapConfig_UnknownLevelFallsBackToInfo(t *testing.T) {
	zc := zapConfig(Config{Level: "loud"})
	assert.Equal(t, zapcore.InfoLevel, zc.Level.Level())
}
