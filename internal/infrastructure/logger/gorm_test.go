package logger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGorm(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func query(sql string) func() (string, int64) {
	return func() (string, int64) { return sql, 1 }
}

func TestGormLogger_Trace(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Error)
		gl.Trace(context.Background(), time.Now(), query("UPDATE tasks SET status = 'done'"), errors.New("boom"))

		require.Equal(t, 1, recorded.Len())
		assert.Equal(t, "SQL Error", recorded.All()[0].Message)
	})

	t.Run("record not found is ignored", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Info)
		gl.Trace(context.Background(), time.Now(), query("SELECT 1"), gormlogger.ErrRecordNotFound)

		require.Equal(t, 1, recorded.Len())
		assert.Equal(t, "SQL Query", recorded.All()[0].Message)
	})

	t.Run("slow query", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Warn, WithSlowThreshold(time.Millisecond))
		gl.Trace(context.Background(), time.Now().Add(-time.Second), query("SELECT * FROM clients"), nil)

		require.Equal(t, 1, recorded.Len())
		assert.Equal(t, zapcore.WarnLevel, recorded.All()[0].Level)
		assert.Contains(t, recorded.All()[0].Message, "SLOW SQL")
	})

	t.Run("normal query only at info", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Warn)
		gl.Trace(context.Background(), time.Now(), query("SELECT 1"), nil)
		assert.Equal(t, 0, recorded.Len())
	})

	t.Run("silent", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Silent)
		gl.Trace(context.Background(), time.Now(), query("SELECT 1"), errors.New("boom"))
		assert.Equal(t, 0, recorded.Len())
	})

	t.Run("context ids and truncation", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Info, WithMaxSQLLength(10))
		ctx := WithCompanyID(WithRequestID(context.Background(), "req-1"), "company-9")
		gl.Trace(ctx, time.Now(), query(strings.Repeat("x", 50)), nil)

		require.Equal(t, 1, recorded.Len())
		fields := recorded.All()[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "company-9", fields["company_id"])
		assert.Equal(t, "xxxxxxxxxx...(truncated)", fields["sql"])
	})
}

func TestGormLogger_LogMode(t *testing.T) {
	gl, recorded := newObservedGorm(gormlogger.Silent)
	loud := gl.LogMode(gormlogger.Info)

	loud.Info(context.Background(), "migrated %d tables", 4)
	gl.Info(context.Background(), "suppressed")

	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "migrated 4 tables", recorded.All()[0].Message)
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("unknown"))
}

var _ gormlogger.Interface = (*GormLogger)(nil)
