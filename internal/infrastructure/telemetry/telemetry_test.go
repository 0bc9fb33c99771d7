package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/crm/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ==================== Providers ====================

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), Config{ServiceName: "crm-sync"}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp, err := NewMeterProvider(context.Background(), MetricsConfig{ServiceName: "crm-sync"}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.TelemetryConfig{
		Enabled:           true,
		CollectorEndpoint: "otel:4317",
		SamplingRatio:     0.25,
		ServiceName:       "crm-sync",
		Insecure:          true,
	})

	assert.Equal(t, Config{Enabled: true, CollectorEndpoint: "otel:4317", SamplingRatio: 0.25, ServiceName: "crm-sync", Insecure: true}, cfg)
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, newSampler(1.5).Description(), "AlwaysOnSampler")
	assert.Contains(t, newSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, newSampler(0.5).Description(), "TraceIDRatioBased{0.5}")
}

// ==================== Sync metrics ====================

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)

	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestSyncMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := NewSyncMetrics(provider.Meter("crm-sync"))
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordPush(ctx, "task", 2, 1)
	m.RecordPush(ctx, "task", 1, 0)
	m.RecordWebhook(ctx, "applied")
	m.RecordWebhook(ctx, "applied")
	m.RecordWebhook(ctx, "duplicate")
	m.RecordLinksRemoved(ctx, "orphaned", 3)
	m.RecordLinksRemoved(ctx, "orphaned", 0)
	m.RecordSweep(ctx, 2*time.Second, 5, 1)

	got := collect(t, reader)

	assert.Equal(t, int64(3), sumFor(t, got["crm_sync_push_links_total"], AttrEntityType.String("task"), AttrResult.String("success")))
	assert.Equal(t, int64(1), sumFor(t, got["crm_sync_push_links_total"], AttrEntityType.String("task"), AttrResult.String("failure")))
	assert.Equal(t, int64(2), sumFor(t, got["crm_sync_webhook_events_total"], AttrOutcome.String("applied")))
	assert.Equal(t, int64(1), sumFor(t, got["crm_sync_webhook_events_total"], AttrOutcome.String("duplicate")))
	assert.Equal(t, int64(3), sumFor(t, got["crm_sync_links_removed_total"], AttrReason.String("orphaned")))
	assert.Equal(t, int64(4), sumFor(t, got["crm_sync_sweep_companies_total"], AttrResult.String("success")))
	assert.Equal(t, int64(1), sumFor(t, got["crm_sync_sweep_companies_total"], AttrResult.String("failure")))

	hist, ok := got["crm_sync_sweep_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 2.0, hist.DataPoints[0].Sum, 0.001)
}

// ==================== DB tracing ====================

type tracedRow struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func setupTracedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	return db
}

func useSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestRegisterDBTracing_Disabled(t *testing.T) {
	recorder := useSpanRecorder(t)
	db := setupTracedDB(t)

	require.NoError(t, RegisterDBTracing(db, DefaultDBTracingConfig(), zap.NewNop()))
	require.NoError(t, db.WithContext(context.Background()).Create(&tracedRow{Name: "a"}).Error)

	assert.Empty(t, recorder.Ended())
}

func TestRegisterDBTracing_Enabled(t *testing.T) {
	recorder := useSpanRecorder(t)
	db := setupTracedDB(t)

	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	require.NoError(t, RegisterDBTracing(db, cfg, zap.NewNop()))

	ctx := context.Background()
	require.NoError(t, db.WithContext(ctx).Create(&tracedRow{Name: "a"}).Error)
	var rows []tracedRow
	require.NoError(t, db.WithContext(ctx).Find(&rows).Error)

	assert.GreaterOrEqual(t, len(recorder.Ended()), 2)
}
