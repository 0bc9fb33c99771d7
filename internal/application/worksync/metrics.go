package worksync

import (
	"context"
	"time"
)

// Metrics receives sync counters. The telemetry package provides the OpenTelemetry implementation.
type Metrics interface {
	RecordPush(ctx context.Context, entityType string, succeeded, failed int)
	RecordWebhook(ctx context.Context, outcome string)
	RecordLinksRemoved(ctx context.Context, reason string, n int)
	RecordSweep(ctx context.Context, elapsed time.Duration, companies, failedCompanies int)
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) RecordPush(context.Context, string, int, int)         {}
func (NopMetrics) RecordWebhook(context.Context, string)                {}
func (NopMetrics) RecordLinksRemoved(context.Context, string, int)      {}
func (NopMetrics) RecordSweep(context.Context, time.Duration, int, int) {}

var _ Metrics = NopMetrics{}
