package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// SyncMetrics records sync engine, webhook and reconciliation activity
type SyncMetrics struct {
	pushLinks      *Counter
	webhookEvents  *Counter
	linksRemoved   *Counter
	sweepCompanies *Counter
	sweepDuration  *Histogram
}

// NewSyncMetrics registers the sync instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	var (
		m   SyncMetrics
		err error
	)
	if m.pushLinks, err = NewCounter(meter, "crm_sync_push_links_total", "Linked issues pushed, by result", "{link}"); err != nil {
		return nil, err
	}
	if m.webhookEvents, err = NewCounter(meter, "crm_sync_webhook_events_total", "Webhook deliveries, by outcome", "{event}"); err != nil {
		return nil, err
	}
	if m.linksRemoved, err = NewCounter(meter, "crm_sync_links_removed_total", "Links dropped, by reason", "{link}"); err != nil {
		return nil, err
	}
	if m.sweepCompanies, err = NewCounter(meter, "crm_sync_sweep_companies_total", "Companies reconciled by sweeps, by result", "{company}"); err != nil {
		return nil, err
	}
	m.sweepDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "crm_sync_sweep_duration_seconds",
		Description: "Duration of full reconciliation sweeps",
		Unit:        "s",
		Boundaries:  SweepDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *SyncMetrics) RecordPush(ctx context.Context, entityType string, succeeded, failed int) {
	if succeeded > 0 {
		m.pushLinks.Add(ctx, int64(succeeded), AttrEntityType.String(entityType), AttrResult.String("success"))
	}
	if failed > 0 {
		m.pushLinks.Add(ctx, int64(failed), AttrEntityType.String(entityType), AttrResult.String("failure"))
	}
}

func (m *SyncMetrics) RecordWebhook(ctx context.Context, outcome string) {
	m.webhookEvents.Inc(ctx, AttrOutcome.String(outcome))
}

func (m *SyncMetrics) RecordLinksRemoved(ctx context.Context, reason string, n int) {
	if n > 0 {
		m.linksRemoved.Add(ctx, int64(n), AttrReason.String(reason))
	}
}

func (m *SyncMetrics) RecordSweep(ctx context.Context, elapsed time.Duration, companies, failedCompanies int) {
	m.sweepDuration.RecordDuration(ctx, elapsed)
	if ok := companies - failedCompanies; ok > 0 {
		m.sweepCompanies.Add(ctx, int64(ok), AttrResult.String("success"))
	}
	if failedCompanies > 0 {
		m.sweepCompanies.Add(ctx, int64(failedCompanies), AttrResult.String("failure"))
	}
}
