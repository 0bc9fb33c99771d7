package scheduler

import (
	"context"
	"sync"
	"time"

	appsync "github.com/crm/backend/internal/application/worksync"
	"github.com/crm/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const sweepFlightKey = "sweep"

// Reconciler is the work the scheduler drives
type Reconciler interface {
	SyncCompany(ctx context.Context, companyID uuid.UUID) (*appsync.CompanyReport, error)
	Sweep(ctx context.Context) (*appsync.SweepReport, error)
}

// ReconciliationSchedulerConfig holds configuration for the reconciliation scheduler
type ReconciliationSchedulerConfig struct {
	// Enabled determines if the periodic loop runs at all
	Enabled bool

	// Interval between sweep starts; the first sweep runs on Start
	Interval time.Duration

	// HistorySize bounds the number of sweep summaries kept for Status
	HistorySize int
}

// DefaultReconciliationSchedulerConfig returns default configuration
func DefaultReconciliationSchedulerConfig() ReconciliationSchedulerConfig {
	return ReconciliationSchedulerConfig{
		Enabled:     true,
		Interval:    5 * time.Minute,
		HistorySize: 20,
	}
}

// Validate validates the configuration
func (c ReconciliationSchedulerConfig) Validate() error {
	if c.Interval < time.Second {
		return ErrInvalidConfig
	}
	if c.HistorySize < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// SweepSummary is the compact record of one sweep kept in history
type SweepSummary struct {
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	Trigger         string        `json:"trigger"`
	Companies       int           `json:"companies"`
	FailedCompanies int           `json:"failed_companies"`
	Transitioned    int           `json:"transitioned"`
	FailedLinks     int           `json:"failed_links"`
	LinksRemoved    int           `json:"links_removed"`
	Interrupted     bool          `json:"interrupted,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// Sweep triggers
const (
	TriggerTick   = "tick"
	TriggerManual = "manual"
)

func summarize(trigger string, startedAt time.Time, report *appsync.SweepReport, err error) SweepSummary {
	summary := SweepSummary{StartedAt: startedAt, Trigger: trigger}
	if err != nil {
		summary.Duration = time.Since(startedAt)
		summary.Error = err.Error()
		return summary
	}
	summary.StartedAt = report.StartedAt
	summary.Duration = report.Duration
	summary.Companies = len(report.Companies)
	summary.FailedCompanies = report.FailedCompanies
	summary.Interrupted = report.Interrupted
	for _, c := range report.Companies {
		summary.Transitioned += c.Transitioned
		summary.FailedLinks += c.FailedLinks
		summary.LinksRemoved += c.LinksRemoved
	}
	return summary
}

// Status is a snapshot of the scheduler state
type Status struct {
	Running    bool           `json:"running"`
	Interval   time.Duration  `json:"interval"`
	LastTickAt *time.Time     `json:"last_tick_at,omitempty"`
	LastSweep  *SweepSummary  `json:"last_sweep,omitempty"`
	History    []SweepSummary `json:"history"`
}

// ReconciliationScheduler runs periodic reconciliation sweeps and on-demand
// company passes. It is owned by the caller; there is no package-level instance.
type ReconciliationScheduler struct {
	reconciler Reconciler
	config     ReconciliationSchedulerConfig
	logger     *zap.Logger
	flights    singleflight.Group

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	statusMu   sync.RWMutex
	lastTickAt time.Time
	history    []SweepSummary
}

// NewReconciliationScheduler creates a new reconciliation scheduler
func NewReconciliationScheduler(
	reconciler Reconciler,
	logger *zap.Logger,
	config ReconciliationSchedulerConfig,
) *ReconciliationScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultReconciliationSchedulerConfig().Interval
	}
	if config.HistorySize < 0 {
		config.HistorySize = 0
	}
	return &ReconciliationScheduler{
		reconciler: reconciler,
		config:     config,
		logger:     logger.Named("reconciliation_scheduler"),
	}
}

// Start starts the periodic loop. It returns true if the scheduler was
// already running, in which case nothing changes.
func (s *ReconciliationScheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		s.logger.Info("Reconciliation scheduler already running")
		return true
	}
	if !s.config.Enabled {
		s.logger.Info("Reconciliation scheduler is disabled")
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.isRunning = true

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Reconciliation scheduler started", zap.Duration("interval", s.config.Interval))
	return false
}

// Stop stops the loop and waits for an in-flight sweep to reach a company
// boundary, or for ctx to expire. It returns true if the scheduler was running.
func (s *ReconciliationScheduler) Stop(ctx context.Context) bool {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return false
	}
	s.isRunning = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Reconciliation scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("Reconciliation scheduler stop timed out")
	}
	return true
}

// IsRunning reports whether the periodic loop is active
func (s *ReconciliationScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *ReconciliationScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Reconciliation loop stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *ReconciliationScheduler) tick(ctx context.Context) {
	s.statusMu.Lock()
	s.lastTickAt = time.Now()
	s.statusMu.Unlock()

	_, err, shared := s.flights.Do(sweepFlightKey, func() (any, error) {
		return s.runSweep(ctx, TriggerTick)
	})
	if shared {
		s.logger.Debug("Tick joined an in-flight sweep")
	}
	if err != nil {
		s.logger.Error("Reconciliation sweep failed", zap.Error(err))
	}
}

// SweepNow runs a full sweep synchronously. A call made while another sweep
// is in flight waits for and shares that sweep's result.
func (s *ReconciliationScheduler) SweepNow(ctx context.Context) (*appsync.SweepReport, error) {
	ch := s.flights.DoChan(sweepFlightKey, func() (any, error) {
		return s.runSweep(context.WithoutCancel(ctx), TriggerManual)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*appsync.SweepReport), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *ReconciliationScheduler) runSweep(ctx context.Context, trigger string) (*appsync.SweepReport, error) {
	startedAt := time.Now()
	var (
		report *appsync.SweepReport
		err    error
	)
	labels := telemetry.OperationLabels(telemetry.OperationReconcileSweep, map[string]string{
		telemetry.ProfilingLabelTrigger: trigger,
	})
	telemetry.WithProfilingLabels(ctx, labels, func(ctx context.Context) {
		report, err = s.reconciler.Sweep(ctx)
	})
	s.record(summarize(trigger, startedAt, report, err))
	if err != nil {
		return nil, err
	}
	s.logger.Info("Reconciliation sweep finished",
		zap.String("trigger", trigger),
		zap.Int("companies", len(report.Companies)),
		zap.Int("failed_companies", report.FailedCompanies),
		zap.Duration("duration", report.Duration),
		zap.Bool("interrupted", report.Interrupted),
	)
	return report, nil
}

// SyncNow runs one company pass synchronously. Concurrent calls for the same
// company share a single pass. The pass keeps running if ctx is cancelled so
// that other waiters still get a result.
func (s *ReconciliationScheduler) SyncNow(ctx context.Context, companyID uuid.UUID) (*appsync.CompanyReport, error) {
	ch := s.flights.DoChan("company:"+companyID.String(), func() (any, error) {
		return s.reconciler.SyncCompany(context.WithoutCancel(ctx), companyID)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*appsync.CompanyReport), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *ReconciliationScheduler) record(summary SweepSummary) {
	if s.config.HistorySize == 0 {
		return
	}
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.history = append(s.history, summary)
	if over := len(s.history) - s.config.HistorySize; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

// Status returns the current state and a copy of the sweep history, oldest first
func (s *ReconciliationScheduler) Status() Status {
	st := Status{Running: s.IsRunning(), Interval: s.config.Interval}

	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	if !s.lastTickAt.IsZero() {
		t := s.lastTickAt
		st.LastTickAt = &t
	}
	st.History = append([]SweepSummary{}, s.history...)
	if n := len(s.history); n > 0 {
		last := s.history[n-1]
		st.LastSweep = &last
	}
	return st
}
