package worksync

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/crm/backend/internal/domain/worksync"
	"github.com/crm/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxReportErrors caps the error strings kept on a report
const maxReportErrors = 20

// CompanyReport summarizes one company's reconciliation pass
type CompanyReport struct {
	CompanyID       uuid.UUID     `json:"company_id"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	Entities        int           `json:"entities"`
	Links           int           `json:"links"`
	Transitioned    int           `json:"transitioned"`
	AlreadyInTarget int           `json:"already_in_target"`
	Skipped         int           `json:"skipped"`
	FailedLinks     int           `json:"failed_links"`
	LinksRemoved    int           `json:"links_removed,omitempty"`
	Errors          []string      `json:"errors,omitempty"`
}

func (r *CompanyReport) addError(msg string) {
	if len(r.Errors) < maxReportErrors {
		r.Errors = append(r.Errors, msg)
	}
}

// SweepReport summarizes a pass over every active company
type SweepReport struct {
	StartedAt       time.Time       `json:"started_at"`
	Duration        time.Duration   `json:"duration"`
	Companies       []CompanyReport `json:"companies"`
	FailedCompanies int             `json:"failed_companies"`
	Interrupted     bool            `json:"interrupted,omitempty"`
}

// Reconciler re-pushes stored CRM status for every linked entity of a company
type Reconciler struct {
	entities       worksync.EntityRepository
	companies      worksync.CompanyProvider
	engine         *SyncEngine
	cleaner        *OrphanCleaner
	cleanupOnSweep bool
	logger         *zap.Logger
	metrics        Metrics
}

// ReconcilerOption configures a Reconciler
type ReconcilerOption func(*Reconciler)

// WithCleanupOnSweep runs the orphan cleaner after each company in a sweep
func WithCleanupOnSweep(cleaner *OrphanCleaner) ReconcilerOption {
	return func(r *Reconciler) {
		r.cleaner = cleaner
		r.cleanupOnSweep = cleaner != nil
	}
}

// WithReconcilerMetrics sets the metrics sink
func WithReconcilerMetrics(m Metrics) ReconcilerOption {
	return func(r *Reconciler) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewReconciler creates a Reconciler
func NewReconciler(entities worksync.EntityRepository, companies worksync.CompanyProvider, engine *SyncEngine, log *zap.Logger, opts ...ReconcilerOption) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Reconciler{
		entities:  entities,
		companies: companies,
		engine:    engine,
		logger:    log.Named("reconciler"),
		metrics:   NopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SyncCompany runs one synchronous pass for companyID. Per-link failures end up
// in the report; only a failure to load the entities is returned as an error.
func (r *Reconciler) SyncCompany(ctx context.Context, companyID uuid.UUID) (*CompanyReport, error) {
	ctx = logger.WithCompanyID(ctx, companyID.String())
	report := &CompanyReport{CompanyID: companyID, StartedAt: time.Now()}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	entities, err := r.entities.ListLinked(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list linked entities: %w", err)
	}

	for _, entity := range entities {
		if err := ctx.Err(); err != nil {
			report.addError(err.Error())
			break
		}
		report.Entities++
		report.Links += len(entity.Links)

		result := r.engine.Reconcile(ctx, entity)
		if result.Skipped {
			report.Skipped++
			continue
		}
		for _, o := range result.Outcomes {
			switch {
			case o.Err != nil:
				report.FailedLinks++
				report.addError(fmt.Sprintf("%s %s %s: %v", entity.Type, entity.ID, o.IssueKey, o.Err))
			case o.AlreadyInTarget:
				report.AlreadyInTarget++
			case o.Transitioned:
				report.Transitioned++
			}
		}
	}

	logger.WithLogger(ctx, r.logger).Info("Company reconciled",
		zap.Int("entities", report.Entities),
		zap.Int("links", report.Links),
		zap.Int("transitioned", report.Transitioned),
		zap.Int("already_in_target", report.AlreadyInTarget),
		zap.Int("failed_links", report.FailedLinks),
	)
	return report, nil
}

// Sweep reconciles every active company in sequence. A failing or panicking
// company is logged and the sweep moves on. Cancelling ctx stops the sweep
// before the next company starts; the company in progress runs to completion.
func (r *Reconciler) Sweep(ctx context.Context) (*SweepReport, error) {
	sweep := &SweepReport{StartedAt: time.Now()}
	work := context.WithoutCancel(ctx)

	companies, err := r.companies.ListActiveCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active companies: %w", err)
	}

	for _, company := range companies {
		if ctx.Err() != nil {
			sweep.Interrupted = true
			break
		}
		report, err := r.syncCompanySafely(work, company.ID)
		if err != nil {
			sweep.FailedCompanies++
			r.logger.Error("Company reconciliation failed",
				zap.String("company_id", company.ID.String()),
				zap.Error(err),
			)
			report = &CompanyReport{CompanyID: company.ID, StartedAt: time.Now()}
			report.addError(err.Error())
		}
		if r.cleanupOnSweep && ctx.Err() == nil {
			r.cleanupSafely(work, company.ID, report)
		}
		sweep.Companies = append(sweep.Companies, *report)
	}

	sweep.Duration = time.Since(sweep.StartedAt)
	r.metrics.RecordSweep(ctx, sweep.Duration, len(sweep.Companies), sweep.FailedCompanies)
	return sweep, nil
}

func (r *Reconciler) syncCompanySafely(ctx context.Context, companyID uuid.UUID) (report *CompanyReport, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Panic during company reconciliation",
				zap.String("company_id", companyID.String()),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			report, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	return r.SyncCompany(ctx, companyID)
}

func (r *Reconciler) cleanupSafely(ctx context.Context, companyID uuid.UUID, report *CompanyReport) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Panic during orphan cleanup", zap.String("company_id", companyID.String()), zap.Any("panic", p))
			report.addError(fmt.Sprintf("cleanup panic: %v", p))
		}
	}()
	removed, err := r.cleaner.CleanupCompany(ctx, companyID)
	if err != nil {
		report.addError("cleanup: " + err.Error())
		return
	}
	report.LinksRemoved = removed
}
