package worksync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crm/backend/internal/domain/worksync"
	"github.com/crm/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// StatusCommentPrefix starts the audit comment posted after each transition
const StatusCommentPrefix = "Status updated from CRM: "

// PushMode distinguishes user-driven pushes from reconciliation re-pushes
type PushMode int

const (
	// PushModeInteractive applies the transition and always comments.
	PushModeInteractive PushMode = iota
	// PushModeReconcile treats an issue already in the target status as in sync
	// and stays silent for it.
	PushModeReconcile
)

// LinkOutcome is the result of pushing to one linked issue
type LinkOutcome struct {
	IssueKey     string `json:"issue_key"`
	Transitioned bool   `json:"transitioned"`
	// AlreadyInTarget is set in reconcile mode when the transition was not
	// offered because the issue already sits in the mapped status.
	AlreadyInTarget bool  `json:"already_in_target,omitempty"`
	Err             error `json:"-"`
	CommentErr      error `json:"-"`
}

// OK reports whether the link ended up in the target status
func (o LinkOutcome) OK() bool {
	return o.Err == nil && (o.Transitioned || o.AlreadyInTarget)
}

// PushResult aggregates a status push over every link of an entity
type PushResult struct {
	Entity     worksync.EntityRef `json:"entity"`
	Status     string             `json:"status"`
	Transition string             `json:"transition,omitempty"`
	Skipped    bool               `json:"skipped"`
	SkipReason string             `json:"skip_reason,omitempty"`
	Outcomes   []LinkOutcome      `json:"outcomes"`
}

const (
	SkipReasonNoLinks  = "no_links"
	SkipReasonUnmapped = "unmapped_status"
)

// Succeeded counts links now in the target status
func (r *PushResult) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed counts links whose transition failed
func (r *PushResult) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Err joins the per-link transition errors, nil when every link succeeded
func (r *PushResult) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.IssueKey, o.Err))
		}
	}
	return errors.Join(errs...)
}

// FieldChanges lists the non-status fields that changed. Nil means unchanged.
type FieldChanges struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty"`
}

// IsEmpty reports whether no field changed
func (c FieldChanges) IsEmpty() bool {
	return c.Title == nil && c.Description == nil && c.Priority == nil
}

// FieldUpdateResult holds the comment outcome per link
type FieldUpdateResult struct {
	Entity   worksync.EntityRef `json:"entity"`
	Outcomes []LinkOutcome      `json:"outcomes"`
}

// SyncEngine pushes CRM changes to every issue linked to an entity
type SyncEngine struct {
	tracker worksync.Tracker
	mapping *worksync.StatusMapping
	logger  *zap.Logger
	metrics Metrics
}

// SyncEngineOption configures a SyncEngine
type SyncEngineOption func(*SyncEngine)

// WithEngineMetrics sets the metrics sink
func WithEngineMetrics(m Metrics) SyncEngineOption {
	return func(e *SyncEngine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// NewSyncEngine creates a SyncEngine
func NewSyncEngine(tracker worksync.Tracker, mapping *worksync.StatusMapping, log *zap.Logger, opts ...SyncEngineOption) *SyncEngine {
	if mapping == nil {
		mapping = worksync.NewDefaultStatusMapping()
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &SyncEngine{
		tracker: tracker,
		mapping: mapping,
		logger:  log.Named("sync_engine"),
		metrics: NopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PushStatus transitions every linked issue to the step mapped from newStatus
// and leaves an audit comment on each. Per-link failures are recorded in the
// result and never stop the remaining links.
func (e *SyncEngine) PushStatus(ctx context.Context, entity *worksync.SyncableEntity, newStatus string) *PushResult {
	return e.push(ctx, entity, newStatus, PushModeInteractive)
}

// Reconcile re-pushes the entity's stored status
func (e *SyncEngine) Reconcile(ctx context.Context, entity *worksync.SyncableEntity) *PushResult {
	return e.push(ctx, entity, entity.Status, PushModeReconcile)
}

func (e *SyncEngine) push(ctx context.Context, entity *worksync.SyncableEntity, newStatus string, mode PushMode) *PushResult {
	result := &PushResult{Entity: entity.Ref(), Status: newStatus}
	log := logger.WithLogger(ctx, e.logger).With(
		zap.String("entity_type", entity.Type.String()),
		zap.String("entity_id", entity.ID.String()),
		zap.String("status", newStatus),
	)

	if !entity.HasLinks() {
		result.Skipped = true
		result.SkipReason = SkipReasonNoLinks
		return result
	}

	transition, ok := e.mapping.Resolve(entity.Type, newStatus)
	if !ok {
		log.Debug("No transition mapped for status, nothing to sync")
		result.Skipped = true
		result.SkipReason = SkipReasonUnmapped
		return result
	}
	result.Transition = transition

	result.Outcomes = make([]LinkOutcome, 0, len(entity.Links))
	for _, link := range entity.Links {
		outcome := e.pushLink(ctx, log, link.IssueKey, transition, newStatus, mode)
		result.Outcomes = append(result.Outcomes, outcome)
	}

	e.metrics.RecordPush(ctx, entity.Type.String(), result.Succeeded(), result.Failed())
	return result
}

func (e *SyncEngine) pushLink(ctx context.Context, log *logger.ContextLogger, issueKey, transition, newStatus string, mode PushMode) LinkOutcome {
	outcome := LinkOutcome{IssueKey: issueKey}
	log = log.With(zap.String("issue_key", issueKey), zap.String("transition", transition))

	err := e.tracker.ExecuteTransition(ctx, issueKey, worksync.TransitionRef{Name: transition})
	switch {
	case err == nil:
		outcome.Transitioned = true
	case mode == PushModeReconcile && worksync.IsTransitionNotFound(err) && e.alreadyInTarget(ctx, log, issueKey, transition):
		outcome.AlreadyInTarget = true
		log.Debug("Issue already in target status")
		return outcome
	default:
		outcome.Err = err
		log.Warn("Failed to apply transition", zap.Error(err))
	}

	if err := e.tracker.AddComment(ctx, issueKey, StatusCommentPrefix+newStatus); err != nil {
		outcome.CommentErr = err
		log.Warn("Failed to post status comment", zap.Error(err))
	}
	return outcome
}

// alreadyInTarget reads the issue; a failed read counts as not in target.
func (e *SyncEngine) alreadyInTarget(ctx context.Context, log *logger.ContextLogger, issueKey, transition string) bool {
	issue, err := e.tracker.GetIssue(ctx, issueKey)
	if err != nil {
		log.Debug("Status lookup failed", zap.Error(err))
		return false
	}
	return strings.EqualFold(strings.TrimSpace(issue.StatusName), transition)
}

// PushFieldUpdate posts one informational comment per link summarizing the changed fields.
func (e *SyncEngine) PushFieldUpdate(ctx context.Context, entity *worksync.SyncableEntity, changes FieldChanges) *FieldUpdateResult {
	result := &FieldUpdateResult{Entity: entity.Ref()}
	if !entity.HasLinks() || changes.IsEmpty() {
		return result
	}

	text := FieldUpdateComment(changes)
	log := logger.WithLogger(ctx, e.logger).With(
		zap.String("entity_type", entity.Type.String()),
		zap.String("entity_id", entity.ID.String()),
	)
	for _, link := range entity.Links {
		outcome := LinkOutcome{IssueKey: link.IssueKey}
		if err := e.tracker.AddComment(ctx, link.IssueKey, text); err != nil {
			outcome.CommentErr = err
			log.Warn("Failed to post field update comment", zap.String("issue_key", link.IssueKey), zap.Error(err))
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result
}

// FieldUpdateComment renders the comment body for a field update
func FieldUpdateComment(changes FieldChanges) string {
	var b strings.Builder
	b.WriteString("CRM record updated:")
	write := func(label string, v *string) {
		if v == nil {
			return
		}
		value := *v
		if value == "" {
			value = "(cleared)"
		}
		b.WriteString("\n- ")
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
	}
	write("Title", changes.Title)
	write("Description", changes.Description)
	write("Priority", changes.Priority)
	return b.String()
}
