package worksync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crm/backend/internal/domain/shared"
	"github.com/crm/backend/internal/domain/worksync"
	"github.com/crm/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Webhook outcomes, also used as metric labels
const (
	WebhookOutcomeApplied   = "applied"
	WebhookOutcomeUnchanged = "unchanged"
	WebhookOutcomeUnlinked  = "unlinked"
	WebhookOutcomeUnmapped  = "unmapped"
	WebhookOutcomeRemoved   = "removed"
	WebhookOutcomeIgnored   = "ignored"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeMalformed = "malformed"
	WebhookOutcomeFailed    = "failed"
)

const maxStatusApplyAttempts = 3

// WebhookResult describes what a delivery did
type WebhookResult struct {
	Event          worksync.EventType  `json:"event"`
	IssueKey       string              `json:"issue_key,omitempty"`
	Outcome        string              `json:"outcome"`
	Entity         *worksync.EntityRef `json:"entity,omitempty"`
	PreviousStatus string              `json:"previous_status,omitempty"`
	NewStatus      string              `json:"new_status,omitempty"`
	Removed        int                 `json:"removed,omitempty"`
}

// WebhookService applies tracker deliveries to CRM entities
type WebhookService struct {
	entities  worksync.EntityRepository
	mapping   *worksync.StatusMapping
	store     shared.IdempotencyStore
	dedupeTTL time.Duration
	logger    *zap.Logger
	metrics   Metrics
}

// WebhookServiceOption configures a WebhookService
type WebhookServiceOption func(*WebhookService)

// WithDeliveryDedupe skips deliveries whose ID was claimed within ttl
func WithDeliveryDedupe(store shared.IdempotencyStore, ttl time.Duration) WebhookServiceOption {
	return func(s *WebhookService) {
		s.store = store
		s.dedupeTTL = ttl
	}
}

// WithWebhookMetrics sets the metrics sink
func WithWebhookMetrics(m Metrics) WebhookServiceOption {
	return func(s *WebhookService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewWebhookService creates a WebhookService
func NewWebhookService(entities worksync.EntityRepository, mapping *worksync.StatusMapping, log *zap.Logger, opts ...WebhookServiceOption) *WebhookService {
	if mapping == nil {
		mapping = worksync.NewDefaultStatusMapping()
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &WebhookService{
		entities:  entities,
		mapping:   mapping,
		dedupeTTL: shared.DefaultIdempotencyConfig().TTL,
		logger:    log.Named("webhook"),
		metrics:   NopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleDelivery parses body and applies it. Malformed bodies return an error
// wrapping worksync.ErrMalformedEvent and mutate nothing.
func (s *WebhookService) HandleDelivery(ctx context.Context, body []byte, deliveryID string) (*WebhookResult, error) {
	event, err := ParseWebhook(body, deliveryID)
	if err != nil {
		s.metrics.RecordWebhook(ctx, WebhookOutcomeMalformed)
		return nil, err
	}
	if event.DeliveryID != "" {
		ctx = logger.WithDeliveryID(ctx, event.DeliveryID)
	}
	log := logger.WithLogger(ctx, s.logger)

	if event.Type == worksync.EventTypeIgnored {
		log.Debug("Ignoring webhook event", zap.String("webhook_event", event.RawEvent))
		s.metrics.RecordWebhook(ctx, WebhookOutcomeIgnored)
		return &WebhookResult{Event: event.Type, IssueKey: event.IssueKey, Outcome: WebhookOutcomeIgnored}, nil
	}

	claimed := false
	if s.store != nil && event.DeliveryID != "" {
		fresh, err := s.store.MarkProcessed(ctx, event.DeliveryID, s.dedupeTTL)
		switch {
		case err != nil:
			log.Warn("Delivery dedupe unavailable, processing anyway", zap.Error(err))
		case !fresh:
			log.Debug("Skipping redelivered webhook", zap.String("issue_key", event.IssueKey))
			s.metrics.RecordWebhook(ctx, WebhookOutcomeDuplicate)
			return &WebhookResult{Event: event.Type, IssueKey: event.IssueKey, Outcome: WebhookOutcomeDuplicate}, nil
		default:
			claimed = true
		}
	}

	result, err := s.Apply(ctx, event)
	if err != nil && claimed {
		if rerr := s.store.Release(ctx, event.DeliveryID); rerr != nil {
			log.Warn("Failed to release delivery claim", zap.Error(rerr))
		}
	}
	return result, err
}

// Apply executes a validated event
func (s *WebhookService) Apply(ctx context.Context, event *worksync.SyncEvent) (*WebhookResult, error) {
	if err := event.Validate(); err != nil {
		s.metrics.RecordWebhook(ctx, WebhookOutcomeMalformed)
		return nil, err
	}

	var (
		result *WebhookResult
		err    error
	)
	switch event.Type {
	case worksync.EventTypeStatusChange:
		result, err = s.applyStatusChange(ctx, event)
	case worksync.EventTypeIssueDeleted:
		result, err = s.applyIssueDeleted(ctx, event)
	default:
		result = &WebhookResult{Event: event.Type, IssueKey: event.IssueKey, Outcome: WebhookOutcomeIgnored}
	}

	if err != nil {
		s.metrics.RecordWebhook(ctx, WebhookOutcomeFailed)
		return nil, err
	}
	s.metrics.RecordWebhook(ctx, result.Outcome)
	return result, nil
}

func (s *WebhookService) applyStatusChange(ctx context.Context, event *worksync.SyncEvent) (*WebhookResult, error) {
	result := &WebhookResult{Event: event.Type, IssueKey: event.IssueKey}
	log := logger.WithLogger(ctx, s.logger).With(
		zap.String("issue_key", event.IssueKey),
		zap.String("external_status", event.ExternalStatusName),
	)

	entity, err := s.entities.FindByIssueKey(ctx, event.IssueKey)
	if errors.Is(err, worksync.ErrEntityNotFound) {
		log.Info("No entity linked to issue, discarding status change")
		result.Outcome = WebhookOutcomeUnlinked
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find entity for %s: %w", event.IssueKey, err)
	}

	ref := entity.Ref()
	result.Entity = &ref
	log = log.With(zap.String("entity_type", ref.Type.String()), zap.String("entity_id", ref.ID.String()))

	target, ok := s.mapping.ReverseResolve(entity.Type, event.ExternalStatusName)
	if !ok {
		log.Info("External status has no CRM mapping, discarding")
		result.Outcome = WebhookOutcomeUnmapped
		return result, nil
	}
	result.NewStatus = target

	current := entity.Status
	for attempt := 1; ; attempt++ {
		if current == target || s.mirrors(entity.Type, current, event.ExternalStatusName) {
			result.PreviousStatus = current
			result.NewStatus = current
			result.Outcome = WebhookOutcomeUnchanged
			return result, nil
		}

		err := s.entities.CompareAndSetStatus(ctx, ref, current, target)
		if err == nil {
			result.PreviousStatus = current
			result.Outcome = WebhookOutcomeApplied
			log.Info("Applied external status", zap.String("from", current), zap.String("to", target))
			return result, nil
		}
		if !errors.Is(err, worksync.ErrStaleStatus) || attempt >= maxStatusApplyAttempts {
			return nil, fmt.Errorf("update %s %s: %w", ref.Type, ref.ID, err)
		}

		fresh, ferr := s.entities.FindByID(ctx, ref.CompanyID, ref.Type, ref.ID)
		if ferr != nil {
			return nil, fmt.Errorf("reload %s %s: %w", ref.Type, ref.ID, ferr)
		}
		current = fresh.Status
	}
}

// mirrors reports whether status already maps forward to the external name,
// which is the case for the echo of our own push.
func (s *WebhookService) mirrors(entityType worksync.EntityType, status, external string) bool {
	name, ok := s.mapping.Resolve(entityType, status)
	return ok && strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(external))
}

func (s *WebhookService) applyIssueDeleted(ctx context.Context, event *worksync.SyncEvent) (*WebhookResult, error) {
	result := &WebhookResult{Event: event.Type, IssueKey: event.IssueKey, Outcome: WebhookOutcomeRemoved}
	log := logger.WithLogger(ctx, s.logger).With(zap.String("issue_key", event.IssueKey))

	holders, err := s.entities.FindAllByIssueKey(ctx, event.IssueKey)
	if err != nil {
		return nil, fmt.Errorf("find holders of %s: %w", event.IssueKey, err)
	}

	var errs []error
	for _, holder := range holders {
		removed, err := s.entities.RemoveLink(ctx, holder.Ref(), event.IssueKey)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", holder.Type, holder.ID, err))
			continue
		}
		if removed {
			result.Removed++
		}
	}
	if err := s.entities.DropIssueKey(ctx, event.IssueKey); err != nil {
		errs = append(errs, fmt.Errorf("drop index row: %w", err))
	}
	if result.Removed > 0 {
		s.metrics.RecordLinksRemoved(ctx, "issue_deleted", result.Removed)
		log.Info("Removed links for deleted issue", zap.Int("removed", result.Removed))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("remove links for %s: %w", event.IssueKey, errors.Join(errs...))
	}
	if len(holders) == 0 {
		log.Debug("No entity held the deleted issue")
		result.Outcome = WebhookOutcomeUnlinked
	}
	return result, nil
}
