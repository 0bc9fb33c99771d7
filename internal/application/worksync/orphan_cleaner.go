package worksync

import (
	"context"
	"errors"
	"fmt"

	"github.com/crm/backend/internal/domain/worksync"
	"github.com/crm/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrphanCleaner drops links whose issue no longer exists in the tracker
type OrphanCleaner struct {
	entities worksync.EntityRepository
	tracker  worksync.Tracker
	logger   *zap.Logger
	metrics  Metrics
}

// NewOrphanCleaner creates an OrphanCleaner
func NewOrphanCleaner(entities worksync.EntityRepository, tracker worksync.Tracker, log *zap.Logger, metrics Metrics) *OrphanCleaner {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &OrphanCleaner{entities: entities, tracker: tracker, logger: log.Named("orphan_cleaner"), metrics: metrics}
}

// CleanupCompany looks up every link of every entity of the company and removes
// the ones the tracker reports as not found. Any other lookup failure keeps the link.
func (c *OrphanCleaner) CleanupCompany(ctx context.Context, companyID uuid.UUID) (int, error) {
	ctx = logger.WithCompanyID(ctx, companyID.String())
	log := logger.WithLogger(ctx, c.logger)

	entities, err := c.entities.ListWithLinks(ctx, companyID)
	if err != nil {
		return 0, fmt.Errorf("list entities with links: %w", err)
	}

	removed, retained := 0, 0
	for _, entity := range entities {
		for _, link := range entity.Links {
			if err := ctx.Err(); err != nil {
				return removed, err
			}

			_, err := c.tracker.GetIssue(ctx, link.IssueKey)
			switch {
			case err == nil:
				continue
			case errors.Is(err, worksync.ErrIssueNotFound):
			default:
				retained++
				log.Warn("Issue lookup inconclusive, keeping link",
					zap.String("issue_key", link.IssueKey),
					zap.Error(err),
				)
				continue
			}

			ok, err := c.entities.RemoveLink(ctx, entity.Ref(), link.IssueKey)
			if err != nil {
				log.Error("Failed to remove orphaned link", zap.String("issue_key", link.IssueKey), zap.Error(err))
				continue
			}
			if ok {
				removed++
				log.Info("Removed orphaned link",
					zap.String("issue_key", link.IssueKey),
					zap.String("entity_type", entity.Type.String()),
					zap.String("entity_id", entity.ID.String()),
				)
			}
		}
	}

	if removed > 0 {
		c.metrics.RecordLinksRemoved(ctx, "orphaned", removed)
	}
	log.Info("Orphan cleanup finished", zap.Int("removed", removed), zap.Int("retained_on_error", retained))
	return removed, nil
}
