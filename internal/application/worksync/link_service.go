package worksync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crm/backend/internal/domain/worksync"
	"github.com/crm/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LinkRequest asks for a new tracker issue linked to an entity.
// Empty fields fall back to the entity's own values or the service defaults.
type LinkRequest struct {
	ProjectKey  string
	IssueType   string
	Summary     string
	Description string
}

// LinkService creates and removes links between entities and tracker issues.
// Errors surface to the caller since these are user actions.
type LinkService struct {
	entities          worksync.EntityRepository
	tracker           worksync.Tracker
	defaultProjectKey string
	logger            *zap.Logger
	now               func() time.Time
}

// NewLinkService creates a LinkService
func NewLinkService(entities worksync.EntityRepository, tracker worksync.Tracker, defaultProjectKey string, log *zap.Logger) *LinkService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LinkService{
		entities:          entities,
		tracker:           tracker,
		defaultProjectKey: defaultProjectKey,
		logger:            log.Named("link_service"),
		now:               time.Now,
	}
}

// LinkIssue creates an issue for the entity and records the link
func (s *LinkService) LinkIssue(ctx context.Context, companyID uuid.UUID, entityType worksync.EntityType, entityID uuid.UUID, req LinkRequest) (*worksync.ExternalLink, error) {
	entity, err := s.load(ctx, companyID, entityType, entityID)
	if err != nil {
		return nil, err
	}

	projectKey := strings.TrimSpace(req.ProjectKey)
	if projectKey == "" {
		projectKey = s.defaultProjectKey
	}
	if projectKey == "" {
		return nil, worksync.ErrMissingProjectKey
	}
	summary := strings.TrimSpace(req.Summary)
	if summary == "" {
		summary = entity.Title
	}
	description := req.Description
	if description == "" {
		description = entity.Description
	}

	created, err := s.tracker.CreateIssue(ctx, worksync.IssueInput{
		ProjectKey:  projectKey,
		Summary:     summary,
		Description: description,
		IssueType:   req.IssueType,
	})
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}

	link := worksync.ExternalLink{IssueKey: created.Key, IssueURL: created.URL, CreatedAt: s.now().UTC()}
	if err := s.entities.AddLink(ctx, entity.Ref(), link); err != nil {
		logger.WithLogger(ctx, s.logger).Error("Issue created but link not saved",
			zap.String("issue_key", created.Key),
			zap.String("entity_id", entityID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("save link %s: %w", created.Key, err)
	}

	logger.WithLogger(ctx, s.logger).Info("Linked new issue",
		zap.String("issue_key", created.Key),
		zap.String("entity_type", entityType.String()),
		zap.String("entity_id", entityID.String()),
	)
	return &link, nil
}

// LinkExisting links an issue that already exists in the tracker
func (s *LinkService) LinkExisting(ctx context.Context, companyID uuid.UUID, entityType worksync.EntityType, entityID uuid.UUID, issueKey string) (*worksync.ExternalLink, error) {
	issueKey = strings.TrimSpace(issueKey)
	if issueKey == "" {
		return nil, worksync.ErrMissingIssueKey
	}
	entity, err := s.load(ctx, companyID, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if entity.HasLink(issueKey) {
		return nil, worksync.ErrIssueAlreadyLinked
	}

	issue, err := s.tracker.GetIssue(ctx, issueKey)
	if err != nil {
		return nil, fmt.Errorf("look up issue %s: %w", issueKey, err)
	}

	link := worksync.ExternalLink{IssueKey: issue.Key, IssueURL: issue.URL, CreatedAt: s.now().UTC()}
	if err := s.entities.AddLink(ctx, entity.Ref(), link); err != nil {
		return nil, err
	}
	return &link, nil
}

// Unlink removes issueKey from the entity; the tracker issue is left alone
func (s *LinkService) Unlink(ctx context.Context, companyID uuid.UUID, entityType worksync.EntityType, entityID uuid.UUID, issueKey string) error {
	entity, err := s.load(ctx, companyID, entityType, entityID)
	if err != nil {
		return err
	}
	removed, err := s.entities.RemoveLink(ctx, entity.Ref(), issueKey)
	if err != nil {
		return err
	}
	if !removed {
		return worksync.ErrLinkNotFound
	}
	return nil
}

func (s *LinkService) load(ctx context.Context, companyID uuid.UUID, entityType worksync.EntityType, entityID uuid.UUID) (*worksync.SyncableEntity, error) {
	if !entityType.IsValid() {
		return nil, worksync.ErrInvalidEntityType
	}
	entity, err := s.entities.FindByID(ctx, companyID, entityType, entityID)
	if err != nil {
		if errors.Is(err, worksync.ErrEntityNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load %s %s: %w", entityType, entityID, err)
	}
	return entity, nil
}
