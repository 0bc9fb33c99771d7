package worksync

import (
	"context"

	"github.com/crm/backend/internal/domain/worksync"
	"github.com/google/uuid"
)

// PushService pushes an entity's stored status on demand
type PushService struct {
	loader *LinkService
	engine *SyncEngine
}

// NewPushService creates a PushService reusing the link service's entity lookup
func NewPushService(links *LinkService, engine *SyncEngine) *PushService {
	return &PushService{loader: links, engine: engine}
}

// PushStored pushes the entity's current status to every linked issue.
// Per-link failures are reported on the result, not as an error.
func (s *PushService) PushStored(ctx context.Context, companyID uuid.UUID, entityType worksync.EntityType, entityID uuid.UUID) (*PushResult, error) {
	entity, err := s.loader.load(ctx, companyID, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return s.engine.PushStatus(ctx, entity, entity.Status), nil
}
