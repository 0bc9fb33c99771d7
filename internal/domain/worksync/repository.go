package worksync

import (
	"context"

	"github.com/google/uuid"
)

// EntityRepository is the persistence port for syncable entities and their
// issue-key index.
type EntityRepository interface {
	// FindByID loads one entity of the given type, scoped to its company.
	FindByID(ctx context.Context, companyID uuid.UUID, entityType EntityType, id uuid.UUID) (*SyncableEntity, error)

	// FindByIssueKey returns the entity that owns issueKey through the
	// index, or ErrEntityNotFound.
	FindByIssueKey(ctx context.Context, issueKey string) (*SyncableEntity, error)

	// FindAllByIssueKey returns every entity of any type whose link list
	// contains issueKey, regardless of the index.
	FindAllByIssueKey(ctx context.Context, issueKey string) ([]*SyncableEntity, error)

	// ListLinked returns active entities of every type holding at least one link.
	ListLinked(ctx context.Context, companyID uuid.UUID) ([]*SyncableEntity, error)

	// ListWithLinks returns every entity of the company holding at least one
	// link, active or not.
	ListWithLinks(ctx context.Context, companyID uuid.UUID) ([]*SyncableEntity, error)

	// CompareAndSetStatus moves the entity from expected to next. It returns
	// ErrStaleStatus when the stored status is no longer expected.
	CompareAndSetStatus(ctx context.Context, ref EntityRef, expected, next string) error

	// AddLink appends a link and claims the key in the index atomically.
	// It returns ErrIssueAlreadyLinked if the key is owned already.
	AddLink(ctx context.Context, ref EntityRef, link ExternalLink) error

	// RemoveLink drops every entry for issueKey from the entity and releases
	// the index row atomically. It reports whether a link was removed.
	RemoveLink(ctx context.Context, ref EntityRef, issueKey string) (bool, error)

	// DropIssueKey deletes the index row for issueKey regardless of owner.
	DropIssueKey(ctx context.Context, issueKey string) error
}

// CompanyProvider lists tenants for reconciliation sweeps
type CompanyProvider interface {
	ListActiveCompanies(ctx context.Context) ([]Company, error)
}
