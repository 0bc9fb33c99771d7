package worksync

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies one of the CRM record kinds that can be linked to
// tracker issues.
type EntityType string

const (
	EntityTypeTask    EntityType = "task"
	EntityTypeProject EntityType = "project"
	EntityTypeOrder   EntityType = "order"
	EntityTypeClient  EntityType = "client"
)

// AllEntityTypes lists every syncable type in a stable order.
func AllEntityTypes() []EntityType {
	return []EntityType{EntityTypeTask, EntityTypeProject, EntityTypeOrder, EntityTypeClient}
}

// IsValid returns true if the entity type is known
func (t EntityType) IsValid() bool {
	switch t {
	case EntityTypeTask, EntityTypeProject, EntityTypeOrder, EntityTypeClient:
		return true
	}
	return false
}

// String returns the string representation
func (t EntityType) String() string {
	return string(t)
}

// AllowedStatuses returns the finite status set for the entity type.
func (t EntityType) AllowedStatuses() []string {
	switch t {
	case EntityTypeTask:
		return []string{"todo", "in_progress", "in_review", "done", "cancelled"}
	case EntityTypeProject:
		return []string{"planning", "active", "on_hold", "completed", "cancelled"}
	case EntityTypeOrder:
		return []string{"pending", "processing", "shipped", "delivered", "cancelled"}
	case EntityTypeClient:
		return []string{"lead", "prospect", "active", "inactive", "churned"}
	}
	return nil
}

// IsAllowedStatus reports whether status belongs to the type's status set.
func (t EntityType) IsAllowedStatus(status string) bool {
	return slices.Contains(t.AllowedStatuses(), status)
}

// ExternalLink associates an entity with one tracker issue. Links are never
// mutated after creation.
type ExternalLink struct {
	IssueKey  string    `json:"issue_key"`
	IssueURL  string    `json:"issue_url"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncableEntity is the view of a CRM record the sync engine works on.
type SyncableEntity struct {
	ID          uuid.UUID
	CompanyID   uuid.UUID
	Type        EntityType
	Title       string
	Description string
	Priority    string
	Status      string
	Active      bool
	Links       []ExternalLink
	Version     int
}

// HasLinks returns true if the entity is linked to at least one issue
func (e *SyncableEntity) HasLinks() bool {
	return len(e.Links) > 0
}

// HasLink reports whether the entity holds a link to issueKey.
func (e *SyncableEntity) HasLink(issueKey string) bool {
	return slices.ContainsFunc(e.Links, func(l ExternalLink) bool {
		return l.IssueKey == issueKey
	})
}

// WithoutLink returns the link list minus every entry for issueKey, and
// whether anything was removed. The receiver is not modified.
func (e *SyncableEntity) WithoutLink(issueKey string) ([]ExternalLink, bool) {
	kept := make([]ExternalLink, 0, len(e.Links))
	for _, l := range e.Links {
		if l.IssueKey != issueKey {
			kept = append(kept, l)
		}
	}
	return kept, len(kept) != len(e.Links)
}

// Ref returns the index reference of the entity
func (e *SyncableEntity) Ref() EntityRef {
	return EntityRef{Type: e.Type, ID: e.ID, CompanyID: e.CompanyID}
}

// IssueKeys returns the linked issue keys in insertion order.
func (e *SyncableEntity) IssueKeys() []string {
	keys := make([]string, len(e.Links))
	for i, l := range e.Links {
		keys[i] = l.IssueKey
	}
	return keys
}

// EntityRef identifies an entity owning an issue key.
type EntityRef struct {
	Type      EntityType
	ID        uuid.UUID
	CompanyID uuid.UUID
}

// CompanyStatus is the lifecycle state of a tenant company
type CompanyStatus string

const (
	CompanyStatusActive    CompanyStatus = "active"
	CompanyStatusInactive  CompanyStatus = "inactive"
	CompanyStatusSuspended CompanyStatus = "suspended"
)

// Company is a CRM tenant.
type Company struct {
	ID     uuid.UUID
	Name   string
	Status CompanyStatus
}

// IsActive returns true if the company takes part in reconciliation
func (c *Company) IsActive() bool {
	return c.Status == CompanyStatusActive
}
