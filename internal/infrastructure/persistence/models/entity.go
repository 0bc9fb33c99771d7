package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crm/backend/internal/domain/worksync"
	"github.com/google/uuid"
)

// Table names per syncable entity type. All four tables share the
// SyncableEntityModel column layout.
const (
	TableTasks    = "tasks"
	TableProjects = "projects"
	TableOrders   = "orders"
	TableClients  = "clients"
)

// TableFor returns the table holding entities of the given type
func TableFor(t worksync.EntityType) (string, bool) {
	switch t {
	case worksync.EntityTypeTask:
		return TableTasks, true
	case worksync.EntityTypeProject:
		return TableProjects, true
	case worksync.EntityTypeOrder:
		return TableOrders, true
	case worksync.EntityTypeClient:
		return TableClients, true
	}
	return "", false
}

// SyncableEntityModel is the persistence model shared by tasks, projects,
// orders and clients. Links are stored as a JSON array in insertion order;
// LinkCount mirrors its length so linked rows can be filtered portably.
// Indexes are declared in the SQL migrations because the layout is shared
// across tables.
type SyncableEntityModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	CompanyID   uuid.UUID `gorm:"type:uuid;not null"`
	Title       string    `gorm:"type:varchar(255);not null;default:''"`
	Description string    `gorm:"type:text"`
	Priority    string    `gorm:"type:varchar(20);not null;default:''"`
	Status      string    `gorm:"type:varchar(30);not null"`
	IsActive    bool      `gorm:"not null;default:true"`
	LinksJSON   string    `gorm:"type:jsonb;column:links;not null;default:'[]'"`
	LinkCount   int       `gorm:"not null;default:0"`
	Version     int       `gorm:"not null;default:1"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// ToDomain converts the model to a domain entity of the given type
func (m *SyncableEntityModel) ToDomain(t worksync.EntityType) (*worksync.SyncableEntity, error) {
	links, err := DecodeLinks(m.LinksJSON)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", t, m.ID, err)
	}
	return &worksync.SyncableEntity{
		ID:          m.ID,
		CompanyID:   m.CompanyID,
		Type:        t,
		Title:       m.Title,
		Description: m.Description,
		Priority:    m.Priority,
		Status:      m.Status,
		Active:      m.IsActive,
		Links:       links,
		Version:     m.Version,
	}, nil
}

// FromDomain populates the model from a domain entity
func (m *SyncableEntityModel) FromDomain(e *worksync.SyncableEntity) error {
	links, err := EncodeLinks(e.Links)
	if err != nil {
		return err
	}
	m.ID = e.ID
	m.CompanyID = e.CompanyID
	m.Title = e.Title
	m.Description = e.Description
	m.Priority = e.Priority
	m.Status = e.Status
	m.IsActive = e.Active
	m.LinksJSON = links
	m.LinkCount = len(e.Links)
	m.Version = e.Version
	return nil
}

// EncodeLinks serializes links to the stored JSON form
func EncodeLinks(links []worksync.ExternalLink) (string, error) {
	if len(links) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(links)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ErrCorruptLinks is returned when the stored links column is not a JSON
// array of links.
var ErrCorruptLinks = errors.New("models: corrupt links column")

// DecodeLinks parses the stored JSON form
func DecodeLinks(raw string) ([]worksync.ExternalLink, error) {
	links := make([]worksync.ExternalLink, 0)
	if raw == "" {
		return links, nil
	}
	if err := json.Unmarshal([]byte(raw), &links); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptLinks, err)
	}
	return links, nil
}

// IssueLinkModel is the issue-key index: one row per linked issue, naming
// the entity that owns it.
type IssueLinkModel struct {
	IssueKey   string              `gorm:"type:varchar(64);primary_key"`
	EntityType worksync.EntityType `gorm:"type:varchar(20);not null;index:idx_issue_links_entity,priority:1"`
	EntityID   uuid.UUID           `gorm:"type:uuid;not null;index:idx_issue_links_entity,priority:2"`
	CompanyID  uuid.UUID           `gorm:"type:uuid;not null;index"`
	CreatedAt  time.Time           `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IssueLinkModel) TableName() string {
	return "issue_links"
}

// Ref converts the index row to a domain reference
func (m *IssueLinkModel) Ref() worksync.EntityRef {
	return worksync.EntityRef{Type: m.EntityType, ID: m.EntityID, CompanyID: m.CompanyID}
}
