package models

import (
	"time"

	"github.com/crm/backend/internal/domain/worksync"
	"github.com/google/uuid"
)

// CompanyModel is the persistence model for tenants
type CompanyModel struct {
	ID        uuid.UUID              `gorm:"type:uuid;primary_key"`
	Name      string                 `gorm:"type:varchar(200);not null"`
	Status    worksync.CompanyStatus `gorm:"type:varchar(20);not null;default:'active';index"`
	CreatedAt time.Time              `gorm:"not null"`
	UpdatedAt time.Time              `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CompanyModel) TableName() string {
	return "companies"
}

// ToDomain converts the model to a domain company
func (m *CompanyModel) ToDomain() worksync.Company {
	return worksync.Company{ID: m.ID, Name: m.Name, Status: m.Status}
}

// FromDomain populates the model from a domain company
func (m *CompanyModel) FromDomain(c *worksync.Company) {
	m.ID = c.ID
	m.Name = c.Name
	m.Status = c.Status
}
