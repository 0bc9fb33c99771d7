package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/crm/backend/internal/domain/worksync"
	"github.com/crm/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCompanyRepository implements worksync.CompanyProvider using GORM
type GormCompanyRepository struct {
	db *gorm.DB
}

// NewGormCompanyRepository creates a new GormCompanyRepository
func NewGormCompanyRepository(db *gorm.DB) *GormCompanyRepository {
	return &GormCompanyRepository{db: db}
}

// Create inserts a company
func (r *GormCompanyRepository) Create(ctx context.Context, c *worksync.Company) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = worksync.CompanyStatusActive
	}
	var model models.CompanyModel
	model.FromDomain(c)
	now := time.Now()
	model.CreatedAt = now
	model.UpdatedAt = now
	return r.db.WithContext(ctx).Create(&model).Error
}

// FindByID finds a company by ID
func (r *GormCompanyRepository) FindByID(ctx context.Context, id uuid.UUID) (*worksync.Company, error) {
	var model models.CompanyModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, worksync.ErrCompanyNotFound
		}
		return nil, err
	}
	company := model.ToDomain()
	return &company, nil
}

// ListActiveCompanies returns active companies ordered by creation time
func (r *GormCompanyRepository) ListActiveCompanies(ctx context.Context) ([]worksync.Company, error) {
	var rows []models.CompanyModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", worksync.CompanyStatusActive).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	companies := make([]worksync.Company, len(rows))
	for i := range rows {
		companies[i] = rows[i].ToDomain()
	}
	return companies, nil
}

var _ worksync.CompanyProvider = (*GormCompanyRepository)(nil)
