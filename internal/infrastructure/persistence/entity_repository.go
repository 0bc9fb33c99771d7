package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crm/backend/internal/domain/worksync"
	"github.com/crm/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// maxLinkUpdateAttempts bounds optimistic retries when a link list changes
// under a concurrent writer.
const maxLinkUpdateAttempts = 5

var errVersionConflict = errors.New("persistence: version conflict")

// GormEntityRepository implements worksync.EntityRepository using GORM.
// Each entity type lives in its own table; issue_links indexes issue keys.
type GormEntityRepository struct {
	db *gorm.DB
}

// NewGormEntityRepository creates a new GormEntityRepository
func NewGormEntityRepository(db *gorm.DB) *GormEntityRepository {
	return &GormEntityRepository{db: db}
}

func (r *GormEntityRepository) table(ctx context.Context, db *gorm.DB, t worksync.EntityType) (*gorm.DB, error) {
	name, ok := models.TableFor(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", worksync.ErrInvalidEntityType, t)
	}
	return db.WithContext(ctx).Table(name), nil
}

// Create inserts an entity and claims index rows for any links it carries
func (r *GormEntityRepository) Create(ctx context.Context, e *worksync.SyncableEntity) error {
	if !e.Type.IsAllowedStatus(e.Status) {
		return fmt.Errorf("%w: %s/%s", worksync.ErrInvalidStatus, e.Type, e.Status)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Version == 0 {
		e.Version = 1
	}

	var model models.SyncableEntityModel
	if err := model.FromDomain(e); err != nil {
		return err
	}
	now := time.Now()
	model.CreatedAt = now
	model.UpdatedAt = now

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q, err := r.table(ctx, tx, e.Type)
		if err != nil {
			return err
		}
		if err := q.Create(&model).Error; err != nil {
			return err
		}
		for _, link := range e.Links {
			if err := claimIssueKey(ctx, tx, e.Ref(), link); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByID finds an entity by ID within a company
func (r *GormEntityRepository) FindByID(ctx context.Context, companyID uuid.UUID, t worksync.EntityType, id uuid.UUID) (*worksync.SyncableEntity, error) {
	return r.findOne(ctx, r.db, t, "id = ? AND company_id = ?", id, companyID)
}

func (r *GormEntityRepository) findOne(ctx context.Context, db *gorm.DB, t worksync.EntityType, query string, args ...any) (*worksync.SyncableEntity, error) {
	q, err := r.table(ctx, db, t)
	if err != nil {
		return nil, err
	}
	var model models.SyncableEntityModel
	if err := q.Where(query, args...).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, worksync.ErrEntityNotFound
		}
		return nil, err
	}
	return model.ToDomain(t)
}

// FindByIssueKey resolves the owner through the index. When the index has
// no row, or its row is stale, it falls back to scanning link content and
// returns the first holder in type order.
func (r *GormEntityRepository) FindByIssueKey(ctx context.Context, issueKey string) (*worksync.SyncableEntity, error) {
	var row models.IssueLinkModel
	err := r.db.WithContext(ctx).Where("issue_key = ?", issueKey).Take(&row).Error
	switch {
	case err == nil:
		entity, ferr := r.findOne(ctx, r.db, row.EntityType, "id = ?", row.EntityID)
		if ferr == nil && entity.HasLink(issueKey) {
			return entity, nil
		}
		if ferr != nil && !errors.Is(ferr, worksync.ErrEntityNotFound) {
			return nil, ferr
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	holders, err := r.FindAllByIssueKey(ctx, issueKey)
	if err != nil {
		return nil, err
	}
	if len(holders) == 0 {
		return nil, worksync.ErrEntityNotFound
	}
	return holders[0], nil
}

// FindAllByIssueKey scans every entity table for link lists containing issueKey
func (r *GormEntityRepository) FindAllByIssueKey(ctx context.Context, issueKey string) ([]*worksync.SyncableEntity, error) {
	query, arg, err := r.linkContainsClause(issueKey)
	if err != nil {
		return nil, err
	}

	var out []*worksync.SyncableEntity
	for _, t := range worksync.AllEntityTypes() {
		q, err := r.table(ctx, r.db, t)
		if err != nil {
			return nil, err
		}
		var rows []models.SyncableEntityModel
		if err := q.Where("link_count > 0").Where(query, arg).
			Order("created_at ASC, id ASC").
			Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			entity, err := rows[i].ToDomain(t)
			if err != nil {
				return nil, err
			}
			if entity.HasLink(issueKey) {
				out = append(out, entity)
			}
		}
	}
	return out, nil
}

// linkContainsClause builds a prefilter on the links column. Postgres uses
// jsonb containment; other dialects match the encoded key textually and rely
// on the caller to confirm with HasLink.
func (r *GormEntityRepository) linkContainsClause(issueKey string) (string, string, error) {
	if r.db.Dialector.Name() == "postgres" {
		criteria, err := json.Marshal([]map[string]string{{"issue_key": issueKey}})
		if err != nil {
			return "", "", err
		}
		return "links @> ?::jsonb", string(criteria), nil
	}
	encoded, err := json.Marshal(issueKey)
	if err != nil {
		return "", "", err
	}
	return "links LIKE ?", "%" + `"issue_key":` + string(encoded) + "%", nil
}

// ListLinked returns active entities of every type that hold at least one link
func (r *GormEntityRepository) ListLinked(ctx context.Context, companyID uuid.UUID) ([]*worksync.SyncableEntity, error) {
	return r.listWithLinks(ctx, companyID, true)
}

// ListWithLinks returns every entity of the company that holds at least one link
func (r *GormEntityRepository) ListWithLinks(ctx context.Context, companyID uuid.UUID) ([]*worksync.SyncableEntity, error) {
	return r.listWithLinks(ctx, companyID, false)
}

func (r *GormEntityRepository) listWithLinks(ctx context.Context, companyID uuid.UUID, activeOnly bool) ([]*worksync.SyncableEntity, error) {
	var out []*worksync.SyncableEntity
	for _, t := range worksync.AllEntityTypes() {
		q, err := r.table(ctx, r.db, t)
		if err != nil {
			return nil, err
		}
		q = q.Where("company_id = ? AND link_count > 0", companyID)
		if activeOnly {
			q = q.Where("is_active = ?", true)
		}
		var rows []models.SyncableEntityModel
		if err := q.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			entity, err := rows[i].ToDomain(t)
			if err != nil {
				return nil, err
			}
			out = append(out, entity)
		}
	}
	return out, nil
}

// CompareAndSetStatus moves an entity from expected to next in one
// conditional UPDATE.
func (r *GormEntityRepository) CompareAndSetStatus(ctx context.Context, ref worksync.EntityRef, expected, next string) error {
	if !ref.Type.IsAllowedStatus(next) {
		return fmt.Errorf("%w: %s/%s", worksync.ErrInvalidStatus, ref.Type, next)
	}
	q, err := r.table(ctx, r.db, ref.Type)
	if err != nil {
		return err
	}

	result := q.Where("id = ? AND company_id = ? AND status = ?", ref.ID, ref.CompanyID, expected).
		Updates(map[string]any{
			"status":     next,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, ref.CompanyID, ref.Type, ref.ID); err != nil {
			return err
		}
		return worksync.ErrStaleStatus
	}
	return nil
}

// AddLink appends a link and claims the issue key in one transaction
func (r *GormEntityRepository) AddLink(ctx context.Context, ref worksync.EntityRef, link worksync.ExternalLink) error {
	if strings.TrimSpace(link.IssueKey) == "" {
		return worksync.ErrMissingIssueKey
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}

	return r.withVersionRetry(ctx, func(tx *gorm.DB) error {
		entity, err := r.findOne(ctx, tx, ref.Type, "id = ? AND company_id = ?", ref.ID, ref.CompanyID)
		if err != nil {
			return err
		}
		if entity.HasLink(link.IssueKey) {
			return worksync.ErrIssueAlreadyLinked
		}
		if err := claimIssueKey(ctx, tx, ref, link); err != nil {
			return err
		}
		return r.writeLinks(ctx, tx, entity, append(entity.Links, link))
	})
}

// RemoveLink drops every entry for issueKey and releases the index row when
// it points at this entity.
func (r *GormEntityRepository) RemoveLink(ctx context.Context, ref worksync.EntityRef, issueKey string) (bool, error) {
	removed := false
	err := r.withVersionRetry(ctx, func(tx *gorm.DB) error {
		removed = false
		entity, err := r.findOne(ctx, tx, ref.Type, "id = ? AND company_id = ?", ref.ID, ref.CompanyID)
		if err != nil {
			return err
		}
		kept, changed := entity.WithoutLink(issueKey)
		if changed {
			if err := r.writeLinks(ctx, tx, entity, kept); err != nil {
				return err
			}
			removed = true
		}
		return tx.WithContext(ctx).
			Where("issue_key = ? AND entity_type = ? AND entity_id = ?", issueKey, ref.Type, ref.ID).
			Delete(&models.IssueLinkModel{}).Error
	})
	return removed, err
}

// DropIssueKey deletes the index row for issueKey whoever it points at
func (r *GormEntityRepository) DropIssueKey(ctx context.Context, issueKey string) error {
	return r.db.WithContext(ctx).Where("issue_key = ?", issueKey).Delete(&models.IssueLinkModel{}).Error
}

// writeLinks replaces the link list guarded by the version read with entity
func (r *GormEntityRepository) writeLinks(ctx context.Context, tx *gorm.DB, entity *worksync.SyncableEntity, links []worksync.ExternalLink) error {
	encoded, err := models.EncodeLinks(links)
	if err != nil {
		return err
	}
	q, err := r.table(ctx, tx, entity.Type)
	if err != nil {
		return err
	}
	result := q.Where("id = ? AND version = ?", entity.ID, entity.Version).
		Updates(map[string]any{
			"links":      encoded,
			"link_count": len(links),
			"version":    entity.Version + 1,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errVersionConflict
	}
	return nil
}

func (r *GormEntityRepository) withVersionRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < maxLinkUpdateAttempts; attempt++ {
		err = r.db.WithContext(ctx).Transaction(fn)
		if !errors.Is(err, errVersionConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("%w: link update retries exhausted", worksync.ErrStaleStatus)
}

// claimIssueKey inserts the index row, failing if another entity owns the key
func claimIssueKey(ctx context.Context, tx *gorm.DB, ref worksync.EntityRef, link worksync.ExternalLink) error {
	var existing models.IssueLinkModel
	err := tx.WithContext(ctx).Where("issue_key = ?", link.IssueKey).Take(&existing).Error
	if err == nil {
		if existing.EntityID == ref.ID && existing.EntityType == ref.Type {
			return nil
		}
		return worksync.ErrIssueAlreadyLinked
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	row := models.IssueLinkModel{
		IssueKey:   link.IssueKey,
		EntityType: ref.Type,
		EntityID:   ref.ID,
		CompanyID:  ref.CompanyID,
		CreatedAt:  link.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return worksync.ErrIssueAlreadyLinked
		}
		return err
	}
	return nil
}

// IndexReport counts the index rows a rebuild touched
type IndexReport struct {
	Pruned  int `json:"pruned"`
	Indexed int `json:"indexed"`
}

// RebuildIndex makes the company's index rows agree with link content. Rows
// whose entity no longer holds the key are pruned, then every held link is
// claimed. Keys already owned by another holder stay with that holder.
func (r *GormEntityRepository) RebuildIndex(ctx context.Context, companyID uuid.UUID) (IndexReport, error) {
	var report IndexReport

	var rows []models.IssueLinkModel
	if err := r.db.WithContext(ctx).Where("company_id = ?", companyID).Find(&rows).Error; err != nil {
		return report, err
	}
	for _, row := range rows {
		entity, err := r.findOne(ctx, r.db, row.EntityType, "id = ?", row.EntityID)
		if err != nil && !errors.Is(err, worksync.ErrEntityNotFound) {
			return report, err
		}
		if err == nil && entity.HasLink(row.IssueKey) {
			continue
		}
		if err := r.db.WithContext(ctx).
			Where("issue_key = ? AND entity_id = ?", row.IssueKey, row.EntityID).
			Delete(&models.IssueLinkModel{}).Error; err != nil {
			return report, err
		}
		report.Pruned++
	}

	entities, err := r.ListWithLinks(ctx, companyID)
	if err != nil {
		return report, err
	}
	for _, e := range entities {
		for _, link := range e.Links {
			err := claimIssueKey(ctx, r.db, e.Ref(), link)
			switch {
			case err == nil:
				report.Indexed++
			case errors.Is(err, worksync.ErrIssueAlreadyLinked):
			default:
				return report, err
			}
		}
	}
	return report, nil
}

// RebuildAllIndexes runs RebuildIndex for every company that holds links or
// index rows.
func (r *GormEntityRepository) RebuildAllIndexes(ctx context.Context) (IndexReport, error) {
	var total IndexReport
	companies, err := r.indexedCompanies(ctx)
	if err != nil {
		return total, err
	}
	for _, companyID := range companies {
		report, err := r.RebuildIndex(ctx, companyID)
		total.Pruned += report.Pruned
		total.Indexed += report.Indexed
		if err != nil {
			return total, fmt.Errorf("rebuild index for company %s: %w", companyID, err)
		}
	}
	return total, nil
}

func (r *GormEntityRepository) indexedCompanies(ctx context.Context) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	collect := func(ids []uuid.UUID) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}

	for _, t := range worksync.AllEntityTypes() {
		q, err := r.table(ctx, r.db, t)
		if err != nil {
			return nil, err
		}
		var ids []uuid.UUID
		if err := q.Where("link_count > 0").Distinct().Pluck("company_id", &ids).Error; err != nil {
			return nil, err
		}
		collect(ids)
	}
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&models.IssueLinkModel{}).Distinct().Pluck("company_id", &ids).Error; err != nil {
		return nil, err
	}
	collect(ids)
	return out, nil
}

var _ worksync.EntityRepository = (*GormEntityRepository)(nil)
