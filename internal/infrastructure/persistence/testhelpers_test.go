package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/crm/backend/internal/domain/worksync"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB creates an in-memory SQLite database with the sync schema.
// A single connection keeps every statement on the same in-memory database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

func newEntity(companyID uuid.UUID, t worksync.EntityType, status string, keys ...string) *worksync.SyncableEntity {
	e := &worksync.SyncableEntity{
		ID:        uuid.New(),
		CompanyID: companyID,
		Type:      t,
		Title:     string(t) + " record",
		Status:    status,
		Active:    true,
	}
	for _, k := range keys {
		e.Links = append(e.Links, worksync.ExternalLink{
			IssueKey:  k,
			IssueURL:  "https://acme.atlassian.net/browse/" + k,
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		})
	}
	return e
}

func mustCreate(t *testing.T, repo *GormEntityRepository, e *worksync.SyncableEntity) *worksync.SyncableEntity {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), e))
	return e
}
