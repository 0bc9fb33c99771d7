package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/crm/backend/internal/domain/worksync"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockEntityRepo creates a repository over a mocked Postgres connection
func newMockEntityRepo(t *testing.T) (*GormEntityRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormEntityRepository(gormDB), mock, mockDB
}

func TestCompareAndSetStatus_ConditionalUpdate(t *testing.T) {
	t.Run("update is guarded by the expected status", func(t *testing.T) {
		repo, mock, mockDB := newMockEntityRepo(t)
		defer mockDB.Close()

		ref := worksync.EntityRef{Type: worksync.EntityTypeTask, ID: uuid.New(), CompanyID: uuid.New()}
		mock.ExpectExec(`UPDATE "tasks" SET .* WHERE \(?id = \$\d+ AND company_id = \$\d+ AND status = \$\d+\)?`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.CompareAndSetStatus(context.Background(), ref, "in_progress", "done")
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows on an existing entity is a stale status", func(t *testing.T) {
		repo, mock, mockDB := newMockEntityRepo(t)
		defer mockDB.Close()

		ref := worksync.EntityRef{Type: worksync.EntityTypeOrder, ID: uuid.New(), CompanyID: uuid.New()}
		mock.ExpectExec(`UPDATE "orders" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT \* FROM "orders" WHERE`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "status", "links", "link_count", "version"}).
				AddRow(ref.ID.String(), ref.CompanyID.String(), "shipped", "[]", 0, 3))

		err := repo.CompareAndSetStatus(context.Background(), ref, "processing", "delivered")
		assert.ErrorIs(t, err, worksync.ErrStaleStatus)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFindAllByIssueKey_UsesJSONBContainmentOnPostgres(t *testing.T) {
	repo, mock, mockDB := newMockEntityRepo(t)
	defer mockDB.Close()

	for _, table := range []string{"tasks", "projects", "orders", "clients"} {
		mock.ExpectQuery(`SELECT \* FROM "` + table + `" WHERE link_count > 0 AND links @> \$1::jsonb`).
			WithArgs(`[{"issue_key":"CRM-42"}]`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
	}

	holders, err := repo.FindAllByIssueKey(context.Background(), "CRM-42")
	require.NoError(t, err)
	assert.Empty(t, holders)
	assert.NoError(t, mock.ExpectationsWereMet())
}
