package persistence

import (
	"github.com/crm/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// AutoMigrate creates the sync schema through GORM. Production databases are
// migrated by the embedded SQL set in the migration package; this is used by tests and
// local SQLite setups.
func AutoMigrate(db *gorm.DB) error {
	for _, table := range []string{models.TableTasks, models.TableProjects, models.TableOrders, models.TableClients} {
		if err := db.Table(table).AutoMigrate(&models.SyncableEntityModel{}); err != nil {
			return err
		}
	}
	return db.AutoMigrate(&models.IssueLinkModel{}, &models.CompanyModel{})
}
