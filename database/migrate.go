package database

import (
	"github.com/yeremiapane/pos-integrity/models"
	"github.com/yeremiapane/pos-integrity/utils"
	"gorm.io/gorm"
)

// Models lists every table owned by this service, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.Product{},
		&models.Table{},
		&models.Order{},
		&models.OrderLine{},
		&models.TableGroup{},
		&models.GroupMembership{},
		&models.ReconciliationRun{},
	}
}

// Migrate creates or updates the schema. Uniqueness of table labels and of
// open memberships is enforced by the guard and the grouping manager, not by
// indexes, so drift left by bulk imports can still be stored and reported.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	utils.InfoLogger.Println("AutoMigrate completed.")
	return nil
}
