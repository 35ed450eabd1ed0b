package db

import (
	"fmt"

	types "github.com/yungbote/trackflow-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(types.Models()...)
}

// EnsureTrackingIndexes adds the indexes gorm tags cannot express.
func EnsureTrackingIndexes(db *gorm.DB) error {
	stmts := []struct {
		name string
		sql  string
	}{
		{
			name: "idx_batch_assemblies_batch_added",
			sql:  `CREATE INDEX IF NOT EXISTS idx_batch_assemblies_batch_added ON batch_assemblies (batch_id, added_at)`,
		},
		{
			name: "idx_assemblies_project_parent",
			sql:  `CREATE INDEX IF NOT EXISTS idx_assemblies_project_parent ON assemblies (project_id, parent_id)`,
		},
		{
			name: "idx_assembly_status_logs_assembly_created",
			sql:  `CREATE INDEX IF NOT EXISTS idx_assembly_status_logs_assembly_created ON assembly_status_logs (assembly_id, created_at)`,
		},
	}
	for _, s := range stmts {
		if err := db.Exec(s.sql).Error; err != nil {
			return fmt.Errorf("create %s: %w", s.name, err)
		}
	}
	return nil
}

func Migrate(db *gorm.DB) error {
	if err := AutoMigrateAll(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return EnsureTrackingIndexes(db)
}
