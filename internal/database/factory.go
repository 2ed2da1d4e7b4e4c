package database

import (
	"fmt"
	"path/filepath"

	"declutter-go/internal/config"
	"declutter-go/internal/declutter"
)

// NewDatabaseFromConfig creates a Database implementation based on the database config type.
// The schema is migrated to the latest version before the database is returned.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, instanceID string) (declutter.Database, error) {
	var path string
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		path = filepath.Join(cfg.DataDir, instanceID+".db")
	case "memory":
		path = ":memory:"
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}

	db, err := NewSQLiteDatabase(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return db, nil
}
