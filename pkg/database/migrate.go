package database

import (
	"entgo.io/ent/dialect/sql/schema"
)

// MigrateOptions maps the migration settings onto ent's schema migrator.
// SafeMode keeps migrations additive.
func (c Config) MigrateOptions() []schema.MigrateOption {
	return []schema.MigrateOption{
		schema.WithDropColumn(!c.SafeMode),
		schema.WithDropIndex(!c.SafeMode),
		schema.WithForeignKeys(true),
	}
}
