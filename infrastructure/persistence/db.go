package persistence

import (
	"fmt"

	"github.com/helixml/memeindex/internal/database"
)

// AutoMigrate creates the tables GORM can manage. On PostgreSQL the posts
// table is created by NewPgvectorPostStore, which needs the embedding
// dimension.
func AutoMigrate(db database.Database) error {
	models := []any{&QueueMessageModel{}}
	if db.IsSQLite() {
		models = append(models, &SQLitePostModel{})
	}
	if err := db.GORM().AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// ValidateSchema checks that the expected columns exist on the posts table.
func ValidateSchema(db database.Database) error {
	migrator := db.GORM().Migrator()
	if !migrator.HasTable(PostsTable) {
		return fmt.Errorf("table %s does not exist", PostsTable)
	}

	columns, err := migrator.ColumnTypes(PostsTable)
	if err != nil {
		return fmt.Errorf("read %s columns: %w", PostsTable, err)
	}
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c.Name()] = true
	}
	for _, name := range []string{"id", "post_key", "title", "hype_score", "embedding", "embedding_model"} {
		if !present[name] {
			return fmt.Errorf("table %s is missing column %s", PostsTable, name)
		}
	}
	return nil
}
