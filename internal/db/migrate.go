package db

import (
	"fmt"
	"strings"

	"github.com/collectit/marketplace/internal/models"
	internalsettings "github.com/collectit/marketplace/internal/settings"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ddl names a raw schema statement applied after AutoMigrate.
type ddl struct {
	name string
	sql  string
}

// postgresDDL holds PostgreSQL-only schema additions.
var postgresDDL = []ddl{
	{
		name: "video tags search vector",
		sql: `ALTER TABLE videos
			ADD COLUMN IF NOT EXISTS tags_search_vector tsvector
			GENERATED ALWAYS AS (jsonb_to_tsvector('russian', tags, '["string"]')) STORED`,
	},
	{
		name: "video tags search index",
		sql:  `CREATE INDEX IF NOT EXISTS idx_videos_tags_search_vector ON videos USING GIN (tags_search_vector)`,
	},
	{
		name: "image tags index",
		sql:  `CREATE INDEX IF NOT EXISTS idx_images_tags ON images USING GIN (tags)`,
	},
	{
		name: "music tags index",
		sql:  `CREATE INDEX IF NOT EXISTS idx_musics_tags ON musics USING GIN (tags)`,
	},
	{
		name: "subscription quota check",
		sql: `DO $$
		BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_subscriptions_quota') THEN
				ALTER TABLE subscriptions ADD CONSTRAINT chk_subscriptions_quota
					CHECK (max_resources_count >= 1 AND validity_days >= 1);
			END IF;
		END $$;`,
	},
	{
		name: "duration checks",
		sql: `DO $$
		BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_musics_duration') THEN
				ALTER TABLE musics ADD CONSTRAINT chk_musics_duration CHECK (duration >= 1);
			END IF;
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_videos_duration') THEN
				ALTER TABLE videos ADD CONSTRAINT chk_videos_duration CHECK (duration >= 1);
			END IF;
		END $$;`,
	},
}

// Migrate runs database migrations for the current dialect and seeds default roles.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.UserRole{},
		&models.Resource{},
		&models.Image{},
		&models.Music{},
		&models.Video{},
		&models.Subscription{},
		&models.UserSubscription{},
		&models.AcquiredUserResource{},
		&models.Checkout{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if !IsSQLite(conn) {
		for _, stmt := range postgresDDL {
			if errExec := conn.Exec(stmt.sql).Error; errExec != nil {
				return fmt.Errorf("db: %s: %w", stmt.name, errExec)
			}
		}
	}

	return ensureDefaultRoles(conn)
}

// ensureDefaultRoles inserts the built-in roles when missing.
func ensureDefaultRoles(conn *gorm.DB) error {
	for _, name := range internalsettings.DefaultRoles {
		role := models.Role{Name: name, NormalizedName: strings.ToUpper(name)}
		if errCreate := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&role).Error; errCreate != nil {
			return fmt.Errorf("db: seed role %s: %w", name, errCreate)
		}
	}
	return nil
}
