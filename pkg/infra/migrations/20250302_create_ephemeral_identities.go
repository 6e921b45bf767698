package migrations

import (
	"github.com/inkpress/gatekeeper/pkg/infra/database"
	"gorm.io/gorm"
)

func init() {
	database.RegisterMigration(database.Migration{
		ID:   "20250302_create_ephemeral_identities",
		Name: "Create ephemeral_identities table for guests and verification codes",
		Up: func(db *gorm.DB) error {
			if err := db.Exec(`
				CREATE TABLE IF NOT EXISTS ephemeral_identities (
					id            UUID PRIMARY KEY,
					kind          VARCHAR(32) NOT NULL,
					identity_key  VARCHAR(255) NOT NULL,
					payload       TEXT NOT NULL,
					expire_at_ms  BIGINT NOT NULL,
					created_at_ms BIGINT NOT NULL
				);
			`).Error; err != nil {
				return err
			}
			if err := db.Exec(`
				CREATE UNIQUE INDEX IF NOT EXISTS idx_ephemeral_identities_kind_key
				ON ephemeral_identities (kind, identity_key);
			`).Error; err != nil {
				return err
			}
			return db.Exec(`
				CREATE INDEX IF NOT EXISTS idx_ephemeral_identities_expire_at_ms
				ON ephemeral_identities (kind, expire_at_ms);
			`).Error
		},
		Down: func(db *gorm.DB) error {
			return db.Exec(`DROP TABLE IF EXISTS ephemeral_identities;`).Error
		},
	})
}
