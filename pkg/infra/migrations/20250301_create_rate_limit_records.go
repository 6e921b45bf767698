package migrations

import (
	"github.com/inkpress/gatekeeper/pkg/infra/database"
	"gorm.io/gorm"
)

// Times are unix milliseconds so window and block comparisons stay integer
// comparisons on every driver.
func init() {
	database.RegisterMigration(database.Migration{
		ID:   "20250301_create_rate_limit_records",
		Name: "Create rate_limit_records table",
		Up: func(db *gorm.DB) error {
			if err := db.Exec(`
				CREATE TABLE IF NOT EXISTS rate_limit_records (
					client_key      TEXT PRIMARY KEY,
					window_start_ms BIGINT NOT NULL,
					window_end_ms   BIGINT NOT NULL,
					request_count   BIGINT NOT NULL DEFAULT 0,
					blocked         BOOLEAN NOT NULL DEFAULT FALSE,
					block_until_ms  BIGINT NOT NULL DEFAULT 0,
					updated_at_ms   BIGINT NOT NULL
				);
			`).Error; err != nil {
				return err
			}
			return db.Exec(`
				CREATE INDEX IF NOT EXISTS idx_rate_limit_records_window_end_ms
				ON rate_limit_records (window_end_ms);
			`).Error
		},
		Down: func(db *gorm.DB) error {
			return db.Exec(`DROP TABLE IF EXISTS rate_limit_records;`).Error
		},
	})
}
