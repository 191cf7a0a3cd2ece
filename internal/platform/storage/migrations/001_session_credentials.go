package migrations

import (
	"gorm.io/gorm"
)

// Migration001SessionCredentials creates the credential table.
type Migration001SessionCredentials struct{}

func (m *Migration001SessionCredentials) Version() string {
	return "001_session_credentials"
}

func (m *Migration001SessionCredentials) Description() string {
	return "Create session credential table keyed by namespace"
}

func (m *Migration001SessionCredentials) Up(db *gorm.DB) error {
	return db.Exec(`
		CREATE TABLE IF NOT EXISTS session_credentials (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace VARCHAR(255) NOT NULL UNIQUE,
			access_token TEXT,
			refresh_token TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error
}

func (m *Migration001SessionCredentials) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS session_credentials`).Error
}
