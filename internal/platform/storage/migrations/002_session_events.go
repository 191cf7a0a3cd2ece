package migrations

import (
	"gorm.io/gorm"
)

// Migration002SessionEvents creates the session event audit table.
type Migration002SessionEvents struct{}

func (m *Migration002SessionEvents) Version() string {
	return "002_session_events"
}

func (m *Migration002SessionEvents) Description() string {
	return "Create session event audit table"
}

func (m *Migration002SessionEvents) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS session_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			topic VARCHAR(255) NOT NULL,
			namespace VARCHAR(255),
			payload JSON NOT NULL,
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return err
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_session_events_topic ON session_events(topic)`,
		`CREATE INDEX IF NOT EXISTS idx_session_events_namespace ON session_events(namespace)`,
		`CREATE INDEX IF NOT EXISTS idx_session_events_created_at ON session_events(created_at)`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration002SessionEvents) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS session_events`).Error
}
