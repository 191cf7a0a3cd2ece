package storage

import (
	"time"

	"gorm.io/datatypes"
)

// SessionCredential is the persisted credential pair of one session
// namespace.
type SessionCredential struct {
	ID           uint      `gorm:"primaryKey"`
	Namespace    string    `gorm:"uniqueIndex;not null"`
	AccessToken  string    `gorm:"type:text"`
	RefreshToken string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (SessionCredential) TableName() string {
	return "session_credentials"
}

// SessionEvent is an audit row for a published session event.
type SessionEvent struct {
	ID        uint           `gorm:"primaryKey"`
	Topic     string         `gorm:"index;not null"`
	Namespace string         `gorm:"index"`
	Payload   datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"index;not null"`
}

func (SessionEvent) TableName() string {
	return "session_events"
}
