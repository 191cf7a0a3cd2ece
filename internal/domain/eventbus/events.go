package eventbus

import "time"

// Session lifecycle topics.
const (
	EventSessionStarted   = "session:started"
	EventSessionRefreshed = "session:refreshed"
	EventSessionExpired   = "session:expired"
	EventSessionEnded     = "session:ended"
)

// SessionTopics lists every topic published by the client.
var SessionTopics = []string{
	EventSessionStarted,
	EventSessionRefreshed,
	EventSessionExpired,
	EventSessionEnded,
}

// SessionEventData is the payload of every session topic.
type SessionEventData struct {
	Namespace  string    `json:"namespace"`
	Username   string    `json:"username,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	LoginRoute string    `json:"login_route,omitempty"`
	At         time.Time `json:"at"`
}
