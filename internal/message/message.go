// internal/message/message.go
// Contains data structures for messages exchanged between clients and server.
package message

import "time"

// Protocol version stamped on every outbound frame.
const Version = "1.0"

// Outbound frame types.
const (
	TypeOnlineUsersUpdate = "ONLINE_USERS_UPDATE"
	TypeTrainingLevel     = "training:level"
	TypeNotification      = "notification"
	TypeError             = "error"
)

// Inbound frame types.
const (
	TypePresenceJoin   = "presence:join"
	TypePresenceStatus = "presence:status"
)

// Status is a user's presence state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

// Valid reports whether s is one of the known presence states.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	}
	return false
}

// TrainingLevel summarizes a user's training-module completion.
type TrainingLevel struct {
	Level    string `json:"level"`
	Progress int    `json:"progress"`
}

// PresenceEntry is the per-user presence record as sent to clients.
// The transport connection handle is tracked separately by the hub and
// is never part of this structure.
type PresenceEntry struct {
	UserID    string         `json:"user_id"`
	Name      string         `json:"name"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Status    Status         `json:"status"`
	LastSeen  time.Time      `json:"last_seen"`
	Training  *TrainingLevel `json:"training,omitempty"`
}

// Inbound is a client frame read off the websocket.
type Inbound struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	Status Status `json:"status,omitempty"`
}

// PresenceUpdate is the full-snapshot presence broadcast. Consumers must
// replace their prior view with Users, not merge into it.
type PresenceUpdate struct {
	Version string          `json:"version"`
	Type    string          `json:"type"`
	Users   []PresenceEntry `json:"users"`
}

// TrainingUpdate is pushed only to the connection of the user it describes.
type TrainingUpdate struct {
	Version  string `json:"version"`
	Type     string `json:"type"`
	Level    string `json:"level"`
	Progress int    `json:"progress"`
}

// Notification carries an application-defined payload to targeted users.
type Notification struct {
	Version string      `json:"version"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ErrorFrame reports a per-client protocol error.
type ErrorFrame struct {
	Version string `json:"version"`
	Type    string `json:"type"`
	Data    string `json:"data"`
}
