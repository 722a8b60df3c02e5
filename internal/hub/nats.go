// internal/hub/nats.go
package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gymstack/presenced/internal/message"
)

// JetStream stream names and subject layouts for the durable event trail.
const (
	StreamPresence      = "PRESENCE"
	StreamNotifications = "NOTIFICATIONS"

	subjectPresence      = "presence.%s.%s" // presence.<status>.<userID>
	subjectNotifications = "notifications.%s"
)

// NotificationSubject returns the JetStream subject carrying a user's
// notification history.
func NotificationSubject(userID string) string {
	return fmt.Sprintf(subjectNotifications, userID)
}

// publishPresenceEvent records a presence transition in JetStream. The hub
// runs fine without NATS; publishing is skipped when no connection is up.
func (h *Hub) publishPresenceEvent(userID string, status message.Status) {
	if h.NatsConn == nil || h.Js == nil {
		return
	}

	event := map[string]interface{}{
		"user_id":   userID,
		"status":    status,
		"timestamp": time.Now().Unix(),
	}

	subject := fmt.Sprintf(subjectPresence, status, userID)
	if data, err := json.Marshal(event); err == nil {
		if _, err := h.Js.Publish(subject, data); err != nil {
			h.Logger.Errorf("Failed to publish presence event to NATS: %v", err)
		}
	} else {
		h.Logger.Errorf("Failed to marshal presence event: %v", err)
	}
}

// publishNotification records a targeted notification frame in JetStream so
// the API can serve per-user notification history.
func (h *Hub) publishNotification(userID string, frame []byte) {
	if h.NatsConn == nil || h.Js == nil {
		return
	}

	if _, err := h.Js.Publish(NotificationSubject(userID), frame); err != nil {
		h.Logger.Errorf("Failed to publish notification to NATS: %v", err)
	}
}
