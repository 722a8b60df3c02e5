package hub

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/gymstack/presenced/internal/message"
)

// defaultNamePrefixLen is how much of the user id seeds a synthesized
// display name when the client never supplies one.
const defaultNamePrefixLen = 4

// DefaultName synthesizes a display name from a user id.
func DefaultName(userID string) string {
	if len(userID) > defaultNamePrefixLen {
		userID = userID[:defaultNamePrefixLen]
	}
	return fmt.Sprintf("User %s", userID)
}

// Register records a new live connection for a user, superseding any prior
// handle, and marks the user online. Re-registering overwrites cleanly.
func (h *Hub) Register(client *Client) {
	name := client.Name
	if name == "" {
		name = DefaultName(client.UserID)
	}

	h.mu.Lock()
	if old, ok := h.conns[client.UserID]; ok && old != client {
		// The superseded handle is closed but not unregistered; its pump
		// teardown must not tear down this new connection.
		old.close()
	}
	h.conns[client.UserID] = client
	h.presence[client.UserID] = &message.PresenceEntry{
		UserID:    client.UserID,
		Name:      name,
		AvatarURL: client.AvatarURL,
		Status:    message.StatusOnline,
		LastSeen:  time.Now(),
	}
	h.mu.Unlock()

	h.Logger.Infof("Client registered: %s", client.UserID)
	h.publishPresenceEvent(client.UserID, message.StatusOnline)
	h.BroadcastPresence()
}

// Unregister marks a user offline and removes its connection handle. The
// presence entry is retained so last-seen history survives within the
// process. Calling it again for the same user is a harmless no-op.
func (h *Hub) Unregister(userID string) {
	h.mu.Lock()
	entry, hadEntry := h.presence[userID]
	if hadEntry {
		entry.Status = message.StatusOffline
		entry.LastSeen = time.Now()
	}
	client, hadConn := h.conns[userID]
	if hadConn {
		delete(h.conns, userID)
	}
	h.mu.Unlock()

	if !hadEntry && !hadConn {
		return
	}
	if hadConn {
		client.close()
		h.publishPresenceEvent(userID, message.StatusOffline)
		h.Logger.Infof("Client unregistered: %s", userID)
	}
	h.BroadcastPresence()
}

// DropClient unregisters a user in response to a disconnect or transport
// error on the given handle, but only if that handle is still the user's
// current connection. Errors on a superseded handle are ignored so a stale
// connection cannot tear down a live reconnect.
func (h *Hub) DropClient(client *Client) {
	h.mu.Lock()
	current, ok := h.conns[client.UserID]
	h.mu.Unlock()

	if !ok || current != client {
		h.Logger.Debugf("Ignoring teardown for superseded connection of %s", client.UserID)
		client.close()
		return
	}
	h.Unregister(client.UserID)
}

// HandleJoin processes an explicit presence:join from a connected client.
// The presence broadcast and the training-level push are independent side
// effects; the broadcast does not wait for the training lookup.
func (h *Hub) HandleJoin(client *Client, name string) {
	h.mu.Lock()
	entry, ok := h.presence[client.UserID]
	if !ok {
		entry = &message.PresenceEntry{
			UserID:    client.UserID,
			AvatarURL: client.AvatarURL,
		}
		h.presence[client.UserID] = entry
	}
	entry.Status = message.StatusOnline
	entry.LastSeen = time.Now()
	if name != "" {
		entry.Name = name
	} else if entry.Name == "" {
		entry.Name = DefaultName(client.UserID)
	}
	h.mu.Unlock()

	go h.BroadcastTrainingLevel(client.UserID)
	h.BroadcastPresence()
}

// HandleStatus updates a joined user's presence state. Unknown users are
// ignored; a status change requires a prior join.
func (h *Hub) HandleStatus(client *Client, status message.Status) {
	h.mu.Lock()
	entry, ok := h.presence[client.UserID]
	if ok {
		entry.Status = status
		entry.LastSeen = time.Now()
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	h.BroadcastPresence()
}

// ActiveUsers returns the ids of all users whose presence state is not
// offline. Pure read, no side effects.
func (h *Hub) ActiveUsers() []string {
	h.mu.Lock()
	ids := make([]string, 0, len(h.presence))
	for id, entry := range h.presence {
		if entry.Status != message.StatusOffline {
			ids = append(ids, id)
		}
	}
	h.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of every presence entry, offline ones included.
func (h *Hub) Snapshot() []message.PresenceEntry {
	h.mu.Lock()
	users := make([]message.PresenceEntry, 0, len(h.presence))
	for _, entry := range h.presence {
		users = append(users, *entry)
	}
	h.mu.Unlock()

	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

// BroadcastPresence pushes the full presence snapshot to every connected
// client. The payload replaces the client's prior view; it is never a delta.
func (h *Hub) BroadcastPresence() {
	update := message.PresenceUpdate{
		Version: message.Version,
		Type:    message.TypeOnlineUsersUpdate,
		Users:   h.Snapshot(),
	}

	data, err := json.Marshal(update)
	if err != nil {
		h.Logger.Errorf("Failed to marshal presence update: %v", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.Logger.Warn("Broadcast channel full, presence update dropped")
	}
}

// Broadcast delivers an application-defined payload to each listed user's
// current connection. Users without a live connection are silently skipped.
func (h *Hub) Broadcast(userIDs []string, payload interface{}) error {
	frame := message.Notification{
		Version: message.Version,
		Type:    message.TypeNotification,
		Payload: payload,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("could not marshal notification: %w", err)
	}

	for _, userID := range userIDs {
		h.mu.Lock()
		client, ok := h.conns[userID]
		h.mu.Unlock()

		h.publishNotification(userID, data)
		if !ok {
			continue
		}
		h.sendFrame(client, data)
	}
	return nil
}

// HandleClientMessage routes an inbound client frame to the matching
// presence operation.
func (h *Hub) HandleClientMessage(client *Client, msg message.Inbound) {
	switch msg.Type {
	case message.TypePresenceJoin:
		h.HandleJoin(client, msg.Name)

	case message.TypePresenceStatus:
		if !msg.Status.Valid() {
			h.SendErrorMessage(client, fmt.Sprintf("Unknown presence status %q", msg.Status))
			return
		}
		h.HandleStatus(client, msg.Status)

	default:
		h.SendErrorMessage(client, "Unknown message type")
	}
}

// SendErrorMessage reports a protocol error back to a single client.
func (h *Hub) SendErrorMessage(client *Client, errorMsg string) {
	frame := message.ErrorFrame{
		Version: message.Version,
		Type:    message.TypeError,
		Data:    errorMsg,
	}
	if data, err := json.Marshal(frame); err == nil {
		h.sendFrame(client, data)
	}
}
