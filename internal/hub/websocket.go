// internal/hub/websocket.go
package hub

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gymstack/presenced/internal/message"
)

const (
	webSocketReadDeadline  = 60 * time.Second
	webSocketWriteDeadline = 10 * time.Second
	webSocketPingPeriod    = (webSocketReadDeadline * 9) / 10 // Must be less than readDeadline
	webSocketReadLimit     = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the gym frontend origins once they are pinned down
		return true
	},
}

// validateUserID checks that a user id is 1-64 characters of alphanumerics,
// underscore or hyphen (gym member ids include GUID-style identifiers).
func validateUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 64 {
		return false
	}
	for _, char := range userID {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_' || char == '-') {
			return false
		}
	}
	return true
}

// ServeWs upgrades the HTTP connection to a WebSocket and registers the
// client. A request without a user id is rejected outright; this is a hard
// precondition of the protocol, not a recoverable error.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user is required", http.StatusBadRequest)
		return
	}
	if !validateUserID(userID) {
		http.Error(w, "invalid user id: must be 1-64 characters, alphanumeric, underscore or hyphen", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}

	client := NewClient(userID, r.URL.Query().Get("name"), r.URL.Query().Get("avatar"), conn)
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
		return
	}
	go h.ReadPump(client)
	go h.WritePump(client)
}

// ReadPump reads frames from the WebSocket connection and routes them to
// the hub. When the pump exits for any reason — clean close or transport
// error — the hub decides whether this handle is still current before
// unregistering the user.
func (h *Hub) ReadPump(client *Client) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		client.close()
	}()

	client.Conn.SetReadLimit(webSocketReadLimit)
	client.Conn.SetReadDeadline(time.Now().Add(webSocketReadDeadline))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(webSocketReadDeadline))
		return nil
	})

	for {
		var msg message.Inbound
		err := client.Conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.Logger.Errorf("WebSocket error for %s: %v", client.UserID, err)
			}
			break
		}

		client.LastActive = time.Now()
		h.HandleClientMessage(client, msg)
	}
}

// WritePump writes frames to the WebSocket connection and keeps it alive
// with periodic pings.
func (h *Hub) WritePump(client *Client) {
	ticker := time.NewTicker(webSocketPingPeriod)
	defer func() {
		ticker.Stop()
		client.close()
	}()

	for {
		select {
		case data := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(webSocketWriteDeadline))
			w, err := client.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(data)

			// Add queued frames to the current write
			n := len(client.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-client.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(webSocketWriteDeadline))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.done:
			client.Conn.SetWriteDeadline(time.Now().Add(webSocketWriteDeadline))
			client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
