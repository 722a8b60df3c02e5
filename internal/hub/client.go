package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is the live connection handle for a user. The hub tracks at most
// one Client per user id; a newer connection for the same user supersedes
// the previous handle.
type Client struct {
	UserID     string
	Name       string
	AvatarURL  string
	Conn       *websocket.Conn
	Send       chan []byte
	LastActive time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps a websocket connection in a hub client.
func NewClient(userID, name, avatarURL string, conn *websocket.Conn) *Client {
	return &Client{
		UserID:     userID,
		Name:       name,
		AvatarURL:  avatarURL,
		Conn:       conn,
		Send:       make(chan []byte, 256),
		LastActive: time.Now(),
		done:       make(chan struct{}),
	}
}

// close tears down the transport. Safe to call more than once; the Send
// channel is never closed so concurrent broadcasts cannot panic.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}
