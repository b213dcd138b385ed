package relay

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteTimeout = 5 * time.Second

// Conn is the client-facing side of a session. Both the transcript
// forwarder and the summary scheduler write to it, so implementations
// must serialize writes.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteJSON(v interface{}) error
	WriteClose(code int, reason string) error
	Close() error
}

// wsConn wraps a gorilla connection with a write mutex. The mutex is
// the single serialization point for transcript frames, summary
// frames, and close frames.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewConn(conn *websocket.Conn) Conn {
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	return c.conn.ReadMessage()
}

func (c *wsConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsConn) WriteClose(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(closeWriteTimeout),
	)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// transcriptMessage is the outbound frame for one recognition result.
// Speaker is null until the client has labeled its speakers.
type transcriptMessage struct {
	Type      string  `json:"type"`
	Timestamp string  `json:"timestamp"`
	Speaker   *string `json:"speaker"`
	Text      string  `json:"text"`
	IsFinal   bool    `json:"is_final"`
}

type summaryMessage struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// formatTimestamp renders elapsed session time as MM:SS.
func formatTimestamp(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
