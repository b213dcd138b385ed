package relay

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"scribe/metrics"
	"scribe/session"
	"scribe/stt"
)

// setupMessage is the optional text frame that labels the session's
// speakers. Anything else arriving as text is ignored.
type setupMessage struct {
	Type     string            `json:"type"`
	Speakers map[string]string `json:"speakers"`
}

// audioPump reads client messages and relays binary audio chunks to
// the recognizer, in arrival order, until the client disconnects or
// the connection is torn down. Empty chunks are dropped. Text frames
// only ever mutate the session; they never reach the recognizer.
type audioPump struct {
	conn    Conn
	sess    *session.Session
	live    stt.LiveSession
	metrics *metrics.Metrics
	logger  *log.Logger
}

// run returns nil on an orderly client disconnect and an error on
// anything that should escalate to session teardown.
func (p *audioPump) run() error {
	for {
		msgType, data, err := p.conn.ReadMessage()
		if err != nil {
			if isClientGone(err) {
				return nil
			}
			return fmt.Errorf("client read failed: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(data) == 0 {
				continue
			}
			if err := p.live.SendAudio(data); err != nil {
				return fmt.Errorf("failed to relay audio: %w", err)
			}
			p.metrics.AudioChunks.Inc()
		case websocket.TextMessage:
			p.applyControlMessage(data)
		}
	}
}

func (p *audioPump) applyControlMessage(data []byte) {
	var msg setupMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		p.logger.Debug("ignoring malformed control message", "error", err)
		return
	}
	if msg.Type != "setup" || len(msg.Speakers) == 0 {
		p.logger.Debug("ignoring control message", "type", msg.Type)
		return
	}
	if err := p.sess.SetSpeakers(msg.Speakers); err != nil {
		p.logger.Warn("rejected speaker setup", "error", err)
		return
	}
	p.logger.Info("speakers labeled", "count", len(msg.Speakers))
}

// isClientGone reports whether a client read error means the peer
// went away rather than something faulted.
func isClientGone(err error) bool {
	if websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return true
	}
	return stt.IsStreamReset(err)
}
