// Package transport is the bidirectional event channel to the single
// connected browser client.
package transport

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeTimeout = 10 * time.Second

// Envelope is the wire shape for outbound events.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Command is the wire shape for inbound client commands.
type Command struct {
	Type string `json:"type"`

	// start_recording
	Duration int  `json:"duration,omitempty"` // seconds; 0 = until stopped
	LiveMode bool `json:"live_mode,omitempty"`

	// get_answer
	Question   string `json:"question,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Format     string `json:"format,omitempty"` // bullets|full
}

// WS publishes events to one websocket client. Publish is fire-and-forget,
// at-most-once: after a write failure or Close the connection is considered
// gone and every further publish is a no-op, never an error.
type WS struct {
	conn *websocket.Conn
	log  *logrus.Entry

	mu     sync.Mutex
	closed bool
}

func NewWS(conn *websocket.Conn, log *logrus.Entry) *WS {
	return &WS{conn: conn, log: log}
}

func (t *WS) Publish(event string, payload any) {
	b, err := json.Marshal(Envelope{Type: event, Data: payload})
	if err != nil {
		t.log.WithError(err).WithField("event", event).Error("event marshal failed")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := t.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		// Client is gone; session logic continues, publishes become no-ops.
		t.log.WithError(err).WithField("event", event).Debug("publish dropped, client disconnected")
		t.closed = true
	}
}

// ReadCommand blocks until the next inbound command. Malformed JSON is
// reported as ok=false with a non-nil command of type "".
func (t *WS) ReadCommand() (Command, error) {
	var cmd Command
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return cmd, err
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		cmd.Type = ""
		return cmd, nil
	}
	return cmd, nil
}

func (t *WS) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}
