package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/bus"
	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/metrics"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxFrameSize bounds incoming control frames.
	maxFrameSize = 4096

	// sendBufSize is the per-session outgoing event buffer depth.
	sendBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins — callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// controlFrame is the decoded form of a client → server message.
type controlFrame struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

// Handler upgrades GET /ws requests and runs one session per connection.
type Handler struct {
	bus *bus.Bus
	rec *metrics.Recorder
}

// NewHandler creates a Handler wired to the given bus.
func NewHandler(b *bus.Bus, rec *metrics.Recorder) *Handler {
	return &Handler{bus: b, rec: rec}
}

// ServeHTTP upgrades the connection and blocks until the session ends.
// Subscription cleanup is guaranteed on every exit path.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	s := &session{
		conn: conn,
		send: make(chan []byte, sendBufSize),
		done: make(chan struct{}),
	}
	h.rec.ConnOpened()
	defer func() {
		h.bus.UnsubscribeAll(s)
		close(s.done)
		h.rec.ConnClosed()
	}()

	go s.writePump()
	s.readPump(h.bus) // blocks until the connection closes
}

// session is one live WebSocket connection and its subscription state.
type session struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Send queues payload for delivery without blocking. It reports
// bus.ErrSubscriberDead once the session has ended or when the outgoing
// buffer is full (a consumer too slow to drain events is dropped).
func (s *session) Send(payload []byte) error {
	select {
	case <-s.done:
		return bus.ErrSubscriberDead
	default:
	}
	select {
	case s.send <- payload:
		return nil
	default:
		return bus.ErrSubscriberDead
	}
}

// readPump processes control frames until the connection closes. Malformed
// frames are skipped; unknown types are ignored for forward compatibility.
func (s *session) readPump(b *bus.Bus) {
	defer s.conn.Close()
	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame controlFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			// One bad frame must not drop the whole socket.
			slog.Debug("ws: ignoring malformed frame", "err", err)
			continue
		}

		switch frame.Type {
		case "subscribe":
			applied := b.Resubscribe(frame.Topics, s)
			s.reply(confirmFrame{Type: "subscribed", Topics: applied})

		case "unsubscribe":
			for _, t := range frame.Topics {
				b.Unsubscribe(t, s)
			}

		case "ping":
			s.reply(confirmFrame{Type: "pong"})

		default:
			// Unrecognized control type — ignore.
		}
	}
}

// confirmFrame is a server → client reply (subscribed, pong).
type confirmFrame struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics,omitempty"`
}

// reply queues a confirmation through the same channel as broadcasts so
// all writes stay serialized on the writePump goroutine.
func (s *session) reply(f confirmFrame) {
	payload, err := json.Marshal(f)
	if err != nil {
		return
	}
	if err := s.Send(payload); err != nil {
		slog.Debug("ws: dropped reply frame", "type", f.Type)
	}
}

// writePump drains the session's send channel and forwards payloads to the
// connection. It also sends periodic ping frames. Runs in its own goroutine.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
			return

		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
