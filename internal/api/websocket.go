package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/fingerprint-bridge/internal/hub"
)

// WebSocket defaults used when the config leaves a value at zero.
const (
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
	defaultMaxMessageSize = 8192
)

// wsSession is one browser connection. It implements hub.Session.
type wsSession struct {
	id        string
	conn      *websocket.Conn
	queue     *hub.Queue
	closeOnce sync.Once
}

func newWSSession(conn *websocket.Conn) *wsSession {
	return &wsSession{
		id:    uuid.NewString(),
		conn:  conn,
		queue: hub.NewQueue(hub.DefaultQueueSize),
	}
}

// ID implements hub.Session.
func (ws *wsSession) ID() string {
	return ws.id
}

// Deliver implements hub.Session. Frames are queued for the write pump.
func (ws *wsSession) Deliver(text string) error {
	return ws.queue.Push(text)
}

func (ws *wsSession) close() {
	ws.closeOnce.Do(func() {
		ws.conn.Close()
	})
}

// wsTimings resolves ping, pong and read-limit settings with defaults.
func (s *Server) wsTimings() (ping, pong time.Duration, maxSize int64) {
	ping = time.Duration(s.wsCfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	pong = time.Duration(s.wsCfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = defaultPongTimeout
	}
	maxSize = int64(s.wsCfg.MaxMessageSize)
	if maxSize <= 0 {
		maxSize = defaultMaxMessageSize
	}
	return ping, pong, maxSize
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}
}

// handleWebSocket upgrades the connection and attaches it to the bridge.
// The new session receives the device status before anything else.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	ws := newWSSession(conn)
	s.trackSession(ws)
	s.bridge.Connect(ws)
	s.logger.Debug("websocket client connected", "session_id", ws.id, "remote", r.RemoteAddr)

	go s.writePump(ws)
	go s.readPump(ws)
}

// readPump feeds text frames to the bridge until the connection drops,
// then detaches the session.
func (s *Server) readPump(ws *wsSession) {
	defer func() {
		s.bridge.Disconnect(ws)
		s.untrackSession(ws)
		ws.queue.Close()
		ws.close()
	}()

	ping, pong, maxSize := s.wsTimings()
	ws.conn.SetReadLimit(maxSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	ws.conn.SetReadDeadline(time.Now().Add(ping + pong))
	ws.conn.SetPongHandler(func(string) error {
		return ws.conn.SetReadDeadline(time.Now().Add(ping + pong))
	})

	for {
		msgType, message, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "session_id", ws.id, "error", err)
			} else {
				s.logger.Debug("websocket closed", "session_id", ws.id)
			}
			return
		}
		// Any client message keeps the connection alive, even from
		// browsers that ignore protocol-level pings.
		//nolint:errcheck // Best-effort deadline reset
		ws.conn.SetReadDeadline(time.Now().Add(ping + pong))

		if msgType != websocket.TextMessage {
			s.logger.Debug("ignoring non-text websocket frame", "session_id", ws.id, "type", msgType)
			continue
		}
		s.bridge.HandleCommand(ws, string(message))
	}
}

// writePump drains the session queue and keeps the connection alive with
// pings. A write failure closes the connection so readPump cleans up.
func (s *Server) writePump(ws *wsSession) {
	ping, pong, _ := s.wsTimings()
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		ws.close()
	}()

	for {
		select {
		case text, ok := <-ws.queue.C():
			if !ok {
				//nolint:errcheck // Best-effort close message
				ws.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			ws.conn.SetWriteDeadline(time.Now().Add(pong))
			if err := ws.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				s.logger.Debug("websocket write failed", "session_id", ws.id, "error", err)
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			ws.conn.SetWriteDeadline(time.Now().Add(pong))
			if err := ws.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
