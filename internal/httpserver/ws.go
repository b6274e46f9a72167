// internal/httpserver/ws.go
//
// Websocket transport for sessions.
// Responsibilities:
//   - Upgrade GET /sessions/{id}/ws and attach the connection to the session.
//   - Read loop: one text frame per protocol envelope, handed to Peer.Handle;
//     a protocol violation closes the connection.
//   - Write side: a buffered outbound queue drained by one writer goroutine,
//     so a slow client never blocks the session. A full queue drops the
//     connection.
//   - Keepalive: ping every 25s, read deadline 60s refreshed by pongs.

package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	readLimit    = 64 << 10
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	writeWait    = 10 * time.Second
	sendQueueLen = 64
)

var (
	errConnClosed = errors.New("connection closed")
	errQueueFull  = errors.New("send queue full")
)

// wsConn adapts a websocket to session.Conn.
type wsConn struct {
	ws  *websocket.Conn
	out chan []byte

	mu     sync.Mutex
	closed bool
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws, out: make(chan []byte, sendQueueLen)}
}

// Send queues b for the writer. It never blocks.
func (c *wsConn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.out <- b:
		return nil
	default:
		return errQueueFull
	}
}

// Close stops accepting messages; the writer flushes what is queued, then
// closes the socket.
func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
	return nil
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case b, ok := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Debug().Err(err).Msg("ws write")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// checkOrigin admits non-browser clients, the configured client origin and
// same-host pages.
func checkOrigin(allowed string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || origin == allowed {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("session", sess.ID()).Msg("upgrade")
		return
	}

	conn := newWSConn(ws)
	peer := sess.Connect(conn)
	go conn.writeLoop()
	defer func() {
		peer.Disconnect()
		_ = conn.Close()
	}()

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		typ, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("session", sess.ID()).Msg("ws read")
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		if err := peer.Handle(msg); err != nil {
			return
		}
	}
}
