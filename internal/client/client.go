// internal/client/client.go
//
// Websocket client for the session server.
// Responsibilities:
//   - Join a session and keep a local copy of the game state.
//   - Submit moves, end-turns, forfeits, resets and resyncs.
//   - Detect gaps: an accepted result whose move count is not local+1 is a
//     desync; the client asks for a resync instead of applying it. Local
//     state is replaced wholesale only by full_snapshot.
//   - Reconnect with the seat token and resync straight away.
//
// Every inbound message is also published on Events() for the UI.

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wolfsheep/internal/errs"
	"github.com/robalobadob/wolfsheep/internal/game"
	"github.com/robalobadob/wolfsheep/internal/protocol"
)

// EventDisconnected is published when the connection drops.
const EventDisconnected = "disconnected"

var errClosed = errors.New("client closed")

// Event is one inbound message, decoded. Exactly the field matching Type is
// set. Desync marks an accepted result that was not applied.
type Event struct {
	Type     string
	Result   *protocol.MoveResult
	Snapshot *game.Snapshot
	GameOver *protocol.GameOverNotice
	Players  []protocol.Player
	Error    *protocol.ErrorNotice
	Desync   bool
	Err      error
}

// Client is one seat in a remote session.
type Client struct {
	url    string
	join   protocol.JoinRequest
	dialer *websocket.Dialer
	events chan Event

	wmu sync.Mutex // serialises writes to ws

	mu        sync.Mutex
	ws        *websocket.Conn
	log       zerolog.Logger
	snap      game.Snapshot
	seat      game.Seat
	token     string
	sessionID string
}

// Dial connects to a session websocket (ws://host/sessions/{id}/ws) and
// joins it. It returns once the join is acknowledged.
func Dial(ctx context.Context, url string, req protocol.JoinRequest) (*Client, error) {
	c := &Client{
		url:    url,
		join:   req,
		dialer: websocket.DefaultDialer,
		events: make(chan Event, 256),
		log:    log.With().Str("url", url).Logger(),
	}
	ack, ws, err := c.connect(ctx, req)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.snap = ack.Snapshot
	c.mu.Unlock()
	go c.readLoop(ws)
	return c, nil
}

// connect dials, joins, and installs the connection and seat from the ack.
func (c *Client) connect(ctx context.Context, req protocol.JoinRequest) (protocol.JoinAck, *websocket.Conn, error) {
	req.V = protocol.Version
	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return protocol.JoinAck{}, nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(dl)
	}
	if err := ws.WriteMessage(websocket.TextMessage, protocol.MustEncode(protocol.MsgJoin, req)); err != nil {
		_ = ws.Close()
		return protocol.JoinAck{}, nil, fmt.Errorf("send join: %w", err)
	}

	var ack protocol.JoinAck
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			_ = ws.Close()
			return protocol.JoinAck{}, nil, fmt.Errorf("await join_ack: %w", err)
		}
		env, err := protocol.DecodeEnvelope(msg)
		if err != nil {
			_ = ws.Close()
			return protocol.JoinAck{}, nil, err
		}
		if env.T == protocol.MsgError {
			n, _ := protocol.DecodePayload[protocol.ErrorNotice](env)
			_ = ws.Close()
			return protocol.JoinAck{}, nil, errs.Newf(errs.CodeProtocol, n.Reason, "join refused: %s", n.Message)
		}
		if env.T != protocol.MsgJoinAck {
			continue
		}
		if ack, err = protocol.DecodePayload[protocol.JoinAck](env); err != nil {
			_ = ws.Close()
			return protocol.JoinAck{}, nil, err
		}
		break
	}
	_ = ws.SetReadDeadline(time.Time{})

	c.mu.Lock()
	old := c.ws
	c.ws = ws
	c.seat = ack.AssignedRole
	c.token = ack.Token
	c.sessionID = ack.SessionID
	c.log = log.With().Str("session", ack.SessionID).Str("seat", ack.AssignedRole.String()).Logger()
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	c.logger().Info().Int("moveCount", ack.Snapshot.MoveCount).Msg("joined")
	return ack, ws, nil
}

// Reconnect redials with the seat token and resyncs from the local move
// count. The ack's snapshot is not applied; the resync answer is.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	req := c.join
	req.Token = c.token
	req.DesiredRole = c.seat
	c.mu.Unlock()

	_, ws, err := c.connect(ctx, req)
	if err != nil {
		return err
	}
	go c.readLoop(ws)
	return c.Resync()
}

func (c *Client) readLoop(ws *websocket.Conn) {
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := c.ws == ws
			c.mu.Unlock()
			if current {
				c.publish(Event{Type: EventDisconnected, Err: err})
			}
			return
		}
		env, err := protocol.DecodeEnvelope(msg)
		if err != nil {
			c.logger().Warn().Err(err).Msg("bad frame from server")
			continue
		}
		c.handle(env)
	}
}

func (c *Client) handle(env protocol.Envelope) {
	ev := Event{Type: env.T}
	switch env.T {
	case protocol.MsgMoveResult:
		res, err := protocol.DecodePayload[protocol.MoveResult](env)
		if err != nil {
			c.logger().Warn().Err(err).Msg("move_result")
			return
		}
		ev.Result = &res
		if res.Accepted && res.NewSnapshot != nil {
			c.mu.Lock()
			local := c.snap.MoveCount
			if res.NewSnapshot.MoveCount == local+1 {
				c.snap = *res.NewSnapshot
			} else {
				ev.Desync = true
			}
			c.mu.Unlock()
			if ev.Desync {
				c.logger().Info().
					Err(errs.Newf(errs.CodeDesync, "", "local %d, server %d", local, res.NewSnapshot.MoveCount)).
					Msg("gap detected; resyncing")
				if err := c.Resync(); err != nil {
					c.logger().Warn().Err(err).Msg("resync")
				}
			}
		}
	case protocol.MsgFullSnapshot:
		full, err := protocol.DecodePayload[protocol.FullSnapshot](env)
		if err != nil {
			c.logger().Warn().Err(err).Msg("full_snapshot")
			return
		}
		c.mu.Lock()
		c.snap = full.Snapshot
		c.mu.Unlock()
		ev.Snapshot = &full.Snapshot
	case protocol.MsgGameOver:
		over, err := protocol.DecodePayload[protocol.GameOverNotice](env)
		if err != nil {
			return
		}
		ev.GameOver = &over
	case protocol.MsgPlayers:
		pl, err := protocol.DecodePayload[protocol.PlayerList](env)
		if err != nil {
			return
		}
		ev.Players = pl.Players
	case protocol.MsgError:
		n, err := protocol.DecodePayload[protocol.ErrorNotice](env)
		if err != nil {
			return
		}
		ev.Error = &n
	}
	c.publish(ev)
}

func (c *Client) logger() *zerolog.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.log
	return &l
}

func (c *Client) publish(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger().Warn().Str("type", ev.Type).Msg("event dropped; consumer too slow")
	}
}

func (c *Client) send(t string, payload any) error {
	b, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return errClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, b)
}

// Move submits a move in board notation, e.g. Move("b5", "b6").
func (c *Client) Move(from, to string) error {
	return c.send(protocol.MsgMove, protocol.MoveRequest{From: from, To: to})
}

// EndTurn stops a capture chain.
func (c *Client) EndTurn() error {
	return c.send(protocol.MsgEndTurn, protocol.EndTurnRequest{})
}

// Forfeit resigns the game.
func (c *Client) Forfeit() error {
	return c.send(protocol.MsgForfeit, protocol.ForfeitRequest{})
}

// Reset asks the server to start the game over.
func (c *Client) Reset() error {
	return c.send(protocol.MsgReset, protocol.ResetRequest{})
}

// Resync asks the server to confirm or replace the local state.
func (c *Client) Resync() error {
	c.mu.Lock()
	n := c.snap.MoveCount
	c.mu.Unlock()
	return c.send(protocol.MsgResync, protocol.Resync{LastKnownMoveCount: n})
}

// Snapshot returns the local copy of the game.
func (c *Client) Snapshot() game.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Seat returns the seat the server assigned.
func (c *Client) Seat() game.Seat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seat
}

// Token returns the seat token for reconnecting.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SessionID returns the joined session's id.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Events delivers every inbound message. It is never closed.
func (c *Client) Events() <-chan Event { return c.events }

// Close leaves the session.
func (c *Client) Close() error {
	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()
	if ws == nil {
		return nil
	}
	c.wmu.Lock()
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wmu.Unlock()
	return ws.Close()
}

// ---- lobby helpers ----

// CreateSession asks the server at base (http://host:port) for a new session
// and returns its websocket URL.
func CreateSession(ctx context.Context, base string, req any) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	base = strings.TrimRight(base, "/")
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/sessions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	hr.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(hr)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	var out struct {
		ID    string `json:"id"`
		WS    string `json:"ws"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("create session: %s: %w", res.Status, err)
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create session: %s: %s", res.Status, out.Error)
	}
	return WSURL(base, out.ID), nil
}

// WSURL maps an http(s) base URL and session id to the websocket endpoint.
func WSURL(base, id string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/sessions/" + id + "/ws"
}
