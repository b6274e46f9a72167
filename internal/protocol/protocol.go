// Package protocol defines the wire format spoken between the session server
// and its clients: a JSON envelope {"t": type, "p": payload} per websocket
// text frame, and one payload struct per message type.
//
// Client -> server: join, move, end_turn, resync, forfeit, reset.
// Server -> client: join_ack, move_result, game_over, full_snapshot, in_sync,
// players, error.
package protocol

import (
	"encoding/json"

	"github.com/robalobadob/wolfsheep/internal/board"
	"github.com/robalobadob/wolfsheep/internal/game"
)

const (
	MsgJoin    = "join"
	MsgMove    = "move"
	MsgEndTurn = "end_turn"
	MsgResync  = "resync"
	MsgForfeit = "forfeit"
	MsgReset   = "reset"

	MsgJoinAck      = "join_ack"
	MsgMoveResult   = "move_result"
	MsgGameOver     = "game_over"
	MsgFullSnapshot = "full_snapshot"
	MsgInSync       = "in_sync"
	MsgPlayers      = "players"
	MsgError        = "error"
)

// Version is bumped on incompatible wire changes.
const Version = 1

type Envelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p"` // raw payload bytes
}

// ---- client -> server ----

type JoinRequest struct {
	V           int       `json:"v"`
	DesiredRole game.Seat `json:"desiredRole"`
	Name        string    `json:"name,omitempty"`
	Token       string    `json:"token,omitempty"`    // reclaims a reserved seat
	Password    string    `json:"password,omitempty"` // for protected sessions
}

type MoveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type EndTurnRequest struct{}

type Resync struct {
	LastKnownMoveCount int `json:"lastKnownMoveCount"`
}

type ForfeitRequest struct{}

// ResetRequest starts the game over with the same rules. Players only.
type ResetRequest struct{}

// ---- server -> client ----

type JoinAck struct {
	SessionID    string        `json:"sessionId"`
	AssignedRole game.Seat     `json:"assignedRole"`
	Token        string        `json:"token,omitempty"`
	Snapshot     game.Snapshot `json:"snapshot"`
}

// MoveInfo is a resolved move in notation. Over is set for captures.
type MoveInfo struct {
	Piece string `json:"piece"`
	From  string `json:"from"`
	Over  string `json:"over,omitempty"`
	To    string `json:"to"`
}

// MoveResult answers a move or end_turn. A rejection carries only Reason and
// goes to the submitter alone; an acceptance is broadcast with the new state.
type MoveResult struct {
	Accepted       bool           `json:"accepted"`
	Reason         string         `json:"reason,omitempty"`
	Move           *MoveInfo      `json:"move,omitempty"`
	Notation       string         `json:"notation,omitempty"`
	NewSnapshot    *game.Snapshot `json:"newSnapshot,omitempty"`
	NextTurnHolder *game.Role     `json:"nextTurnHolder,omitempty"`
}

type GameOverNotice struct {
	Result game.Status `json:"result"`
	Reason string      `json:"reason"`
}

type FullSnapshot struct {
	Snapshot game.Snapshot `json:"snapshot"`
}

type InSync struct {
	MoveCount int `json:"moveCount"`
}

type Player struct {
	Name      string    `json:"name"`
	Seat      game.Seat `json:"seat"`
	Connected bool      `json:"connected"`
}

type PlayerList struct {
	Players []Player `json:"players"`
}

// ErrorNotice reports a protocol violation before the server closes the
// connection.
type ErrorNotice struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// ---- helpers ----

// MoveInfoOf renders an effect in notation.
func MoveInfoOf(b *board.Topology, e game.Effect) *MoveInfo {
	mi := &MoveInfo{Piece: e.Piece.String(), From: b.NameOf(e.From), To: b.NameOf(e.To)}
	if e.Kind == game.Capture {
		mi.Over = b.NameOf(e.Over)
	}
	return mi
}

// Accepted builds the broadcast result for an accepted action.
func Accepted(b *board.Topology, o game.Outcome) MoveResult {
	snap := o.Snapshot
	turn := o.Turn
	res := MoveResult{Accepted: true, Notation: o.Notation, NewSnapshot: &snap, NextTurnHolder: &turn}
	if o.Effect != nil {
		res.Move = MoveInfoOf(b, *o.Effect)
	}
	return res
}

// Rejected builds the submitter-only result for a rejected action.
func Rejected(reason string) MoveResult {
	return MoveResult{Accepted: false, Reason: reason}
}
