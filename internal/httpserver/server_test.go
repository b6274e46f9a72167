package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/wolfsheep/internal/board"
	"github.com/robalobadob/wolfsheep/internal/game"
	"github.com/robalobadob/wolfsheep/internal/protocol"
	"github.com/robalobadob/wolfsheep/internal/session"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	mgr := session.NewManager(board.MustStandard(), game.StandardRules(), session.Options{
		TokenSecret: []byte("test-secret"),
		TokenTTL:    time.Hour,
		Metrics:     session.NewMetrics(reg),
	})
	ts := httptest.NewServer(New(mgr, reg, "http://localhost:5173").Handler())
	t.Cleanup(func() {
		mgr.Close()
		ts.Close()
	})
	return ts
}

func postSession(t *testing.T, ts *httptest.Server, body string) createRes {
	t.Helper()
	res, err := http.Post(ts.URL+"/sessions", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var out createRes
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(v))
	}
	return res.StatusCode
}

func dialWS(t *testing.T, ts *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/" + id + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func writeFrame(t *testing.T, ws *websocket.Conn, typ string, p any) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, protocol.MustEncode(typ, p)))
}

// readType reads frames until one of type typ arrives.
func readType(t *testing.T, ws *websocket.Conn, typ string) protocol.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, msg, err := ws.ReadMessage()
		require.NoError(t, err)
		env, err := protocol.DecodeEnvelope(msg)
		require.NoError(t, err)
		if env.T == typ {
			return env
		}
	}
}

func TestHealthAndIndex(t *testing.T) {
	ts := newTestServer(t)

	var health map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &health))
	assert.Equal(t, true, health["ok"])

	res, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "application/json; charset=utf-8", res.Header.Get("Content-Type"))

	var nf map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/nope", &nf))
	assert.Equal(t, "not_found", nf["error"])
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/sessions", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "http://localhost:5173", res.Header.Get("Access-Control-Allow-Origin"))
}

func TestSessionLifecycleOverREST(t *testing.T) {
	ts := newTestServer(t)

	created := postSession(t, ts, `{"rules":"classic","chain":"forced"}`)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "classic", created.Rules.Name)
	assert.Equal(t, game.ChainForced, created.Rules.Chain)
	assert.Equal(t, "/sessions/"+created.ID+"/ws", created.WS)
	assert.Len(t, created.Snapshot.Sheep, 15)

	plain := postSession(t, ts, ``)
	assert.Equal(t, "standard", plain.Rules.Name)

	var got sessionRes
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/sessions/"+created.ID, &got))
	assert.Equal(t, created.ID, got.Session.ID)
	assert.Equal(t, game.RoleSheep, got.Snapshot.Turn)
	assert.Contains(t, got.Board, "a b c d e")

	var list []session.Info
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/sessions", &list))
	assert.Len(t, list, 2)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/sessions/missing", nil))

	res, err := http.Post(ts.URL+"/sessions", "application/json", strings.NewReader(`{"rules":"chess"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, string(body), "unknown-rules")

	res, err = http.Post(ts.URL+"/sessions", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestWebsocketGame(t *testing.T) {
	ts := newTestServer(t)
	id := postSession(t, ts, `{}`).ID

	wolves := dialWS(t, ts, id)
	sheep := dialWS(t, ts, id)
	writeFrame(t, wolves, protocol.MsgJoin, protocol.JoinRequest{V: protocol.Version, DesiredRole: game.SeatWolves, Name: "w"})
	ack, err := protocol.DecodePayload[protocol.JoinAck](readType(t, wolves, protocol.MsgJoinAck))
	require.NoError(t, err)
	assert.Equal(t, game.SeatWolves, ack.AssignedRole)
	writeFrame(t, sheep, protocol.MsgJoin, protocol.JoinRequest{V: protocol.Version, DesiredRole: game.SeatSheep, Name: "s"})
	readType(t, sheep, protocol.MsgJoinAck)

	writeFrame(t, wolves, protocol.MsgMove, protocol.MoveRequest{From: "b5", To: "b6"})
	for _, ws := range []*websocket.Conn{wolves, sheep} {
		res, err := protocol.DecodePayload[protocol.MoveResult](readType(t, ws, protocol.MsgMoveResult))
		require.NoError(t, err)
		assert.True(t, res.Accepted)
		assert.Equal(t, 1, res.NewSnapshot.MoveCount)
	}

	writeFrame(t, sheep, protocol.MsgResync, protocol.Resync{LastKnownMoveCount: 0})
	full, err := protocol.DecodePayload[protocol.FullSnapshot](readType(t, sheep, protocol.MsgFullSnapshot))
	require.NoError(t, err)
	assert.Equal(t, 1, full.Snapshot.MoveCount)

	// A protocol violation gets an error notice, then the connection closes.
	require.NoError(t, sheep.WriteMessage(websocket.TextMessage, []byte("not json")))
	notice, err := protocol.DecodePayload[protocol.ErrorNotice](readType(t, sheep, protocol.MsgError))
	require.NoError(t, err)
	assert.Equal(t, "malformed-envelope", notice.Reason)
	require.NoError(t, sheep.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := sheep.ReadMessage(); err != nil {
			break
		}
	}

	players, err := protocol.DecodePayload[protocol.PlayerList](readType(t, wolves, protocol.MsgPlayers))
	require.NoError(t, err)
	require.Len(t, players.Players, 2)
	assert.False(t, players.Players[1].Connected, "the sheep seat stays reserved")
}

func TestWebsocketUnknownSession(t *testing.T) {
	ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/missing/ws"
	_, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	postSession(t, ts, `{}`)

	res, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "hunt_sessions 1")
}
