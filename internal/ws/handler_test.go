package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/market-call-backend/internal/catalog"
	"github.com/DoyleJ11/market-call-backend/internal/economy"
	"github.com/DoyleJ11/market-call-backend/internal/engine"
	"github.com/DoyleJ11/market-call-backend/internal/hub"
	"github.com/DoyleJ11/market-call-backend/internal/lobby"
	"github.com/DoyleJ11/market-call-backend/internal/types"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Type    string          `json:"type"`
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

func newServer(t *testing.T, opts Options) (*httptest.Server, *hub.Hub) {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := hub.NewHub(ctx, func(ctx context.Context, code string) *lobby.Lobby {
		return lobby.NewLobby(ctx, code, engine.NewSession(cat, engine.DefaultRules(), nil), lobby.Options{})
	}, nil)

	srv := httptest.NewServer(Handler(h, opts))
	t.Cleanup(srv.Close)
	return srv, h
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))
}

func read(t *testing.T, conn *websocket.Conn, typ string) frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	require.Equal(t, typ, f.Type, "unexpected frame %s", data)
	return f
}

func TestHandler_DefaultGameJoinFlow(t *testing.T) {
	srv, _ := newServer(t, Options{DefaultGame: "MAIN", Origins: []string{"*"}, MsgRate: 100, MsgBurst: 100})

	conn := dial(t, srv, "")
	first := read(t, conn, types.MsgState)
	assert.Equal(t, 0, first.Version)
	assert.Contains(t, string(first.Data), `"phase":"lobby"`)

	send(t, conn, types.ClientMessage{Type: types.MsgJoin, Name: "alice"})

	var joined types.Joined
	require.NoError(t, json.Unmarshal(read(t, conn, types.MsgJoined).Data, &joined))
	assert.NotEmpty(t, joined.ID)
	assert.Equal(t, 10000.0, joined.Capital)

	state := read(t, conn, types.MsgState)
	assert.Equal(t, 1, state.Version)
	assert.Contains(t, string(state.Data), `"playerCount":1`)
}

func TestHandler_HostDrivesRound(t *testing.T) {
	srv, _ := newServer(t, Options{DefaultGame: "MAIN", Origins: []string{"*"}, MsgRate: 100, MsgBurst: 100})

	host := dial(t, srv, "?code=main")
	read(t, host, types.MsgState)
	send(t, host, types.ClientMessage{Type: types.MsgHostJoin})
	read(t, host, types.MsgHostJoined)
	read(t, host, types.MsgState)

	player := dial(t, srv, "?code=MAIN")
	read(t, player, types.MsgState)
	send(t, player, types.ClientMessage{Type: types.MsgJoin, Name: "bob"})
	read(t, player, types.MsgJoined)
	read(t, player, types.MsgState)
	read(t, host, types.MsgState)

	send(t, host, types.ClientMessage{Type: types.MsgHostStartRound})
	read(t, host, types.MsgState)
	read(t, player, types.MsgState)
	send(t, host, types.ClientMessage{Type: types.MsgHostOpenVoting})
	read(t, host, types.MsgState)
	read(t, player, types.MsgState)

	send(t, player, types.ClientMessage{Type: types.MsgSubmitVotes, Votes: economy.BetSet{
		"Equity": {Direction: economy.Short, Amount: 200, Multiplier: 2},
	}})
	read(t, player, types.MsgVotesReceived)
	assert.JSONEq(t, `{"n":1}`, string(read(t, host, types.MsgVoteCount).Data))

	send(t, host, types.ClientMessage{Type: types.MsgHostReveal})
	// -(2.8 * 200 * 2) / 100
	assert.JSONEq(t, `{"roundId":1,"pnl":-11.2,"totalCapital":9988.8}`,
		string(read(t, player, types.MsgRoundResult).Data))
	state := read(t, player, types.MsgState)
	assert.Contains(t, string(state.Data), `"phase":"reveal"`)
}

func TestHandler_UnknownGame(t *testing.T) {
	srv, _ := newServer(t, Options{DefaultGame: "MAIN", Origins: []string{"*"}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/?code=NOPE42", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestHandler_BadFramesGetErrors(t *testing.T) {
	srv, _ := newServer(t, Options{DefaultGame: "MAIN", Origins: []string{"*"}, MsgRate: 100, MsgBurst: 100})
	conn := dial(t, srv, "")
	read(t, conn, types.MsgState)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
	assert.JSONEq(t, `{"message":"bad json"}`, string(read(t, conn, types.MsgError).Data))

	send(t, conn, map[string]string{"type": "LockPick"})
	assert.JSONEq(t, `{"message":"unknown message type"}`, string(read(t, conn, types.MsgError).Data))
}

func TestHandler_RateLimit(t *testing.T) {
	srv, _ := newServer(t, Options{DefaultGame: "MAIN", Origins: []string{"*"}, MsgRate: 0.001, MsgBurst: 1})
	conn := dial(t, srv, "")
	read(t, conn, types.MsgState)

	send(t, conn, types.ClientMessage{Type: types.MsgJoin, Name: "alice"})
	read(t, conn, types.MsgJoined)
	read(t, conn, types.MsgState)

	send(t, conn, types.ClientMessage{Type: types.MsgBuyTip})
	assert.JSONEq(t, `{"message":"rate limit exceeded"}`, string(read(t, conn, types.MsgError).Data))
}

func TestToLobbyMsg(t *testing.T) {
	cases := []struct {
		in   types.ClientMessage
		want engine.CommandType
	}{
		{types.ClientMessage{Type: types.MsgJoin}, engine.CmdJoin},
		{types.ClientMessage{Type: types.MsgSubmitVotes}, engine.CmdSubmitVotes},
		{types.ClientMessage{Type: types.MsgBuyTip}, engine.CmdBuyTip},
		{types.ClientMessage{Type: types.MsgHostJoin}, engine.CmdHostJoin},
		{types.ClientMessage{Type: types.MsgHostStartRound}, engine.CmdStartRound},
		{types.ClientMessage{Type: types.MsgHostOpenVoting}, engine.CmdOpenVoting},
		{types.ClientMessage{Type: types.MsgHostReveal}, engine.CmdReveal},
		{types.ClientMessage{Type: types.MsgHostNextRound}, engine.CmdNextRound},
		{types.ClientMessage{Type: types.MsgHostReset}, engine.CmdReset},
	}
	for _, tc := range cases {
		msg, ok := toLobbyMsg("c1", tc.in)
		require.True(t, ok, tc.in.Type)
		assert.Equal(t, tc.want, msg.Cmd.Type)
		assert.Equal(t, "c1", msg.ClientID)
	}

	msg, ok := toLobbyMsg("c1", types.ClientMessage{Type: types.MsgJoin, Name: "x", PlayerID: "abc"})
	require.True(t, ok)
	assert.Equal(t, "abc", string(msg.ResumeID))

	msg, ok = toLobbyMsg("c1", types.ClientMessage{Type: types.MsgHostJoin, Key: "k"})
	require.True(t, ok)
	assert.Equal(t, "k", msg.HostKey)

	_, ok = toLobbyMsg("c1", types.ClientMessage{Type: "hostCheat"})
	assert.False(t, ok)
}

func TestAcceptOptions(t *testing.T) {
	assert.True(t, acceptOptions([]string{"*"}).InsecureSkipVerify)
	opts := acceptOptions([]string{"https://game.example", "localhost:*"})
	assert.Equal(t, []string{"game.example", "localhost:*"}, opts.OriginPatterns)
}
