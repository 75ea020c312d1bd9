package hub

import (
	"context"
	"testing"
	"time"

	"github.com/DoyleJ11/market-call-backend/internal/catalog"
	"github.com/DoyleJ11/market-call-backend/internal/engine"
	"github.com/DoyleJ11/market-call-backend/internal/lobby"
	"github.com/DoyleJ11/market-call-backend/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHub(t *testing.T) *Hub {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return NewHub(ctx, func(ctx context.Context, code string) *lobby.Lobby {
		return lobby.NewLobby(ctx, code, engine.NewSession(cat, engine.DefaultRules(), nil), lobby.Options{})
	}, nil)
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := newHub(t)
	reply := make(chan *lobby.Lobby, 1)

	h.Inbox() <- CreateLobby{Code: "ZED123", Reply: reply}
	lb1 := <-reply

	h.Inbox() <- GetLobby{Code: "ZED123", Reply: reply}
	lb2 := <-reply

	require.NotNil(t, lb1)
	assert.Same(t, lb1, lb2)
	assert.Equal(t, "ZED123", lb1.Code())
}

func TestHub_CreateRefusesTakenCode(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()

	first := h.Create(ctx, "ABC123")
	require.NotNil(t, first)
	assert.Nil(t, h.Create(ctx, "ABC123"))
	assert.Same(t, first, h.Ensure(ctx, "ABC123"))
}

func TestHub_GamesHaveIndependentSessions(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()

	a := h.Ensure(ctx, "AAAAAA")
	b := h.Ensure(ctx, "BBBBBB")
	require.NotSame(t, a, b)

	out := make(chan types.ServerMessage, 8)
	a.Inbox() <- lobby.Join{ClientID: "c1", Outbox: out}
	<-out
	a.Inbox() <- lobby.FromClient{ClientID: "c1", Cmd: engine.Command{Type: engine.CmdJoin, Name: "alice"}}

	assert.Equal(t, 1, state(t, a).State.PlayerCount)
	assert.Equal(t, 0, state(t, b).State.PlayerCount)
}

func TestHub_RemoveAndList(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()

	h.Ensure(ctx, "ONE111")
	gone := h.Ensure(ctx, "TWO222")

	list := func() []string {
		reply := make(chan []string, 1)
		h.Inbox() <- ListLobbies{Reply: reply}
		return <-reply
	}
	assert.Equal(t, []string{"ONE111", "TWO222"}, list())

	h.Inbox() <- RemoveLobby{Code: "TWO222"}
	assert.Equal(t, []string{"ONE111"}, list())
	assert.Nil(t, h.Lookup(ctx, "TWO222"))

	select {
	case <-gone.Done():
	case <-time.After(time.Second):
		t.Fatalf("removed lobby still running")
	}
}

func TestHub_ShutdownStopsLobbies(t *testing.T) {
	h := newHub(t)
	lb := h.Ensure(context.Background(), "MAIN")
	require.NotNil(t, lb)

	h.Inbox() <- ShutdownHub{}

	select {
	case <-lb.Done():
	case <-time.After(time.Second):
		t.Fatalf("lobby still running after hub shutdown")
	}
	assert.Nil(t, h.Lookup(context.Background(), "MAIN"))
}

func state(t *testing.T, lb *lobby.Lobby) lobby.View {
	t.Helper()
	reply := make(chan lobby.View, 1)
	require.True(t, lb.Send(context.Background(), lobby.GetState{Reply: reply}))
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for view")
		return lobby.View{}
	}
}

func TestHub_ListAndRemoveHelpers(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()

	h.Ensure(ctx, "MAIN")
	lb := h.Ensure(ctx, "XYZ789")
	assert.Equal(t, []string{"MAIN", "XYZ789"}, h.List(ctx))

	assert.True(t, h.Remove(ctx, "XYZ789"))
	assert.False(t, h.Remove(ctx, "XYZ789"))
	assert.Equal(t, []string{"MAIN"}, h.List(ctx))

	select {
	case <-lb.Done():
	case <-time.After(time.Second):
		t.Fatalf("removed lobby still running")
	}
}
