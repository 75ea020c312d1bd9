package registry

import (
	"testing"

	"github.com/DoyleJ11/market-call-backend/internal/economy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestJoin_IsIdempotent(t *testing.T) {
	r := New()
	p := r.Join("p1", "alice")
	require.NoError(t, r.ApplyRoundResult("p1", dec("42.5"), 1))

	again := r.Join("p1", "mallory")

	assert.Same(t, p, again)
	assert.Equal(t, "alice", again.Name)
	assert.True(t, again.Pnl.Equal(dec("42.5")))
	assert.Len(t, again.History, 1)
	assert.Equal(t, 1, r.Len())
}

func TestNewPlayerID_Unique(t *testing.T) {
	a, b := NewPlayerID(), NewPlayerID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestApplyRoundResult(t *testing.T) {
	r := New()
	r.Join("p1", "alice")

	require.NoError(t, r.ApplyRoundResult("p1", dec("4.2"), 1))
	require.NoError(t, r.ApplyRoundResult("p1", dec("-14"), 2))

	p, ok := r.Get("p1")
	require.True(t, ok)
	assert.True(t, p.Pnl.Equal(dec("-9.8")))
	assert.Equal(t, []int{1, 2}, []int{p.History[0].RoundID, p.History[1].RoundID})
	assert.True(t, p.Capital().Equal(dec("9990.2")))

	assert.ErrorIs(t, r.ApplyRoundResult("ghost", dec("1"), 1), ErrUnknownPlayer)
}

func TestBuyTip(t *testing.T) {
	r := New()
	r.Join("p1", "alice")

	capital, err := r.BuyTip("p1", dec("250"))
	require.NoError(t, err)
	assert.True(t, capital.Equal(dec("9750")))

	p, _ := r.Get("p1")
	assert.Equal(t, 1, p.TipsBought)
}

func TestBuyTip_InsufficientFundsLeavesPlayerUnchanged(t *testing.T) {
	r := New()
	r.Join("p1", "alice")
	require.NoError(t, r.ApplyRoundResult("p1", dec("-9900"), 1))

	capital, err := r.BuyTip("p1", dec("250"))
	require.ErrorIs(t, err, economy.ErrInsufficientFunds)
	assert.True(t, capital.Equal(dec("100")))

	p, _ := r.Get("p1")
	assert.True(t, p.Pnl.Equal(dec("-9900")))
	assert.Equal(t, 0, p.TipsBought)

	_, err = r.BuyTip("ghost", dec("1"))
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestLeaderboard_SortedByCapitalStable(t *testing.T) {
	r := New()
	r.Join("a", "alice")
	r.Join("b", "bob")
	r.Join("c", "carol")
	r.Join("d", "dave")

	require.NoError(t, r.ApplyRoundResult("b", dec("10"), 1))
	require.NoError(t, r.ApplyRoundResult("d", dec("10"), 1))
	require.NoError(t, r.ApplyRoundResult("c", dec("-3.456"), 1))

	got := r.Leaderboard()
	require.Len(t, got, 4)

	names := []string{got[0].Name, got[1].Name, got[2].Name, got[3].Name}
	assert.Equal(t, []string{"bob", "dave", "alice", "carol"}, names)
	assert.Equal(t, Standing{Name: "bob", Pnl: 10, Capital: 10010}, got[0])
	assert.Equal(t, Standing{Name: "alice", Pnl: 0, Capital: 10000}, got[2])
	assert.InDelta(t, -3.46, got[3].Pnl, 1e-9)
	assert.InDelta(t, 9996.54, got[3].Capital, 1e-9)
}

func TestLeaderboard_IdlePlayerKeepsStartingCapital(t *testing.T) {
	r := New()
	r.Join("a", "alice")

	got := r.Leaderboard()
	require.Len(t, got, 1)
	assert.Equal(t, economy.StartingCapital.InexactFloat64(), got[0].Capital)
}
