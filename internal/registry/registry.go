// Package registry tracks the players of one game and derives the leaderboard.
package registry

import (
	"errors"
	"sort"

	"github.com/DoyleJ11/market-call-backend/internal/economy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrUnknownPlayer = errors.New("unknown player")

// PlayerID is an opaque handle issued on first join. It outlives the
// connection that created it so a client can rejoin with it.
type PlayerID string

func NewPlayerID() PlayerID { return PlayerID(uuid.NewString()) }

type RoundResult struct {
	RoundID int
	Pnl     decimal.Decimal
}

type Player struct {
	ID         PlayerID
	Name       string
	Pnl        decimal.Decimal
	History    []RoundResult
	TipsBought int
}

func (p *Player) Capital() decimal.Decimal { return economy.Capital(p.Pnl) }

type Standing struct {
	Name    string  `json:"name"`
	Pnl     float64 `json:"pnl"`
	Capital float64 `json:"capital"`
}

type Registry struct {
	players map[PlayerID]*Player
	order   []PlayerID
}

func New() *Registry {
	return &Registry{players: make(map[PlayerID]*Player)}
}

// Join registers id under name. A repeat join returns the existing record
// untouched, name included.
func (r *Registry) Join(id PlayerID, name string) *Player {
	if p, ok := r.players[id]; ok {
		return p
	}
	p := &Player{ID: id, Name: name, Pnl: decimal.Zero}
	r.players[id] = p
	r.order = append(r.order, id)
	return p
}

func (r *Registry) Get(id PlayerID) (*Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

func (r *Registry) Has(id PlayerID) bool {
	_, ok := r.players[id]
	return ok
}

func (r *Registry) Len() int { return len(r.order) }

// IDs returns player ids in join order.
func (r *Registry) IDs() []PlayerID {
	return append([]PlayerID(nil), r.order...)
}

// ApplyRoundResult books pnl for a round. The caller guarantees it runs once
// per player per round.
func (r *Registry) ApplyRoundResult(id PlayerID, pnl decimal.Decimal, roundID int) error {
	p, ok := r.players[id]
	if !ok {
		return ErrUnknownPlayer
	}
	p.Pnl = p.Pnl.Add(pnl)
	p.History = append(p.History, RoundResult{RoundID: roundID, Pnl: pnl})
	return nil
}

// BuyTip debits cost from the player and counts the purchase. On failure the
// player is left unchanged.
func (r *Registry) BuyTip(id PlayerID, cost decimal.Decimal) (decimal.Decimal, error) {
	p, ok := r.players[id]
	if !ok {
		return decimal.Zero, ErrUnknownPlayer
	}
	pnl, err := economy.Debit(p.Pnl, cost)
	if err != nil {
		return p.Capital(), err
	}
	p.Pnl = pnl
	p.TipsBought++
	return p.Capital(), nil
}

// Leaderboard ranks players by capital, highest first. Ties keep join order.
func (r *Registry) Leaderboard() []Standing {
	ranked := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		ranked = append(ranked, r.players[id])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Pnl.GreaterThan(ranked[j].Pnl)
	})

	out := make([]Standing, 0, len(ranked))
	for _, p := range ranked {
		out = append(out, Standing{
			Name:    p.Name,
			Pnl:     economy.Float(p.Pnl),
			Capital: economy.Float(p.Capital()),
		})
	}
	return out
}
