// Package projector turns session state into what clients are allowed to see.
//
// PublicSnapshot is the only path from the session to the shared "state"
// broadcast. Authored movements, analysis, tip text and the vote tally are
// read from the session only when the phase is reveal.
package projector

import (
	"github.com/DoyleJ11/market-call-backend/internal/economy"
	"github.com/DoyleJ11/market-call-backend/internal/engine"
	"github.com/DoyleJ11/market-call-backend/internal/registry"
	"github.com/DoyleJ11/market-call-backend/internal/types"
	"github.com/shopspring/decimal"
)

type RoundView struct {
	ID        int                      `json:"id"`
	Title     string                   `json:"title"`
	News      string                   `json:"news"`
	Markets   []string                 `json:"markets"`
	HasTip    bool                     `json:"hasTip"`
	Analysis  *string                  `json:"analysis"`
	Movements map[string]float64       `json:"movements"`
	VoteTally map[string]economy.Tally `json:"voteTally"`
	Tip       *string                  `json:"tip"`
}

type View struct {
	Phase        engine.Phase        `json:"phase"`
	CurrentRound int                 `json:"currentRound"`
	TotalRounds  int                 `json:"totalRounds"`
	Round        *RoundView          `json:"round"`
	VotingOpen   bool                `json:"votingOpen"`
	TimerEnd     *int64              `json:"timerEnd"` // unix millis
	PlayerCount  int                 `json:"playerCount"`
	Leaderboard  []registry.Standing `json:"leaderboard"`
	TipRevealed  bool                `json:"tipRevealed"`
	TipCost      float64             `json:"tipCost"`
}

func PublicSnapshot(s *engine.Session) View {
	v := View{
		Phase:        s.Phase(),
		CurrentRound: s.RoundIndex(),
		TotalRounds:  s.TotalRounds(),
		VotingOpen:   s.VotingOpen(),
		PlayerCount:  s.PlayerCount(),
		Leaderboard:  s.Leaderboard(),
		TipRevealed:  s.TipRevealed(),
		TipCost:      Money(s.Rules().TipCost),
	}
	if end, ok := s.TimerEnd(); ok {
		ms := end.UnixMilli()
		v.TimerEnd = &ms
	}

	round, ok := s.Round()
	if !ok {
		return v
	}
	rv := &RoundView{
		ID:      round.ID,
		Title:   round.Title,
		News:    round.News,
		Markets: append([]string(nil), round.Markets...),
		HasTip:  round.HasTip(),
	}
	if s.Phase() == engine.PhaseReveal {
		analysis := round.Analysis
		rv.Analysis = &analysis
		rv.Movements = make(map[string]float64, len(round.Movements))
		for m, move := range round.Movements {
			rv.Movements[m] = move
		}
		rv.VoteTally = economy.VoteTally(s.PendingVotes(), round.Markets)
		if round.HasTip() {
			tip := round.Tip
			rv.Tip = &tip
		}
	}
	v.Round = rv
	return v
}

// Notify renders a point-to-point event. Events that only drive the shared
// snapshot report false.
func Notify(ev engine.Event) (types.ServerMessage, bool) {
	switch ev.Type {
	case engine.EvtJoined:
		return types.ServerMessage{Type: types.MsgJoined, Data: types.Joined{
			ID:              string(ev.PlayerID),
			Capital:         Money(ev.Capital),
			StartingCapital: Money(economy.StartingCapital),
		}}, true
	case engine.EvtHostJoined:
		return types.ServerMessage{Type: types.MsgHostJoined, Data: struct{}{}}, true
	case engine.EvtVotesReceived:
		return types.ServerMessage{Type: types.MsgVotesReceived, Data: struct{}{}}, true
	case engine.EvtVoteCount:
		return types.ServerMessage{Type: types.MsgVoteCount, Data: types.VoteCount{N: ev.Count}}, true
	case engine.EvtTipRevealed:
		return types.ServerMessage{Type: types.MsgTipRevealed, Data: types.TipRevealed{
			Tip:  ev.Tip,
			Cost: Money(ev.Cost),
		}}, true
	case engine.EvtTipError:
		return types.ServerMessage{Type: types.MsgTipError, Data: types.TipError{Message: ev.Message}}, true
	case engine.EvtCapitalUpdate:
		return types.ServerMessage{Type: types.MsgCapitalUpdate, Data: types.CapitalUpdate{Capital: Money(ev.Capital)}}, true
	case engine.EvtRoundResult:
		return types.ServerMessage{Type: types.MsgRoundResult, Data: types.RoundResult{
			RoundID:      ev.RoundID,
			Pnl:          Money(ev.Pnl),
			TotalCapital: Money(ev.Capital),
		}}, true
	case engine.EvtFinalResult:
		return types.ServerMessage{Type: types.MsgFinalResult, Data: types.FinalResult{
			TotalCapital: Money(ev.Capital),
			Leaderboard:  ev.Leaderboard,
		}}, true
	default:
		return types.ServerMessage{}, false
	}
}

// Money converts an amount to the two-decimal float sent on the wire.
func Money(d decimal.Decimal) float64 {
	return economy.Float(d)
}
