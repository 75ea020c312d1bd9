package types

import (
	"github.com/DoyleJ11/market-call-backend/internal/economy"
	"github.com/DoyleJ11/market-call-backend/internal/registry"
)

// Client -> Server message types.
const (
	MsgJoin           = "join"
	MsgSubmitVotes    = "submitVotes"
	MsgBuyTip         = "buyTip"
	MsgHostJoin       = "hostJoin"
	MsgHostStartRound = "hostStartRound"
	MsgHostOpenVoting = "hostOpenVoting"
	MsgHostReveal     = "hostReveal"
	MsgHostNextRound  = "hostNextRound"
	MsgHostReset      = "hostReset"
)

// Server -> Client message types.
const (
	MsgState         = "state"
	MsgJoined        = "joined"
	MsgHostJoined    = "hostJoined"
	MsgVotesReceived = "votesReceived"
	MsgVoteCount     = "voteCount"
	MsgTipRevealed   = "tipRevealed"
	MsgTipError      = "tipError"
	MsgCapitalUpdate = "capitalUpdate"
	MsgRoundResult   = "roundResult"
	MsgFinalResult   = "finalResult"
	MsgError         = "error"
)

type ClientMessage struct {
	Type     string         `json:"type"`
	Name     string         `json:"name,omitempty"`
	PlayerID string         `json:"playerId,omitempty"` // rejoin handle from a prior "joined"
	Key      string         `json:"key,omitempty"`      // host key for hostJoin
	Votes    economy.BetSet `json:"votes,omitempty"`
}

type ServerMessage struct {
	Type    string `json:"type"`
	Version int    `json:"version,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type Joined struct {
	ID              string  `json:"id"`
	Capital         float64 `json:"capital"`
	StartingCapital float64 `json:"startingCapital"`
}

type VoteCount struct {
	N int `json:"n"`
}

type TipRevealed struct {
	Tip  string  `json:"tip"`
	Cost float64 `json:"cost"`
}

type TipError struct {
	Message string `json:"message"`
}

type CapitalUpdate struct {
	Capital float64 `json:"capital"`
}

type RoundResult struct {
	RoundID      int     `json:"roundId"`
	Pnl          float64 `json:"pnl"`
	TotalCapital float64 `json:"totalCapital"`
}

type FinalResult struct {
	TotalCapital float64             `json:"totalCapital"`
	Leaderboard  []registry.Standing `json:"leaderboard"`
}

type Error struct {
	Message string `json:"message"`
}

func ErrorMessage(msg string) ServerMessage {
	return ServerMessage{Type: MsgError, Data: Error{Message: msg}}
}
