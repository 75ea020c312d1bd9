package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DoyleJ11/market-call-backend/internal/catalog"
	"github.com/DoyleJ11/market-call-backend/internal/economy"
	"github.com/DoyleJ11/market-call-backend/internal/registry"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// ErrRejected marks a guard failure. Callers drop these silently.
var ErrRejected = errors.New("command rejected")
var ErrUnsupportedCommand = errors.New("unsupported command")

const maxNameLen = 32

type Phase string

const (
	PhaseLobby  Phase = "lobby"
	PhaseNews   Phase = "news"
	PhaseVoting Phase = "voting"
	PhaseReveal Phase = "reveal"
	PhaseEnd    Phase = "end"
)

type CommandType string

const (
	CmdJoin        CommandType = "Join"
	CmdSubmitVotes CommandType = "SubmitVotes"
	CmdBuyTip      CommandType = "BuyTip"
	CmdHostJoin    CommandType = "HostJoin"
	CmdStartRound  CommandType = "StartRound"
	CmdOpenVoting  CommandType = "OpenVoting"
	CmdReveal      CommandType = "Reveal"
	CmdNextRound   CommandType = "NextRound"
	CmdReset       CommandType = "Reset"
)

/*
	CmdJoin        -> EvtJoined (sender) -> EvtStateChanged
	CmdSubmitVotes -> EvtVotesReceived -> EvtVoteCount (host)
	CmdBuyTip      -> EvtTipRevealed -> EvtCapitalUpdate -> EvtStateChanged, or EvtTipError
	CmdHostJoin    -> EvtHostJoined (sender) -> EvtStateChanged
	CmdStartRound  -> EvtStateChanged
	CmdOpenVoting  -> EvtStateChanged
	CmdReveal      -> EvtRoundResult per voter -> EvtStateChanged
	CmdNextRound   -> EvtStateChanged, or EvtFinalResult per player -> EvtStateChanged
	CmdReset       -> EvtGameReset -> EvtStateChanged
*/

type Command struct {
	Type     CommandType
	PlayerID registry.PlayerID
	Host     bool // sender is in the host room
	Name     string
	Votes    economy.BetSet
}

type EventType string

const (
	EvtStateChanged  EventType = "StateChanged"
	EvtHostJoined    EventType = "HostJoined"
	EvtJoined        EventType = "Joined"
	EvtVotesReceived EventType = "VotesReceived"
	EvtVoteCount     EventType = "VoteCount"
	EvtTipRevealed   EventType = "TipRevealed"
	EvtTipError      EventType = "TipError"
	EvtCapitalUpdate EventType = "CapitalUpdate"
	EvtRoundResult   EventType = "RoundResult"
	EvtFinalResult   EventType = "FinalResult"
	EvtGameReset     EventType = "GameReset"
)

// Audience says who an event is delivered to.
type Audience string

const (
	ToAll    Audience = "all"
	ToHost   Audience = "host"
	ToSender Audience = "sender"
	ToPlayer Audience = "player" // every connection bound to PlayerID
)

type Event struct {
	Type        EventType
	To          Audience
	PlayerID    registry.PlayerID
	RoundID     int
	Pnl         decimal.Decimal
	Capital     decimal.Decimal
	Cost        decimal.Decimal
	Tip         string
	Count       int
	Message     string
	Leaderboard []registry.Standing
}

type Rules struct {
	TipCost      decimal.Decimal
	VotingWindow time.Duration
}

func DefaultRules() Rules {
	return Rules{
		TipCost:      decimal.NewFromInt(250),
		VotingWindow: 60 * time.Second,
	}
}

// Session is the state of one game. It is not safe for concurrent use; the
// owning lobby serializes every call.
type Session struct {
	phase       Phase
	roundIndex  int
	votingOpen  bool
	timerEnd    time.Time
	votes       map[registry.PlayerID]economy.BetSet
	settled     bool
	tipRevealed bool

	players *registry.Registry
	catalog *catalog.Catalog
	rules   Rules
	clock   clockwork.Clock
}

func NewSession(cat *catalog.Catalog, rules Rules, clock clockwork.Clock) *Session {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Session{catalog: cat, rules: rules, clock: clock}
	s.reset()
	return s
}

func (s *Session) reset() {
	s.phase = PhaseLobby
	s.roundIndex = 0
	s.votingOpen = false
	s.timerEnd = time.Time{}
	s.votes = make(map[registry.PlayerID]economy.BetSet)
	s.settled = false
	s.tipRevealed = false
	s.players = registry.New()
}

// enterRound moves to the news phase of round i with a clean vote set.
func (s *Session) enterRound(i int) {
	s.phase = PhaseNews
	s.roundIndex = i
	s.votingOpen = false
	s.timerEnd = time.Time{}
	s.votes = make(map[registry.PlayerID]economy.BetSet)
	s.settled = false
	s.tipRevealed = false
}

var stateChanged = Event{Type: EvtStateChanged, To: ToAll}

func rejected(reason string) error {
	return fmt.Errorf("%w: %s", ErrRejected, reason)
}

func wrongPhase(cmd CommandType, p Phase) error {
	return rejected(fmt.Sprintf("%s not allowed in phase %s", cmd, p))
}

// Apply runs one command against the session. Guard failures return an error
// wrapping ErrRejected and leave the session untouched. The returned events
// are ordered for delivery; EvtStateChanged always comes last.
func (s *Session) Apply(cmd Command) ([]Event, error) {
	if IsHostCommand(cmd.Type) && !IsHost(cmd) {
		return nil, rejected("host command from non-host")
	}

	switch cmd.Type {
	case CmdJoin:
		if cmd.PlayerID == "" {
			return nil, rejected("missing player id")
		}
		p := s.players.Join(cmd.PlayerID, cleanName(cmd.Name))
		return []Event{
			{Type: EvtJoined, To: ToSender, PlayerID: p.ID, Capital: p.Capital()},
			stateChanged,
		}, nil

	case CmdSubmitVotes:
		if !CanSubmitVotes(s, cmd.PlayerID) {
			return nil, rejected("voting closed or unknown player")
		}
		if err := cmd.Votes.Validate(); err != nil {
			return nil, rejected(err.Error())
		}
		round, _ := s.Round()
		s.votes[cmd.PlayerID] = offered(cmd.Votes, round.Markets)
		return []Event{
			{Type: EvtVotesReceived, To: ToPlayer, PlayerID: cmd.PlayerID},
			{Type: EvtVoteCount, To: ToHost, Count: len(s.votes)},
		}, nil

	case CmdBuyTip:
		if !CanBuyTip(s, cmd.PlayerID) {
			return nil, rejected("tip unavailable or unknown player")
		}
		round, _ := s.Round()
		capital, err := s.players.BuyTip(cmd.PlayerID, s.rules.TipCost)
		if errors.Is(err, economy.ErrInsufficientFunds) {
			return []Event{{
				Type:     EvtTipError,
				To:       ToPlayer,
				PlayerID: cmd.PlayerID,
				Capital:  capital,
				Cost:     s.rules.TipCost,
				Message:  "Insufficient funds to buy this tip",
			}}, err
		}
		if err != nil {
			return nil, rejected(err.Error())
		}
		s.tipRevealed = true
		return []Event{
			{Type: EvtTipRevealed, To: ToPlayer, PlayerID: cmd.PlayerID, Tip: round.Tip, Cost: s.rules.TipCost},
			{Type: EvtCapitalUpdate, To: ToPlayer, PlayerID: cmd.PlayerID, Capital: capital},
			stateChanged,
		}, nil

	case CmdHostJoin:
		return []Event{{Type: EvtHostJoined, To: ToSender}, stateChanged}, nil

	case CmdStartRound:
		if !CanStartRound(s) {
			return nil, wrongPhase(cmd.Type, s.phase)
		}
		s.enterRound(0)
		return []Event{stateChanged}, nil

	case CmdOpenVoting:
		if !CanOpenVoting(s) {
			return nil, wrongPhase(cmd.Type, s.phase)
		}
		s.phase = PhaseVoting
		s.votingOpen = true
		s.votes = make(map[registry.PlayerID]economy.BetSet)
		s.timerEnd = s.clock.Now().Add(s.rules.VotingWindow)
		s.tipRevealed = false
		return []Event{stateChanged}, nil

	case CmdReveal:
		if !CanReveal(s) {
			return nil, wrongPhase(cmd.Type, s.phase)
		}
		return s.reveal(), nil

	case CmdNextRound:
		if !CanAdvance(s) {
			return nil, wrongPhase(cmd.Type, s.phase)
		}
		if !s.catalog.IsLast(s.roundIndex) {
			s.enterRound(s.roundIndex + 1)
			return []Event{stateChanged}, nil
		}
		return s.finish(), nil

	case CmdReset:
		s.reset()
		return []Event{{Type: EvtGameReset, To: ToAll}, stateChanged}, nil

	default:
		return nil, ErrUnsupportedCommand
	}
}

// reveal closes voting and settles every pending bet set exactly once.
func (s *Session) reveal() []Event {
	s.votingOpen = false
	s.phase = PhaseReveal

	round, _ := s.Round()
	var events []Event
	for _, id := range s.players.IDs() {
		bets, ok := s.votes[id]
		if !ok {
			continue
		}
		pnl := economy.RoundPnl(bets, round.Movements)
		if err := s.players.ApplyRoundResult(id, pnl, round.ID); err != nil {
			continue
		}
		p, _ := s.players.Get(id)
		events = append(events, Event{
			Type:     EvtRoundResult,
			To:       ToPlayer,
			PlayerID: id,
			RoundID:  round.ID,
			Pnl:      pnl,
			Capital:  p.Capital(),
		})
	}
	s.settled = true
	return append(events, stateChanged)
}

// finish ends the game and hands every player the same final leaderboard.
func (s *Session) finish() []Event {
	s.phase = PhaseEnd
	s.votingOpen = false

	board := s.players.Leaderboard()
	var events []Event
	for _, id := range s.players.IDs() {
		p, _ := s.players.Get(id)
		events = append(events, Event{
			Type:        EvtFinalResult,
			To:          ToPlayer,
			PlayerID:    id,
			Capital:     p.Capital(),
			Leaderboard: board,
		})
	}
	return append(events, stateChanged)
}

// offered drops bets on markets the round does not trade.
func offered(bets economy.BetSet, markets []string) economy.BetSet {
	out := make(economy.BetSet, len(bets))
	for _, m := range markets {
		if bet, ok := bets[m]; ok {
			out[m] = bet.Normalize()
		}
	}
	return out
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Anonymous"
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		name = string([]rune(name)[:maxNameLen])
	}
	return name
}

func (s *Session) Phase() Phase      { return s.phase }
func (s *Session) RoundIndex() int   { return s.roundIndex }
func (s *Session) VotingOpen() bool  { return s.votingOpen }
func (s *Session) TipRevealed() bool { return s.tipRevealed }
func (s *Session) Rules() Rules      { return s.rules }
func (s *Session) PlayerCount() int  { return s.players.Len() }
func (s *Session) TotalRounds() int  { return s.catalog.Len() }
func (s *Session) VoteCount() int    { return len(s.votes) }

// Round returns the current round. There is none while in the lobby.
func (s *Session) Round() (catalog.Round, bool) {
	if s.phase == PhaseLobby {
		return catalog.Round{}, false
	}
	return s.catalog.At(s.roundIndex)
}

// TimerEnd returns the advisory voting deadline, if one is set.
func (s *Session) TimerEnd() (time.Time, bool) {
	return s.timerEnd, !s.timerEnd.IsZero()
}

func (s *Session) Player(id registry.PlayerID) (*registry.Player, bool) {
	return s.players.Get(id)
}

func (s *Session) Leaderboard() []registry.Standing {
	return s.players.Leaderboard()
}

// PendingVotes returns the current round's bet sets in join order.
func (s *Session) PendingVotes() []economy.BetSet {
	out := make([]economy.BetSet, 0, len(s.votes))
	for _, id := range s.players.IDs() {
		if bets, ok := s.votes[id]; ok {
			out = append(out, bets)
		}
	}
	return out
}
