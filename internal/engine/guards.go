package engine

import "github.com/DoyleJ11/market-call-backend/internal/registry"

// IsHost reports whether cmd came from a connection in the host room.
func IsHost(cmd Command) bool { return cmd.Host }

// CanSubmitVotes gates vote submission on the open voting window.
func CanSubmitVotes(s *Session, id registry.PlayerID) bool {
	return s.votingOpen && s.players.Has(id)
}

// CanBuyTip requires a known player and a current round that has a tip.
func CanBuyTip(s *Session, id registry.PlayerID) bool {
	if !PhaseAllows(CmdBuyTip, s.phase) || !s.players.Has(id) {
		return false
	}
	round, ok := s.Round()
	return ok && round.HasTip()
}

// CanReveal holds while the current round's votes are still unsettled.
func CanReveal(s *Session) bool {
	return PhaseAllows(CmdReveal, s.phase) && !s.settled
}

// CanStartRound is true in every phase, end included.
func CanStartRound(s *Session) bool { return PhaseAllows(CmdStartRound, s.phase) }

func CanOpenVoting(s *Session) bool { return PhaseAllows(CmdOpenVoting, s.phase) }

func CanAdvance(s *Session) bool { return PhaseAllows(CmdNextRound, s.phase) }

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// EventsOf filters events by type, keeping order.
func EventsOf(events []Event, eventType EventType) []Event {
	var out []Event
	for _, event := range events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}
