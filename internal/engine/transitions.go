package engine

import "slices"

// allowedFrom lists the phases a command may run in. Commands that are
// absent run in any phase.
var allowedFrom = map[CommandType][]Phase{
	CmdOpenVoting: {PhaseNews},
	CmdReveal:     {PhaseVoting},
	CmdNextRound:  {PhaseReveal},
	CmdBuyTip:     {PhaseNews, PhaseVoting},
}

var hostCommands = map[CommandType]bool{
	CmdStartRound: true,
	CmdOpenVoting: true,
	CmdReveal:     true,
	CmdNextRound:  true,
	CmdReset:      true,
}

func PhaseAllows(cmd CommandType, p Phase) bool {
	from, ok := allowedFrom[cmd]
	if !ok {
		return true
	}
	return slices.Contains(from, p)
}

func IsHostCommand(cmd CommandType) bool { return hostCommands[cmd] }
