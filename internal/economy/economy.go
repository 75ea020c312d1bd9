package economy

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var ErrInsufficientFunds = errors.New("insufficient funds")
var ErrInvalidBet = errors.New("invalid bet")

// StartingCapital is the capital every player joins with.
var StartingCapital = decimal.NewFromInt(10000)

const (
	// MaxAmount caps a single stake at the starting capital.
	MaxAmount     = 10000
	MaxMultiplier = 10
)

type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
	Skip  Direction = "skip"
)

type Bet struct {
	Direction  Direction `json:"direction"`
	Amount     float64   `json:"amount"`
	Multiplier float64   `json:"multiplier,omitempty"`
}

// BetSet is one player's submission for a round, keyed by market name.
type BetSet map[string]Bet

// Tally counts the directions chosen for one market.
type Tally struct {
	Long  int `json:"long"`
	Short int `json:"short"`
	Skip  int `json:"skip"`
}

// sign maps a direction onto the P&L sign. Skip contributes nothing.
func (d Direction) sign() int64 {
	switch d {
	case Long:
		return 1
	case Short:
		return -1
	default:
		return 0
	}
}

// Normalize fills the default multiplier.
func (b Bet) Normalize() Bet {
	if b.Multiplier == 0 {
		b.Multiplier = 1
	}
	return b
}

func (b Bet) Validate() error {
	switch b.Direction {
	case Long, Short, Skip:
	default:
		return fmt.Errorf("%w: direction %q", ErrInvalidBet, b.Direction)
	}
	if math.IsNaN(b.Amount) || b.Amount < 0 || b.Amount > MaxAmount {
		return fmt.Errorf("%w: amount %v", ErrInvalidBet, b.Amount)
	}
	m := b.Normalize().Multiplier
	if math.IsNaN(m) || m < 1 || m > MaxMultiplier {
		return fmt.Errorf("%w: multiplier %v", ErrInvalidBet, b.Multiplier)
	}
	return nil
}

func (bs BetSet) Validate() error {
	for market, bet := range bs {
		if err := bet.Validate(); err != nil {
			return fmt.Errorf("market %q: %w", market, err)
		}
	}
	return nil
}

// RoundPnl computes a player's result for one round: the sum over every bet
// of direction * movement * amount * multiplier / 100, rounded once to cents
// (half away from zero). Markets missing from movements move by zero.
func RoundPnl(bets BetSet, movements map[string]float64) decimal.Decimal {
	total := decimal.Zero
	for market, bet := range bets {
		bet = bet.Normalize()
		move, ok := movements[market]
		if !ok {
			continue
		}
		term := decimal.NewFromFloat(move).
			Mul(decimal.NewFromFloat(bet.Amount)).
			Mul(decimal.NewFromFloat(bet.Multiplier)).
			Mul(decimal.NewFromInt(bet.Direction.sign()))
		total = total.Add(term)
	}
	return total.Shift(-2).Round(2)
}

// VoteTally counts directions per round market across all pending bet sets.
// Every round market is present in the result, with zero counts if unvoted.
func VoteTally(betSets []BetSet, markets []string) map[string]Tally {
	tally := make(map[string]Tally, len(markets))
	for _, m := range markets {
		tally[m] = Tally{}
	}

	for _, bs := range betSets {
		for _, m := range markets {
			bet, ok := bs[m]
			if !ok {
				continue
			}
			t := tally[m]
			switch bet.Direction {
			case Long:
				t.Long++
			case Short:
				t.Short++
			case Skip:
				t.Skip++
			}
			tally[m] = t
		}
	}
	return tally
}

// Capital is the display value derived from cumulative P&L.
func Capital(pnl decimal.Decimal) decimal.Decimal {
	return StartingCapital.Add(pnl)
}

// Debit charges cost against pnl. It fails without change when the player's
// capital before the purchase is below cost.
func Debit(pnl, cost decimal.Decimal) (decimal.Decimal, error) {
	if Capital(pnl).LessThan(cost) {
		return pnl, ErrInsufficientFunds
	}
	return pnl.Sub(cost), nil
}

// Float renders an amount as the two-decimal float used on the wire. Values
// beyond float64 range saturate instead of becoming infinite.
func Float(d decimal.Decimal) float64 {
	f := d.Round(2).InexactFloat64()
	switch {
	case math.IsInf(f, 1):
		return math.MaxFloat64
	case math.IsInf(f, -1):
		return -math.MaxFloat64
	}
	return f
}
