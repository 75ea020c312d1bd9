// Package catalog holds the authored round content. A Catalog is read-only
// once loaded and is shared by every game in the process.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidCatalog = errors.New("invalid round catalog")

//go:embed rounds.yaml
var defaultRounds []byte

type Round struct {
	ID        int                `yaml:"id" json:"id"`
	Title     string             `yaml:"title" json:"title"`
	News      string             `yaml:"news" json:"news"`
	Markets   []string           `yaml:"markets" json:"markets"`
	Movements map[string]float64 `yaml:"movements" json:"movements"`
	Analysis  string             `yaml:"analysis" json:"analysis"`
	Tip       string             `yaml:"tip,omitempty" json:"tip,omitempty"`
}

// HasTip reports whether the round carries purchasable tip text.
func (r Round) HasTip() bool { return r.Tip != "" }

type Catalog struct {
	rounds []Round
}

type file struct {
	Rounds []Round `yaml:"rounds"`
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultRounds)
}

// Load reads a catalog from a YAML file on disk.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(f.Rounds)
}

// New validates rounds and wraps them in a Catalog. The slice is copied.
func New(rounds []Round) (*Catalog, error) {
	if len(rounds) == 0 {
		return nil, fmt.Errorf("%w: no rounds", ErrInvalidCatalog)
	}

	seen := make(map[int]bool, len(rounds))
	for _, r := range rounds {
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: duplicate round id %d", ErrInvalidCatalog, r.ID)
		}
		seen[r.ID] = true

		if len(r.Markets) == 0 {
			return nil, fmt.Errorf("%w: round %d has no markets", ErrInvalidCatalog, r.ID)
		}
		for _, m := range r.Markets {
			if _, ok := r.Movements[m]; !ok {
				return nil, fmt.Errorf("%w: round %d market %q has no movement", ErrInvalidCatalog, r.ID, m)
			}
		}
	}

	return &Catalog{rounds: append([]Round(nil), rounds...)}, nil
}

func (c *Catalog) Len() int { return len(c.rounds) }

// At returns the round at sequence position i.
func (c *Catalog) At(i int) (Round, bool) {
	if i < 0 || i >= len(c.rounds) {
		return Round{}, false
	}
	return c.rounds[i], true
}

// IsLast reports whether i is the final round position.
func (c *Catalog) IsLast(i int) bool {
	return i >= len(c.rounds)-1
}
