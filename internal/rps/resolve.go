// Package rps holds the pure rules of the game: move parsing, round
// resolution and the first-to-two scoring of a match.
package rps

import (
	"strings"

	"github.com/park285/rpsmatch/internal/domain"
)

// WinsToFinish is the number of round wins that decides a match.
const WinsToFinish = 2

// beats maps each move to the single move it defeats.
var beats = map[domain.Move]domain.Move{
	domain.Rock:     domain.Scissors,
	domain.Paper:    domain.Rock,
	domain.Scissors: domain.Paper,
}

// ParseMove accepts a symbol in any letter case and returns its canonical form.
func ParseMove(s string) (domain.Move, bool) {
	mv := domain.Move(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := beats[mv]; !ok {
		return "", false
	}
	return mv, true
}

// Valid reports whether mv is one of the three symbols.
func Valid(mv domain.Move) bool {
	_, ok := beats[mv]
	return ok
}

// Beats reports whether a defeats b.
func Beats(a, b domain.Move) bool {
	v, ok := beats[a]
	return ok && v == b
}

// Resolve returns the outcome of a round. Both moves must be valid.
func Resolve(a, b domain.Move) domain.Outcome {
	switch {
	case a == b:
		return domain.Draw
	case Beats(a, b):
		return domain.PlayerAWins
	default:
		return domain.PlayerBWins
	}
}

// Attribute maps an outcome to winner and loser ids for the given match.
// Both are nil for a draw.
func Attribute(m *domain.Match, o domain.Outcome) (winner, loser *int64) {
	switch o {
	case domain.PlayerAWins:
		return domain.ID(m.PlayerAID), domain.ID(m.PlayerBID)
	case domain.PlayerBWins:
		return domain.ID(m.PlayerBID), domain.ID(m.PlayerAID)
	default:
		return nil, nil
	}
}
