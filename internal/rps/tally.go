package rps

import "github.com/park285/rpsmatch/internal/domain"

// Tally is the running score of a match.
type Tally struct {
	WinsA  int
	WinsB  int
	Draws  int
	Rounds int
}

// Count scores the rounds of a match. Draws count toward neither player.
func Count(rounds []*domain.Round) Tally {
	var t Tally
	for _, r := range rounds {
		if r == nil {
			continue
		}
		t.Rounds++
		switch r.Outcome {
		case domain.PlayerAWins:
			t.WinsA++
		case domain.PlayerBWins:
			t.WinsB++
		default:
			t.Draws++
		}
	}
	return t
}

// Decided returns the winning side once a player reaches WinsToFinish.
// The round count is not capped; only wins are.
func (t Tally) Decided() (domain.Outcome, bool) {
	switch {
	case t.WinsA >= WinsToFinish:
		return domain.PlayerAWins, true
	case t.WinsB >= WinsToFinish:
		return domain.PlayerBWins, true
	default:
		return "", false
	}
}
