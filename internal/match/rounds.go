package match

import (
	"context"

	"go.uber.org/zap"

	"github.com/park285/rpsmatch/internal/domain"
	"github.com/park285/rpsmatch/internal/obslog"
	"github.com/park285/rpsmatch/internal/rps"
	"github.com/park285/rpsmatch/internal/store"
)

// RecordRound resolves one exchange of moves, appends it as the next round
// and finalizes the match when the round decides it. The round and the
// finalization are committed together.
//
// Checks run in order: match exists, match in progress, moves valid.
func (s *Service) RecordRound(ctx context.Context, matchID int64, moveA, moveB string) (*domain.Round, error) {
	var (
		round    *domain.Round
		finished *domain.Match
	)
	err := s.store.Update(ctx, matchID, func(tx store.Tx) error {
		round, finished = nil, nil
		m := tx.Match()
		if m == nil {
			return matchNotFound(matchID)
		}
		if m.State != domain.MatchInProgress {
			return newError(KindInvalidState, CodeMatchNotInProgress,
				map[string]any{"match_id": matchID}, "match %d is %s", matchID, m.State)
		}
		a, ok := rps.ParseMove(moveA)
		if !ok {
			return invalidMove(moveA)
		}
		b, ok := rps.ParseMove(moveB)
		if !ok {
			return invalidMove(moveB)
		}

		now := s.now()
		outcome := rps.Resolve(a, b)
		winner, loser := rps.Attribute(m, outcome)
		r := &domain.Round{
			MatchID:   matchID,
			Number:    len(tx.Rounds()) + 1,
			MoveA:     a,
			MoveB:     b,
			Outcome:   outcome,
			WinnerID:  winner,
			LoserID:   loser,
			CreatedAt: now,
		}
		tx.AppendRound(r)

		history := append(append([]*domain.Round(nil), tx.Rounds()...), r)
		if done := finalize(m, history, now); done != nil {
			tx.SaveMatch(done)
			finished = done
		}
		round = r
		return nil
	})
	if err != nil {
		return nil, s.fail("record_round", err, zap.Int64("match_id", matchID))
	}

	s.hooks.RoundRecorded(round.Outcome)
	obslog.L().Info("round_record",
		zap.Int64("match_id", matchID),
		zap.Int("number", round.Number),
		zap.String("move_a", string(round.MoveA)),
		zap.String("move_b", string(round.MoveB)),
		zap.String("outcome", string(round.Outcome)),
	)
	if finished != nil {
		s.logFinish(finished)
	}
	return round, nil
}

// ListRounds returns the rounds of a match in round order.
func (s *Service) ListRounds(ctx context.Context, matchID int64) ([]*domain.Round, error) {
	if _, err := s.GetMatch(ctx, matchID); err != nil {
		return nil, err
	}
	rounds, err := s.store.ListRounds(ctx, matchID)
	if err != nil {
		return nil, s.fail("list_rounds", err, zap.Int64("match_id", matchID))
	}
	return rounds, nil
}

// ListDraws returns the drawn rounds of a match.
func (s *Service) ListDraws(ctx context.Context, matchID int64) ([]*domain.Round, error) {
	rounds, err := s.ListRounds(ctx, matchID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Round, 0)
	for _, r := range rounds {
		if r.Outcome == domain.Draw {
			out = append(out, r)
		}
	}
	return out, nil
}
