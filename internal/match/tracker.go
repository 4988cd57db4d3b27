package match

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/rpsmatch/internal/domain"
	"github.com/park285/rpsmatch/internal/obslog"
	"github.com/park285/rpsmatch/internal/rps"
	"github.com/park285/rpsmatch/internal/store"
)

// finalize returns the finished copy of m when rounds decide it, or nil when
// m is already finished or still undecided.
func finalize(m *domain.Match, rounds []*domain.Round, at time.Time) *domain.Match {
	if m == nil || m.State == domain.MatchFinished {
		return nil
	}
	outcome, decided := rps.Count(rounds).Decided()
	if !decided {
		return nil
	}
	done := m.Clone()
	done.State = domain.MatchFinished
	done.EndedAt = &at
	done.WinnerID, done.LoserID = rps.Attribute(m, outcome)
	return done
}

func statusOf(m *domain.Match, rounds []*domain.Round) *domain.MatchStatus {
	t := rps.Count(rounds)
	return &domain.MatchStatus{
		MatchID:      m.ID,
		State:        m.State,
		WinsA:        t.WinsA,
		WinsB:        t.WinsB,
		Draws:        t.Draws,
		RoundsPlayed: t.Rounds,
		WinnerID:     m.WinnerID,
		LoserID:      m.LoserID,
	}
}

// Reevaluate re-counts the rounds of a match and finalizes it if decided.
// A finished match is never changed.
func (s *Service) Reevaluate(ctx context.Context, matchID int64) (*domain.MatchStatus, error) {
	var (
		st       *domain.MatchStatus
		finished *domain.Match
	)
	err := s.store.Update(ctx, matchID, func(tx store.Tx) error {
		st, finished = nil, nil
		m := tx.Match()
		if m == nil {
			return matchNotFound(matchID)
		}
		if done := finalize(m, tx.Rounds(), s.now()); done != nil {
			tx.SaveMatch(done)
			finished, m = done, done
		}
		st = statusOf(m, tx.Rounds())
		return nil
	})
	if err != nil {
		return nil, s.fail("reevaluate", err, zap.Int64("match_id", matchID))
	}
	if finished != nil {
		s.logFinish(finished)
	}
	return st, nil
}

// MatchStatus reports the score of a match without modifying it.
func (s *Service) MatchStatus(ctx context.Context, matchID int64) (*domain.MatchStatus, error) {
	m, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	rounds, err := s.store.ListRounds(ctx, matchID)
	if err != nil {
		return nil, s.fail("match_status", err, zap.Int64("match_id", matchID))
	}
	return statusOf(m, rounds), nil
}

func (s *Service) logFinish(m *domain.Match) {
	s.hooks.MatchFinished()
	fields := []zap.Field{zap.Int64("match_id", m.ID)}
	if m.WinnerID != nil {
		fields = append(fields, zap.Int64("winner_id", *m.WinnerID), zap.Int64("loser_id", *m.LoserID))
	}
	obslog.L().Info("match_finish", fields...)
}
