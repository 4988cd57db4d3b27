package match

import (
	"context"

	"go.uber.org/zap"

	"github.com/park285/rpsmatch/internal/domain"
	"github.com/park285/rpsmatch/internal/obslog"
	"github.com/park285/rpsmatch/internal/store"
)

// CreateRematch starts a new match between the players of a finished origin
// match. Only one rematch per origin may be outstanding at a time.
func (s *Service) CreateRematch(ctx context.Context, originID int64) (*domain.Match, error) {
	var created *domain.Match
	err := s.store.Update(ctx, originID, func(tx store.Tx) error {
		created = nil
		origin := tx.Match()
		if origin == nil {
			return matchNotFound(originID)
		}
		if origin.State != domain.MatchFinished {
			return newError(KindInvalidState, CodeOriginNotFinished,
				map[string]any{"match_id": originID}, "match %d is %s, not FINISHED", originID, origin.State)
		}
		for _, r := range tx.Rematches() {
			if r.Outstanding() {
				return newError(KindConflict, CodeRematchOutstanding,
					map[string]any{"match_id": originID, "rematch_id": r.ID},
					"match %d already has outstanding rematch %d", originID, r.ID)
			}
		}
		m := &domain.Match{
			PlayerAID:     origin.PlayerAID,
			PlayerBID:     origin.PlayerBID,
			StartedAt:     s.now(),
			State:         domain.MatchInProgress,
			IsRematch:     true,
			OriginMatchID: domain.ID(originID),
		}
		tx.InsertMatch(m)
		created = m
		return nil
	})
	if err != nil {
		return nil, s.fail("create_rematch", err, zap.Int64("origin_match_id", originID))
	}
	s.hooks.MatchCreated(true)
	obslog.L().Info("rematch_create",
		zap.Int64("match_id", created.ID),
		zap.Int64("origin_match_id", originID),
	)
	return created, nil
}

// ListRematches returns the matches naming originID as their origin, newest first.
func (s *Service) ListRematches(ctx context.Context, originID int64) ([]*domain.Match, error) {
	if _, err := s.GetMatch(ctx, originID); err != nil {
		return nil, err
	}
	out, err := s.store.ListMatches(ctx, store.MatchFilter{OriginID: originID})
	if err != nil {
		return nil, s.fail("list_rematches", err, zap.Int64("origin_match_id", originID))
	}
	return out, nil
}
