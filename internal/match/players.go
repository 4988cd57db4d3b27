package match

import (
	"context"
	"errors"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/rpsmatch/internal/domain"
	"github.com/park285/rpsmatch/internal/obslog"
	"github.com/park285/rpsmatch/internal/store"
)

// RegisterPlayer creates a player. Handles are trimmed and unique ignoring case.
func (s *Service) RegisterPlayer(ctx context.Context, handle string) (*domain.Player, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, s.fail("register_player", newError(KindValidation, CodeHandleRequired, nil, "handle is required"))
	}
	p, err := s.store.CreatePlayer(ctx, handle, s.now())
	if errors.Is(err, store.ErrDuplicateHandle) {
		return nil, s.fail("register_player", newError(KindConflict, CodeHandleTaken,
			map[string]any{"handle": handle}, "handle %q is already registered", handle))
	}
	if err != nil {
		return nil, s.fail("register_player", err)
	}
	obslog.L().Info("player_register", zap.Int64("player_id", p.ID), zap.String("handle", p.Handle))
	return p, nil
}

func (s *Service) GetPlayer(ctx context.Context, id int64) (*domain.Player, error) {
	p, err := s.store.GetPlayer(ctx, id)
	if err != nil {
		return nil, s.fail("get_player", err, zap.Int64("player_id", id))
	}
	if p == nil {
		return nil, s.fail("get_player", playerNotFound(id))
	}
	return p, nil
}

func (s *Service) GetPlayerByHandle(ctx context.Context, handle string) (*domain.Player, error) {
	p, err := s.store.GetPlayerByHandle(ctx, handle)
	if err != nil {
		return nil, s.fail("get_player_by_handle", err)
	}
	if p == nil {
		return nil, s.fail("get_player_by_handle", playerNotFound(strings.TrimSpace(handle)))
	}
	return p, nil
}

func (s *Service) ListPlayers(ctx context.Context) ([]*domain.Player, error) {
	out, err := s.store.ListPlayers(ctx)
	if err != nil {
		return nil, s.fail("list_players", err)
	}
	return out, nil
}

// DeletePlayer removes a player that no match refers to.
func (s *Service) DeletePlayer(ctx context.Context, id int64) error {
	ok, err := s.store.DeletePlayer(ctx, id)
	if errors.Is(err, store.ErrPlayerReferenced) {
		return s.fail("delete_player", newError(KindConflict, CodePlayerReferenced,
			map[string]any{"player_id": id}, "player %d is referenced by matches", id))
	}
	if err != nil {
		return s.fail("delete_player", err, zap.Int64("player_id", id))
	}
	if !ok {
		return s.fail("delete_player", playerNotFound(id))
	}
	obslog.L().Info("player_delete", zap.Int64("player_id", id))
	return nil
}

// PlayerStats summarizes a player's matches and rounds. Matches of any state
// count as played.
func (s *Service) PlayerStats(ctx context.Context, playerID int64) (*domain.PlayerStats, error) {
	matches, err := s.ListMatchesForPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	st := &domain.PlayerStats{PlayerID: playerID, MatchesPlayed: len(matches)}
	for _, m := range matches {
		if m.WinnerID != nil && *m.WinnerID == playerID {
			st.MatchesWon++
		}
		if m.LoserID != nil && *m.LoserID == playerID {
			st.MatchesLost++
		}
		rounds, err := s.store.ListRounds(ctx, m.ID)
		if err != nil {
			return nil, s.fail("player_stats", err, zap.Int64("player_id", playerID))
		}
		for _, r := range rounds {
			switch {
			case r.Outcome == domain.Draw:
				st.RoundsDrawn++
			case r.WinnerID != nil && *r.WinnerID == playerID:
				st.RoundsWon++
			default:
				st.RoundsLost++
			}
		}
	}
	st.WinPercentage = winPercentage(st.MatchesWon, st.MatchesPlayed)
	return st, nil
}

// winPercentage is won/played as a percentage rounded to two decimals.
func winPercentage(won, played int) float64 {
	if played == 0 {
		return 0
	}
	return math.Round(float64(won)/float64(played)*100*100) / 100
}

// MoveStats counts the moves a player made across all their rounds.
func (s *Service) MoveStats(ctx context.Context, playerID int64) (*domain.MoveStats, error) {
	matches, err := s.ListMatchesForPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	st := &domain.MoveStats{PlayerID: playerID, Counts: make(map[domain.Move]int, len(domain.Moves))}
	for _, mv := range domain.Moves {
		st.Counts[mv] = 0
	}
	total := 0
	for _, m := range matches {
		rounds, err := s.store.ListRounds(ctx, m.ID)
		if err != nil {
			return nil, s.fail("move_stats", err, zap.Int64("player_id", playerID))
		}
		for _, r := range rounds {
			mv := r.MoveA
			if m.PlayerBID == playerID {
				mv = r.MoveB
			}
			st.Counts[mv]++
			total++
		}
	}
	if total > 0 {
		// ties keep the canonical move order
		fav := domain.Moves[0]
		for _, mv := range domain.Moves[1:] {
			if st.Counts[mv] > st.Counts[fav] {
				fav = mv
			}
		}
		st.Favorite = &fav
	}
	return st, nil
}

// ListRoundsWonBy returns every round the player won, grouped by match
// newest first and in round order within a match.
func (s *Service) ListRoundsWonBy(ctx context.Context, playerID int64) ([]*domain.Round, error) {
	matches, err := s.ListMatchesForPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Round, 0)
	for _, m := range matches {
		rounds, err := s.store.ListRounds(ctx, m.ID)
		if err != nil {
			return nil, s.fail("rounds_won", err, zap.Int64("player_id", playerID))
		}
		for _, r := range rounds {
			if r.WinnerID != nil && *r.WinnerID == playerID {
				out = append(out, r)
			}
		}
	}
	return out, nil
}
