// Package match runs the match lifecycle: recording rounds, finalizing
// decided matches and spawning rematches. Every read-modify-write on a match
// goes through store.Update so concurrent submissions serialize per match.
package match

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/rpsmatch/internal/domain"
	"github.com/park285/rpsmatch/internal/obslog"
	"github.com/park285/rpsmatch/internal/store"
)

// Hooks receives lifecycle events, e.g. for metrics.
type Hooks interface {
	RoundRecorded(outcome domain.Outcome)
	MatchCreated(rematch bool)
	MatchFinished()
	Rejected(kind Kind)
}

type nopHooks struct{}

func (nopHooks) RoundRecorded(domain.Outcome) {}
func (nopHooks) MatchCreated(bool)            {}
func (nopHooks) MatchFinished()               {}
func (nopHooks) Rejected(Kind)                {}

type Service struct {
	store store.Store
	now   func() time.Time
	hooks Hooks
}

type Option func(*Service)

// WithClock overrides the time source used for start, end and round times.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithHooks(h Hooks) Option {
	return func(s *Service) {
		if h != nil {
			s.hooks = h
		}
	}
}

func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{store: st, now: time.Now, hooks: nopHooks{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// fail records a rejection or wraps a storage fault.
func (s *Service) fail(op string, err error, fields ...zap.Field) error {
	if de, ok := AsError(err); ok {
		s.hooks.Rejected(de.Kind)
		obslog.L().Info("domain_reject", append(fields,
			zap.String("op", op), zap.String("kind", string(de.Kind)), zap.String("code", de.Code))...)
		return de
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	obslog.L().Error("storage_error", append(fields, zap.String("op", op), zap.Error(err))...)
	return wrapStorage(op, err)
}

func (s *Service) CreateMatch(ctx context.Context, playerAID, playerBID int64) (*domain.Match, error) {
	if playerAID == playerBID {
		return nil, s.fail("create_match", newError(KindValidation, CodeSamePlayer,
			map[string]any{"player_id": playerAID}, "player %d cannot play against themselves", playerAID))
	}
	for _, id := range []int64{playerAID, playerBID} {
		p, err := s.store.GetPlayer(ctx, id)
		if err != nil {
			return nil, s.fail("create_match", err)
		}
		if p == nil {
			return nil, s.fail("create_match", playerNotFound(id))
		}
	}

	m := &domain.Match{
		PlayerAID: playerAID,
		PlayerBID: playerBID,
		StartedAt: s.now(),
		State:     domain.MatchInProgress,
	}
	if err := s.store.CreateMatch(ctx, m); err != nil {
		if errors.Is(err, store.ErrPlayerMissing) {
			// a player was deleted between the check and the insert
			return nil, s.fail("create_match", newError(KindNotFound, CodePlayerNotFound,
				map[string]any{"player": playerAID}, "player not found"))
		}
		return nil, s.fail("create_match", err)
	}
	s.hooks.MatchCreated(false)
	obslog.L().Info("match_create",
		zap.Int64("match_id", m.ID),
		zap.Int64("player_a_id", playerAID),
		zap.Int64("player_b_id", playerBID),
	)
	return m, nil
}

func (s *Service) GetMatch(ctx context.Context, id int64) (*domain.Match, error) {
	m, err := s.store.GetMatch(ctx, id)
	if err != nil {
		return nil, s.fail("get_match", err, zap.Int64("match_id", id))
	}
	if m == nil {
		return nil, s.fail("get_match", matchNotFound(id))
	}
	return m, nil
}

// GetMatchFull composes the match with both players, its rounds, its origin
// and the rematches spawned from it.
func (s *Service) GetMatchFull(ctx context.Context, id int64) (*domain.MatchFull, error) {
	m, err := s.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	full := &domain.MatchFull{Match: m}
	if full.PlayerA, err = s.store.GetPlayer(ctx, m.PlayerAID); err != nil {
		return nil, s.fail("get_match_full", err)
	}
	if full.PlayerB, err = s.store.GetPlayer(ctx, m.PlayerBID); err != nil {
		return nil, s.fail("get_match_full", err)
	}
	if full.Rounds, err = s.store.ListRounds(ctx, id); err != nil {
		return nil, s.fail("get_match_full", err)
	}
	if m.OriginMatchID != nil {
		if full.Origin, err = s.store.GetMatch(ctx, *m.OriginMatchID); err != nil {
			return nil, s.fail("get_match_full", err)
		}
	}
	if full.Rematches, err = s.store.ListMatches(ctx, store.MatchFilter{OriginID: id}); err != nil {
		return nil, s.fail("get_match_full", err)
	}
	return full, nil
}

// Filter narrows ListMatches. Zero values match everything.
type Filter struct {
	State    domain.MatchState
	PlayerID int64
}

func (s *Service) ListMatches(ctx context.Context, f Filter) ([]*domain.Match, error) {
	out, err := s.store.ListMatches(ctx, store.MatchFilter{State: f.State, PlayerID: f.PlayerID})
	if err != nil {
		return nil, s.fail("list_matches", err)
	}
	return out, nil
}

func (s *Service) ListMatchesForPlayer(ctx context.Context, playerID int64) ([]*domain.Match, error) {
	if _, err := s.GetPlayer(ctx, playerID); err != nil {
		return nil, err
	}
	return s.ListMatches(ctx, Filter{PlayerID: playerID})
}

// DeleteMatch removes a match and its rounds. Matches that are the origin of
// a rematch cannot be deleted.
func (s *Service) DeleteMatch(ctx context.Context, id int64) error {
	ok, err := s.store.DeleteMatch(ctx, id)
	if errors.Is(err, store.ErrMatchReferenced) {
		return s.fail("delete_match", newError(KindConflict, CodeMatchReferenced,
			map[string]any{"match_id": id}, "match %d is the origin of a rematch", id))
	}
	if err != nil {
		return s.fail("delete_match", err, zap.Int64("match_id", id))
	}
	if !ok {
		return s.fail("delete_match", matchNotFound(id))
	}
	obslog.L().Info("match_delete", zap.Int64("match_id", id))
	return nil
}
