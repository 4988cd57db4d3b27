// Package store defines the persistence contract shared by the memory, Redis
// and PostgreSQL backends.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/park285/rpsmatch/internal/domain"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicateHandle  = errors.New("player handle already exists")
	ErrPlayerMissing    = errors.New("referenced player does not exist")
	ErrPlayerReferenced = errors.New("player is referenced by a match")
	ErrMatchReferenced  = errors.New("match is the origin of a rematch")
	ErrRoundConflict    = errors.New("round number already taken")
)

// MatchFilter narrows ListMatches. Zero values match everything.
type MatchFilter struct {
	State    domain.MatchState
	PlayerID int64
	OriginID int64
}

// Matches reports whether m passes the filter.
func (f MatchFilter) Matches(m *domain.Match) bool {
	if m == nil {
		return false
	}
	if f.State != "" && m.State != f.State {
		return false
	}
	if f.PlayerID != 0 && !m.HasPlayer(f.PlayerID) {
		return false
	}
	if f.OriginID != 0 && (m.OriginMatchID == nil || *m.OriginMatchID != f.OriginID) {
		return false
	}
	return true
}

// SortNewestFirst orders matches by start time descending, then id.
func SortNewestFirst(ms []*domain.Match) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].StartedAt.Equal(ms[j].StartedAt) {
			return ms[i].StartedAt.After(ms[j].StartedAt)
		}
		return ms[i].ID > ms[j].ID
	})
}

// Store is implemented by every backend. Lookups return (nil, nil) when the
// record does not exist.
type Store interface {
	CreatePlayer(ctx context.Context, handle string, registeredAt time.Time) (*domain.Player, error)
	GetPlayer(ctx context.Context, id int64) (*domain.Player, error)
	GetPlayerByHandle(ctx context.Context, handle string) (*domain.Player, error)
	ListPlayers(ctx context.Context) ([]*domain.Player, error)
	// DeletePlayer returns false when the player does not exist and
	// ErrPlayerReferenced while any match names the player.
	DeletePlayer(ctx context.Context, id int64) (bool, error)

	// CreateMatch assigns m.ID. Both players must exist.
	CreateMatch(ctx context.Context, m *domain.Match) error
	GetMatch(ctx context.Context, id int64) (*domain.Match, error)
	// ListMatches returns matches newest first.
	ListMatches(ctx context.Context, f MatchFilter) ([]*domain.Match, error)
	// DeleteMatch removes the match and its rounds. It returns false when the
	// match does not exist and ErrMatchReferenced while rematches name it.
	DeleteMatch(ctx context.Context, id int64) (bool, error)
	// ListRounds returns the rounds of a match ordered by round number.
	ListRounds(ctx context.Context, matchID int64) ([]*domain.Round, error)

	// Update runs fn with exclusive access to one match. Writes staged on tx
	// are committed together only when fn returns nil. fn may run more than
	// once and must not keep state between calls.
	Update(ctx context.Context, matchID int64, fn func(tx Tx) error) error

	Close() error
}

// Tx is the view of a single match inside Update.
type Tx interface {
	// Match is nil when the match does not exist.
	Match() *domain.Match
	Rounds() []*domain.Round
	// Rematches lists matches naming this match as their origin.
	Rematches() []*domain.Match

	// AppendRound stages a new round; its ID is set on commit.
	AppendRound(r *domain.Round)
	// SaveMatch stages an update of the match under lock.
	SaveMatch(m *domain.Match)
	// InsertMatch stages a new match; its ID is set on commit.
	InsertMatch(m *domain.Match)
}

var folder = cases.Fold()

// HandleKey is the uniqueness key of a player handle.
func HandleKey(handle string) string {
	return folder.String(strings.TrimSpace(handle))
}

// Staged collects the writes of one Update attempt. Backends embed it in
// their Tx implementations.
type Staged struct {
	NewRounds []*domain.Round
	Saved     *domain.Match
	Inserted  []*domain.Match
}

func (s *Staged) AppendRound(r *domain.Round) {
	if r != nil {
		s.NewRounds = append(s.NewRounds, r)
	}
}

func (s *Staged) SaveMatch(m *domain.Match) {
	if m != nil {
		s.Saved = m
	}
}

func (s *Staged) InsertMatch(m *domain.Match) {
	if m != nil {
		s.Inserted = append(s.Inserted, m)
	}
}

// Empty reports whether nothing was staged.
func (s *Staged) Empty() bool {
	return len(s.NewRounds) == 0 && s.Saved == nil && len(s.Inserted) == 0
}

// CheckRounds verifies staged rounds continue the existing numbering.
func (s *Staged) CheckRounds(existing int) error {
	for i, r := range s.NewRounds {
		if r.Number != existing+i+1 {
			return ErrRoundConflict
		}
	}
	return nil
}
