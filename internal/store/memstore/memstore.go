// Package memstore is the in-process backend used for development and tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/rpsmatch/internal/domain"
	"github.com/park285/rpsmatch/internal/store"
)

type memstore struct {
	mu sync.RWMutex

	nextPlayerID int64
	nextMatchID  int64
	nextRoundID  int64

	players       map[int64]*domain.Player
	playersByKey  map[string]int64 // HandleKey -> player id
	matches       map[int64]*domain.Match
	roundsByMatch map[int64][]*domain.Round // ordered by number

	lockMu sync.Mutex
	locks  map[int64]*matchLock
}

// matchLock serializes work on one match. It is dropped from the map once no
// caller holds or waits on it.
type matchLock struct {
	mu   sync.Mutex
	refs int
}

func New() store.Store {
	return &memstore{
		players:       make(map[int64]*domain.Player),
		playersByKey:  make(map[string]int64),
		matches:       make(map[int64]*domain.Match),
		roundsByMatch: make(map[int64][]*domain.Round),
		locks:         make(map[int64]*matchLock),
	}
}

func (s *memstore) Close() error { return nil }

func (s *memstore) CreatePlayer(ctx context.Context, handle string, registeredAt time.Time) (*domain.Player, error) {
	handle = strings.TrimSpace(handle)
	key := store.HandleKey(handle)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.playersByKey[key]; exists {
		return nil, store.ErrDuplicateHandle
	}
	s.nextPlayerID++
	p := &domain.Player{ID: s.nextPlayerID, Handle: handle, RegisteredAt: registeredAt}
	s.players[p.ID] = p
	s.playersByKey[key] = p.ID
	cp := *p
	return &cp, nil
}

func (s *memstore) GetPlayer(ctx context.Context, id int64) (*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *memstore) GetPlayerByHandle(ctx context.Context, handle string) (*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.playersByKey[store.HandleKey(handle)]
	if !ok {
		return nil, nil
	}
	cp := *s.players[id]
	return &cp, nil
}

func (s *memstore) ListPlayers(ctx context.Context) ([]*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Player, 0, len(s.players))
	for _, p := range s.players {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memstore) DeletePlayer(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return false, nil
	}
	for _, m := range s.matches {
		if m.References(id) {
			return false, store.ErrPlayerReferenced
		}
	}
	delete(s.players, id)
	delete(s.playersByKey, store.HandleKey(p.Handle))
	return true, nil
}

func (s *memstore) CreateMatch(ctx context.Context, m *domain.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertMatchLocked(m)
}

func (s *memstore) insertMatchLocked(m *domain.Match) error {
	if err := s.checkPlayersLocked(m); err != nil {
		return err
	}
	s.insertLocked(m)
	return nil
}

func (s *memstore) checkPlayersLocked(m *domain.Match) error {
	if _, ok := s.players[m.PlayerAID]; !ok {
		return store.ErrPlayerMissing
	}
	if _, ok := s.players[m.PlayerBID]; !ok {
		return store.ErrPlayerMissing
	}
	return nil
}

func (s *memstore) insertLocked(m *domain.Match) {
	s.nextMatchID++
	m.ID = s.nextMatchID
	s.matches[m.ID] = m.Clone()
}

func (s *memstore) GetMatch(ctx context.Context, id int64) (*domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matches[id].Clone(), nil
}

func (s *memstore) ListMatches(ctx context.Context, f store.MatchFilter) ([]*domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listMatchesLocked(f), nil
}

func (s *memstore) listMatchesLocked(f store.MatchFilter) []*domain.Match {
	out := make([]*domain.Match, 0)
	for _, m := range s.matches {
		if f.Matches(m) {
			out = append(out, m.Clone())
		}
	}
	store.SortNewestFirst(out)
	return out
}

func (s *memstore) DeleteMatch(ctx context.Context, id int64) (bool, error) {
	defer s.lockMatch(id)()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[id]; !ok {
		return false, nil
	}
	for _, m := range s.matches {
		if m.OriginMatchID != nil && *m.OriginMatchID == id {
			return false, store.ErrMatchReferenced
		}
	}
	delete(s.matches, id)
	delete(s.roundsByMatch, id)
	return true, nil
}

func (s *memstore) ListRounds(ctx context.Context, matchID int64) ([]*domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRounds(s.roundsByMatch[matchID]), nil
}

// lockMatch acquires the lock of match id and returns its release func.
func (s *memstore) lockMatch(id int64) (unlock func()) {
	s.lockMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &matchLock{}
		s.locks[id] = l
	}
	l.refs++
	s.lockMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.lockMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.lockMu.Unlock()
	}
}

type tx struct {
	store.Staged
	match     *domain.Match
	rounds    []*domain.Round
	rematches []*domain.Match
}

func (t *tx) Match() *domain.Match       { return t.match }
func (t *tx) Rounds() []*domain.Round    { return t.rounds }
func (t *tx) Rematches() []*domain.Match { return t.rematches }

var _ store.Tx = (*tx)(nil)

func (s *memstore) Update(ctx context.Context, matchID int64, fn func(store.Tx) error) error {
	defer s.lockMatch(matchID)()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	t := &tx{
		match:     s.matches[matchID].Clone(),
		rounds:    cloneRounds(s.roundsByMatch[matchID]),
		rematches: s.listMatchesLocked(store.MatchFilter{OriginID: matchID}),
	}
	s.mu.RUnlock()

	if err := fn(t); err != nil {
		return err
	}
	if t.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[matchID]; !ok && (t.Saved != nil || len(t.NewRounds) > 0) {
		return store.ErrNotFound
	}
	if err := t.CheckRounds(len(s.roundsByMatch[matchID])); err != nil {
		return err
	}
	for _, m := range t.Inserted {
		if err := s.checkPlayersLocked(m); err != nil {
			return err
		}
	}
	for _, m := range t.Inserted {
		s.insertLocked(m)
	}
	for _, r := range t.NewRounds {
		s.nextRoundID++
		r.ID = s.nextRoundID
		r.MatchID = matchID
		s.roundsByMatch[matchID] = append(s.roundsByMatch[matchID], r.Clone())
	}
	if t.Saved != nil {
		saved := t.Saved.Clone()
		saved.ID = matchID
		s.matches[matchID] = saved
	}
	return nil
}

func cloneRounds(in []*domain.Round) []*domain.Round {
	out := make([]*domain.Round, 0, len(in))
	for _, r := range in {
		out = append(out, r.Clone())
	}
	return out
}
