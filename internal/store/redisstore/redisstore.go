// Package redisstore keeps players, matches and rounds in Redis. Each match
// is a JSON record guarded by WATCH/MULTI so concurrent round submissions
// serialize per match.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/rpsmatch/internal/domain"
	"github.com/park285/rpsmatch/internal/obslog"
	"github.com/park285/rpsmatch/internal/store"
)

const maxRetries = 32

type Store struct{ rdb *redis.Client }

func New(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Open connects to REDIS_URL and verifies the connection.
func Open(ctx context.Context, redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// watch runs fn under WATCH on keys, retrying when a watched key changes.
func (s *Store) watch(ctx context.Context, op string, fn func(*redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := s.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		obslog.L().Debug("redis_tx_retry", zap.String("op", op), zap.Int("attempt", attempt+1))
		backoff := time.Duration(attempt+1) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("%s: too much contention: %w", op, redis.TxFailedErr)
}

func (s *Store) CreatePlayer(ctx context.Context, handle string, registeredAt time.Time) (*domain.Player, error) {
	handle = strings.TrimSpace(handle)
	id, err := s.rdb.Incr(ctx, keySeq("player")).Result()
	if err != nil {
		return nil, err
	}
	ok, err := s.rdb.HSetNX(ctx, keyHandles(), store.HandleKey(handle), id).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrDuplicateHandle
	}
	p := &domain.Player{ID: id, Handle: handle, RegisteredAt: registeredAt}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keyPlayer(id), raw, 0)
		pipe.SAdd(ctx, keyPlayers(), id)
		return nil
	})
	if err != nil {
		_ = s.rdb.HDel(ctx, keyHandles(), store.HandleKey(handle)).Err()
		return nil, err
	}
	return p, nil
}

func (s *Store) GetPlayer(ctx context.Context, id int64) (*domain.Player, error) {
	return getJSON[domain.Player](ctx, s.rdb, keyPlayer(id))
}

func (s *Store) GetPlayerByHandle(ctx context.Context, handle string) (*domain.Player, error) {
	id, err := s.rdb.HGet(ctx, keyHandles(), store.HandleKey(handle)).Int64()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetPlayer(ctx, id)
}

func (s *Store) ListPlayers(ctx context.Context) ([]*domain.Player, error) {
	ids, err := s.members(ctx, s.rdb, keyPlayers())
	if err != nil {
		return nil, err
	}
	out, err := mgetJSON[domain.Player](ctx, s.rdb, ids, keyPlayer)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeletePlayer(ctx context.Context, id int64) (bool, error) {
	deleted := false
	err := s.watch(ctx, "delete_player", func(tx *redis.Tx) error {
		deleted = false
		p, err := getJSON[domain.Player](ctx, tx, keyPlayer(id))
		if err != nil || p == nil {
			return err
		}
		n, err := tx.SCard(ctx, keyPlayerMatches(id)).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return store.ErrPlayerReferenced
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keyPlayer(id))
			pipe.SRem(ctx, keyPlayers(), id)
			pipe.HDel(ctx, keyHandles(), store.HandleKey(p.Handle))
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}, keyPlayer(id), keyPlayerMatches(id))
	return deleted, err
}

func (s *Store) CreateMatch(ctx context.Context, m *domain.Match) error {
	return s.watch(ctx, "create_match", func(tx *redis.Tx) error {
		if err := checkPlayers(ctx, tx, m); err != nil {
			return err
		}
		id, err := tx.Incr(ctx, keySeq("match")).Result()
		if err != nil {
			return err
		}
		rec := m.Clone()
		rec.ID = id
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			insertMatch(ctx, pipe, rec, raw)
			return nil
		})
		if err == nil {
			m.ID = id
		}
		return err
	}, keyPlayer(m.PlayerAID), keyPlayer(m.PlayerBID))
}

func (s *Store) GetMatch(ctx context.Context, id int64) (*domain.Match, error) {
	return getJSON[domain.Match](ctx, s.rdb, keyMatch(id))
}

func (s *Store) ListMatches(ctx context.Context, f store.MatchFilter) ([]*domain.Match, error) {
	return s.listMatches(ctx, s.rdb, f)
}

func (s *Store) listMatches(ctx context.Context, c redis.Cmdable, f store.MatchFilter) ([]*domain.Match, error) {
	// narrowest index first
	key := keyMatches()
	switch {
	case f.OriginID != 0:
		key = keyRematches(f.OriginID)
	case f.PlayerID != 0:
		key = keyPlayerMatches(f.PlayerID)
	}
	ids, err := s.members(ctx, c, key)
	if err != nil {
		return nil, err
	}
	all, err := mgetJSON[domain.Match](ctx, c, ids, keyMatch)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Match, 0, len(all))
	for _, m := range all {
		if f.Matches(m) {
			out = append(out, m)
		}
	}
	store.SortNewestFirst(out)
	return out, nil
}

func (s *Store) DeleteMatch(ctx context.Context, id int64) (bool, error) {
	deleted := false
	err := s.watch(ctx, "delete_match", func(tx *redis.Tx) error {
		deleted = false
		m, err := getJSON[domain.Match](ctx, tx, keyMatch(id))
		if err != nil || m == nil {
			return err
		}
		n, err := tx.SCard(ctx, keyRematches(id)).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return store.ErrMatchReferenced
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keyMatch(id), keyRounds(id), keyRematches(id))
			pipe.SRem(ctx, keyMatches(), id)
			pipe.SRem(ctx, keyPlayerMatches(m.PlayerAID), id)
			pipe.SRem(ctx, keyPlayerMatches(m.PlayerBID), id)
			if m.OriginMatchID != nil {
				pipe.SRem(ctx, keyRematches(*m.OriginMatchID), id)
			}
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}, keyMatch(id), keyRematches(id))
	return deleted, err
}

func (s *Store) ListRounds(ctx context.Context, matchID int64) ([]*domain.Round, error) {
	return listRounds(ctx, s.rdb, matchID)
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

func (s *Store) Update(ctx context.Context, matchID int64, fn func(store.Tx) error) error {
	matchK := keyMatch(matchID)
	return s.watch(ctx, "update_match", func(rtx *redis.Tx) error {
		m, err := getJSON[domain.Match](ctx, rtx, matchK)
		if err != nil {
			return err
		}
		rounds, err := listRounds(ctx, rtx, matchID)
		if err != nil {
			return err
		}
		rematches, err := s.listMatches(ctx, rtx, store.MatchFilter{OriginID: matchID})
		if err != nil {
			return err
		}
		t := &tx{match: m, rounds: rounds, rematches: rematches}
		if err := fn(t); err != nil {
			return err
		}
		if t.Empty() {
			return nil
		}
		if m == nil && (t.Saved != nil || len(t.NewRounds) > 0) {
			return store.ErrNotFound
		}
		if err := t.CheckRounds(len(rounds)); err != nil {
			return err
		}

		roundRaws := make([]interface{}, 0, len(t.NewRounds))
		for _, r := range t.NewRounds {
			id, err := rtx.Incr(ctx, keySeq("round")).Result()
			if err != nil {
				return err
			}
			r.ID = id
			r.MatchID = matchID
			raw, err := json.Marshal(r)
			if err != nil {
				return err
			}
			roundRaws = append(roundRaws, raw)
		}
		inserted := make([]*domain.Match, 0, len(t.Inserted))
		insertedRaws := make([][]byte, 0, len(t.Inserted))
		for _, im := range t.Inserted {
			if err := checkPlayers(ctx, rtx, im); err != nil {
				return err
			}
			id, err := rtx.Incr(ctx, keySeq("match")).Result()
			if err != nil {
				return err
			}
			rec := im.Clone()
			rec.ID = id
			raw, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			inserted = append(inserted, rec)
			insertedRaws = append(insertedRaws, raw)
		}
		var savedRaw []byte
		if t.Saved != nil {
			saved := t.Saved.Clone()
			saved.ID = matchID
			if savedRaw, err = json.Marshal(saved); err != nil {
				return err
			}
		}

		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(roundRaws) > 0 {
				pipe.RPush(ctx, keyRounds(matchID), roundRaws...)
			}
			if savedRaw != nil {
				pipe.Set(ctx, matchK, savedRaw, 0)
			}
			for i, rec := range inserted {
				insertMatch(ctx, pipe, rec, insertedRaws[i])
			}
			return nil
		})
		if err != nil {
			return err
		}
		for i, rec := range inserted {
			t.Inserted[i].ID = rec.ID
		}
		return nil
	}, matchK, keyRounds(matchID), keyRematches(matchID))
}

func insertMatch(ctx context.Context, pipe redis.Pipeliner, m *domain.Match, raw []byte) {
	pipe.Set(ctx, keyMatch(m.ID), raw, 0)
	pipe.SAdd(ctx, keyMatches(), m.ID)
	pipe.SAdd(ctx, keyPlayerMatches(m.PlayerAID), m.ID)
	pipe.SAdd(ctx, keyPlayerMatches(m.PlayerBID), m.ID)
	if m.OriginMatchID != nil {
		pipe.SAdd(ctx, keyRematches(*m.OriginMatchID), m.ID)
	}
}

func checkPlayers(ctx context.Context, c redis.Cmdable, m *domain.Match) error {
	n, err := c.Exists(ctx, keyPlayer(m.PlayerAID), keyPlayer(m.PlayerBID)).Result()
	if err != nil {
		return err
	}
	want := int64(2)
	if m.PlayerAID == m.PlayerBID {
		want = 1
	}
	if n != want {
		return store.ErrPlayerMissing
	}
	return nil
}

func listRounds(ctx context.Context, c redis.Cmdable, matchID int64) ([]*domain.Round, error) {
	raws, err := c.LRange(ctx, keyRounds(matchID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Round, 0, len(raws))
	for _, raw := range raws {
		var r domain.Round
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode round: %w", err)
		}
		out = append(out, &r)
	}
	return out, nil
}

func (s *Store) members(ctx context.Context, c redis.Cmdable, key string) ([]int64, error) {
	raw, err := c.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getJSON[T any](ctx context.Context, c redis.Cmdable, key string) (*T, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &v, nil
}

func mgetJSON[T any](ctx context.Context, c redis.Cmdable, ids []int64, key func(int64) string) ([]*T, error) {
	if len(ids) == 0 {
		return []*T{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	vals, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// index entry without record; removed concurrently
			continue
		}
		var rec T
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
