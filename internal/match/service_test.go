package match

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/rpsmatch/internal/domain"
	"github.com/park285/rpsmatch/internal/store"
	"github.com/park285/rpsmatch/internal/store/memstore"
	"github.com/park285/rpsmatch/internal/store/redisstore"
)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recordingHooks struct {
	mu       sync.Mutex
	rounds   map[domain.Outcome]int
	created  map[bool]int
	finished int
	rejected map[Kind]int
}

func newRecordingHooks() *recordingHooks {
	return &recordingHooks{rounds: map[domain.Outcome]int{}, created: map[bool]int{}, rejected: map[Kind]int{}}
}

func (h *recordingHooks) RoundRecorded(o domain.Outcome) { h.mu.Lock(); h.rounds[o]++; h.mu.Unlock() }
func (h *recordingHooks) MatchCreated(r bool)            { h.mu.Lock(); h.created[r]++; h.mu.Unlock() }
func (h *recordingHooks) MatchFinished()                 { h.mu.Lock(); h.finished++; h.mu.Unlock() }
func (h *recordingHooks) Rejected(k Kind)                { h.mu.Lock(); h.rejected[k]++; h.mu.Unlock() }

type fixture struct {
	svc   *Service
	hooks *recordingHooks
	a, b  *domain.Player
}

func backends(t *testing.T) map[string]func(t *testing.T) store.Store {
	t.Helper()
	return map[string]func(t *testing.T) store.Store{
		"memory": func(t *testing.T) store.Store { return memstore.New() },
		"redis": func(t *testing.T) store.Store {
			mr, err := miniredis.Run()
			if err != nil {
				t.Fatalf("miniredis run: %v", err)
			}
			t.Cleanup(mr.Close)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return redisstore.New(rdb)
		},
	}
}

// eachBackend runs fn once per store backend with two registered players.
func eachBackend(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			clock := &fixedClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
			hooks := newRecordingHooks()
			svc := NewService(open(t), WithClock(clock.now), WithHooks(hooks))
			ctx := context.Background()
			a, err := svc.RegisterPlayer(ctx, "alice")
			if err != nil {
				t.Fatalf("register alice: %v", err)
			}
			b, err := svc.RegisterPlayer(ctx, "bob")
			if err != nil {
				t.Fatalf("register bob: %v", err)
			}
			fn(t, &fixture{svc: svc, hooks: hooks, a: a, b: b})
		})
	}
}

func (f *fixture) newMatch(t *testing.T) *domain.Match {
	t.Helper()
	m, err := f.svc.CreateMatch(context.Background(), f.a.ID, f.b.ID)
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	return m
}

func (f *fixture) play(t *testing.T, matchID int64, moves ...[2]string) []*domain.Round {
	t.Helper()
	out := make([]*domain.Round, 0, len(moves))
	for _, mv := range moves {
		r, err := f.svc.RecordRound(context.Background(), matchID, mv[0], mv[1])
		if err != nil {
			t.Fatalf("record %v: %v", mv, err)
		}
		out = append(out, r)
	}
	return out
}

func (f *fixture) finishedMatch(t *testing.T) *domain.Match {
	t.Helper()
	m := f.newMatch(t)
	f.play(t, m.ID, [2]string{"ROCK", "SCISSORS"}, [2]string{"PAPER", "ROCK"})
	got, err := f.svc.GetMatch(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("get match: %v", err)
	}
	return got
}

func wantKind(t *testing.T, err error, kind Kind, code string) {
	t.Helper()
	de, ok := AsError(err)
	if !ok {
		t.Fatalf("expected %s/%s, got %v", kind, code, err)
	}
	if de.Kind != kind || de.Code != code {
		t.Fatalf("expected %s/%s, got %s/%s (%s)", kind, code, de.Kind, de.Code, de.Message)
	}
}

func TestCreateMatch(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		m := f.newMatch(t)
		if m.ID == 0 || m.State != domain.MatchInProgress || m.EndedAt != nil || m.WinnerID != nil || m.IsRematch {
			t.Fatalf("unexpected new match: %+v", m)
		}

		_, err := f.svc.CreateMatch(ctx, f.a.ID, f.a.ID)
		wantKind(t, err, KindValidation, CodeSamePlayer)

		_, err = f.svc.CreateMatch(ctx, f.a.ID, 999)
		wantKind(t, err, KindNotFound, CodePlayerNotFound)

		if f.hooks.created[false] != 1 {
			t.Fatalf("expected one creation hook, got %d", f.hooks.created[false])
		}
	})
}

// Two straight wins end the match after round 2.
func TestTwoStraightWinsFinishMatch(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		m := f.newMatch(t)
		rounds := f.play(t, m.ID, [2]string{"ROCK", "SCISSORS"}, [2]string{"PAPER", "ROCK"})
		for i, r := range rounds {
			if r.Number != i+1 || r.Outcome != domain.PlayerAWins || *r.WinnerID != f.a.ID || *r.LoserID != f.b.ID {
				t.Fatalf("round %d: %+v", i+1, r)
			}
		}
		got, _ := f.svc.GetMatch(ctx, m.ID)
		if got.State != domain.MatchFinished || *got.WinnerID != f.a.ID || *got.LoserID != f.b.ID || got.EndedAt == nil {
			t.Fatalf("expected A to win: %+v", got)
		}
		if f.hooks.finished != 1 {
			t.Fatalf("expected one finish, got %d", f.hooks.finished)
		}
	})
}

// A draw does not count, so the match runs to a fourth round.
func TestDrawExtendsMatch(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		m := f.newMatch(t)
		f.play(t, m.ID,
			[2]string{"ROCK", "ROCK"},
			[2]string{"SCISSORS", "PAPER"},
			[2]string{"PAPER", "SCISSORS"},
		)
		mid, _ := f.svc.GetMatch(ctx, m.ID)
		if mid.State != domain.MatchInProgress {
			t.Fatalf("match must stay open at 1-1 after 3 rounds: %+v", mid)
		}
		r := f.play(t, m.ID, [2]string{"rock", " scissors "})[0]
		if r.Number != 4 || r.MoveA != domain.Rock || r.MoveB != domain.Scissors {
			t.Fatalf("unexpected fourth round: %+v", r)
		}
		got, _ := f.svc.GetMatch(ctx, m.ID)
		if got.State != domain.MatchFinished || *got.WinnerID != f.a.ID {
			t.Fatalf("expected A to win after round 4: %+v", got)
		}
		st, err := f.svc.MatchStatus(ctx, m.ID)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if st.WinsA != 2 || st.WinsB != 1 || st.Draws != 1 || st.RoundsPlayed != 4 {
			t.Fatalf("unexpected status: %+v", st)
		}
		draws, _ := f.svc.ListDraws(ctx, m.ID)
		if len(draws) != 1 || draws[0].Number != 1 || draws[0].WinnerID != nil {
			t.Fatalf("unexpected draws: %+v", draws)
		}
	})
}

func TestRecordRoundRejections(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		_, err := f.svc.RecordRound(ctx, 404, "ROCK", "PAPER")
		wantKind(t, err, KindNotFound, CodeMatchNotFound)

		open := f.newMatch(t)
		_, err = f.svc.RecordRound(ctx, open.ID, "X", "ROCK")
		wantKind(t, err, KindValidation, CodeInvalidMove)
		_, err = f.svc.RecordRound(ctx, open.ID, "ROCK", "P")
		wantKind(t, err, KindValidation, CodeInvalidMove)
		if rounds, _ := f.svc.ListRounds(ctx, open.ID); len(rounds) != 0 {
			t.Fatalf("invalid move must not persist a round, got %d", len(rounds))
		}

		done := f.finishedMatch(t)
		_, err = f.svc.RecordRound(ctx, done.ID, "ROCK", "PAPER")
		wantKind(t, err, KindInvalidState, CodeMatchNotInProgress)
		// state is checked before the moves
		_, err = f.svc.RecordRound(ctx, done.ID, "X", "Y")
		wantKind(t, err, KindInvalidState, CodeMatchNotInProgress)

		if f.hooks.rejected[KindValidation] != 2 || f.hooks.rejected[KindInvalidState] != 2 {
			t.Fatalf("unexpected rejection counts: %+v", f.hooks.rejected)
		}
	})
}

func TestReevaluateIsIdempotent(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		m := f.finishedMatch(t)
		st, err := f.svc.Reevaluate(ctx, m.ID)
		if err != nil {
			t.Fatalf("reevaluate: %v", err)
		}
		after, _ := f.svc.GetMatch(ctx, m.ID)
		if !after.EndedAt.Equal(*m.EndedAt) || *after.WinnerID != *m.WinnerID || st.State != domain.MatchFinished {
			t.Fatalf("reevaluate changed a finished match: before=%+v after=%+v", m, after)
		}
		if f.hooks.finished != 1 {
			t.Fatalf("finish must happen once, got %d", f.hooks.finished)
		}

		open := f.newMatch(t)
		st, err = f.svc.Reevaluate(ctx, open.ID)
		if err != nil || st.State != domain.MatchInProgress || st.RoundsPlayed != 0 {
			t.Fatalf("reevaluate open match: %+v %v", st, err)
		}
		_, err = f.svc.Reevaluate(ctx, 12345)
		wantKind(t, err, KindNotFound, CodeMatchNotFound)
	})
}

func TestRematch(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		open := f.newMatch(t)
		_, err := f.svc.CreateRematch(ctx, open.ID)
		wantKind(t, err, KindInvalidState, CodeOriginNotFinished)

		_, err = f.svc.CreateRematch(ctx, 777)
		wantKind(t, err, KindNotFound, CodeMatchNotFound)

		origin := f.finishedMatch(t)
		m2, err := f.svc.CreateRematch(ctx, origin.ID)
		if err != nil {
			t.Fatalf("create rematch: %v", err)
		}
		if m2.ID == 0 || !m2.IsRematch || m2.OriginMatchID == nil || *m2.OriginMatchID != origin.ID ||
			m2.State != domain.MatchInProgress || m2.RematchAccepted != nil ||
			m2.PlayerAID != origin.PlayerAID || m2.PlayerBID != origin.PlayerBID {
			t.Fatalf("unexpected rematch: %+v", m2)
		}

		_, err = f.svc.CreateRematch(ctx, origin.ID)
		wantKind(t, err, KindConflict, CodeRematchOutstanding)

		after, _ := f.svc.GetMatch(ctx, origin.ID)
		if after.State != domain.MatchFinished {
			t.Fatalf("origin must stay finished: %+v", after)
		}

		list, err := f.svc.ListRematches(ctx, origin.ID)
		if err != nil || len(list) != 1 || list[0].ID != m2.ID {
			t.Fatalf("list rematches: %+v %v", list, err)
		}
		_, err = f.svc.ListRematches(ctx, 999)
		wantKind(t, err, KindNotFound, CodeMatchNotFound)

		full, err := f.svc.GetMatchFull(ctx, m2.ID)
		if err != nil {
			t.Fatalf("full: %v", err)
		}
		if full.Origin == nil || full.Origin.ID != origin.ID || full.PlayerA.ID != f.a.ID || full.PlayerB.ID != f.b.ID {
			t.Fatalf("unexpected full view: %+v", full)
		}
		originFull, _ := f.svc.GetMatchFull(ctx, origin.ID)
		if len(originFull.Rounds) != 2 || len(originFull.Rematches) != 1 || originFull.Origin != nil {
			t.Fatalf("unexpected origin full view: %+v", originFull)
		}
		if f.hooks.created[true] != 1 {
			t.Fatalf("expected one rematch hook, got %d", f.hooks.created[true])
		}
	})
}

func TestConcurrentRoundsAreGaplessAndFinishOnce(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		m := f.newMatch(t)

		// Draws keep the match open so every submission is accepted.
		const draws = 10
		var wg sync.WaitGroup
		errs := make(chan error, draws)
		for i := 0; i < draws; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.RecordRound(ctx, m.ID, "PAPER", "PAPER")
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("concurrent draw: %v", err)
			}
		}

		// Racing winning rounds: exactly two succeed before the match closes.
		const racers = 6
		results := make(chan error, racers)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.RecordRound(ctx, m.ID, "SCISSORS", "PAPER")
				results <- err
			}()
		}
		wg.Wait()
		close(results)
		ok, rejected := 0, 0
		for err := range results {
			switch {
			case err == nil:
				ok++
			case IsKind(err, KindInvalidState):
				rejected++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if ok != 2 || rejected != racers-2 {
			t.Fatalf("expected 2 accepted and %d rejected, got %d/%d", racers-2, ok, rejected)
		}

		rounds, _ := f.svc.ListRounds(ctx, m.ID)
		if len(rounds) != draws+2 {
			t.Fatalf("expected %d rounds, got %d", draws+2, len(rounds))
		}
		for i, r := range rounds {
			if r.Number != i+1 {
				t.Fatalf("round numbers not gapless at %d: %d", i, r.Number)
			}
		}
		if f.hooks.finished != 1 {
			t.Fatalf("match must finish exactly once, got %d", f.hooks.finished)
		}
	})
}

func TestDeleteMatch(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		origin := f.finishedMatch(t)
		rematch, err := f.svc.CreateRematch(ctx, origin.ID)
		if err != nil {
			t.Fatalf("rematch: %v", err)
		}
		err = f.svc.DeleteMatch(ctx, origin.ID)
		wantKind(t, err, KindConflict, CodeMatchReferenced)

		if err := f.svc.DeleteMatch(ctx, rematch.ID); err != nil {
			t.Fatalf("delete rematch: %v", err)
		}
		if err := f.svc.DeleteMatch(ctx, origin.ID); err != nil {
			t.Fatalf("delete origin: %v", err)
		}
		_, err = f.svc.ListRounds(ctx, origin.ID)
		wantKind(t, err, KindNotFound, CodeMatchNotFound)
		err = f.svc.DeleteMatch(ctx, origin.ID)
		wantKind(t, err, KindNotFound, CodeMatchNotFound)
	})
}

func TestListMatchesFilters(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		done := f.finishedMatch(t)
		open := f.newMatch(t)
		carol, _ := f.svc.RegisterPlayer(ctx, "carol")
		other, err := f.svc.CreateMatch(ctx, f.b.ID, carol.ID)
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		all, _ := f.svc.ListMatches(ctx, Filter{})
		if len(all) != 3 || all[0].ID != other.ID {
			t.Fatalf("expected newest first: %+v", all)
		}
		finished, _ := f.svc.ListMatches(ctx, Filter{State: domain.MatchFinished})
		if len(finished) != 1 || finished[0].ID != done.ID {
			t.Fatalf("state filter: %+v", finished)
		}
		forAlice, err := f.svc.ListMatchesForPlayer(ctx, f.a.ID)
		if err != nil || len(forAlice) != 2 || forAlice[0].ID != open.ID {
			t.Fatalf("player filter: %+v %v", forAlice, err)
		}
		_, err = f.svc.ListMatchesForPlayer(ctx, 4242)
		wantKind(t, err, KindNotFound, CodePlayerNotFound)
	})
}

type failingStore struct {
	store.Store
	err error
}

func (s failingStore) GetMatch(context.Context, int64) (*domain.Match, error) { return nil, s.err }
func (s failingStore) Update(context.Context, int64, func(store.Tx) error) error {
	return s.err
}

func TestStorageFaultsAreNotDomainErrors(t *testing.T) {
	boom := errors.New("connection reset")
	svc := NewService(failingStore{Store: memstore.New(), err: boom})
	ctx := context.Background()

	_, err := svc.GetMatch(ctx, 1)
	if !errors.Is(err, ErrStorage) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
	if _, ok := KindOf(err); ok {
		t.Fatalf("storage fault must not carry a domain kind")
	}
	_, err = svc.RecordRound(ctx, 1, "ROCK", "ROCK")
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error from record, got %v", err)
	}

	canceled := NewService(failingStore{Store: memstore.New(), err: context.Canceled})
	if _, err := canceled.GetMatch(ctx, 1); !errors.Is(err, context.Canceled) || errors.Is(err, ErrStorage) {
		t.Fatalf("context errors pass through unchanged, got %v", err)
	}
}
