// Package storetest holds the behaviour every store backend must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/rpsmatch/internal/domain"
	"github.com/park285/rpsmatch/internal/store"
)

// Factory returns an empty store. The test owns cleanup via t.Cleanup.
type Factory func(t *testing.T) store.Store

// Run exercises s against the store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("Players", func(t *testing.T) { testPlayers(t, newStore(t)) })
	t.Run("MatchLifecycle", func(t *testing.T) { testMatchLifecycle(t, newStore(t)) })
	t.Run("ReferentialIntegrity", func(t *testing.T) { testReferentialIntegrity(t, newStore(t)) })
	t.Run("UpdateDiscardsOnError", func(t *testing.T) { testUpdateDiscardsOnError(t, newStore(t)) })
	t.Run("ConcurrentAppend", func(t *testing.T) { testConcurrentAppend(t, newStore(t)) })
	t.Run("ConcurrentInsertOnce", func(t *testing.T) { testConcurrentInsertOnce(t, newStore(t)) })
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func mustPlayer(t *testing.T, s store.Store, handle string) *domain.Player {
	t.Helper()
	p, err := s.CreatePlayer(context.Background(), handle, epoch)
	if err != nil {
		t.Fatalf("create player %q: %v", handle, err)
	}
	return p
}

func mustMatch(t *testing.T, s store.Store, a, b int64) *domain.Match {
	t.Helper()
	m := &domain.Match{PlayerAID: a, PlayerBID: b, StartedAt: epoch, State: domain.MatchInProgress}
	if err := s.CreateMatch(context.Background(), m); err != nil {
		t.Fatalf("create match: %v", err)
	}
	if m.ID == 0 {
		t.Fatalf("expected match id to be assigned")
	}
	return m
}

func testPlayers(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mustPlayer(t, s, "Alice")
	if _, err := s.CreatePlayer(ctx, "alice", epoch); !errors.Is(err, store.ErrDuplicateHandle) {
		t.Fatalf("expected ErrDuplicateHandle, got %v", err)
	}
	got, err := s.GetPlayerByHandle(ctx, "ALICE")
	if err != nil || got == nil || got.ID != alice.ID {
		t.Fatalf("lookup by folded handle: %+v %v", got, err)
	}
	if got.Handle != "Alice" {
		t.Fatalf("expected stored handle to keep its case, got %q", got.Handle)
	}
	if p, err := s.GetPlayer(ctx, alice.ID+100); err != nil || p != nil {
		t.Fatalf("expected nil for unknown player, got %+v %v", p, err)
	}
	mustPlayer(t, s, "bob")
	list, err := s.ListPlayers(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("list players: %d %v", len(list), err)
	}
	ok, err := s.DeletePlayer(ctx, alice.ID)
	if err != nil || !ok {
		t.Fatalf("delete player: %v %v", ok, err)
	}
	if ok, _ := s.DeletePlayer(ctx, alice.ID); ok {
		t.Fatalf("second delete should report absent")
	}
	// Handle is free again.
	mustPlayer(t, s, "alice")
}

func testMatchLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustPlayer(t, s, "a")
	b := mustPlayer(t, s, "b")
	m := mustMatch(t, s, a.ID, b.ID)

	err := s.Update(ctx, m.ID, func(tx store.Tx) error {
		if tx.Match() == nil {
			t.Fatalf("expected match inside update")
		}
		for i := 1; i <= 2; i++ {
			tx.AppendRound(&domain.Round{Number: i, MoveA: domain.Rock, MoveB: domain.Scissors, Outcome: domain.PlayerAWins,
				WinnerID: domain.ID(a.ID), LoserID: domain.ID(b.ID), CreatedAt: epoch})
		}
		done := tx.Match().Clone()
		done.State = domain.MatchFinished
		done.WinnerID = domain.ID(a.ID)
		done.LoserID = domain.ID(b.ID)
		ended := epoch.Add(time.Minute)
		done.EndedAt = &ended
		tx.SaveMatch(done)
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	rounds, err := s.ListRounds(ctx, m.ID)
	if err != nil || len(rounds) != 2 {
		t.Fatalf("rounds: %d %v", len(rounds), err)
	}
	for i, r := range rounds {
		if r.Number != i+1 || r.MatchID != m.ID || r.ID == 0 {
			t.Fatalf("round %d malformed: %+v", i, r)
		}
	}
	got, err := s.GetMatch(ctx, m.ID)
	if err != nil || got == nil {
		t.Fatalf("get match: %v", err)
	}
	if got.State != domain.MatchFinished || got.WinnerID == nil || *got.WinnerID != a.ID || got.EndedAt == nil {
		t.Fatalf("match not finalized: %+v", got)
	}

	var rematch *domain.Match
	err = s.Update(ctx, m.ID, func(tx store.Tx) error {
		rematch = &domain.Match{PlayerAID: a.ID, PlayerBID: b.ID, StartedAt: epoch.Add(time.Hour),
			State: domain.MatchInProgress, IsRematch: true, OriginMatchID: domain.ID(m.ID)}
		tx.InsertMatch(rematch)
		return nil
	})
	if err != nil || rematch.ID == 0 {
		t.Fatalf("insert rematch: %v id=%d", err, rematch.ID)
	}
	err = s.Update(ctx, m.ID, func(tx store.Tx) error {
		if len(tx.Rematches()) != 1 || tx.Rematches()[0].ID != rematch.ID {
			t.Fatalf("expected rematch visible in tx, got %+v", tx.Rematches())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read rematches: %v", err)
	}

	finished, _ := s.ListMatches(ctx, store.MatchFilter{State: domain.MatchFinished})
	if len(finished) != 1 || finished[0].ID != m.ID {
		t.Fatalf("state filter: %+v", finished)
	}
	all, _ := s.ListMatches(ctx, store.MatchFilter{PlayerID: b.ID})
	if len(all) != 2 || all[0].ID != rematch.ID {
		t.Fatalf("expected newest first for player filter, got %+v", all)
	}
	if m2, err := s.GetMatch(ctx, 9999); err != nil || m2 != nil {
		t.Fatalf("expected nil for unknown match, got %+v %v", m2, err)
	}
}

func testReferentialIntegrity(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustPlayer(t, s, "a")
	b := mustPlayer(t, s, "b")

	bad := &domain.Match{PlayerAID: a.ID, PlayerBID: b.ID + 50, StartedAt: epoch, State: domain.MatchInProgress}
	if err := s.CreateMatch(ctx, bad); !errors.Is(err, store.ErrPlayerMissing) {
		t.Fatalf("expected ErrPlayerMissing, got %v", err)
	}

	m := mustMatch(t, s, a.ID, b.ID)
	if _, err := s.DeletePlayer(ctx, b.ID); !errors.Is(err, store.ErrPlayerReferenced) {
		t.Fatalf("expected ErrPlayerReferenced, got %v", err)
	}

	var rematch *domain.Match
	if err := s.Update(ctx, m.ID, func(tx store.Tx) error {
		rematch = &domain.Match{PlayerAID: a.ID, PlayerBID: b.ID, StartedAt: epoch, State: domain.MatchInProgress,
			IsRematch: true, OriginMatchID: domain.ID(m.ID)}
		tx.InsertMatch(rematch)
		return nil
	}); err != nil {
		t.Fatalf("insert rematch: %v", err)
	}
	if _, err := s.DeleteMatch(ctx, m.ID); !errors.Is(err, store.ErrMatchReferenced) {
		t.Fatalf("expected ErrMatchReferenced, got %v", err)
	}
	if ok, err := s.DeleteMatch(ctx, rematch.ID); err != nil || !ok {
		t.Fatalf("delete rematch: %v %v", ok, err)
	}
	if err := s.Update(ctx, m.ID, func(tx store.Tx) error {
		tx.AppendRound(&domain.Round{Number: 1, MoveA: domain.Rock, MoveB: domain.Rock, Outcome: domain.Draw, CreatedAt: epoch})
		return nil
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if ok, err := s.DeleteMatch(ctx, m.ID); err != nil || !ok {
		t.Fatalf("delete origin: %v %v", ok, err)
	}
	if rounds, _ := s.ListRounds(ctx, m.ID); len(rounds) != 0 {
		t.Fatalf("expected rounds to cascade, got %d", len(rounds))
	}
	if ok, err := s.DeletePlayer(ctx, b.ID); err != nil || !ok {
		t.Fatalf("player should be deletable once unreferenced: %v %v", ok, err)
	}
}

func testUpdateDiscardsOnError(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustPlayer(t, s, "a")
	b := mustPlayer(t, s, "b")
	m := mustMatch(t, s, a.ID, b.ID)

	boom := errors.New("boom")
	err := s.Update(ctx, m.ID, func(tx store.Tx) error {
		tx.AppendRound(&domain.Round{Number: 1, MoveA: domain.Rock, MoveB: domain.Paper, Outcome: domain.PlayerBWins, CreatedAt: epoch})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if rounds, _ := s.ListRounds(ctx, m.ID); len(rounds) != 0 {
		t.Fatalf("staged round leaked: %d", len(rounds))
	}

	err = s.Update(ctx, m.ID+1000, func(tx store.Tx) error {
		if tx.Match() != nil {
			t.Fatalf("expected nil match for unknown id")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update of unknown match with no writes: %v", err)
	}
}

func testConcurrentAppend(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustPlayer(t, s, "a")
	b := mustPlayer(t, s, "b")
	m := mustMatch(t, s, a.ID, b.ID)

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Update(ctx, m.ID, func(tx store.Tx) error {
				tx.AppendRound(&domain.Round{Number: len(tx.Rounds()) + 1, MoveA: domain.Rock, MoveB: domain.Rock,
					Outcome: domain.Draw, CreatedAt: epoch})
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent update: %v", err)
		}
	}
	rounds, err := s.ListRounds(ctx, m.ID)
	if err != nil || len(rounds) != writers {
		t.Fatalf("expected %d rounds, got %d (%v)", writers, len(rounds), err)
	}
	for i, r := range rounds {
		if r.Number != i+1 {
			t.Fatalf("gap or duplicate at %d: number=%d", i, r.Number)
		}
	}
}

// Concurrent updates that insert only when no linked match exists must
// commit exactly one insert.
func testConcurrentInsertOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustPlayer(t, s, "a")
	b := mustPlayer(t, s, "b")
	origin := mustMatch(t, s, a.ID, b.ID)
	end := epoch.Add(time.Minute)
	err := s.Update(ctx, origin.ID, func(tx store.Tx) error {
		m := tx.Match().Clone()
		m.State, m.EndedAt = domain.MatchFinished, &end
		m.WinnerID, m.LoserID = domain.ID(a.ID), domain.ID(b.ID)
		tx.SaveMatch(m)
		return nil
	})
	if err != nil {
		t.Fatalf("finish origin: %v", err)
	}

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Update(ctx, origin.ID, func(tx store.Tx) error {
				if len(tx.Rematches()) > 0 {
					return nil
				}
				tx.InsertMatch(&domain.Match{PlayerAID: a.ID, PlayerBID: b.ID, StartedAt: end,
					State: domain.MatchInProgress, IsRematch: true, OriginMatchID: domain.ID(origin.ID)})
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent insert: %v", err)
		}
	}
	rematches, err := s.ListMatches(ctx, store.MatchFilter{OriginID: origin.ID})
	if err != nil || len(rematches) != 1 {
		t.Fatalf("expected exactly 1 linked match, got %d (%v)", len(rematches), err)
	}
}
