package match

import (
	"context"
	"testing"

	"github.com/park285/rpsmatch/internal/domain"
)

func TestRegisterPlayer(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		if f.a.Handle != "alice" || f.a.RegisteredAt.IsZero() {
			t.Fatalf("unexpected player: %+v", f.a)
		}
		_, err := f.svc.RegisterPlayer(ctx, "   ")
		wantKind(t, err, KindValidation, CodeHandleRequired)

		_, err = f.svc.RegisterPlayer(ctx, " ALICE ")
		wantKind(t, err, KindConflict, CodeHandleTaken)

		p, err := f.svc.RegisterPlayer(ctx, "  Dana ")
		if err != nil || p.Handle != "Dana" {
			t.Fatalf("expected trimmed handle, got %+v %v", p, err)
		}
		byHandle, err := f.svc.GetPlayerByHandle(ctx, "dana")
		if err != nil || byHandle.ID != p.ID {
			t.Fatalf("by handle: %+v %v", byHandle, err)
		}
		_, err = f.svc.GetPlayerByHandle(ctx, "nobody")
		wantKind(t, err, KindNotFound, CodePlayerNotFound)

		list, _ := f.svc.ListPlayers(ctx)
		if len(list) != 3 || list[0].ID != f.a.ID {
			t.Fatalf("list players: %+v", list)
		}
	})
}

func TestDeletePlayer(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.newMatch(t)
		err := f.svc.DeletePlayer(ctx, f.b.ID)
		wantKind(t, err, KindConflict, CodePlayerReferenced)

		carol, _ := f.svc.RegisterPlayer(ctx, "carol")
		if err := f.svc.DeletePlayer(ctx, carol.ID); err != nil {
			t.Fatalf("delete unreferenced player: %v", err)
		}
		err = f.svc.DeletePlayer(ctx, carol.ID)
		wantKind(t, err, KindNotFound, CodePlayerNotFound)
		_, err = f.svc.GetPlayer(ctx, carol.ID)
		wantKind(t, err, KindNotFound, CodePlayerNotFound)
	})
}

func TestPlayerStats(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		empty, err := f.svc.PlayerStats(ctx, f.a.ID)
		if err != nil || empty.MatchesPlayed != 0 || empty.WinPercentage != 0 {
			t.Fatalf("empty stats: %+v %v", empty, err)
		}

		// alice wins one, bob wins one, one still open
		m1 := f.newMatch(t)
		f.play(t, m1.ID, [2]string{"ROCK", "ROCK"}, [2]string{"ROCK", "SCISSORS"}, [2]string{"PAPER", "ROCK"})
		m2 := f.newMatch(t)
		f.play(t, m2.ID, [2]string{"ROCK", "PAPER"}, [2]string{"SCISSORS", "SCISSORS"}, [2]string{"PAPER", "SCISSORS"})
		f.newMatch(t)

		st, err := f.svc.PlayerStats(ctx, f.a.ID)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		want := domain.PlayerStats{
			PlayerID: f.a.ID, MatchesPlayed: 3, MatchesWon: 1, MatchesLost: 1,
			WinPercentage: 33.33, RoundsWon: 2, RoundsLost: 2, RoundsDrawn: 2,
		}
		if *st != want {
			t.Fatalf("stats mismatch:\n got %+v\nwant %+v", *st, want)
		}

		_, err = f.svc.PlayerStats(ctx, 999)
		wantKind(t, err, KindNotFound, CodePlayerNotFound)
	})
}

func TestWinPercentage(t *testing.T) {
	cases := []struct {
		won, played int
		want        float64
	}{
		{0, 0, 0},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{1, 1, 100},
		{1, 8, 12.5},
	}
	for _, tc := range cases {
		if got := winPercentage(tc.won, tc.played); got != tc.want {
			t.Fatalf("winPercentage(%d,%d)=%v want %v", tc.won, tc.played, got, tc.want)
		}
	}
}

func TestMoveStats(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		st, err := f.svc.MoveStats(ctx, f.b.ID)
		if err != nil || st.Favorite != nil || st.Counts[domain.Rock] != 0 {
			t.Fatalf("empty move stats: %+v %v", st, err)
		}

		m := f.newMatch(t)
		f.play(t, m.ID,
			[2]string{"ROCK", "PAPER"},
			[2]string{"ROCK", "SCISSORS"},
			[2]string{"SCISSORS", "SCISSORS"},
			[2]string{"PAPER", "PAPER"},
		)
		// bob played PAPER twice and SCISSORS twice: tie resolves to PAPER
		st, err = f.svc.MoveStats(ctx, f.b.ID)
		if err != nil {
			t.Fatalf("move stats: %v", err)
		}
		if st.Counts[domain.Paper] != 2 || st.Counts[domain.Scissors] != 2 || st.Counts[domain.Rock] != 0 {
			t.Fatalf("unexpected counts: %+v", st.Counts)
		}
		if st.Favorite == nil || *st.Favorite != domain.Paper {
			t.Fatalf("expected PAPER favorite, got %v", st.Favorite)
		}

		won, err := f.svc.ListRoundsWonBy(ctx, f.b.ID)
		if err != nil || len(won) != 1 || won[0].Number != 1 {
			t.Fatalf("rounds won by bob: %+v %v", won, err)
		}
	})
}
