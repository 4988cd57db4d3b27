package httpapi

import (
	"github.com/park285/rpsmatch/internal/domain"
	"github.com/park285/rpsmatch/pkg/rpsdto"
)

func toPlayer(p *domain.Player) rpsdto.Player {
	return rpsdto.Player{ID: p.ID, Handle: p.Handle, RegisteredAt: p.RegisteredAt}
}

func toPlayers(ps []*domain.Player) []rpsdto.Player {
	out := make([]rpsdto.Player, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPlayer(p))
	}
	return out
}

func toMatch(m *domain.Match) rpsdto.Match {
	return rpsdto.Match{
		ID:                m.ID,
		PlayerAID:         m.PlayerAID,
		PlayerBID:         m.PlayerBID,
		StartedAt:         m.StartedAt,
		EndedAt:           m.EndedAt,
		State:             string(m.State),
		WinnerID:          m.WinnerID,
		LoserID:           m.LoserID,
		IsRematch:         m.IsRematch,
		OriginMatchID:     m.OriginMatchID,
		RematchAccepted:   m.RematchAccepted,
		RematchAcceptedAt: m.RematchAcceptedAt,
	}
}

func toMatches(ms []*domain.Match) []rpsdto.Match {
	out := make([]rpsdto.Match, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMatch(m))
	}
	return out
}

func toRound(r *domain.Round) rpsdto.Round {
	return rpsdto.Round{
		ID:        r.ID,
		MatchID:   r.MatchID,
		Number:    r.Number,
		MoveA:     string(r.MoveA),
		MoveB:     string(r.MoveB),
		Outcome:   string(r.Outcome),
		WinnerID:  r.WinnerID,
		LoserID:   r.LoserID,
		CreatedAt: r.CreatedAt,
	}
}

func toRounds(rs []*domain.Round) []rpsdto.Round {
	out := make([]rpsdto.Round, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRound(r))
	}
	return out
}

func toMatchFull(f *domain.MatchFull) rpsdto.MatchFull {
	out := rpsdto.MatchFull{
		Match:     toMatch(f.Match),
		Rounds:    toRounds(f.Rounds),
		Rematches: toMatches(f.Rematches),
	}
	if f.PlayerA != nil {
		p := toPlayer(f.PlayerA)
		out.PlayerA = &p
	}
	if f.PlayerB != nil {
		p := toPlayer(f.PlayerB)
		out.PlayerB = &p
	}
	if f.Origin != nil {
		o := toMatch(f.Origin)
		out.Origin = &o
	}
	return out
}

func toStatus(s *domain.MatchStatus) rpsdto.MatchStatus {
	return rpsdto.MatchStatus{
		MatchID:      s.MatchID,
		State:        string(s.State),
		WinsA:        s.WinsA,
		WinsB:        s.WinsB,
		Draws:        s.Draws,
		RoundsPlayed: s.RoundsPlayed,
		WinnerID:     s.WinnerID,
		LoserID:      s.LoserID,
	}
}

func toPlayerStats(s *domain.PlayerStats) rpsdto.PlayerStats {
	return rpsdto.PlayerStats{
		PlayerID:      s.PlayerID,
		MatchesPlayed: s.MatchesPlayed,
		MatchesWon:    s.MatchesWon,
		MatchesLost:   s.MatchesLost,
		WinPercentage: s.WinPercentage,
		RoundsWon:     s.RoundsWon,
		RoundsLost:    s.RoundsLost,
		RoundsDrawn:   s.RoundsDrawn,
	}
}

func toMoveStats(s *domain.MoveStats) rpsdto.MoveStats {
	out := rpsdto.MoveStats{PlayerID: s.PlayerID, Counts: make(map[string]int, len(s.Counts))}
	for mv, n := range s.Counts {
		out.Counts[string(mv)] = n
	}
	if s.Favorite != nil {
		out.Favorite = string(*s.Favorite)
	}
	return out
}
