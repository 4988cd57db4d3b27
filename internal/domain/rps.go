package domain

import "time"

// MatchState is the lifecycle state of a match. The only transition is
// IN_PROGRESS -> FINISHED.
type MatchState string

const (
	MatchInProgress MatchState = "IN_PROGRESS"
	MatchFinished   MatchState = "FINISHED"
)

// Move is one of the three hand symbols.
type Move string

const (
	Rock     Move = "ROCK"
	Paper    Move = "PAPER"
	Scissors Move = "SCISSORS"
)

// Moves lists the symbols in their canonical order.
var Moves = []Move{Rock, Paper, Scissors}

// Outcome is the result of a single round.
type Outcome string

const (
	Draw        Outcome = "DRAW"
	PlayerAWins Outcome = "PLAYER_A_WINS"
	PlayerBWins Outcome = "PLAYER_B_WINS"
)

type Player struct {
	ID           int64     `json:"id"`
	Handle       string    `json:"handle"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Match is a first-to-two-round-wins contest between two distinct players.
// Related entities are referenced by id only.
type Match struct {
	ID        int64      `json:"id"`
	PlayerAID int64      `json:"player_a_id"`
	PlayerBID int64      `json:"player_b_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	State     MatchState `json:"state"`
	WinnerID  *int64     `json:"winner_id,omitempty"`
	LoserID   *int64     `json:"loser_id,omitempty"`

	IsRematch     bool   `json:"is_rematch"`
	OriginMatchID *int64 `json:"origin_match_id,omitempty"`
	// RematchAccepted is nil while the rematch is outstanding.
	RematchAccepted   *bool      `json:"rematch_accepted,omitempty"`
	RematchAcceptedAt *time.Time `json:"rematch_accepted_at,omitempty"`
}

// HasPlayer reports whether id is one of the two participants.
func (m *Match) HasPlayer(id int64) bool {
	return m != nil && (m.PlayerAID == id || m.PlayerBID == id)
}

// References reports whether the match names the player in any role.
func (m *Match) References(playerID int64) bool {
	if m == nil {
		return false
	}
	if m.HasPlayer(playerID) {
		return true
	}
	return (m.WinnerID != nil && *m.WinnerID == playerID) || (m.LoserID != nil && *m.LoserID == playerID)
}

// Outstanding reports whether m is a rematch still waiting for a response.
func (m *Match) Outstanding() bool {
	return m != nil && m.IsRematch && m.RematchAccepted == nil
}

// Clone returns a deep copy so callers never share pointer fields.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.EndedAt = cloneTime(m.EndedAt)
	c.WinnerID = cloneID(m.WinnerID)
	c.LoserID = cloneID(m.LoserID)
	c.OriginMatchID = cloneID(m.OriginMatchID)
	c.RematchAcceptedAt = cloneTime(m.RematchAcceptedAt)
	if m.RematchAccepted != nil {
		v := *m.RematchAccepted
		c.RematchAccepted = &v
	}
	return &c
}

// Round is one resolved exchange of moves. Rounds are immutable once stored.
type Round struct {
	ID        int64     `json:"id"`
	MatchID   int64     `json:"match_id"`
	Number    int       `json:"number"`
	MoveA     Move      `json:"move_a"`
	MoveB     Move      `json:"move_b"`
	Outcome   Outcome   `json:"outcome"`
	WinnerID  *int64    `json:"winner_id,omitempty"`
	LoserID   *int64    `json:"loser_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Round) Clone() *Round {
	if r == nil {
		return nil
	}
	c := *r
	c.WinnerID = cloneID(r.WinnerID)
	c.LoserID = cloneID(r.LoserID)
	return &c
}

// MatchFull is a match with its related records resolved by id.
type MatchFull struct {
	Match     *Match   `json:"match"`
	PlayerA   *Player  `json:"player_a"`
	PlayerB   *Player  `json:"player_b"`
	Rounds    []*Round `json:"rounds"`
	Origin    *Match   `json:"origin,omitempty"`
	Rematches []*Match `json:"rematches"`
}

// MatchStatus is the scoring view of a match derived from its rounds.
type MatchStatus struct {
	MatchID      int64      `json:"match_id"`
	State        MatchState `json:"state"`
	WinsA        int        `json:"wins_a"`
	WinsB        int        `json:"wins_b"`
	Draws        int        `json:"draws"`
	RoundsPlayed int        `json:"rounds_played"`
	WinnerID     *int64     `json:"winner_id,omitempty"`
	LoserID      *int64     `json:"loser_id,omitempty"`
}

type PlayerStats struct {
	PlayerID      int64   `json:"player_id"`
	MatchesPlayed int     `json:"matches_played"`
	MatchesWon    int     `json:"matches_won"`
	MatchesLost   int     `json:"matches_lost"`
	WinPercentage float64 `json:"win_percentage"`
	RoundsWon     int     `json:"rounds_won"`
	RoundsLost    int     `json:"rounds_lost"`
	RoundsDrawn   int     `json:"rounds_drawn"`
}

type MoveStats struct {
	PlayerID int64        `json:"player_id"`
	Counts   map[Move]int `json:"counts"`
	Favorite *Move        `json:"favorite,omitempty"`
}

// ID returns a pointer to a copy of id, for optional foreign keys.
func ID(id int64) *int64 { return &id }

func cloneID(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
