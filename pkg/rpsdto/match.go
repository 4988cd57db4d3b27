// Package rpsdto holds the JSON wire types of the match API.
package rpsdto

import "time"

type Player struct {
	ID           int64     `json:"id"`
	Handle       string    `json:"handle"`
	RegisteredAt time.Time `json:"registered_at"`
}

type Match struct {
	ID                int64      `json:"id"`
	PlayerAID         int64      `json:"player_a_id"`
	PlayerBID         int64      `json:"player_b_id"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	State             string     `json:"state"`
	WinnerID          *int64     `json:"winner_id,omitempty"`
	LoserID           *int64     `json:"loser_id,omitempty"`
	IsRematch         bool       `json:"is_rematch"`
	OriginMatchID     *int64     `json:"origin_match_id,omitempty"`
	RematchAccepted   *bool      `json:"rematch_accepted,omitempty"`
	RematchAcceptedAt *time.Time `json:"rematch_accepted_at,omitempty"`
}

type Round struct {
	ID        int64     `json:"id"`
	MatchID   int64     `json:"match_id"`
	Number    int       `json:"number"`
	MoveA     string    `json:"move_a"`
	MoveB     string    `json:"move_b"`
	Outcome   string    `json:"outcome"`
	WinnerID  *int64    `json:"winner_id,omitempty"`
	LoserID   *int64    `json:"loser_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type MatchFull struct {
	Match     Match   `json:"match"`
	PlayerA   *Player `json:"player_a,omitempty"`
	PlayerB   *Player `json:"player_b,omitempty"`
	Rounds    []Round `json:"rounds"`
	Origin    *Match  `json:"origin,omitempty"`
	Rematches []Match `json:"rematches"`
}

type MatchStatus struct {
	MatchID      int64  `json:"match_id"`
	State        string `json:"state"`
	WinsA        int    `json:"wins_a"`
	WinsB        int    `json:"wins_b"`
	Draws        int    `json:"draws"`
	RoundsPlayed int    `json:"rounds_played"`
	WinnerID     *int64 `json:"winner_id,omitempty"`
	LoserID      *int64 `json:"loser_id,omitempty"`
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
	PlayerID int64          `json:"player_id"`
	Counts   map[string]int `json:"counts"`
	Favorite string         `json:"favorite,omitempty"`
}

type Health struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}
