package rpsdto

type RegisterPlayerRequest struct {
	Handle string `json:"handle"`
}

type CreateMatchRequest struct {
	PlayerAID int64 `json:"player_a_id"`
	PlayerBID int64 `json:"player_b_id"`
}

// RecordRoundRequest carries both moves as ROCK, PAPER or SCISSORS (any case).
type RecordRoundRequest struct {
	MoveA string `json:"move_a"`
	MoveB string `json:"move_b"`
}
