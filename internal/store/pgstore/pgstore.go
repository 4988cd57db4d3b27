// Package pgstore persists players, matches and rounds in PostgreSQL. A
// match row is locked with SELECT ... FOR UPDATE for the duration of Update.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/park285/rpsmatch/internal/domain"
	"github.com/park285/rpsmatch/internal/store"
)

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const (
	playerCols = `id, handle, registered_at`
	matchCols  = `id, player_a_id, player_b_id, started_at, ended_at, state, winner_id, loser_id,
		is_rematch, origin_match_id, rematch_accepted, rematch_accepted_at`
	roundCols = `id, match_id, number, move_a, move_b, outcome, winner_id, loser_id, created_at`
)

type scanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) CreatePlayer(ctx context.Context, handle string, registeredAt time.Time) (*domain.Player, error) {
	handle = strings.TrimSpace(handle)
	p := &domain.Player{Handle: handle, RegisteredAt: registeredAt}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO players (handle, handle_key, registered_at) VALUES ($1, $2, $3) RETURNING id`,
		handle, store.HandleKey(handle), registeredAt,
	).Scan(&p.ID)
	if isViolation(err, "unique_violation") {
		return nil, store.ErrDuplicateHandle
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) GetPlayer(ctx context.Context, id int64) (*domain.Player, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+playerCols+` FROM players WHERE id = $1`, id)
	return scanPlayer(row)
}

func (s *Store) GetPlayerByHandle(ctx context.Context, handle string) (*domain.Player, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+playerCols+` FROM players WHERE handle_key = $1`, store.HandleKey(handle))
	return scanPlayer(row)
}

func (s *Store) ListPlayers(ctx context.Context) ([]*domain.Player, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+playerCols+` FROM players ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Player, 0)
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) DeletePlayer(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM players WHERE id = $1`, id)
	if isViolation(err, "foreign_key_violation") {
		return false, store.ErrPlayerReferenced
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) CreateMatch(ctx context.Context, m *domain.Match) error {
	return insertMatch(ctx, s.db, m)
}

func insertMatch(ctx context.Context, q queryer, m *domain.Match) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO matches (player_a_id, player_b_id, started_at, ended_at, state, winner_id, loser_id,
			is_rematch, origin_match_id, rematch_accepted, rematch_accepted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		m.PlayerAID, m.PlayerBID, m.StartedAt, m.EndedAt, string(m.State), m.WinnerID, m.LoserID,
		m.IsRematch, m.OriginMatchID, m.RematchAccepted, m.RematchAcceptedAt,
	).Scan(&m.ID)
	if isViolation(err, "foreign_key_violation") {
		return store.ErrPlayerMissing
	}
	return err
}

func (s *Store) GetMatch(ctx context.Context, id int64) (*domain.Match, error) {
	return getMatch(ctx, s.db, id, false)
}

func getMatch(ctx context.Context, q queryer, id int64, forUpdate bool) (*domain.Match, error) {
	query := `SELECT ` + matchCols + ` FROM matches WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanMatch(q.QueryRowContext(ctx, query, id))
}

func (s *Store) ListMatches(ctx context.Context, f store.MatchFilter) ([]*domain.Match, error) {
	return listMatches(ctx, s.db, f)
}

// matchQuery builds the filtered listing query and its arguments.
func matchQuery(f store.MatchFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.State != "" {
		args = append(args, string(f.State))
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}
	if f.PlayerID != 0 {
		args = append(args, f.PlayerID)
		where = append(where, fmt.Sprintf("(player_a_id = $%d OR player_b_id = $%d)", len(args), len(args)))
	}
	if f.OriginID != 0 {
		args = append(args, f.OriginID)
		where = append(where, fmt.Sprintf("origin_match_id = $%d", len(args)))
	}
	q := `SELECT ` + matchCols + ` FROM matches`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at DESC, id DESC`
	return q, args
}

func listMatches(ctx context.Context, q queryer, f store.MatchFilter) ([]*domain.Match, error) {
	query, args := matchQuery(f)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Match, 0)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) DeleteMatch(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM matches WHERE id = $1`, id)
	if isViolation(err, "foreign_key_violation") {
		return false, store.ErrMatchReferenced
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) ListRounds(ctx context.Context, matchID int64) ([]*domain.Round, error) {
	return listRounds(ctx, s.db, matchID)
}

func listRounds(ctx context.Context, q queryer, matchID int64) ([]*domain.Round, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+roundCols+` FROM rounds WHERE match_id = $1 ORDER BY number`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Round, 0)
	for rows.Next() {
		var (
			r        domain.Round
			moveA    string
			moveB    string
			outcome  string
			winnerID sql.NullInt64
			loserID  sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.MatchID, &r.Number, &moveA, &moveB, &outcome, &winnerID, &loserID, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.MoveA, r.MoveB, r.Outcome = domain.Move(moveA), domain.Move(moveB), domain.Outcome(outcome)
		r.WinnerID, r.LoserID = nullID(winnerID), nullID(loserID)
		out = append(out, &r)
	}
	return out, rows.Err()
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

func (s *Store) Update(ctx context.Context, matchID int64, fn func(store.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	m, err := getMatch(ctx, sqlTx, matchID, true)
	if err != nil {
		return err
	}
	t := &tx{match: m}
	if m != nil {
		if t.rounds, err = listRounds(ctx, sqlTx, matchID); err != nil {
			return err
		}
		if t.rematches, err = listMatches(ctx, sqlTx, store.MatchFilter{OriginID: matchID}); err != nil {
			return err
		}
	}
	if err = fn(t); err != nil {
		return err
	}
	if t.Empty() {
		return sqlTx.Commit()
	}
	if m == nil && (t.Saved != nil || len(t.NewRounds) > 0) {
		return store.ErrNotFound
	}
	if err = t.CheckRounds(len(t.rounds)); err != nil {
		return err
	}

	for _, r := range t.NewRounds {
		r.MatchID = matchID
		err = sqlTx.QueryRowContext(ctx,
			`INSERT INTO rounds (match_id, number, move_a, move_b, outcome, winner_id, loser_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			matchID, r.Number, string(r.MoveA), string(r.MoveB), string(r.Outcome), r.WinnerID, r.LoserID, r.CreatedAt,
		).Scan(&r.ID)
		if isViolation(err, "unique_violation") {
			err = store.ErrRoundConflict
		}
		if err != nil {
			return err
		}
	}
	if t.Saved != nil {
		sm := t.Saved
		_, err = sqlTx.ExecContext(ctx,
			`UPDATE matches SET ended_at = $2, state = $3, winner_id = $4, loser_id = $5,
				rematch_accepted = $6, rematch_accepted_at = $7
			 WHERE id = $1`,
			matchID, sm.EndedAt, string(sm.State), sm.WinnerID, sm.LoserID, sm.RematchAccepted, sm.RematchAcceptedAt,
		)
		if err != nil {
			return err
		}
	}
	for _, im := range t.Inserted {
		if err = insertMatch(ctx, sqlTx, im); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

func scanPlayer(row scanner) (*domain.Player, error) {
	var p domain.Player
	err := row.Scan(&p.ID, &p.Handle, &p.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanMatch(row scanner) (*domain.Match, error) {
	var (
		m                 domain.Match
		state             string
		endedAt           sql.NullTime
		winnerID, loserID sql.NullInt64
		originID          sql.NullInt64
		accepted          sql.NullBool
		acceptedAt        sql.NullTime
	)
	err := row.Scan(&m.ID, &m.PlayerAID, &m.PlayerBID, &m.StartedAt, &endedAt, &state, &winnerID, &loserID,
		&m.IsRematch, &originID, &accepted, &acceptedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.State = domain.MatchState(state)
	m.EndedAt = nullTime(endedAt)
	m.WinnerID, m.LoserID = nullID(winnerID), nullID(loserID)
	m.OriginMatchID = nullID(originID)
	m.RematchAcceptedAt = nullTime(acceptedAt)
	if accepted.Valid {
		v := accepted.Bool
		m.RematchAccepted = &v
	}
	return &m, nil
}

func nullID(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return domain.ID(n.Int64)
}

func nullTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

// isViolation reports whether err is a PostgreSQL error with the given
// condition name, e.g. "unique_violation".
func isViolation(err error, name string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == name
}
