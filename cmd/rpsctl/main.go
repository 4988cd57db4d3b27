package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/park285/rpsmatch/internal/apiclient"
	"github.com/park285/rpsmatch/internal/msgcat"
	"github.com/park285/rpsmatch/pkg/rpsdto"
)

const usage = `usage: rpsctl <command>
  health
  player add <handle>
  player list
  player stats <id>
  match new <playerA> <playerB>
  match show <id>
  match list [IN_PROGRESS|FINISHED]
  round <match> <moveA> <moveB>
  rematch <match>`

var errUsage = errors.New(usage)

func main() {
	baseURL := strings.TrimSpace(os.Getenv("RPS_API_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	cat, err := msgcat.New(os.Getenv("MESSAGES_DIR"))
	if err != nil {
		log.Fatalf("message catalog: %v", err)
	}
	client := apiclient.New(baseURL, apiclient.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	c := &cli{api: client, cat: cat, out: os.Stdout, baseURL: baseURL}
	if err := c.run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

type cli struct {
	api     *apiclient.Client
	cat     *msgcat.Catalog
	out     io.Writer
	baseURL string
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch strings.ToLower(args[0]) {
	case "health":
		h, err := c.api.Health(ctx)
		if err != nil {
			c.say("cli.health_fail", map[string]any{"url": c.baseURL, "error": err.Error()}, "unreachable: "+err.Error())
			return err
		}
		c.say("cli.health_ok", map[string]any{"url": c.baseURL, "backend": h.Backend}, "ok")
		return nil
	case "player":
		return c.player(ctx, args[1:])
	case "match":
		return c.match(ctx, args[1:])
	case "round":
		if len(args) != 4 {
			return errUsage
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		r, err := c.api.RecordRound(ctx, id, args[2], args[3])
		if err != nil {
			return err
		}
		c.printRound(*r)
		st, err := c.api.MatchStatus(ctx, id)
		if err != nil {
			return err
		}
		c.printStatus(*st)
		return nil
	case "rematch":
		if len(args) != 2 {
			return errUsage
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		m, err := c.api.CreateRematch(ctx, id)
		if err != nil {
			return err
		}
		c.printMatch(*m)
		return nil
	default:
		return errUsage
	}
}

func (c *cli) player(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "add":
		if len(args) != 2 {
			return errUsage
		}
		p, err := c.api.RegisterPlayer(ctx, args[1])
		if err != nil {
			return err
		}
		c.printPlayer(*p)
	case "list":
		ps, err := c.api.ListPlayers(ctx)
		if err != nil {
			return err
		}
		for _, p := range ps {
			c.printPlayer(p)
		}
	case "stats":
		if len(args) != 2 {
			return errUsage
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		st, err := c.api.PlayerStats(ctx, id)
		if err != nil {
			return err
		}
		c.say("cli.stats", map[string]any{
			"player_id":      st.PlayerID,
			"matches_played": st.MatchesPlayed,
			"matches_won":    st.MatchesWon,
			"win_percentage": st.WinPercentage,
			"rounds_won":     st.RoundsWon,
			"rounds_lost":    st.RoundsLost,
			"rounds_drawn":   st.RoundsDrawn,
		}, fmt.Sprintf("%+v", *st))
	default:
		return errUsage
	}
	return nil
}

func (c *cli) match(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "new":
		if len(args) != 3 {
			return errUsage
		}
		a, err := parseID(args[1])
		if err != nil {
			return err
		}
		b, err := parseID(args[2])
		if err != nil {
			return err
		}
		m, err := c.api.CreateMatch(ctx, a, b)
		if err != nil {
			return err
		}
		c.printMatch(*m)
	case "show":
		if len(args) != 2 {
			return errUsage
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		full, err := c.api.MatchFull(ctx, id)
		if err != nil {
			return err
		}
		c.printMatch(full.Match)
		for _, r := range full.Rounds {
			c.printRound(r)
		}
		for _, m := range full.Rematches {
			c.printMatch(m)
		}
	case "list":
		state := ""
		if len(args) > 1 {
			state = strings.ToUpper(args[1])
		}
		ms, err := c.api.ListMatches(ctx, state, 0)
		if err != nil {
			return err
		}
		for _, m := range ms {
			c.printMatch(m)
		}
	default:
		return errUsage
	}
	return nil
}

func (c *cli) say(key string, data map[string]any, fallback string) {
	fmt.Fprintln(c.out, c.cat.Text(key, data, fallback))
}

func (c *cli) printPlayer(p rpsdto.Player) {
	c.say("cli.player", map[string]any{
		"id":            p.ID,
		"handle":        p.Handle,
		"registered_at": p.RegisteredAt.Format(time.RFC3339),
	}, p.Handle)
}

func (c *cli) printMatch(m rpsdto.Match) {
	var winner any
	if m.WinnerID != nil {
		winner = *m.WinnerID
	}
	c.say("cli.match", map[string]any{
		"id":          m.ID,
		"player_a_id": m.PlayerAID,
		"player_b_id": m.PlayerBID,
		"state":       m.State,
		"winner_id":   winner,
	}, fmt.Sprintf("match %d", m.ID))
}

func (c *cli) printRound(r rpsdto.Round) {
	c.say("cli.round", map[string]any{
		"number":  r.Number,
		"move_a":  r.MoveA,
		"move_b":  r.MoveB,
		"outcome": r.Outcome,
	}, fmt.Sprintf("round %d", r.Number))
}

func (c *cli) printStatus(st rpsdto.MatchStatus) {
	c.say("cli.status", map[string]any{
		"match_id":      st.MatchID,
		"state":         st.State,
		"wins_a":        st.WinsA,
		"wins_b":        st.WinsB,
		"draws":         st.Draws,
		"rounds_played": st.RoundsPlayed,
	}, st.State)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
