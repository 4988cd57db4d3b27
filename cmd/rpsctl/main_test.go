package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/rpsmatch/internal/apiclient"
	"github.com/park285/rpsmatch/internal/httpapi"
	"github.com/park285/rpsmatch/internal/match"
	"github.com/park285/rpsmatch/internal/msgcat"
	"github.com/park285/rpsmatch/internal/store/memstore"
)

func newCLI(t *testing.T) (*cli, *bytes.Buffer) {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	app := httpapi.New(httpapi.Deps{Service: match.NewService(memstore.New()), Catalog: cat, Backend: "memory"})
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() {
		_ = app.Shutdown()
		_ = ln.Close()
	})
	api := apiclient.New("http://rps.test", apiclient.WithDial(func(string) (net.Conn, error) { return ln.Dial() }))
	var out bytes.Buffer
	return &cli{api: api, cat: cat, out: &out, baseURL: "http://rps.test"}, &out
}

func TestCommands(t *testing.T) {
	c, out := newCLI(t)
	ctx := context.Background()

	steps := []struct {
		args []string
		want string
	}{
		{[]string{"health"}, "is healthy"},
		{[]string{"player", "add", "alice"}, "#1 alice"},
		{[]string{"player", "add", "bob"}, "#2 bob"},
		{[]string{"match", "new", "1", "2"}, "match #1 1 vs 2 [IN_PROGRESS]"},
		{[]string{"round", "1", "rock", "scissors"}, "round 1: ROCK vs SCISSORS -> PLAYER_A_WINS"},
		{[]string{"round", "1", "rock", "scissors"}, "[FINISHED] 2-0"},
		{[]string{"match", "show", "1"}, "winner #1"},
		{[]string{"rematch", "1"}, "match #2 1 vs 2 [IN_PROGRESS]"},
		{[]string{"player", "stats", "1"}, "1/2 matches won (50%)"},
	}
	for _, s := range steps {
		out.Reset()
		if err := c.run(ctx, s.args); err != nil {
			t.Fatalf("%v: %v", s.args, err)
		}
		if !strings.Contains(out.String(), s.want) {
			t.Fatalf("%v: output %q missing %q", s.args, out.String(), s.want)
		}
	}
}

func TestUsageAndAPIErrors(t *testing.T) {
	c, _ := newCLI(t)
	ctx := context.Background()

	for _, args := range [][]string{nil, {"player"}, {"match", "new", "1"}, {"dance"}} {
		if err := c.run(ctx, args); !errors.Is(err, errUsage) {
			t.Fatalf("%v: err = %v, want usage", args, err)
		}
	}
	if err := c.run(ctx, []string{"match", "show", "x"}); err == nil || errors.Is(err, errUsage) {
		t.Fatalf("bad id err = %v", err)
	}
	err := c.run(ctx, []string{"match", "show", "7"})
	if apiclient.StatusOf(err) != 404 {
		t.Fatalf("missing match err = %v", err)
	}
}
