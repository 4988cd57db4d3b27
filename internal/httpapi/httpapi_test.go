package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/park285/rpsmatch/internal/match"
	"github.com/park285/rpsmatch/internal/metrics"
	"github.com/park285/rpsmatch/internal/msgcat"
	"github.com/park285/rpsmatch/internal/store/memstore"
	"github.com/park285/rpsmatch/pkg/rpsdto"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	rec := metrics.NewRecorder()
	svc := match.NewService(memstore.New(), match.WithHooks(rec))
	return New(Deps{Service: svc, Catalog: cat, Metrics: rec, Backend: "memory"})
}

func call(t *testing.T, app *fiber.App, method, path, body string, out any) int {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func register(t *testing.T, app *fiber.App, handle string) rpsdto.Player {
	t.Helper()
	var p rpsdto.Player
	if code := call(t, app, http.MethodPost, "/api/players", `{"handle":"`+handle+`"}`, &p); code != http.StatusCreated {
		t.Fatalf("register %s: status %d", handle, code)
	}
	return p
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	var h rpsdto.Health
	if code := call(t, app, http.MethodGet, "/healthz", "", &h); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if h.Status != "ok" || h.Backend != "memory" {
		t.Fatalf("health = %+v", h)
	}
}

func TestMatchFlow(t *testing.T) {
	app := newTestApp(t)
	alice := register(t, app, "alice")
	bob := register(t, app, "bob")

	var m rpsdto.Match
	body := `{"player_a_id":` + itoa(alice.ID) + `,"player_b_id":` + itoa(bob.ID) + `}`
	if code := call(t, app, http.MethodPost, "/api/matches", body, &m); code != http.StatusCreated {
		t.Fatalf("create match: status %d", code)
	}
	if m.State != "IN_PROGRESS" {
		t.Fatalf("state = %s", m.State)
	}

	base := "/api/matches/" + itoa(m.ID)
	moves := [][2]string{{"rock", "scissors"}, {"PAPER", "paper"}, {"Scissors", "paper"}}
	for i, mv := range moves {
		var r rpsdto.Round
		code := call(t, app, http.MethodPost, base+"/rounds", `{"move_a":"`+mv[0]+`","move_b":"`+mv[1]+`"}`, &r)
		if code != http.StatusCreated {
			t.Fatalf("round %d: status %d", i+1, code)
		}
		if r.Number != i+1 {
			t.Fatalf("round number = %d, want %d", r.Number, i+1)
		}
	}

	var st rpsdto.MatchStatus
	if code := call(t, app, http.MethodGet, base+"/status", "", &st); code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	if st.State != "FINISHED" || st.WinsA != 2 || st.Draws != 1 {
		t.Fatalf("status = %+v", st)
	}
	if st.WinnerID == nil || *st.WinnerID != alice.ID {
		t.Fatalf("winner = %v, want %d", st.WinnerID, alice.ID)
	}

	var de rpsdto.DomainError
	code := call(t, app, http.MethodPost, base+"/rounds", `{"move_a":"ROCK","move_b":"PAPER"}`, &de)
	if code != http.StatusConflict || de.Code != match.CodeMatchNotInProgress {
		t.Fatalf("round after finish: %d %+v", code, de)
	}

	var draws []rpsdto.Round
	if code := call(t, app, http.MethodGet, base+"/rounds/draws", "", &draws); code != http.StatusOK || len(draws) != 1 {
		t.Fatalf("draws: %d %+v", code, draws)
	}

	var re rpsdto.Match
	if code := call(t, app, http.MethodPost, base+"/rematch", "", &re); code != http.StatusCreated {
		t.Fatalf("rematch: %d", code)
	}
	if !re.IsRematch || re.OriginMatchID == nil || *re.OriginMatchID != m.ID {
		t.Fatalf("rematch = %+v", re)
	}

	var full rpsdto.MatchFull
	if code := call(t, app, http.MethodGet, base+"/full", "", &full); code != http.StatusOK {
		t.Fatalf("full: %d", code)
	}
	if len(full.Rounds) != 3 || len(full.Rematches) != 1 || full.PlayerA == nil || full.PlayerA.Handle != "alice" {
		t.Fatalf("full = %+v", full)
	}

	if code := call(t, app, http.MethodDelete, base, "", &de); code != http.StatusConflict || de.Code != match.CodeMatchReferenced {
		t.Fatalf("delete origin: %d %+v", code, de)
	}

	var finished []rpsdto.Match
	if code := call(t, app, http.MethodGet, "/api/matches?state=finished", "", &finished); code != http.StatusOK {
		t.Fatalf("list: %d", code)
	}
	if len(finished) != 1 || finished[0].ID != m.ID {
		t.Fatalf("finished = %+v", finished)
	}
}

func TestErrorMapping(t *testing.T) {
	app := newTestApp(t)
	alice := register(t, app, "alice")
	bob := register(t, app, "bob")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown match", http.MethodGet, "/api/matches/999", "", http.StatusNotFound, match.CodeMatchNotFound},
		{"bad id", http.MethodGet, "/api/matches/abc", "", http.StatusBadRequest, match.CodeInvalidID},
		{"bad body", http.MethodPost, "/api/matches", `{"player_a_id":`, http.StatusBadRequest, codeInvalidBody},
		{"same player", http.MethodPost, "/api/matches", `{"player_a_id":` + itoa(alice.ID) + `,"player_b_id":` + itoa(alice.ID) + `}`, http.StatusBadRequest, match.CodeSamePlayer},
		{"missing player", http.MethodPost, "/api/matches", `{"player_a_id":` + itoa(bob.ID) + `,"player_b_id":424242}`, http.StatusNotFound, match.CodePlayerNotFound},
		{"duplicate handle", http.MethodPost, "/api/players", `{"handle":"ALICE"}`, http.StatusConflict, match.CodeHandleTaken},
		{"bad state filter", http.MethodGet, "/api/matches?state=paused", "", http.StatusBadRequest, codeInvalidFilter},
		{"bad player filter", http.MethodGet, "/api/matches?player_id=x", "", http.StatusBadRequest, codeInvalidFilter},
		{"unknown route", http.MethodGet, "/api/nope", "", http.StatusNotFound, "ROUTE_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var de rpsdto.DomainError
			code := call(t, app, tt.method, tt.path, tt.body, &de)
			if code != tt.status || de.Code != tt.code {
				t.Fatalf("got %d %q, want %d %q (%s)", code, de.Code, tt.status, tt.code, de.Message)
			}
			if de.Message == "" {
				t.Fatalf("empty message")
			}
		})
	}
}

func TestInvalidMoveMessage(t *testing.T) {
	app := newTestApp(t)
	alice := register(t, app, "alice")
	bob := register(t, app, "bob")
	var m rpsdto.Match
	call(t, app, http.MethodPost, "/api/matches", `{"player_a_id":`+itoa(alice.ID)+`,"player_b_id":`+itoa(bob.ID)+`}`, &m)

	var de rpsdto.DomainError
	code := call(t, app, http.MethodPost, "/api/matches/"+itoa(m.ID)+"/rounds", `{"move_a":"LIZARD","move_b":"ROCK"}`, &de)
	if code != http.StatusBadRequest || de.Code != match.CodeInvalidMove {
		t.Fatalf("got %d %+v", code, de)
	}
	if !strings.Contains(de.Message, `"LIZARD"`) {
		t.Fatalf("message = %q", de.Message)
	}
}

func TestRequestIDAndMetrics(t *testing.T) {
	app := newTestApp(t)
	register(t, app, "alice")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "req-1")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(headerRequestID); got != "req-1" {
		t.Fatalf("request id = %q", got)
	}

	for i := 0; i < 3; i++ {
		call(t, app, http.MethodGet, "/api/players", "", nil)
		call(t, app, http.MethodDelete, "/api/players/999", "", nil)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`rps_http_requests_total{method="POST",status="201"} 1`,
		`rps_http_requests_total{method="DELETE",status="404"} 3`,
		`rps_http_requests_total{method="GET",status="200"} 4`,
	} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("metrics output missing %s:\n%s", want, b)
		}
	}
}

func TestPlayerByEscapedHandle(t *testing.T) {
	app := newTestApp(t)
	want := register(t, app, "Zoë K")

	var got rpsdto.Player
	if code := call(t, app, http.MethodGet, "/api/players/by-handle/"+url.PathEscape("zoë k"), "", &got); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if got.ID != want.ID || got.Handle != "Zoë K" {
		t.Fatalf("player = %+v, want %+v", got, want)
	}
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
