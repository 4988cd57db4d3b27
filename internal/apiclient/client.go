// Package apiclient is a fasthttp JSON client for the match API.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/rpsmatch/pkg/rpsdto"
)

// APIError is a non-2xx response. The body is decoded when it is a
// DomainError.
type APIError struct {
	Status int
	rpsdto.DomainError
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("rps api error: status=%d code=%s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("rps api error: status=%d %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithDial replaces the connection dialer, e.g. for in-memory listeners.
func WithDial(dial func(addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Health(ctx context.Context) (*rpsdto.Health, error) {
	var h rpsdto.Health
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/healthz", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) RegisterPlayer(ctx context.Context, handle string) (*rpsdto.Player, error) {
	var p rpsdto.Player
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/players", rpsdto.RegisterPlayerRequest{Handle: handle}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListPlayers(ctx context.Context) ([]rpsdto.Player, error) {
	var ps []rpsdto.Player
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/players", nil, &ps); err != nil {
		return nil, err
	}
	return ps, nil
}

func (c *Client) PlayerStats(ctx context.Context, id int64) (*rpsdto.PlayerStats, error) {
	var st rpsdto.PlayerStats
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/players/"+itoa(id)+"/stats", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) CreateMatch(ctx context.Context, playerA, playerB int64) (*rpsdto.Match, error) {
	var m rpsdto.Match
	req := rpsdto.CreateMatchRequest{PlayerAID: playerA, PlayerBID: playerB}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/matches", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMatches filters by state and player when they are non-zero.
func (c *Client) ListMatches(ctx context.Context, state string, playerID int64) ([]rpsdto.Match, error) {
	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	if playerID > 0 {
		q.Set("player_id", itoa(playerID))
	}
	path := "/api/matches"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var ms []rpsdto.Match
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &ms); err != nil {
		return nil, err
	}
	return ms, nil
}

func (c *Client) MatchFull(ctx context.Context, id int64) (*rpsdto.MatchFull, error) {
	var f rpsdto.MatchFull
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/matches/"+itoa(id)+"/full", nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) MatchStatus(ctx context.Context, id int64) (*rpsdto.MatchStatus, error) {
	var st rpsdto.MatchStatus
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/matches/"+itoa(id)+"/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) RecordRound(ctx context.Context, matchID int64, moveA, moveB string) (*rpsdto.Round, error) {
	var r rpsdto.Round
	req := rpsdto.RecordRoundRequest{MoveA: moveA, MoveB: moveB}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/matches/"+itoa(matchID)+"/rounds", req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) CreateRematch(ctx context.Context, originID int64) (*rpsdto.Match, error) {
	var m rpsdto.Match
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/matches/"+itoa(originID)+"/rematch", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// doJSON retries only GET requests; writes are never replayed.
func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if method == fasthttp.MethodGet && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err == nil {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				if out != nil && len(resp.Body()) > 0 {
					if err := json.Unmarshal(resp.Body(), out); err != nil {
						return fmt.Errorf("decode response: %w", err)
					}
				}
				return nil
			}
			err = decodeError(status, resp.Body())
			if !shouldRetryStatus(status) {
				return err
			}
		} else {
			err = fmt.Errorf("request failed: %w", err)
		}
		lastErr = err
		if attempt < attempts {
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func decodeError(status int, body []byte) error {
	ae := &APIError{Status: status}
	if json.Unmarshal(body, &ae.DomainError) != nil || ae.Code == "" {
		ae.DomainError = rpsdto.DomainError{Message: truncate(string(body), 512)}
	}
	return ae
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 50 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case fasthttp.StatusInternalServerError, fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable, fasthttp.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
