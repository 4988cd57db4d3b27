// Package metrics exposes Prometheus counters for the match lifecycle and
// the HTTP layer.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/park285/rpsmatch/internal/domain"
	"github.com/park285/rpsmatch/internal/match"
)

// Recorder owns its registry so tests can create as many as they like.
// A nil *Recorder records nothing.
type Recorder struct {
	reg *prometheus.Registry

	rounds     *prometheus.CounterVec
	created    *prometheus.CounterVec
	finished   prometheus.Counter
	rejections *prometheus.CounterVec
	requests   *prometheus.CounterVec
	matches    *prometheus.GaugeVec
}

var _ match.Hooks = (*Recorder)(nil)

func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rps_rounds_recorded_total",
			Help: "Rounds recorded, by outcome.",
		}, []string{"outcome"}),
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rps_matches_created_total",
			Help: "Matches created, by kind (new or rematch).",
		}, []string{"kind"}),
		finished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rps_matches_finished_total",
			Help: "Matches that reached a decision.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rps_domain_rejections_total",
			Help: "Operations rejected by domain rules, by error kind.",
		}, []string{"kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rps_http_requests_total",
			Help: "HTTP requests served, by method and status code.",
		}, []string{"method", "status"}),
		matches: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rps_matches",
			Help: "Stored matches by state, refreshed periodically.",
		}, []string{"state"}),
	}
	r.reg.MustRegister(
		r.rounds, r.created, r.finished, r.rejections, r.requests, r.matches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Recorder) RoundRecorded(outcome domain.Outcome) {
	if r == nil {
		return
	}
	r.rounds.WithLabelValues(string(outcome)).Inc()
}

func (r *Recorder) MatchCreated(rematch bool) {
	if r == nil {
		return
	}
	kind := "new"
	if rematch {
		kind = "rematch"
	}
	r.created.WithLabelValues(kind).Inc()
}

func (r *Recorder) MatchFinished() {
	if r == nil {
		return
	}
	r.finished.Inc()
}

func (r *Recorder) Rejected(kind match.Kind) {
	if r == nil {
		return
	}
	r.rejections.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) HTTPRequest(method string, status int) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// SetMatchCounts replaces the per-state gauge values.
func (r *Recorder) SetMatchCounts(counts map[domain.MatchState]int) {
	if r == nil {
		return
	}
	for _, st := range []domain.MatchState{domain.MatchInProgress, domain.MatchFinished} {
		r.matches.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}
