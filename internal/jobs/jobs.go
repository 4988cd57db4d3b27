// Package jobs runs periodic background work on a gocron scheduler.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/park285/rpsmatch/internal/domain"
	"github.com/park285/rpsmatch/internal/match"
	"github.com/park285/rpsmatch/internal/obslog"
)

type MatchLister interface {
	ListMatches(ctx context.Context, f match.Filter) ([]*domain.Match, error)
}

type GaugeSetter interface {
	SetMatchCounts(counts map[domain.MatchState]int)
}

// RefreshMatchGauges counts stored matches per state and publishes them.
func RefreshMatchGauges(ctx context.Context, l MatchLister, g GaugeSetter) error {
	counts := make(map[domain.MatchState]int, 2)
	for _, st := range []domain.MatchState{domain.MatchInProgress, domain.MatchFinished} {
		ms, err := l.ListMatches(ctx, match.Filter{State: st})
		if err != nil {
			return fmt.Errorf("list %s matches: %w", st, err)
		}
		counts[st] = len(ms)
	}
	g.SetMatchCounts(counts)
	return nil
}

type Scheduler struct {
	s gocron.Scheduler
}

// Start schedules the gauge refresh every interval, first run immediately.
func Start(ctx context.Context, l MatchLister, g GaugeSetter, every time.Duration) (*Scheduler, error) {
	if every <= 0 {
		every = 30 * time.Second
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			runCtx, cancel := context.WithTimeout(ctx, every)
			defer cancel()
			if err := RefreshMatchGauges(runCtx, l, g); err != nil {
				obslog.L().Warn("gauge_refresh_error", zap.Error(err))
				return
			}
			obslog.L().Debug("gauge_refresh")
		}),
		gocron.WithName("refresh_match_gauges"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("schedule gauge refresh: %w", err)
	}
	s.Start()
	obslog.L().Info("scheduler_start", zap.Duration("gauge_refresh", every))
	return &Scheduler{s: s}, nil
}

func (s *Scheduler) Shutdown() error {
	if s == nil || s.s == nil {
		return nil
	}
	return s.s.Shutdown()
}
