package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/pay-tools/tx-relay/pkg/models/domain"
	"github.com/pay-tools/tx-relay/pkg/services/channel"
	"github.com/pay-tools/tx-relay/pkg/services/render"
	"github.com/pay-tools/tx-relay/pkg/services/report"
)

// Settings holds the single daily fire slot. A fire missed while the process
// was down is not caught up; the schedule simply resumes at the next slot.
type Settings struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// RunRecord is the outcome of the most recent scheduled cycle.
type RunRecord struct {
	At    time.Time
	OK    bool
	Error string
}

type Scheduler struct {
	aggregator report.Aggregator
	channel    channel.Manager
	settings   Settings
	cron       *cron.Cron
	logger     zerolog.Logger

	mu   sync.Mutex
	last *RunRecord
}

func New(
	aggregator report.Aggregator,
	channelMgr channel.Manager,
	settings Settings,
	logger zerolog.Logger,
) *Scheduler {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &Scheduler{
		aggregator: aggregator,
		channel:    channelMgr,
		settings:   settings,
		cron:       cron.New(cron.WithLocation(settings.Location)),
		logger:     logger,
	}
}

// Start registers the daily job and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("%d %d * * *", s.settings.Minute, s.settings.Hour)
	_, err := s.cron.AddFunc(spec, func() {
		s.RunOnce(s.logger.WithContext(ctx))
	})
	if err != nil {
		return fmt.Errorf("failed to register daily job: %w", err)
	}
	s.cron.Start()
	s.logger.Info().Str("spec", spec).Str("tz", s.settings.Location.String()).Msg("daily report scheduled")
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce executes one aggregation-and-broadcast cycle: yesterday's full-day
// report is posted to the channel, an upstream outage is posted as a visible
// failure notice, and the ledger is trimmed afterwards.
func (s *Scheduler) RunOnce(ctx context.Context) {
	logger := zerolog.Ctx(ctx)

	yesterday := time.Now().In(s.settings.Location).AddDate(0, 0, -1)
	r := domain.SingleDay(yesterday)
	record := RunRecord{At: time.Now(), OK: true}

	result, err := s.aggregator.GetReport(ctx, domain.ReportQuery{Range: r, RequestedBy: "scheduler"})
	switch {
	case errors.Is(err, report.ErrUpstreamUnavailable):
		logger.Warn().Err(err).Msg("daily report upstream unavailable, posting notice")
		record.OK = false
		record.Error = err.Error()
		if _, postErr := s.channel.Post(ctx, render.FailureNotice(r, err), domain.KindScheduledReport); postErr != nil {
			logger.Error().Err(postErr).Msg("failed to post failure notice")
		}
	case err != nil:
		logger.Error().Err(err).Msg("daily report failed")
		record.OK = false
		record.Error = err.Error()
	default:
		if _, postErr := s.channel.Post(ctx, render.Report(result, true), domain.KindScheduledReport); postErr != nil {
			logger.Error().Err(postErr).Msg("failed to post daily report")
			record.OK = false
			record.Error = postErr.Error()
		}
	}

	s.channel.Cleanup(ctx)
	if err := s.channel.RefreshPanel(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to refresh dashboard panel")
	}

	s.recordRun(record)
}

// LastRun reports the most recent cycle outcome, if any.
func (s *Scheduler) LastRun() (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return RunRecord{}, false
	}
	return *s.last, true
}

func (s *Scheduler) recordRun(rec RunRecord) {
	s.mu.Lock()
	s.last = &rec
	s.mu.Unlock()
}
