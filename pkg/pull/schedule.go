package pull

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/mikesmullin/slack/pkg/logger"
)

// Scheduler runs Pull on a cron cadence for a fixed set of channels.
// Each tick pulls messages newer than the previous tick (24h lookback
// on the first run).
type Scheduler struct {
	puller   *Puller
	expr     string
	channels []string
	limit    int
	last     time.Time
	log      logger.Logger
}

func NewScheduler(p *Puller, expr string, channels []string, limit int) (*Scheduler, error) {
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid cron expression %q", expr)
	}
	return &Scheduler{
		puller:   p,
		expr:     expr,
		channels: channels,
		limit:    limit,
		log:      logger.Component("pull"),
	}, nil
}

// Run blocks until ctx is cancelled, sleeping between cron ticks.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Str("cron", s.expr).Int("channels", len(s.channels)).Msg("pull scheduler started")
	for {
		next, err := gronx.NextTickAfter(s.expr, time.Now().UTC(), false)
		if err != nil {
			s.log.Error().Err(err).Str("cron", s.expr).Msg("next tick failed")
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			s.log.Info().Msg("pull scheduler stopping")
			return ctx.Err()
		}
		s.tick(ctx)
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	since := s.last
	if since.IsZero() {
		since = time.Now().UTC().Add(-24 * time.Hour)
	}
	s.last = time.Now().UTC()

	for _, ch := range s.channels {
		res, err := s.puller.Pull(ctx, Options{Since: since, Limit: s.limit, Channel: ch})
		if err != nil {
			s.log.Error().Err(err).Str("channel", ch).Msg("scheduled pull failed")
			continue
		}
		s.log.Info().
			Str("channel", ch).
			Int("fetched", res.Fetched).
			Int("stored", res.Stored).
			Int("skipped", res.Skipped).
			Msg("scheduled pull complete")
		for _, e := range res.Errors {
			s.log.Warn().Str("channel", ch).Msg(e)
		}
	}
}
