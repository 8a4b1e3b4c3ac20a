package sync

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hylla/ansok/internal/domain"
)

// DefaultPollInterval is the fixed re-fetch cadence for active listings and
// the open submission's notes. There is no backoff; a failed tick simply
// retries on the next one.
const DefaultPollInterval = 30 * time.Second

// StopFunc stops a poller. Stopping prevents future ticks; it does not abort
// a request already in flight. The caller that started the poll owns the
// handle and must invoke it when the watched view goes inactive, otherwise
// the timer leaks fetches for entities no one is looking at.
type StopFunc func()

// Poll runs effect on a fixed interval until stopped. Effect errors are
// logged and swallowed; the next tick is the retry.
func Poll(interval time.Duration, logger *log.Logger, effect func(context.Context) error) StopFunc {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = log.New(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := effect(ctx); err != nil && ctx.Err() == nil {
					logger.Warn("poll tick failed", "err", err)
				}
			}
		}
	}()
	return StopFunc(cancel)
}

// PollRound re-fetches a round listing on the interval.
func (s *Service) PollRound(roundID int, interval time.Duration) StopFunc {
	return Poll(interval, s.logger, func(ctx context.Context) error {
		return s.LoadRound(ctx, roundID)
	})
}

// PollStatuses re-fetches a status-set listing on the interval.
func (s *Service) PollStatuses(statuses []domain.Status, interval time.Duration) StopFunc {
	return Poll(interval, s.logger, func(ctx context.Context) error {
		return s.LoadStatuses(ctx, statuses)
	})
}

// PollNotes re-fetches a submission's notes on the interval.
func (s *Service) PollNotes(submissionID int, interval time.Duration) StopFunc {
	return Poll(interval, s.logger, func(ctx context.Context) error {
		return s.LoadNotes(ctx, submissionID)
	})
}
