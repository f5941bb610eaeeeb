package syncer

import (
	"context"
	"errors"
	"fmt"

	"campusgate/internal/jobs"
	"campusgate/internal/logging"
	"campusgate/internal/queue"
)

// Consume runs queued sync requests until ctx ends. A request that could
// not start, including one that finds another job running, is recorded as
// failed so it does not stay pending.
func (o *Orchestrator) Consume(ctx context.Context, q queue.Queue) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("sync: consume queue: %w", err)
	}
	logging.Info().Msg("sync consumer started")
	for msg := range msgs {
		if msg.Type != queue.TypeSync {
			logging.Warn().Str("type", msg.Type).Str("id", msg.ID).Msg("ignoring unknown queue message")
			continue
		}
		err := o.Run(ctx, msg.JobName)
		if msg.ID != "" && (errors.Is(err, ErrAlreadyRunning) || errors.Is(err, ErrNotStarted)) {
			if ferr := o.d.Jobs.Finish(ctx, msg.ID, jobs.StatusFailed, jobs.Stats{}, err.Error(), o.now()); ferr != nil {
				logging.Error().Err(ferr).Str("id", msg.ID).Msg("record skipped job failed")
			}
		}
	}
	logging.Info().Msg("sync consumer stopped")
	return nil
}
