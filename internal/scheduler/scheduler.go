package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	HourlyPruneSpec       = "0 * * * *"
	Timezone              = "UTC"
	TimezoneOffsetSeconds = 0
	pruneHistoryTimeout   = 5 * time.Minute
)

// HistoryPruner deletes history records created before a point in time.
type HistoryPruner interface {
	DeleteSummariesBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteChatMessagesBefore(ctx context.Context, before time.Time) (int64, error)
}

type Scheduler struct {
	ctx       context.Context
	cron      *cron.Cron
	pruner    HistoryPruner
	retention time.Duration
	now       func() time.Time
	log       *slog.Logger
}

func New(ctx context.Context, pruner HistoryPruner, retention time.Duration, log *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLocation(time.FixedZone(Timezone, TimezoneOffsetSeconds)))

	return &Scheduler{
		ctx:       ctx,
		cron:      c,
		pruner:    pruner,
		retention: retention,
		now:       time.Now,
		log:       log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(HourlyPruneSpec, s.pruneHistory); err != nil {
		return err
	}

	s.cron.Start()

	return nil
}

// Stop stops the cron and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) pruneHistory() {
	ctx, cancel := context.WithTimeout(s.ctx, pruneHistoryTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	default:
	}

	before := s.now().Add(-s.retention)

	deleted, err := s.pruner.DeleteSummariesBefore(ctx, before)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to prune history",
			"error", err,
			"before", before,
			"retention", s.retention.String())
	} else if deleted > 0 {
		s.log.InfoContext(ctx, "History is pruned",
			"deleted", deleted,
			"before", before)
	}

	deleted, err = s.pruner.DeleteChatMessagesBefore(ctx, before)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to prune chat messages",
			"error", err,
			"before", before,
			"retention", s.retention.String())
	} else if deleted > 0 {
		s.log.InfoContext(ctx, "Chat messages are pruned",
			"deleted", deleted,
			"before", before)
	}
}
