package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type stubPruner struct {
	mu         sync.Mutex
	before     []time.Time
	chatBefore []time.Time
	err        error
}

func (p *stubPruner) DeleteSummariesBefore(_ context.Context, before time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.before = append(p.before, before)

	return 3, p.err
}

func (p *stubPruner) DeleteChatMessagesBefore(_ context.Context, before time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.chatBefore = append(p.chatBefore, before)

	return 5, nil
}

func TestPruneHistoryUsesRetention(t *testing.T) {
	pruner := &stubPruner{}
	s := New(context.Background(), pruner, 48*time.Hour, slog.Default())

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.pruneHistory()

	if len(pruner.before) != 1 {
		t.Fatalf("expected one prune call, got %d", len(pruner.before))
	}
	if want := now.Add(-48 * time.Hour); !pruner.before[0].Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, pruner.before[0])
	}
	if len(pruner.chatBefore) != 1 || !pruner.chatBefore[0].Equal(pruner.before[0]) {
		t.Fatalf("expected chat messages to be pruned with the same cutoff, got %v", pruner.chatBefore)
	}
}

func TestPruneHistorySkipsWhenContextIsDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pruner := &stubPruner{}
	New(ctx, pruner, time.Hour, slog.Default()).pruneHistory()

	if len(pruner.before) != 0 || len(pruner.chatBefore) != 0 {
		t.Fatalf("expected no prune calls, got %d and %d", len(pruner.before), len(pruner.chatBefore))
	}
}

func TestPruneHistoryLogsErrors(t *testing.T) {
	pruner := &stubPruner{err: errors.New("db is locked")}
	s := New(context.Background(), pruner, time.Hour, slog.Default())

	s.pruneHistory()

	if len(pruner.before) != 1 {
		t.Fatalf("expected prune to be attempted, got %d calls", len(pruner.before))
	}
	if len(pruner.chatBefore) != 1 {
		t.Fatalf("expected chat messages to be pruned after a history error, got %d calls", len(pruner.chatBefore))
	}
}

func TestStartRegistersHourlyJob(t *testing.T) {
	s := New(context.Background(), &stubPruner{}, time.Hour, slog.Default())

	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	entries := s.cron.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one job, got %d", len(entries))
	}

	if next := entries[0].Next; next.Minute() != 0 || next.Second() != 0 {
		t.Fatalf("expected job at the top of the hour, got %v", next)
	}
}
