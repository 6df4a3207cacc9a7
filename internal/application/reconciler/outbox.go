package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	outboxStore "chamber/internal/adapters/storage/outbox"
	domain "chamber/internal/domain/outbox"
)

// ActionExecutor mirrors one kind of local mutation to the remote store.
type ActionExecutor interface {
	// Execute replays the mutation described by payload.
	Execute(ctx context.Context, payload string) error
}

// ExecutorFunc adapts a function to ActionExecutor.
type ExecutorFunc func(ctx context.Context, payload string) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, payload string) error {
	return f(ctx, payload)
}

// ProcessStats summarizes one ProcessPending run.
type ProcessStats struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// OutboxProcessor replays queued remote mutations in order.
// INVARIANT: an entry is never attempted before every older entry with the
// same resource and key has succeeded. Entries with an empty key are
// ordered against every other keyless entry of their resource.
type OutboxProcessor struct {
	store     outboxStore.Store
	executors map[string]ActionExecutor
	baseDelay time.Duration
	maxDelay  time.Duration
	batchSize int
	now       func() time.Time
}

// NewOutboxProcessor creates a new outbox processor.
func NewOutboxProcessor(store outboxStore.Store, executors map[string]ActionExecutor) *OutboxProcessor {
	return &OutboxProcessor{
		store:     store,
		executors: executors,
		baseDelay: 5 * time.Second,
		maxDelay:  10 * time.Minute,
		batchSize: 50,
		now:       time.Now,
	}
}

// ProcessPending replays pending entries of resource ("" for all). With
// force set the backoff delay is ignored. A failing entry only holds back
// later entries for the same record.
// PRE: Context is valid
// POST: Succeeded entries are removed; failed entries keep their place in line
func (p *OutboxProcessor) ProcessPending(ctx context.Context, resource string, force bool) (ProcessStats, error) {
	var stats ProcessStats
	for {
		entries, err := p.store.ListPending(ctx, resource, p.batchSize)
		if err != nil {
			return stats, fmt.Errorf("list pending outbox entries: %w", err)
		}

		blocked := make(map[[2]string]bool)
		succeeded := 0
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			line := [2]string{entry.Resource, entry.Key}
			if blocked[line] {
				stats.Skipped++
				continue
			}
			_, outcome, err := p.processEntry(ctx, entry, force)
			if err != nil {
				return stats, err
			}
			switch outcome {
			case outcomeDone:
				succeeded++
				stats.Succeeded++
				continue
			case outcomeFailed:
				stats.Failed++
			case outcomeWaiting:
				stats.Skipped++
			}
			blocked[line] = true
		}

		if len(entries) < p.batchSize || succeeded < len(entries) {
			return stats, nil
		}
	}
}

type entryOutcome int

const (
	outcomeDone entryOutcome = iota
	outcomeFailed
	outcomeWaiting
)

// processEntry attempts one entry unless it is still backing off and
// returns the entry as it was left.
func (p *OutboxProcessor) processEntry(ctx context.Context, entry domain.Entry, force bool) (domain.Entry, entryOutcome, error) {
	if !entry.CanRetry() {
		entry.MarkFailed(fmt.Errorf("attempts exhausted: %w", domain.ErrTerminal))
		return entry, outcomeFailed, p.store.Save(ctx, entry)
	}
	if !force && !entry.LastAttemptedAt.IsZero() {
		delay := entry.NextRetryDelay(p.baseDelay, p.maxDelay)
		if p.now().Sub(entry.LastAttemptedAt) < delay {
			return entry, outcomeWaiting, nil
		}
	}

	executor, ok := p.executors[entry.ActionType]
	if !ok {
		entry.Attempts = entry.MaxAttempts
		entry.MarkFailed(fmt.Errorf("no executor registered for action type: %s", entry.ActionType))
		return entry, outcomeFailed, p.store.Save(ctx, entry)
	}

	entry.MarkAttempt(p.now())
	if err := executor.Execute(ctx, entry.Payload); err != nil {
		entry.MarkFailed(err)
		slog.Warn("outbox_action_failed",
			"entry_id", entry.ID,
			"resource", entry.Resource,
			"key", entry.Key,
			"action_type", entry.ActionType,
			"attempt", entry.Attempts,
			"error", err.Error(),
		)
		if saveErr := p.store.Save(ctx, entry); saveErr != nil {
			return entry, outcomeFailed, fmt.Errorf("save outbox entry: %w", saveErr)
		}
		return entry, outcomeFailed, nil
	}

	entry.MarkSuccess()
	slog.Debug("outbox_action_succeeded", "entry_id", entry.ID, "action_type", entry.ActionType, "attempt", entry.Attempts)
	if err := p.store.Delete(ctx, entry.ID); err != nil {
		// A done entry left behind is no longer listed as pending.
		if saveErr := p.store.Save(ctx, entry); saveErr != nil {
			return entry, outcomeDone, fmt.Errorf("delete outbox entry: %w", err)
		}
	}
	return entry, outcomeDone, nil
}

// ProcessSingle retries one entry on admin request. A permanently failed
// entry gets a fresh attempt budget.
// PRE: entryID is non-empty
// POST: Entry is removed on success or saved with the new error
func (p *OutboxProcessor) ProcessSingle(ctx context.Context, entryID string) error {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("get outbox entry: %w", err)
	}
	switch {
	case entry.IsPending():
	case entry.Status == domain.StatusFailed:
		entry.Attempts = 0
		entry.Status = domain.StatusPending
	default:
		return fmt.Errorf("entry %s: %w", entryID, domain.ErrTerminal)
	}

	entry, outcome, err := p.processEntry(ctx, entry, true)
	if err != nil {
		return err
	}
	if outcome == outcomeDone {
		return nil
	}
	if entry.IsTerminal() {
		return fmt.Errorf("outbox retry failed, attempts exhausted: %s", entry.ErrorMessage)
	}
	return fmt.Errorf("outbox retry failed: %s", entry.ErrorMessage)
}

// AbandonEntry marks an entry as abandoned by admin.
// PRE: entryID is non-empty
// POST: Entry status set to abandoned; it no longer blocks its resource
func (p *OutboxProcessor) AbandonEntry(ctx context.Context, entryID string) error {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("get outbox entry: %w", err)
	}
	entry.MarkAbandoned()
	return p.store.Save(ctx, entry)
}

// runEvery calls fn every interval until stopCh is closed or ctx is done.
func runEvery(ctx context.Context, interval time.Duration, stopCh <-chan struct{}, fn func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn(ctx)
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
