package reaper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// SweepConfig controls how the sweep executes due accounts.
type SweepConfig struct {
	// Concurrency is the number of accounts executed in parallel. Values below
	// one run accounts one at a time.
	Concurrency int
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Due     int // pending accounts whose purge was due
	Purged  int // accounts purged by this sweep
	Failed  int // accounts whose purge failed and remain pending
	Skipped int // accounts whose lease was held by another worker
}

// Sweeper finds accounts whose pending window has elapsed and purges each one
// with the Executor. One account's failure never affects another.
type Sweeper struct {
	store    Store
	executor *Executor
	locker   Locker
	config   SweepConfig
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	recorder Recorder
}

// NewSweeper creates a Sweeper. A nil locker grants every lease and a nil
// recorder discards metrics.
func NewSweeper(store Store, executor *Executor, locker Locker, config SweepConfig, logger Logger, clock Clock, idgen IDGenerator, recorder Recorder) *Sweeper {
	if locker == nil {
		locker = NopLocker{}
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &Sweeper{
		store:    store,
		executor: executor,
		locker:   locker,
		config:   config,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
		recorder: recorder,
	}
}

// ProcessDueDeletions purges every pending account due at or before now and
// returns how many were purged.
func (s *Sweeper) ProcessDueDeletions(ctx context.Context, now time.Time) (int, error) {
	result, err := s.Sweep(ctx, now)
	if err != nil {
		return 0, err
	}
	return result.Purged, nil
}

// Sweep runs one pass and records it as a sweep run. The only error returned
// is a failure to read the due set; per-account failures are counted.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	started := s.clock.Now()
	run := &SweepRun{ID: s.idgen.New(), StartedAt: started.UTC(), Status: "running"}
	if err := s.store.CreateSweepRun(ctx, run); err != nil {
		s.logger.Warn("recording sweep run failed", "error", err)
		run = nil
	}

	result, err := s.sweep(ctx, now)

	if run != nil {
		finished := s.clock.Now().UTC()
		run.FinishedAt = &finished
		run.Status = "success"
		if err != nil {
			run.Status = "error"
		} else {
			run.Due, run.Purged, run.Failed, run.Skipped = result.Due, result.Purged, result.Failed, result.Skipped
		}
		if ferr := s.store.FinishSweepRun(ctx, run); ferr != nil {
			s.logger.Warn("finishing sweep run failed", "sweep_run_id", run.ID, "error", ferr)
		}
	}
	if err != nil {
		return nil, err
	}

	s.recorder.SweepCompleted(result, s.clock.Now().Sub(started))
	s.logger.Info("sweep completed",
		"now", now,
		"due", result.Due,
		"purged", result.Purged,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return result, nil
}

func (s *Sweeper) sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	due, err := s.store.ListDueAccounts(ctx, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("listing due accounts: %w", err)
	}

	result := &SweepResult{Due: len(due)}
	if len(due) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.config.Concurrency)

	for _, account := range due {
		accountID := account.ID
		g.Go(func() error {
			outcome := s.processOne(ctx, accountID)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomePurged:
				result.Purged++
			case outcomeFailed:
				result.Failed++
			case outcomeSkipped:
				result.Skipped++
			}
			// Never return an error: one account must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()

	return result, nil
}

type outcome int

const (
	outcomePurged outcome = iota
	outcomeFailed
	outcomeSkipped
)

func (s *Sweeper) processOne(ctx context.Context, accountID string) outcome {
	release, acquired, err := s.locker.TryLock(ctx, accountID)
	if err != nil {
		s.logger.Error("acquiring sweep lease failed", "account_id", accountID, "error", err)
		return outcomeFailed
	}
	if !acquired {
		s.logger.Debug("sweep lease held elsewhere", "account_id", accountID)
		return outcomeSkipped
	}
	defer release()

	_, err = s.executor.ExecuteDeletion(ctx, accountID)
	switch {
	case err == nil:
		return outcomePurged
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrInvalidState):
		// Purged or cancelled since the due set was read.
		s.logger.Info("account no longer due", "account_id", accountID, "reason", err)
		return outcomeSkipped
	default:
		s.logger.Error("purge failed", "account_id", accountID, "error", err)
		return outcomeFailed
	}
}
