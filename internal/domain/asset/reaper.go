package asset

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"mediastore/internal/config"
	"mediastore/internal/pkg/lock"
	"mediastore/internal/pkg/logger"
)

type ReaperState int32

const (
	ReaperIdle ReaperState = iota
	ReaperSweeping
)

const (
	reaperLockKey = "asset-reaper"
	reaperLockTTL = 5 * time.Minute
)

// SweepResult summarises one sweep. Skipped is set when another instance held the lock.
type SweepResult struct {
	Selected     int  `json:"selected"`
	Unlinked     int  `json:"unlinked"`
	Missing      int  `json:"missing"`
	UnlinkFailed int  `json:"unlink_failed"`
	Deleted      int  `json:"deleted"`
	Skipped      bool `json:"skipped"`
}

// Reaper purges expired local_fs assets on a fixed interval.
type Reaper struct {
	repo     Repository
	root     *Root
	locker   lock.Locker
	interval time.Duration
	batch    int
	log      *logger.Logger

	Now func() time.Time

	mu    sync.Mutex
	state atomic.Int32

	// lifecycle guards cancel and done; a running loop has a non-nil cancel.
	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewReaper(repo Repository, root *Root, locker lock.Locker, interval time.Duration, batch int, log *logger.Logger) *Reaper {
	if locker == nil {
		locker = lock.NoopLocker{}
	}
	if batch <= 0 {
		batch = config.DefaultReaperBatch
	}
	return &Reaper{
		repo:     repo,
		root:     root,
		locker:   locker,
		interval: config.NormalizeReaperInterval(interval),
		batch:    batch,
		log:      log.With("component", "asset.Reaper"),
		Now:      time.Now,
	}
}

func (r *Reaper) State() ReaperState { return ReaperState(r.state.Load()) }

// Start sweeps once immediately and then on every tick until Stop or ctx is done.
// Calling Start on a running reaper does nothing.
func (r *Reaper) Start(ctx context.Context) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	go func() {
		defer close(done)

		r.tick(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.tick(ctx)
			case <-ctx.Done():
				r.log.Info("reaper stopped")
				return
			}
		}
	}()

	r.log.Info("reaper started", "interval", r.interval.String(), "batch", r.batch)
}

// Stop cancels the loop and waits for an in-flight sweep to finish. The reaper can be
// started again afterwards.
func (r *Reaper) Stop() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel, r.done = nil, nil
}

func (r *Reaper) tick(ctx context.Context) {
	if _, err := r.SweepOnce(ctx); err != nil {
		r.log.Error("reaper sweep failed", "error", err)
	}
}

// SweepOnce runs a single sweep synchronously. Per-row failures are logged and counted,
// never returned.
func (r *Reaper) SweepOnce(ctx context.Context) (SweepResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res SweepResult
	release, ok, err := r.locker.TryLock(ctx, reaperLockKey, reaperLockTTL)
	if err != nil {
		return res, err
	}
	if !ok {
		res.Skipped = true
		r.log.Debug("reaper sweep skipped, lock held elsewhere")
		return res, nil
	}
	defer release()

	r.state.Store(int32(ReaperSweeping))
	defer r.state.Store(int32(ReaperIdle))

	start := time.Now()
	rows, err := r.repo.ListExpired(ctx, r.Now().UTC(), r.batch)
	if err != nil {
		return res, err
	}
	res.Selected = len(rows)

	for _, a := range rows {
		if ctx.Err() != nil {
			break
		}
		r.unlink(a, &res)
		if err := r.repo.Delete(ctx, a.ID); err != nil {
			r.log.Error("reaper failed to delete row", "asset_id", a.ID, "error", err)
			continue
		}
		res.Deleted++
	}

	if res.Selected > 0 {
		r.log.Info("reaper sweep finished",
			"selected", res.Selected,
			"unlinked", res.Unlinked,
			"missing", res.Missing,
			"unlink_failed", res.UnlinkFailed,
			"deleted", res.Deleted,
			"duration", time.Since(start).String(),
		)
	}
	return res, ctx.Err()
}

func (r *Reaper) unlink(a *FileAsset, res *SweepResult) {
	abs, err := r.root.Resolve(a.StorageKey)
	if err != nil {
		res.UnlinkFailed++
		r.log.Error("reaper refusing key outside storage root", "asset_id", a.ID, "key", a.StorageKey, "error", err)
		return
	}
	err = os.Remove(abs)
	switch {
	case err == nil:
		res.Unlinked++
	case errors.Is(err, os.ErrNotExist):
		res.Missing++
	default:
		res.UnlinkFailed++
		r.log.Warn("reaper failed to unlink file", "asset_id", a.ID, "key", a.StorageKey, "error", err)
	}
}
