// Package scheduler fires campaign expirations exactly once per distinct
// expiration instant. Campaigns ending at the same normalized instant share
// one bucket and one timer, so the number of armed timers is bounded by the
// number of distinct instants rather than the number of campaigns, and all
// campaigns of a bucket are finalized in one batch.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"shelf-deals/internal/core/domain"
)

// ExpireHandler receives the batch of campaign ids whose shared expiration
// instant has arrived. On a nil return the batch is done; on an error the
// whole batch is retried.
type ExpireHandler interface {
	HandleExpiredCampaigns(ctx context.Context, campaignIDs []int64) error
}

// CampaignSource is the slice of campaign persistence the scheduler needs
// to rebuild its in-memory state after a restart and to run the
// maintenance sweep.
type CampaignSource interface {
	FindUnfinished(ctx context.Context) ([]domain.Campaign, error)
	ActivateDue(ctx context.Context, now time.Time) (int64, error)
}

// Config tunes the scheduler. Zero values fall back to the defaults below.
type Config struct {
	// Granularity is the rounding applied to expiration instants. Ends are
	// rounded up to the next boundary, so campaigns ending within the same
	// granule share a bucket and no campaign is finalized before its stored
	// end. Coarser values mean fewer timers and later firing.
	Granularity time.Duration
	// FireAttempts bounds how often a failing batch is retried before it is
	// abandoned and escalated to the error log.
	FireAttempts int
	// FireBackoff is the base delay between retries; it grows linearly with
	// the attempt number.
	FireBackoff time.Duration
	// SweepInterval is the period of the maintenance sweep run by Run.
	SweepInterval time.Duration
}

const (
	defaultGranularity   = time.Minute
	defaultFireAttempts  = 5
	defaultFireBackoff   = 3 * time.Second
	defaultSweepInterval = 10 * time.Minute
)

type bucket struct {
	ids   map[int64]struct{}
	timer *time.Timer
}

// Scheduler owns the time bucket index: a map from normalized expiration
// instant to the campaign ids expiring then, plus the armed timer for that
// instant. No other component touches the index. It is constructed at
// service start and torn down with Close; nothing here is global.
type Scheduler struct {
	handler ExpireHandler
	source  CampaignSource
	logger  *slog.Logger
	cfg     Config

	mu      sync.Mutex
	buckets map[int64]*bucket // key: normalized instant in unix milliseconds
	byID    map[int64]int64   // campaign id -> bucket key holding it
	stopped bool

	done chan struct{}
	wg   sync.WaitGroup

	now func() time.Time
}

// New returns a scheduler with an empty index. Call Reconcile once at
// startup to rebuild state from durable campaign records, then Run for the
// maintenance sweep.
func New(handler ExpireHandler, source CampaignSource, logger *slog.Logger, cfg Config) *Scheduler {
	if cfg.Granularity <= 0 {
		cfg.Granularity = defaultGranularity
	}
	if cfg.FireAttempts <= 0 {
		cfg.FireAttempts = defaultFireAttempts
	}
	if cfg.FireBackoff <= 0 {
		cfg.FireBackoff = defaultFireBackoff
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	return &Scheduler{
		handler: handler,
		source:  source,
		logger:  logger,
		cfg:     cfg,
		buckets: make(map[int64]*bucket),
		byID:    make(map[int64]int64),
		done:    make(chan struct{}),
		now:     time.Now,
	}
}

// normalize rounds an expiration instant up to the next granularity
// boundary. Rounding up means a batch never fires before any stored end in
// it; firing is late by less than one granule, and checkout validation
// covers lines read in that window.
func (s *Scheduler) normalize(t time.Time) int64 {
	n := t.Truncate(s.cfg.Granularity)
	if n.Before(t) {
		n = n.Add(s.cfg.Granularity)
	}
	return n.UnixMilli()
}

// Schedule registers that the campaign must be finalized at end. The
// instant is normalized to the configured granularity; if a bucket for it
// is already armed the id just joins its set. A campaign already scheduled
// under a different instant is moved, so at most one timer ever covers a
// given campaign. Repeating the same (id, end) is a no-op. The call only
// mutates the index and arms a timer; it never blocks on I/O.
func (s *Scheduler) Schedule(campaignID int64, end time.Time) {
	key := s.normalize(end)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if prev, ok := s.byID[campaignID]; ok {
		if prev == key {
			return
		}
		s.removeLocked(campaignID, prev)
	}
	b, ok := s.buckets[key]
	if !ok {
		delay := time.UnixMilli(key).Sub(s.now())
		if delay < 0 {
			delay = 0
		}
		b = &bucket{ids: make(map[int64]struct{})}
		b.timer = time.AfterFunc(delay, func() { s.fireBatch(key) })
		s.buckets[key] = b
	}
	b.ids[campaignID] = struct{}{}
	s.byID[campaignID] = key
}

// Cancel removes the campaign from whichever bucket holds it. When the
// bucket empties its timer is stopped and the entry discarded. An unknown
// id (already fired, or never scheduled) is a harmless no-op. Callers
// rescheduling an edited end time call Cancel before Schedule under their
// per-campaign lock.
func (s *Scheduler) Cancel(campaignID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[campaignID]
	if !ok {
		return
	}
	s.removeLocked(campaignID, key)
}

func (s *Scheduler) removeLocked(campaignID, key int64) {
	delete(s.byID, campaignID)
	b := s.buckets[key]
	if b == nil {
		return
	}
	delete(b.ids, campaignID)
	if len(b.ids) == 0 {
		b.timer.Stop()
		delete(s.buckets, key)
	}
}

// fireBatch runs on the timer goroutine for one normalized instant. It
// removes the bucket under the index lock and hands the whole id set to
// the handler in a single call, with all I/O outside the lock. A bucket
// drained by cancellations between timer fire and lock acquisition makes
// the call a no-op. Handler failures retry the full batch with backoff;
// MarkExpired downstream is conditional, so a batch that partially
// succeeded can be repeated safely. After the attempts are exhausted the
// batch is abandoned with an error log and campaign statuses stay
// unchanged.
func (s *Scheduler) fireBatch(key int64) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	b, ok := s.buckets[key]
	if !ok || len(b.ids) == 0 {
		if ok {
			delete(s.buckets, key)
		}
		s.mu.Unlock()
		s.logger.Debug("expiration bucket already drained", slog.Time("instant", time.UnixMilli(key)))
		return
	}
	ids := make([]int64, 0, len(b.ids))
	for id := range b.ids {
		ids = append(ids, id)
		delete(s.byID, id)
	}
	delete(s.buckets, key)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx := context.Background()
	for attempt := 1; ; attempt++ {
		err := s.handler.HandleExpiredCampaigns(ctx, ids)
		if err == nil {
			s.logger.Info("expired campaign batch finalized",
				slog.Time("instant", time.UnixMilli(key)),
				slog.Int("campaigns", len(ids)))
			return
		}
		if attempt >= s.cfg.FireAttempts {
			s.logger.Error("expiration batch abandoned, campaigns left unfinalized",
				slog.Time("instant", time.UnixMilli(key)),
				slog.Any("campaign_ids", ids),
				slog.Int("attempts", attempt),
				slog.Any("error", err))
			return
		}
		s.logger.Warn("expiration batch failed, retrying",
			slog.Time("instant", time.UnixMilli(key)),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
		select {
		case <-time.After(s.cfg.FireBackoff * time.Duration(attempt)):
		case <-s.done:
			return
		}
	}
}

// Reconcile rebuilds the index from durable campaign records: every
// unfinished campaign is re-registered, and those whose end already passed
// fire on an immediate timer, batched per normalized instant. Bucket state
// is deliberately not persisted; this pass makes a process restart safe.
// A malformed campaign is skipped without blocking the rest.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	campaigns, err := s.source.FindUnfinished(ctx)
	if err != nil {
		return err
	}
	registered := 0
	for _, c := range campaigns {
		if !c.EndAt.After(c.StartAt) {
			s.logger.Warn("skipping campaign with inverted window",
				slog.Int64("campaign_id", c.ID))
			continue
		}
		s.Schedule(c.ID, c.EndAt)
		registered++
	}
	s.logger.Info("expiration schedule reconciled",
		slog.Int("campaigns", registered),
		slog.Int("buckets", s.bucketCount()))
	return nil
}

// Run executes the maintenance sweep until ctx is cancelled: scheduled
// campaigns whose window opened are promoted and the index is reconciled
// against the store. The sweep is a safety net; the per-bucket timers are
// the primary expiration mechanism.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	promoted, err := s.source.ActivateDue(ctx, s.now())
	if err != nil {
		s.logger.Warn("activation sweep failed", slog.Any("error", err))
	} else if promoted > 0 {
		s.logger.Info("promoted scheduled campaigns", slog.Int64("count", promoted))
	}
	if err := s.Reconcile(ctx); err != nil {
		s.logger.Warn("sweep reconcile failed", slog.Any("error", err))
	}
}

// Close stops every armed timer, prevents new registrations and waits for
// in-flight batches to finish their current attempt.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for key, b := range s.buckets {
		b.timer.Stop()
		delete(s.buckets, key)
	}
	s.byID = make(map[int64]int64)
	close(s.done)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) bucketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// scheduledCount reports how many campaigns currently hold a pending
// expiration.
func (s *Scheduler) scheduledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
