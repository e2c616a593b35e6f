// Package scheduler drives capture. It starts push adapters, polls pull
// adapters on their intervals with persisted cursors, seeds the editor
// sidecar cursor from the store's newest prompt, runs retention maintenance,
// and serves on-demand sync and mining requests from the control surface.
//
// One goroutine owns all poll state; requests reach it over channels, so
// cursors and failure counters never need locking.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/untoldecay/LoomLog/internal/adapters"
	"github.com/untoldecay/LoomLog/internal/storage"
)

const (
	// failureThreshold is how many consecutive poll failures a source gets
	// before its interval starts backing off.
	failureThreshold = 3
	backoffBase      = 10 * time.Second

	maintenanceInterval = time.Hour
)

// Config tunes the scheduler. Zero values take the defaults below.
type Config struct {
	// EventInterval is the base tick driving short-interval sources.
	EventInterval time.Duration
	// SyncInterval is the editor sidecar poll cadence.
	SyncInterval time.Duration
	// QueryTimeout bounds each poll and each record's ingestion.
	QueryTimeout time.Duration
	// OpTimeout bounds mining and maintenance passes.
	OpTimeout time.Duration
	// BackoffCap is the longest a failing source's interval can stretch.
	BackoffCap time.Duration
	// Retention enables hourly cleanup of rows older than this. Zero
	// disables maintenance entirely.
	Retention time.Duration
	// MineOnColdStart runs the history miner once when the store is empty.
	MineOnColdStart bool
}

func (c Config) withDefaults() Config {
	if c.EventInterval <= 0 {
		c.EventInterval = 2 * time.Second
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = 30 * time.Second
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 10 * time.Second
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 15 * time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 5 * time.Minute
	}
	return c
}

// pullState is one polled source's loop-owned bookkeeping.
type pullState struct {
	adapter  adapters.Adapter
	interval time.Duration
	// editor sources get their since cursor floored to the store's newest
	// prompt before every poll.
	editor   bool
	cursor   adapters.Cursor
	failures int
	nextRun  time.Time
}

// PullStatus is one polled source's health in a Report.
type PullStatus struct {
	ID       string    `json:"id"`
	Failures int       `json:"failures"`
	NextRun  time.Time `json:"next_run"`
}

// Report is a point-in-time view of scheduler activity for the control
// surface.
type Report struct {
	PushAdapters []string         `json:"push_adapters"`
	PullAdapters []PullStatus     `json:"pull_adapters"`
	Ingested     map[string]int64 `json:"ingested"`
	Dropped      int64            `json:"dropped"`
}

// Scheduler owns the capture loop. Register adapters before calling Run;
// the request methods are safe from any goroutine while Run is active.
type Scheduler struct {
	cfg    Config
	store  storage.Storage
	ingest *Ingestor
	logf   func(format string, args ...any)
	warnf  func(format string, args ...any)

	push  []adapters.Adapter
	pulls []*pullState
	miner *adapters.Miner

	syncReq   chan chan error
	mineReq   chan chan error
	reportReq chan chan Report

	mu      sync.Mutex
	running bool
}

// New returns a Scheduler writing through ingest into store.
func New(store storage.Storage, ingest *Ingestor, cfg Config) *Scheduler {
	return &Scheduler{
		cfg:       cfg.withDefaults(),
		store:     store,
		ingest:    ingest,
		logf:      func(string, ...any) {},
		warnf:     func(string, ...any) {},
		syncReq:   make(chan chan error),
		mineReq:   make(chan chan error),
		reportReq: make(chan chan Report),
	}
}

// SetLogFuncs routes informational and warning logs.
func (s *Scheduler) SetLogFuncs(logf, warnf func(format string, args ...any)) {
	if logf != nil {
		s.logf = logf
	}
	if warnf != nil {
		s.warnf = warnf
	}
}

// AddPush registers a push adapter started with the loop.
func (s *Scheduler) AddPush(a adapters.Adapter) {
	s.push = append(s.push, a)
}

// AddPull registers a pull adapter polled every interval. Intervals at or
// below zero fall back to the base event interval.
func (s *Scheduler) AddPull(a adapters.Adapter, interval time.Duration) {
	if interval <= 0 {
		interval = s.cfg.EventInterval
	}
	s.pulls = append(s.pulls, &pullState{adapter: a, interval: interval})
}

// AddEditorPull registers the editor sidecar source. It polls on the sync
// interval and floors its since cursor to the store's newest prompt, so a
// fresh daemon resumes where the last run's data ends.
func (s *Scheduler) AddEditorPull(a adapters.Adapter) {
	s.pulls = append(s.pulls, &pullState{
		adapter:  a,
		interval: s.cfg.SyncInterval,
		editor:   true,
	})
}

// SetMiner registers the one-shot history miner used for cold start and
// on-demand mining.
func (s *Scheduler) SetMiner(m *adapters.Miner) {
	s.miner = m
}

// Run executes the capture loop until ctx is canceled. It returns nil on
// cancellation; only a second concurrent Run is an error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for _, ps := range s.pulls {
		s.loadCursor(ctx, ps)
	}

	var started []adapters.Adapter
	for _, a := range s.push {
		if err := a.Start(ctx, func(rec adapters.Record) { s.deliver(ctx, rec) }); err != nil {
			s.warnf("adapter %s failed to start: %v", a.ID(), err)
			continue
		}
		started = append(started, a)
		s.logf("adapter %s started", a.ID())
	}
	defer func() {
		for _, a := range started {
			if err := a.Stop(); err != nil {
				s.warnf("adapter %s stop failed: %v", a.ID(), err)
			}
		}
	}()

	if s.cfg.MineOnColdStart && s.miner != nil && s.storeEmpty(ctx) {
		s.logf("store is empty, mining workspace history")
		if err := s.runMiner(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.warnf("cold start mining failed: %v", err)
		}
	}

	ticker := time.NewTicker(s.cfg.EventInterval)
	defer ticker.Stop()

	var maintC <-chan time.Time
	if s.cfg.Retention > 0 {
		maint := time.NewTicker(maintenanceInterval)
		defer maint.Stop()
		maintC = maint.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := time.Now()
			for _, ps := range s.pulls {
				if now.Before(ps.nextRun) {
					continue
				}
				_ = s.pollOne(ctx, ps)
			}
		case reply := <-s.syncReq:
			reply <- s.syncEditorNow(ctx)
		case reply := <-s.mineReq:
			reply <- s.runMiner(ctx)
		case reply := <-s.reportReq:
			reply <- s.buildReport(started)
		case <-maintC:
			s.maintain(ctx)
		}
	}
}

// SyncNow polls the editor sidecar immediately and waits for the result.
func (s *Scheduler) SyncNow(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case s.syncReq <- reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MineNow runs the history miner immediately and waits for the result.
func (s *Scheduler) MineNow(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case s.mineReq <- reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports current scheduler activity.
func (s *Scheduler) Status(ctx context.Context) (Report, error) {
	reply := make(chan Report, 1)
	select {
	case s.reportReq <- reply:
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
	select {
	case rep := <-reply:
		return rep, nil
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

// deliver ingests one pushed record under the query timeout. It runs on the
// emitting adapter's goroutine.
func (s *Scheduler) deliver(ctx context.Context, rec adapters.Record) {
	ictx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	if err := s.ingest.Ingest(ictx, rec); err != nil {
		s.warnf("record from %s rejected: %v", rec.Source, err)
	}
}

// pollOne runs one poll cycle for ps: seed, poll, ingest, advance. On any
// failure the cursor stays put so the batch is retried; downstream
// fingerprints make the replay harmless.
func (s *Scheduler) pollOne(ctx context.Context, ps *pullState) error {
	if ps.editor {
		s.seedEditorCursor(ctx, ps)
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	recs, cursor, err := ps.adapter.Poll(pctx, ps.cursor)
	cancel()
	if err != nil {
		s.recordFailure(ps, fmt.Errorf("%s poll failed: %w", ps.adapter.ID(), err))
		return err
	}

	for _, rec := range recs {
		ictx, icancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
		ierr := s.ingest.Ingest(ictx, rec)
		icancel()
		if ierr != nil {
			err = fmt.Errorf("%s record rejected: %w", ps.adapter.ID(), ierr)
			s.recordFailure(ps, err)
			return err
		}
	}

	ps.failures = 0
	ps.cursor = cursor
	ps.nextRun = time.Now().Add(ps.interval)
	s.saveCursor(ctx, ps)
	if len(recs) > 0 {
		s.logf("%s delivered %d records", ps.adapter.ID(), len(recs))
	}
	return nil
}

// recordFailure bumps ps's failure count and schedules the retry, backing
// off exponentially once the source has failed three times in a row.
func (s *Scheduler) recordFailure(ps *pullState, err error) {
	ps.failures++
	delay := ps.interval
	if ps.failures >= failureThreshold {
		delay = s.backoffDelay(ps.failures)
		s.warnf("%v (failure %d, next attempt in %v)", err, ps.failures, delay)
	} else {
		s.warnf("%v", err)
	}
	ps.nextRun = time.Now().Add(delay)
}

func (s *Scheduler) backoffDelay(failures int) time.Duration {
	shift := failures - failureThreshold
	if shift > 30 {
		return s.cfg.BackoffCap
	}
	d := backoffBase << shift
	if d <= 0 || d > s.cfg.BackoffCap {
		return s.cfg.BackoffCap
	}
	return d
}

// seedEditorCursor floors ps's since cursor to the store's newest prompt
// timestamp. Polling from there instead of a wall-clock mark means rows the
// last run missed are still picked up.
func (s *Scheduler) seedEditorCursor(ctx context.Context, ps *pullState) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	ts, ok, err := s.store.MaxPromptTimestamp(cctx)
	if err != nil {
		s.warnf("newest prompt lookup failed: %v", err)
		return
	}
	if ok && ts.After(ps.cursor.Since) {
		ps.cursor.Since = ts
	}
}

// syncEditorNow polls every editor source immediately, regardless of
// schedule.
func (s *Scheduler) syncEditorNow(ctx context.Context) error {
	var firstErr error
	n := 0
	for _, ps := range s.pulls {
		if !ps.editor {
			continue
		}
		n++
		if err := s.pollOne(ctx, ps); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if n == 0 {
		return fmt.Errorf("no editor source configured")
	}
	return firstErr
}

// runMiner executes the one-shot historical miner under the operation
// timeout, feeding mined records straight into the ingestor.
func (s *Scheduler) runMiner(ctx context.Context) error {
	if s.miner == nil {
		return fmt.Errorf("mining not configured")
	}
	mctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	start := time.Now()
	n := 0
	err := s.miner.Run(mctx, func(rec adapters.Record) {
		if ierr := s.ingest.Ingest(mctx, rec); ierr != nil {
			s.warnf("mined record rejected: %v", ierr)
			return
		}
		n++
	})
	if err != nil {
		return fmt.Errorf("mining failed: %w", err)
	}
	s.logf("mining ingested %d records in %v", n, time.Since(start).Round(time.Millisecond))
	return nil
}

// maintain ages out old rows and expired share links.
func (s *Scheduler) maintain(ctx context.Context) {
	mctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	res, err := s.store.Cleanup(mctx, s.cfg.Retention)
	if err != nil {
		s.warnf("retention cleanup failed: %v", err)
	} else if res != nil && res.Total > 0 {
		s.logf("retention cleanup removed %d rows", res.Total)
	}
	if n, err := s.store.PurgeExpiredShareLinks(mctx, time.Now()); err != nil {
		s.warnf("share link purge failed: %v", err)
	} else if n > 0 {
		s.logf("purged %d expired share links", n)
	}
}

func (s *Scheduler) storeEmpty(ctx context.Context) bool {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	entries, err := s.store.MaxEntryID(cctx)
	if err != nil {
		return false
	}
	prompts, err := s.store.MaxPromptID(cctx)
	if err != nil {
		return false
	}
	return entries == 0 && prompts == 0
}

func (s *Scheduler) buildReport(started []adapters.Adapter) Report {
	rep := Report{Ingested: make(map[string]int64)}
	for _, a := range started {
		rep.PushAdapters = append(rep.PushAdapters, a.ID())
	}
	for _, ps := range s.pulls {
		rep.PullAdapters = append(rep.PullAdapters, PullStatus{
			ID:       ps.adapter.ID(),
			Failures: ps.failures,
			NextRun:  ps.nextRun,
		})
	}
	counts, dropped := s.ingest.Counts()
	for kind, n := range counts {
		rep.Ingested[string(kind)] = n
	}
	rep.Dropped = dropped
	return rep
}

func cursorKey(id string) string { return "cursor:" + id }

// loadCursor restores ps's cursor from store metadata. Unreadable cursors
// are discarded so a schema change never wedges a source.
func (s *Scheduler) loadCursor(ctx context.Context, ps *pullState) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	raw, err := s.store.GetMetadata(cctx, cursorKey(ps.adapter.ID()))
	if err != nil {
		s.warnf("cursor load for %s failed: %v", ps.adapter.ID(), err)
		return
	}
	if raw == "" {
		return
	}
	var c adapters.Cursor
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		s.warnf("stored cursor for %s unreadable, starting fresh: %v", ps.adapter.ID(), err)
		return
	}
	ps.cursor = c
}

func (s *Scheduler) saveCursor(ctx context.Context, ps *pullState) {
	buf, err := json.Marshal(ps.cursor)
	if err != nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	if err := s.store.SetMetadata(cctx, cursorKey(ps.adapter.ID()), string(buf)); err != nil {
		s.warnf("cursor save for %s failed: %v", ps.adapter.ID(), err)
	}
}
