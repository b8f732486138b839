package syncer

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/feedcal/feedcal/models"
	"github.com/robfig/cron/v3"
)

const (
	// staggerBudget is divided evenly across the connections of one cycle;
	// staggerCeiling caps the per-connection share.
	staggerBudget  = 60 * time.Second
	staggerCeiling = 5 * time.Second
)

// SchedulerStatus answers the status query.
type SchedulerStatus struct {
	Running    bool   `json:"running"`
	Interval   string `json:"interval"`
	InProgress bool   `json:"in_progress"`
}

// Scheduler periodically drives reconciliation for every active connection.
// Connections are processed strictly sequentially within a cycle, each
// preceded by a stagger delay, so no burst of simultaneous feed requests is
// ever issued and one slow feed can only delay, never break, the rest.
type Scheduler struct {
	service  *Service
	store    Store
	interval time.Duration

	cron     *cron.Cron
	running  atomic.Bool
	inFlight atomic.Bool
}

func NewScheduler(service *Service, store Store, interval time.Duration) *Scheduler {
	return &Scheduler{
		service:  service,
		store:    store,
		interval: interval,
		cron:     cron.New(),
	}
}

// Start launches the poll loop. The first cycle runs immediately; later
// cycles fire on the configured interval.
func (s *Scheduler) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already running")
	}

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.RunCycle(context.Background())
	})
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("scheduling sync cycle: %w", err)
	}

	go s.RunCycle(context.Background())
	s.cron.Start()
	log.Printf("Feed sync scheduler started, interval %s", s.interval)
	return nil
}

// Stop cancels the pending timer. An in-flight cycle is left to finish.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.cron.Stop()
	log.Println("Feed sync scheduler stopped")
}

// TriggerSync runs one cycle synchronously. It is rejected, not queued,
// when a cycle is already in progress.
func (s *Scheduler) TriggerSync(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		log.Println("Manual sync rejected: a cycle is already in progress")
		return fmt.Errorf("a sync cycle is already in progress")
	}
	defer s.inFlight.Store(false)
	s.cycle(ctx)
	return nil
}

// RunCycle executes one poll cycle unless one is already in flight, in
// which case the whole cycle is skipped. Cycles never overlap; this guard
// is the only inter-cycle shared state.
func (s *Scheduler) RunCycle(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		log.Println("Skipping sync cycle: previous cycle still running")
		return
	}
	defer s.inFlight.Store(false)
	s.cycle(ctx)
}

func (s *Scheduler) cycle(ctx context.Context) {
	start := time.Now()

	conns, err := s.store.ListActiveConnections()
	if err != nil {
		log.Printf("Sync cycle aborted: listing connections: %v", err)
		return
	}
	if len(conns) == 0 {
		return
	}

	delay := staggerDelay(len(conns))
	succeeded, failed := 0, 0

	for i := range conns {
		time.Sleep(delay)
		if s.syncOne(ctx, &conns[i]) {
			succeeded++
		} else {
			failed++
		}
	}

	log.Printf("Sync cycle complete: %d succeeded, %d failed, took %s",
		succeeded, failed, time.Since(start).Round(time.Millisecond))
}

// syncOne isolates a single connection's sync: a panic or failure here must
// never reach the remaining connections of the cycle.
func (s *Scheduler) syncOne(ctx context.Context, conn *models.FeedConnection) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Sync panic for connection %d (%s): %v", conn.ID, conn.Name, r)
			ok = false
		}
	}()

	outcome := s.service.SyncConnection(ctx, conn)
	if !outcome.Success {
		log.Printf("Sync failed for connection %d (%s): %s", conn.ID, conn.Name, outcome.Error)
		return false
	}
	return true
}

// Status reports the scheduler's externally visible state.
func (s *Scheduler) Status() SchedulerStatus {
	return SchedulerStatus{
		Running:    s.running.Load(),
		Interval:   s.interval.String(),
		InProgress: s.inFlight.Load(),
	}
}

// staggerDelay spreads a cycle's fetches over a fixed budget instead of
// issuing them all at once: budget divided evenly across connections, with
// a per-connection ceiling.
func staggerDelay(connections int) time.Duration {
	if connections <= 0 {
		return 0
	}
	d := staggerBudget / time.Duration(connections)
	if d > staggerCeiling {
		return staggerCeiling
	}
	return d
}
