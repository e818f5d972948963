package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/config"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/models"
	syncsvc "github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/sync"
)

const checkInterval = 30 * time.Second

// Service runs the reconciliation engine on the configured schedule.
type Service struct {
	configManager *config.Manager
	engine        *syncsvc.Engine

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	nextRun time.Time
	lastRun time.Time
}

// NewService creates the scheduler service.
func NewService(configManager *config.Manager, engine *syncsvc.Engine) *Service {
	return &Service{
		configManager: configManager,
		engine:        engine,
	}
}

// Start begins the scheduler background loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.schedulerLoop()

	log.Println("[scheduler] scheduler started")
	return nil
}

// Stop gracefully stops the scheduler, waiting for any in-flight sync up
// to the context deadline.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[scheduler] scheduler stopped")
	case <-ctx.Done():
		log.Println("[scheduler] scheduler stopped (timeout)")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// NextRun returns the next scheduled sync time, zero when scheduling is
// disabled.
func (s *Service) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextRun
}

// LastRun returns when the last scheduled sync started.
func (s *Service) LastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

// RunNow triggers an immediate full sync in the background.
func (s *Service) RunNow() error {
	if s.engine.Running() {
		return errors.New("a sync is already running")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSync()
	}()
	return nil
}

func (s *Service) schedulerLoop() {
	defer s.wg.Done()

	s.recomputeNextRun(time.Now())

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick(time.Now())
		}
	}
}

func (s *Service) tick(now time.Time) {
	s.mu.RLock()
	next := s.nextRun
	s.mu.RUnlock()

	if next.IsZero() {
		// Scheduling may have been enabled since the last check.
		s.recomputeNextRun(now)
		return
	}
	if now.Before(next) {
		return
	}
	if s.engine.Running() {
		log.Println("[scheduler] sync still running, skipping this slot")
		s.recomputeNextRun(now)
		return
	}

	s.mu.Lock()
	s.lastRun = now
	s.mu.Unlock()

	s.runSync()
	s.recomputeNextRun(time.Now())
}

func (s *Service) runSync() {
	settings, err := s.configManager.Load()
	if err != nil {
		log.Printf("[scheduler] failed to load settings: %v", err)
		return
	}

	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}

	log.Println("[scheduler] starting scheduled sync")
	results, err := s.engine.SyncAll(ctx, settings, models.NopProgress)
	if err != nil {
		log.Printf("[scheduler] scheduled sync failed: %v", err)
		return
	}
	log.Printf("[scheduler] scheduled sync finished, %d lists processed", len(results))
}

func (s *Service) recomputeNextRun(now time.Time) {
	settings, err := s.configManager.Load()
	if err != nil {
		log.Printf("[scheduler] failed to load settings: %v", err)
		return
	}

	next := NextRunAfter(settings.Schedule, now)

	s.mu.Lock()
	changed := !next.Equal(s.nextRun)
	s.nextRun = next
	s.mu.Unlock()

	if changed && !next.IsZero() {
		log.Printf("[scheduler] next sync at %s", next.Format(time.RFC1123))
	}
}
