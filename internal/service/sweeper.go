package service

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSweepInterval = 5 * time.Minute
	defaultSessionTTL    = 1 * time.Hour
)

// SweeperService expires idle model sessions on a periodic schedule.
type SweeperService struct {
	sessions *SessionService
	logger   *zap.Logger

	interval time.Duration
	ttl      time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewSweeperService(sessions *SessionService, ttl time.Duration, logger *zap.Logger) *SweeperService {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweeperService{
		sessions: sessions,
		logger:   logger,
		interval: defaultSweepInterval,
		ttl:      ttl,
		stopCh:   make(chan struct{}),
	}
}

func (s *SweeperService) SetInterval(d time.Duration) {
	s.interval = d
}

// Start runs the sweeper in a background goroutine.
func (s *SweeperService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("session sweeper started",
			zap.Duration("interval", s.interval),
			zap.Duration("ttl", s.ttl))

		for {
			select {
			case <-ticker.C:
				if removed := s.sessions.ExpireIdle(s.ttl); removed > 0 {
					s.logger.Info("expired idle sessions", zap.Int("count", removed))
				}
			case <-s.stopCh:
				s.logger.Info("session sweeper stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the sweeper.
func (s *SweeperService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
