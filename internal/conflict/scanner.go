package conflict

import (
	"context"
	"sync"
	"time"

	"github.com/carelink/homecare-scheduler/pkg/logger"
)

// Scanner owns the periodic conflict detection job. It replaces ad-hoc UI
// polling with a cancellable ticker task held by the service process.
type Scanner struct {
	service  *Service
	interval time.Duration
	logger   *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScanner creates a periodic conflict scanner
func NewScanner(service *Service, interval time.Duration, log *logger.Logger) *Scanner {
	return &Scanner{service: service, interval: interval, logger: log}
}

// Start launches the scan loop. Calling Start on a running scanner is a
// no-op.
func (s *Scanner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)
	s.logger.Infof("Conflict scanner started with interval %s", s.interval)
}

// Stop cancels the scan loop and waits for it to exit. A scan in flight is
// cancelled; its partial results are discarded, not partially committed.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("Conflict scanner stopped")
}

func (s *Scanner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.service.Scan(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.WithError(err).Error("Periodic conflict scan failed")
			}
		}
	}
}
