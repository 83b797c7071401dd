package scheduler

import (
	"context"
	"time"

	"github.com/dcervantes/rutalert/internal/cleanup"
)

// Scheduler runs the token sanitizer on a fixed interval, standing in for
// the platform cron that fires the cleanup job every 24 hours.
type Scheduler struct {
	sanitizer *cleanup.Sanitizer
	stopChan  chan struct{}
	interval  time.Duration
}

func New(sanitizer *cleanup.Sanitizer, intervalHours int) *Scheduler {
	return &Scheduler{
		sanitizer: sanitizer,
		interval:  time.Duration(intervalHours) * time.Hour,
		stopChan:  make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sanitizer.Run(context.Background())
			case <-s.stopChan:
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.stopChan <- struct{}{}
}
