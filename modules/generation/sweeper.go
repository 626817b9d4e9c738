package generation

import (
	"context"
	"log"
	"time"
)

// Sweeper periodically runs the retention cleanup over the job store.
type Sweeper struct {
	queue    *Queue
	interval time.Duration
	stop     chan struct{}
}

// NewSweeper creates a sweeper over the given queue.
func NewSweeper(queue *Queue, interval time.Duration) *Sweeper {
	return &Sweeper{
		queue:    queue,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start runs the sweep loop in the background until Stop is called.
func (s *Sweeper) Start() {
	log.Printf("🧹 Retention sweeper starting (every %s)", s.interval)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.queue.CleanupOldJobs(ctx)
				cancel()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the sweep loop.
func (s *Sweeper) Stop() {
	close(s.stop)
}
