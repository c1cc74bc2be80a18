package internal

import (
	"context"
	"sync/atomic"
	"time"
)

// Stats logs, once per second, how many items and bytes went through a component.
type Stats struct {
	l *Logger

	itemCount atomic.Uint64
	byteCount atomic.Uint64
}

func NewStats(l *Logger) *Stats {
	return &Stats{
		l: l,
	}
}

// RunStats blocks until ctx is cancelled.
func (s *Stats) RunStats(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			itemCount := s.itemCount.Swap(0)
			byteCount := s.byteCount.Swap(0)

			if itemCount == 0 && byteCount == 0 {
				continue
			}

			s.l.Debug("throughput", "items_per_sec", itemCount, "bytes_per_sec", byteCount)
		}
	}
}

func (s *Stats) IncrementItemCount() {
	s.itemCount.Add(1)
}

func (s *Stats) IncrementByteCountBy(n int) {
	s.byteCount.Add(uint64(n))
}
