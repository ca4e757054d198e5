package relay

import (
	"sync"
	"sync/atomic"

	"github.com/mamadbah2/chatrelay/internal/service/media"
)

// Stats counts relay outcomes since process start.
type Stats struct {
	receivedCount  atomic.Int64
	broadcastCount atomic.Int64

	mu            sync.Mutex
	drops         map[string]int64
	mediaFailures map[media.Step]int64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Received      int64
	Broadcast     int64
	Dropped       map[string]int64
	MediaFailures map[string]int64
}

// TotalDropped sums drops over all reasons.
func (s Snapshot) TotalDropped() int64 {
	var total int64
	for _, n := range s.Dropped {
		total += n
	}
	return total
}

// NewStats returns zeroed counters.
func NewStats() *Stats {
	return &Stats{
		drops:         make(map[string]int64),
		mediaFailures: make(map[media.Step]int64),
	}
}

func (s *Stats) received()    { s.receivedCount.Add(1) }
func (s *Stats) broadcasted() { s.broadcastCount.Add(1) }

func (s *Stats) dropped(reason string) {
	s.mu.Lock()
	s.drops[reason]++
	s.mu.Unlock()
}

func (s *Stats) mediaFailed(step media.Step) {
	s.mu.Lock()
	s.mediaFailures[step]++
	s.mu.Unlock()
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Received:      s.receivedCount.Load(),
		Broadcast:     s.broadcastCount.Load(),
		Dropped:       make(map[string]int64, len(s.drops)),
		MediaFailures: make(map[string]int64, len(s.mediaFailures)),
	}
	for reason, n := range s.drops {
		snap.Dropped[reason] = n
	}
	for step, n := range s.mediaFailures {
		snap.MediaFailures[string(step)] = n
	}
	return snap
}
