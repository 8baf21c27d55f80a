package hls

import "sync"

// sequencer releases segments strictly in discovery order even though
// downloads complete out of order. A nil segment marks a gap (failed or
// dropped download) and only advances the cursor.
type sequencer struct {
	mu   sync.Mutex
	next uint64
	held map[uint64]*Segment
	emit func(Segment)
}

func newSequencer(emit func(Segment)) *sequencer {
	return &sequencer{
		held: make(map[uint64]*Segment),
		emit: emit,
	}
}

// deliver records the outcome for seq and flushes every contiguous ready
// segment. emit is called with the lock held so sink calls never overlap.
func (s *sequencer) deliver(seq uint64, seg *Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq < s.next {
		return
	}
	s.held[seq] = seg

	for {
		ready, ok := s.held[s.next]
		if !ok {
			return
		}
		delete(s.held, s.next)
		s.next++
		if ready != nil {
			s.emit(*ready)
		}
	}
}

// buffered returns how many completed downloads wait for an earlier one.
func (s *sequencer) buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held)
}
