package queue

import "sync/atomic"

// Sequencer numbers submitted jobs so log lines from one fan-out can be
// correlated.
type Sequencer struct{ n atomic.Uint64 }

// Next returns the next job number, starting at 1.
func (s *Sequencer) Next() uint64 { return s.n.Add(1) }
