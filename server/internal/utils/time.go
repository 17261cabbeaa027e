package utils

import (
	"sync"
	"time"
)

// GetCurrentTimestampMS returns the current Unix timestamp in milliseconds.
func GetCurrentTimestampMS() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// IDSequence hands out ids derived from the connection time in milliseconds.
// Two calls within the same millisecond still get distinct, increasing ids.
type IDSequence struct {
	mu   sync.Mutex
	last uint64
	now  func() int64
}

// NewIDSequence returns a sequence seeded from the wall clock.
func NewIDSequence() *IDSequence {
	return &IDSequence{now: GetCurrentTimestampMS}
}

// Next returns the next id. It is safe for concurrent use.
func (s *IDSequence) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uint64(s.now())
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id
}
