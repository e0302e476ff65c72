package app

import (
	"sync"

	"github.com/dkeye/VoiceHub/internal/domain"
)

// Sequencer serializes work per identity. Different identities never wait
// on each other; entries are dropped once nobody holds or waits for them.
type Sequencer struct {
	mu    sync.Mutex
	locks map[domain.UserID]*seqEntry
}

type seqEntry struct {
	mu   sync.Mutex
	refs int
}

func NewSequencer() *Sequencer {
	return &Sequencer{locks: make(map[domain.UserID]*seqEntry)}
}

// Lock enters uid's critical section and returns the func that leaves it.
func (s *Sequencer) Lock(uid domain.UserID) (unlock func()) {
	s.mu.Lock()
	e, ok := s.locks[uid]
	if !ok {
		e = &seqEntry{}
		s.locks[uid] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			s.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(s.locks, uid)
			}
			s.mu.Unlock()
		})
	}
}

// Len reports how many identities currently hold or wait for a section.
func (s *Sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
