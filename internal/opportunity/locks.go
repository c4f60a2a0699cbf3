package opportunity

import "sync"

// seatLocks serializes admission decisions per opportunity. The decision
// (read seats, charge, commit) runs under the opportunity's lock so the
// loser of a race re-reads the moved snapshot instead of double-charging
// or over-committing the last seat.
type seatLocks struct {
	l sync.Mutex
	m map[int64]*sync.Mutex
}

func newSeatLocks() *seatLocks {
	return &seatLocks{m: make(map[int64]*sync.Mutex)}
}

func (sl *seatLocks) Get(opportunityID int64) *sync.Mutex {
	sl.l.Lock()
	mu, ok := sl.m[opportunityID]
	if !ok {
		mu = &sync.Mutex{}
		sl.m[opportunityID] = mu
	}
	sl.l.Unlock()
	return mu
}
