package chat

import (
	"strconv"
	"sync"
	"time"
)

// IDGenerator issues thread IDs: the creation time in microseconds since the
// Unix epoch, as a decimal string. IDs are strictly increasing even when the
// clock stalls or steps back.
type IDGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewIDGenerator returns a generator reading the given clock; nil means
// time.Now.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns a new ID and the time it encodes.
func (g *IDGenerator) Next() (string, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	us := g.now().UnixMicro()
	if us <= g.last {
		us = g.last + 1
	}
	g.last = us
	return strconv.FormatInt(us, 10), time.UnixMicro(us)
}

// threadLocks hands out one mutex per thread ID, dropping entries nobody
// holds or waits on.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*threadLock)}
}

// lock blocks until the caller owns id and returns the matching unlock.
func (l *threadLocks) lock(id string) func() {
	l.mu.Lock()
	tl, ok := l.locks[id]
	if !ok {
		tl = &threadLock{}
		l.locks[id] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// held returns the number of IDs with a holder or waiter.
func (l *threadLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
