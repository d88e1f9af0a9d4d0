package sync

import gosync "sync"

// taskLocks serializes the read-decide-write sequence per task identity.
// A poll cycle and a webhook delivery can race on the same mirrored task;
// without this, both can decide "create" and produce duplicate mirrors.
// Entries are never removed: the map is bounded by the set of task ids seen
// during the process lifetime.
type taskLocks struct {
	mu    gosync.Mutex
	locks map[string]*gosync.Mutex
}

func newTaskLocks() *taskLocks {
	return &taskLocks{locks: make(map[string]*gosync.Mutex)}
}

// acquire locks the mutex for key and returns its unlock function.
func (l *taskLocks) acquire(key string) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &gosync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
