package runner

import "sync"

// dirLocks provides one mutex per working directory so plan and apply
// never run concurrently against the same directory.
type dirLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newDirLocks() *dirLocks {
	return &dirLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for dir and returns its release func.
func (d *dirLocks) lock(dir string) func() {
	d.mu.Lock()
	m, ok := d.locks[dir]
	if !ok {
		m = &sync.Mutex{}
		d.locks[dir] = m
	}
	d.mu.Unlock()

	m.Lock()
	return m.Unlock
}
