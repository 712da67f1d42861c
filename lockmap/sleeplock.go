package lockmap

import "sync"

// SleepLock is a mutual-exclusion lock whose waiters block on a condition
// variable. Unlike sync.Mutex it can report whether it is held, which the
// inode layer asserts on.
type SleepLock struct {
	mu      *sync.Mutex
	cond    *sync.Cond
	held    bool
	waiters uint64
}

func MkSleepLock() *SleepLock {
	mu := new(sync.Mutex)
	return &SleepLock{mu: mu, cond: sync.NewCond(mu)}
}

func (l *SleepLock) Lock() {
	l.mu.Lock()
	for l.held {
		l.waiters++
		l.cond.Wait()
		l.waiters--
	}
	l.held = true
	l.mu.Unlock()
}

func (l *SleepLock) Unlock() {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		panic("sleeplock: unlock of unlocked lock")
	}
	l.held = false
	if l.waiters > 0 {
		l.cond.Signal()
	}
	l.mu.Unlock()
}

func (l *SleepLock) Holding() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}
