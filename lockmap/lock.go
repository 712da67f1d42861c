// Package lockmap provides blocking locks for long critical sections.
//
// LockMap behaves as if it held one lock for every uint64 (block numbers in
// this file system). Lock state is only materialized while a lock is held or
// waited on, spread over NSHARD shards so unrelated addresses rarely contend
// on the same mutex.
package lockmap

import (
	"sync"
)

type lockState struct {
	held    bool
	cond    *sync.Cond
	waiters uint64
}

type lockShard struct {
	mu    *sync.Mutex
	state map[uint64]*lockState
}

func mkLockShard() *lockShard {
	return &lockShard{
		mu:    new(sync.Mutex),
		state: make(map[uint64]*lockState),
	}
}

func (shard *lockShard) acquire(addr uint64) {
	shard.mu.Lock()
	defer shard.mu.Unlock()
	for {
		state, ok := shard.state[addr]
		if !ok {
			state = &lockState{cond: sync.NewCond(shard.mu)}
			shard.state[addr] = state
		}
		if !state.held {
			state.held = true
			return
		}
		state.waiters++
		state.cond.Wait()
		state.waiters--
	}
}

func (shard *lockShard) release(addr uint64) {
	shard.mu.Lock()
	defer shard.mu.Unlock()
	state, ok := shard.state[addr]
	if !ok || !state.held {
		panic("lockmap: release of unheld lock")
	}
	state.held = false
	if state.waiters > 0 {
		state.cond.Signal()
	} else {
		delete(shard.state, addr)
	}
}

func (shard *lockShard) holding(addr uint64) bool {
	shard.mu.Lock()
	defer shard.mu.Unlock()
	state, ok := shard.state[addr]
	return ok && state.held
}

const NSHARD uint64 = 43

type LockMap struct {
	shards []*lockShard
}

func MkLockMap() *LockMap {
	var shards []*lockShard
	for i := uint64(0); i < NSHARD; i++ {
		shards = append(shards, mkLockShard())
	}
	return &LockMap{shards: shards}
}

func (lmap *LockMap) Acquire(flataddr uint64) {
	lmap.shards[flataddr%NSHARD].acquire(flataddr)
}

func (lmap *LockMap) Release(flataddr uint64) {
	lmap.shards[flataddr%NSHARD].release(flataddr)
}

// Held reports whether some goroutine holds the lock for flataddr.
func (lmap *LockMap) Held(flataddr uint64) bool {
	return lmap.shards[flataddr%NSHARD].holding(flataddr)
}
