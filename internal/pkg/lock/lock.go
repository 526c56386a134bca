// Package lock provides per-member locking so that a member's ledger,
// token and spin mutations are serialized within the process. The
// database's conditional updates remain the cross-process safety net;
// this keeps a single process from racing itself.
package lock

import "sync"

// memberMutex wraps a mutex with reference counting for cleanup.
type memberMutex struct {
	mu       sync.Mutex
	refCount int
}

// MemberLock provides per-member locking to prevent read-modify-write
// races on a member's loyalty state.
type MemberLock struct {
	locks sync.Map // map[int64]*memberMutex
	pool  sync.Pool
}

// NewMemberLock creates a new MemberLock instance.
func NewMemberLock() *MemberLock {
	return &MemberLock{
		pool: sync.Pool{
			New: func() any {
				return &memberMutex{}
			},
		},
	}
}

// getLock retrieves or creates a mutex for the given member ID.
func (ml *MemberLock) getLock(memberID int64) *memberMutex {
	if v, ok := ml.locks.Load(memberID); ok {
		return v.(*memberMutex)
	}

	newLock := ml.pool.Get().(*memberMutex)
	newLock.refCount = 0

	// Store or load existing (handles race condition)
	actual, loaded := ml.locks.LoadOrStore(memberID, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool
		ml.pool.Put(newLock)
	}
	return actual.(*memberMutex)
}

// Lock acquires the lock for a member.
// This should be called before any state-mutating operation.
func (ml *MemberLock) Lock(memberID int64) {
	lock := ml.getLock(memberID)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for a member.
func (ml *MemberLock) Unlock(memberID int64) {
	if v, ok := ml.locks.Load(memberID); ok {
		lock := v.(*memberMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (ml *MemberLock) TryLock(memberID int64) bool {
	lock := ml.getLock(memberID)
	if lock.mu.TryLock() {
		lock.refCount++
		return true
	}
	return false
}

// WithLock executes a function while holding the member's lock.
func (ml *MemberLock) WithLock(memberID int64, fn func() error) error {
	ml.Lock(memberID)
	defer ml.Unlock(memberID)
	return fn()
}
