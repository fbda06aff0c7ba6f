package mutx

import (
	"sync"
)

// All destructive operations on the local disks and the parity tool need to
// be performed sequentially
type GlobalLocks struct {
	locks map[string]struct{}
	mux   sync.Mutex
}

// NewGlobalLocks returns new GlobalLocks.
func NewGlobalLocks() *GlobalLocks {
	return &GlobalLocks{
		locks: map[string]struct{}{},
	}
}

// TryAcquire tries to acquire the lock for operating on Id and returns true if successful.
// If another operation is already using Id, returns false.
func (gl *GlobalLocks) TryAcquire(id string) bool {
	gl.mux.Lock()
	defer gl.mux.Unlock()
	if _, ok := gl.locks[id]; ok {
		return false
	}
	gl.locks[id] = struct{}{}
	return true
}

// Release deletes the lock on Id.
func (gl *GlobalLocks) Release(id string) {
	gl.mux.Lock()
	defer gl.mux.Unlock()
	delete(gl.locks, id)
}
