package auth

import (
	"reflect"

	"gvisor.dev/gvisor/pkg/sync"
	"gvisor.dev/gvisor/pkg/sync/locking"
)

// ucountsMutex is sync.Mutex with the correctness validator.
type ucountsMutex struct {
	mu sync.Mutex
}

var ucountsprefixIndex *locking.MutexClass

// Lock locks m.
// +checklocksignore
func (m *ucountsMutex) Lock() {
	locking.AddGLock(ucountsprefixIndex, -1)
	m.mu.Lock()
}

// Unlock unlocks m.
// +checklocksignore
func (m *ucountsMutex) Unlock() {
	locking.DelGLock(ucountsprefixIndex, -1)
	m.mu.Unlock()
}

func init() {
	ucountsprefixIndex = locking.NewMutexClass(reflect.TypeOf(ucountsMutex{}), nil)
}
