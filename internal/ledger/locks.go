package ledger

import (
	"sync"

	"github.com/google/uuid"
)

// itemLocks serializes mutations per item. Check-then-act sequences
// (reserve, FIFO consumption) run entirely under the item's lock, so two
// reservations can never both read the same available quantity.
type itemLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newItemLocks() *itemLocks {
	return &itemLocks{
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

// get returns the mutex for an item, creating it on first use. Lock
// entries are never removed; the table is bounded by the item count.
func (l *itemLocks) get(itemID uuid.UUID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[itemID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[itemID] = lock
	}
	return lock
}
