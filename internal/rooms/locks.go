package rooms

import (
	"context"
	"sync"
)

// lockTable hands out one mutex per room. Entries are dropped once nobody holds or waits on them.
type lockTable struct {
	mu    sync.Mutex
	rooms map[RoomName]*roomLock
}

type roomLock struct {
	slot chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{rooms: make(map[RoomName]*roomLock)}
}

// acquire blocks until the room is free or ctx is done.
func (t *lockTable) acquire(ctx context.Context, name RoomName) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	lock, ok := t.rooms[name]
	if !ok {
		lock = &roomLock{slot: make(chan struct{}, 1)}
		t.rooms[name] = lock
	}
	lock.refs++
	t.mu.Unlock()

	select {
	case lock.slot <- struct{}{}:
	case <-ctx.Done():
		t.unref(name, lock)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.slot
			t.unref(name, lock)
		})
	}, nil
}

func (t *lockTable) unref(name RoomName, lock *roomLock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(t.rooms, name)
	}
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rooms)
}
