package testutil

import (
	"context"
	"sync"

	"declutter-go/internal/declutter"
	"declutter-go/internal/remote"
)

// MemoryDeleters registers one MemoryDeleter per provider and returns them
// keyed by the given names.
func MemoryDeleters(providers ...string) (*remote.Registry, map[string]*remote.MemoryDeleter) {
	reg := remote.NewRegistry()
	byName := make(map[string]*remote.MemoryDeleter, len(providers))
	for _, p := range providers {
		d := remote.NewMemoryDeleter()
		reg.Register(p, d)
		byName[p] = d
	}
	return reg, byName
}

// FailingDeleter fails every call with Err and counts the calls.
type FailingDeleter struct {
	Err error

	mu    sync.Mutex
	calls int
}

var _ declutter.RemoteDeleter = (*FailingDeleter)(nil)

func (d *FailingDeleter) DeleteRemoteFile(context.Context, string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.Err
}

func (d *FailingDeleter) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
