package remote

import (
	"context"
	"fmt"
	"sync"

	"declutter-go/internal/declutter"
)

// MemoryDeleter records deletions in memory. Ids listed in Fail return an
// error instead.
type MemoryDeleter struct {
	mu      sync.Mutex
	deleted []string
	fail    map[string]error
}

var _ declutter.RemoteDeleter = (*MemoryDeleter)(nil)

func NewMemoryDeleter() *MemoryDeleter {
	return &MemoryDeleter{fail: make(map[string]error)}
}

// FailOn makes deletes of id return err. A nil err clears it.
func (d *MemoryDeleter) FailOn(id string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.fail, id)
		return
	}
	d.fail[id] = err
}

func (d *MemoryDeleter) DeleteRemoteFile(ctx context.Context, cloudNativeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.fail[cloudNativeID]; ok {
		return fmt.Errorf("memory: %w", err)
	}
	d.deleted = append(d.deleted, cloudNativeID)
	return nil
}

// Deleted returns the deleted ids in call order.
func (d *MemoryDeleter) Deleted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.deleted...)
}
