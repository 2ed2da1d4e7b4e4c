// Package remote holds the per-provider clients that delete files from the
// user's clouds after a merge.
package remote

import (
	"sort"

	"declutter-go/internal/cost"
	"declutter-go/internal/declutter"
)

// ErrUnsupported is returned by providers whose API cannot delete files.
var ErrUnsupported = declutter.ErrDeleteUnsupported

// Registry maps provider names to deleters. Names are matched after
// normalization, so "google_drive" and "GoogleDrive" resolve alike.
type Registry struct {
	deleters map[string]declutter.RemoteDeleter
}

var _ declutter.Deleters = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{deleters: make(map[string]declutter.RemoteDeleter)}
}

// Register adds d under provider, replacing any previous entry.
func (r *Registry) Register(provider string, d declutter.RemoteDeleter) {
	r.deleters[cost.NormalizeProvider(provider)] = d
}

func (r *Registry) Deleter(provider string) (declutter.RemoteDeleter, bool) {
	d, ok := r.deleters[cost.NormalizeProvider(provider)]
	return d, ok
}

// Providers returns the registered normalized names, sorted.
func (r *Registry) Providers() []string {
	out := make([]string, 0, len(r.deleters))
	for p := range r.deleters {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
