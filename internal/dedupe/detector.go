package dedupe

import (
	"fmt"
	"sort"

	"declutter-go/internal/model"
)

// Scope filters which duplicate groups a detection returns.
type Scope string

const (
	ScopeSameCloud  Scope = "same_cloud"
	ScopeCrossCloud Scope = "cross_cloud"
	ScopeAll        Scope = "all"
)

// ParseScope converts a user-supplied scope. The empty string means all.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeSameCloud, ScopeCrossCloud:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("unknown scope: %q", s)
	}
}

// DuplicateGroup is a set of two or more files considered copies of each other.
// It is derived per run and never persisted.
type DuplicateGroup struct {
	Key           GroupKey            `json:"group_key"`
	Files         []*model.FileRecord `json:"files"`
	Providers     []string            `json:"providers"`
	TotalSize     int64               `json:"total_size"`
	WastedSize    int64               `json:"wasted_size"`
	HashConfirmed bool                `json:"hash_confirmed"`
}

// NewDuplicateGroup builds a group and computes its aggregate stats.
// WastedSize is total minus the largest member.
func NewDuplicateGroup(key GroupKey, files []*model.FileRecord) *DuplicateGroup {
	g := &DuplicateGroup{Key: key, Files: files}
	seen := make(map[string]bool)
	var largest int64
	for _, f := range files {
		size := f.Size()
		g.TotalSize += size
		if size > largest {
			largest = size
		}
		if !seen[f.Provider] {
			seen[f.Provider] = true
			g.Providers = append(g.Providers, f.Provider)
		}
	}
	sort.Strings(g.Providers)
	g.WastedSize = g.TotalSize - largest
	return g
}

// CrossCloud reports whether the group spans more than one provider.
func (g *DuplicateGroup) CrossCloud() bool {
	return len(g.Providers) > 1
}

// FileIDs returns member ids in group order.
func (g *DuplicateGroup) FileIDs() []int64 {
	ids := make([]int64, len(g.Files))
	for i, f := range g.Files {
		ids[i] = f.ID
	}
	return ids
}

// Detection is the full output of a detector run.
type Detection struct {
	Groups       []*DuplicateGroup   `json:"groups"`
	Unverifiable []*model.FileRecord `json:"unverifiable,omitempty"`
	Skipped      []GroupingError     `json:"-"`
}

// TotalWasted sums WastedSize over all groups.
func (d *Detection) TotalWasted() int64 {
	var n int64
	for _, g := range d.Groups {
		n += g.WastedSize
	}
	return n
}

// Detect finds duplicates by name and size. A bucket whose members all carry a
// content hash is re-validated by hash: it is split per hash and only sub-buckets
// with two or more members survive.
func Detect(files []*model.FileRecord, scope Scope) *Detection {
	grouping, _ := Group(files, KeyNameSize)

	var groups []*DuplicateGroup
	for _, key := range grouping.Keys {
		groups = append(groups, confirmByHash(key, grouping.Buckets[key])...)
	}

	return &Detection{
		Groups:  applyScope(groups, scope),
		Skipped: grouping.Skipped,
	}
}

// DetectByHash finds duplicates by content hash alone.
// Files without a hash are reported as unverifiable.
func DetectByHash(files []*model.FileRecord, scope Scope) *Detection {
	grouping, _ := Group(files, KeyContentHash)

	var groups []*DuplicateGroup
	for _, key := range grouping.Keys {
		g := NewDuplicateGroup(key, grouping.Buckets[key])
		g.HashConfirmed = true
		groups = append(groups, g)
	}

	return &Detection{
		Groups:       applyScope(groups, scope),
		Unverifiable: grouping.Unverifiable,
		Skipped:      grouping.Skipped,
	}
}

func confirmByHash(key GroupKey, members []*model.FileRecord) []*DuplicateGroup {
	for _, f := range members {
		if f.ContentHash == "" {
			return []*DuplicateGroup{NewDuplicateGroup(key, members)}
		}
	}

	var hashes []string
	byHash := make(map[string][]*model.FileRecord)
	for _, f := range members {
		if _, ok := byHash[f.ContentHash]; !ok {
			hashes = append(hashes, f.ContentHash)
		}
		byHash[f.ContentHash] = append(byHash[f.ContentHash], f)
	}

	if len(hashes) == 1 {
		g := NewDuplicateGroup(key, members)
		g.HashConfirmed = true
		return []*DuplicateGroup{g}
	}

	var groups []*DuplicateGroup
	for _, h := range hashes {
		if len(byHash[h]) < 2 {
			continue
		}
		g := NewDuplicateGroup(GroupKey(fmt.Sprintf("%s#%s", key, h)), byHash[h])
		g.HashConfirmed = true
		groups = append(groups, g)
	}
	return groups
}

func applyScope(groups []*DuplicateGroup, scope Scope) []*DuplicateGroup {
	switch scope {
	case ScopeCrossCloud:
		var out []*DuplicateGroup
		for _, g := range groups {
			if g.CrossCloud() {
				out = append(out, g)
			}
		}
		return out
	case ScopeSameCloud:
		var out []*DuplicateGroup
		for _, g := range groups {
			out = append(out, splitByProvider(g)...)
		}
		return out
	default:
		return groups
	}
}

// splitByProvider returns the per-provider subsets of g that are duplicates on their own.
func splitByProvider(g *DuplicateGroup) []*DuplicateGroup {
	if !g.CrossCloud() {
		return []*DuplicateGroup{g}
	}

	var providers []string
	byProvider := make(map[string][]*model.FileRecord)
	for _, f := range g.Files {
		if _, ok := byProvider[f.Provider]; !ok {
			providers = append(providers, f.Provider)
		}
		byProvider[f.Provider] = append(byProvider[f.Provider], f)
	}

	var out []*DuplicateGroup
	for _, p := range providers {
		if len(byProvider[p]) < 2 {
			continue
		}
		sub := NewDuplicateGroup(GroupKey(fmt.Sprintf("%s@%s", g.Key, p)), byProvider[p])
		sub.HashConfirmed = g.HashConfirmed
		out = append(out, sub)
	}
	return out
}
