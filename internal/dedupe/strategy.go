package dedupe

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"declutter-go/internal/model"
)

// StrategyName names a merge strategy.
type StrategyName string

const (
	KeepLargest      StrategyName = "keep_largest"
	KeepMostRecent   StrategyName = "keep_most_recent"
	KeepPrimaryCloud StrategyName = "keep_primary_cloud"
	UserChoice       StrategyName = "user_choice"
)

var (
	ErrStrategyNotFound = errors.New("strategy not found")
	ErrInvalidSelection = errors.New("invalid selection")
)

// MergeDecision says which member of a group survives a merge.
// Removed is exactly the group's files minus Kept.
type MergeDecision struct {
	GroupKey GroupKey            `json:"group_key"`
	Kept     *model.FileRecord   `json:"kept"`
	Removed  []*model.FileRecord `json:"removed"`
	Strategy StrategyName        `json:"strategy"`
}

// ReclaimedBytes is the storage freed by removing every non-kept member.
func (d *MergeDecision) ReclaimedBytes() int64 {
	var n int64
	for _, f := range d.Removed {
		n += f.Size()
	}
	return n
}

// StrategyFunc decides a merge for one group. It never touches storage.
type StrategyFunc func(g *DuplicateGroup) (*MergeDecision, error)

// StrategyOptions carries the external settings some strategies need.
type StrategyOptions struct {
	PrimaryCloud   string
	SelectedFileID int64
}

var strategies = map[StrategyName]func(StrategyOptions) StrategyFunc{
	KeepLargest:    func(StrategyOptions) StrategyFunc { return keepLargest },
	KeepMostRecent: func(StrategyOptions) StrategyFunc { return keepMostRecent },
	KeepPrimaryCloud: func(o StrategyOptions) StrategyFunc {
		return keepPrimaryCloud(o.PrimaryCloud)
	},
	UserChoice: func(o StrategyOptions) StrategyFunc {
		return userChoice(o.SelectedFileID)
	},
}

// Strategies returns the known strategy names, sorted.
func Strategies() []StrategyName {
	names := make([]StrategyName, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Lookup resolves a strategy by name.
func Lookup(name string, opts StrategyOptions) (StrategyFunc, error) {
	build, ok := strategies[StrategyName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStrategyNotFound, name)
	}
	return build(opts), nil
}

func decide(g *DuplicateGroup, kept int, name StrategyName) *MergeDecision {
	d := &MergeDecision{GroupKey: g.Key, Kept: g.Files[kept], Strategy: name}
	for i, f := range g.Files {
		if i != kept {
			d.Removed = append(d.Removed, f)
		}
	}
	return d
}

func checkGroup(g *DuplicateGroup) error {
	if g == nil || len(g.Files) == 0 {
		return fmt.Errorf("cannot merge an empty group")
	}
	return nil
}

// keepLargest keeps the first member with the maximum size.
func keepLargest(g *DuplicateGroup) (*MergeDecision, error) {
	if err := checkGroup(g); err != nil {
		return nil, err
	}
	return decide(g, largestIndex(g.Files), KeepLargest), nil
}

func largestIndex(files []*model.FileRecord) int {
	best := 0
	for i, f := range files {
		if f.Size() > files[best].Size() {
			best = i
		}
	}
	return best
}

// keepMostRecent keeps the member modified last. An unknown modification time
// counts as oldest; ties go to the earlier member.
func keepMostRecent(g *DuplicateGroup) (*MergeDecision, error) {
	if err := checkGroup(g); err != nil {
		return nil, err
	}
	best := 0
	for i, f := range g.Files {
		if newer(f.LastModified, g.Files[best].LastModified) {
			best = i
		}
	}
	return decide(g, best, KeepMostRecent), nil
}

func newer(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	return b == nil || a.After(*b)
}

// keepPrimaryCloud keeps the first member on the primary cloud, falling back to
// keep_largest when no member lives there.
func keepPrimaryCloud(primary string) StrategyFunc {
	return func(g *DuplicateGroup) (*MergeDecision, error) {
		if err := checkGroup(g); err != nil {
			return nil, err
		}
		if primary != "" {
			for i, f := range g.Files {
				if strings.EqualFold(f.Provider, primary) {
					return decide(g, i, KeepPrimaryCloud), nil
				}
			}
		}
		return keepLargest(g)
	}
}

// userChoice keeps the caller-selected file.
func userChoice(fileID int64) StrategyFunc {
	return func(g *DuplicateGroup) (*MergeDecision, error) {
		if err := checkGroup(g); err != nil {
			return nil, err
		}
		for i, f := range g.Files {
			if f.ID == fileID {
				return decide(g, i, UserChoice), nil
			}
		}
		return nil, fmt.Errorf("%w: file %d is not in group %s", ErrInvalidSelection, fileID, g.Key)
	}
}

// SelectionFactors are the per-member signals a selection policy may weigh.
type SelectionFactors struct {
	FileSizes         []int64      `json:"file_sizes"`
	ModificationDates []*time.Time `json:"modification_dates"`
	Providers         []string     `json:"providers"`
	AccessCounts      []int        `json:"access_counts"`
}

// ComputeFactors gathers selection factors for g. accessCounts may be nil.
func ComputeFactors(g *DuplicateGroup, accessCounts map[int64]int) SelectionFactors {
	var sf SelectionFactors
	for _, f := range g.Files {
		sf.FileSizes = append(sf.FileSizes, f.Size())
		sf.ModificationDates = append(sf.ModificationDates, f.LastModified)
		sf.Providers = append(sf.Providers, f.Provider)
		sf.AccessCounts = append(sf.AccessCounts, accessCounts[f.ID])
	}
	return sf
}

// SelectionPolicy picks a strategy for a group from its factors.
type SelectionPolicy func(SelectionFactors) StrategyName

// DefaultPolicy always picks keep_largest.
func DefaultPolicy(SelectionFactors) StrategyName {
	return KeepLargest
}

// Selector chooses a strategy for groups that arrive without one.
type Selector struct {
	Policy  SelectionPolicy
	Options StrategyOptions
}

// Select returns the strategy the policy recommends for g.
func (s Selector) Select(g *DuplicateGroup, accessCounts map[int64]int) (StrategyFunc, StrategyName, error) {
	policy := s.Policy
	if policy == nil {
		policy = DefaultPolicy
	}
	name := policy(ComputeFactors(g, accessCounts))
	fn, err := Lookup(string(name), s.Options)
	if err != nil {
		return nil, "", err
	}
	return fn, name, nil
}
