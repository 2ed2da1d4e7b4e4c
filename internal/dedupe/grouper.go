package dedupe

import (
	"fmt"

	"declutter-go/internal/model"
)

// KeyStrategy selects the identity signal used to bucket candidate duplicates.
type KeyStrategy string

const (
	// KeyNameSize buckets by exact (case-sensitive) name and size.
	KeyNameSize KeyStrategy = "name_size"
	// KeyContentHash buckets by content hash. Files without a hash are unverifiable.
	KeyContentHash KeyStrategy = "content_hash"
)

// GroupKey identifies a bucket. It is stable across runs for the same inventory.
type GroupKey string

func nameSizeKey(f *model.FileRecord) GroupKey {
	return GroupKey(fmt.Sprintf("ns:%s:%d", f.Name, f.Size()))
}

func hashKey(hash string) GroupKey {
	return GroupKey("h:" + hash)
}

// GroupingError describes a record that was excluded from grouping.
// It is collected, never returned as a failure.
type GroupingError struct {
	Index  int
	FileID int64
	Reason string
}

func (e GroupingError) Error() string {
	return fmt.Sprintf("skipping file at index %d (id %d): %s", e.Index, e.FileID, e.Reason)
}

// Grouping is the result of bucketing a file list.
// Only buckets with two or more members are retained.
type Grouping struct {
	Keys         []GroupKey // first-seen order
	Buckets      map[GroupKey][]*model.FileRecord
	Unverifiable []*model.FileRecord
	Skipped      []GroupingError
}

// Group buckets files by the given identity key. It never mutates its input.
func Group(files []*model.FileRecord, strategy KeyStrategy) (*Grouping, error) {
	if strategy != KeyNameSize && strategy != KeyContentHash {
		return nil, fmt.Errorf("unknown key strategy: %q", strategy)
	}

	g := &Grouping{Buckets: make(map[GroupKey][]*model.FileRecord)}
	var order []GroupKey

	for i, f := range files {
		if reason := validate(f); reason != "" {
			var id int64
			if f != nil {
				id = f.ID
			}
			g.Skipped = append(g.Skipped, GroupingError{Index: i, FileID: id, Reason: reason})
			continue
		}

		var key GroupKey
		switch strategy {
		case KeyNameSize:
			key = nameSizeKey(f)
		case KeyContentHash:
			if f.ContentHash == "" {
				g.Unverifiable = append(g.Unverifiable, f)
				continue
			}
			key = hashKey(f.ContentHash)
		}

		if _, ok := g.Buckets[key]; !ok {
			order = append(order, key)
		}
		g.Buckets[key] = append(g.Buckets[key], f)
	}

	for _, key := range order {
		if len(g.Buckets[key]) < 2 {
			delete(g.Buckets, key)
			continue
		}
		g.Keys = append(g.Keys, key)
	}
	return g, nil
}

// validate returns a reason when the record lacks a field grouping depends on.
func validate(f *model.FileRecord) string {
	switch {
	case f == nil:
		return "nil record"
	case f.Name == "":
		return "missing name"
	case f.Provider == "":
		return "missing provider"
	case f.SizeBytes != nil && *f.SizeBytes < 0:
		return "negative size"
	}
	return ""
}
