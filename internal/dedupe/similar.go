package dedupe

import (
	"strings"

	"declutter-go/internal/model"
)

// SimilarGroup is a set of files with related but non-identical names.
type SimilarGroup struct {
	Files     []*model.FileRecord `json:"files"`
	TotalSize int64               `json:"total_size"`
}

// FindSimilar groups files whose names differ but where one name contains the
// other (case-sensitive). Files already claimed by an exact group are ignored.
//
// The grouping is greedy and order dependent: each file is compared against the
// first unclaimed file that precedes it, and belongs to at most one group. Two
// files that are both similar to an anchor need not be similar to each other.
func FindSimilar(files []*model.FileRecord, exact []*DuplicateGroup) []*SimilarGroup {
	claimed := make(map[*model.FileRecord]bool)
	for _, g := range exact {
		for _, f := range g.Files {
			claimed[f] = true
		}
	}

	var groups []*SimilarGroup
	for i, anchor := range files {
		if anchor == nil || anchor.Name == "" || claimed[anchor] {
			continue
		}

		members := []*model.FileRecord{anchor}
		for _, other := range files[i+1:] {
			if other == nil || other.Name == "" || claimed[other] {
				continue
			}
			if other.Name == anchor.Name {
				continue
			}
			if strings.Contains(other.Name, anchor.Name) || strings.Contains(anchor.Name, other.Name) {
				members = append(members, other)
			}
		}

		if len(members) < 2 {
			continue
		}

		g := &SimilarGroup{Files: members}
		for _, f := range members {
			claimed[f] = true
			g.TotalSize += f.Size()
		}
		groups = append(groups, g)
	}
	return groups
}
