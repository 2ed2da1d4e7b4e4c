package declutter

import (
	"context"
	"fmt"

	"declutter-go/internal/dedupe"
	"declutter-go/internal/model"
)

// FindDuplicates groups the owner's live files by name and size and filters
// the groups by scope. Malformed records are skipped and logged.
func (s *Service) FindDuplicates(ctx context.Context, ownerID int64, scope dedupe.Scope) (*dedupe.Detection, error) {
	files, err := s.inventory(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	d := dedupe.Detect(files, scope)
	s.logSkipped(ownerID, d.Skipped)
	s.logger.Debug("duplicates detected", "owner_id", ownerID, "scope", scope, "groups", len(d.Groups))
	return d, nil
}

// FindDuplicatesByHash groups the owner's live files by content hash.
func (s *Service) FindDuplicatesByHash(ctx context.Context, ownerID int64, scope dedupe.Scope) (*dedupe.Detection, error) {
	files, err := s.inventory(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	d := dedupe.DetectByHash(files, scope)
	s.logSkipped(ownerID, d.Skipped)
	return d, nil
}

// FindSimilar returns near-duplicate groups over files that are not already
// exact duplicates.
func (s *Service) FindSimilar(ctx context.Context, ownerID int64) ([]*dedupe.SimilarGroup, error) {
	files, err := s.inventory(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	exact := dedupe.Detect(files, dedupe.ScopeAll)
	return dedupe.FindSimilar(files, exact.Groups), nil
}

// FindGroup returns the group with key from a fresh detection, or nil.
func (s *Service) FindGroup(ctx context.Context, ownerID int64, key dedupe.GroupKey, scope dedupe.Scope) (*dedupe.DuplicateGroup, error) {
	d, err := s.FindDuplicates(ctx, ownerID, scope)
	if err != nil {
		return nil, err
	}
	for _, g := range d.Groups {
		if g.Key == key {
			return g, nil
		}
	}
	return nil, nil
}

// ResolveGroup rebuilds a caller-described group from the owner's live files.
// Every id must name a live file of the owner.
func (s *Service) ResolveGroup(ctx context.Context, ownerID int64, key dedupe.GroupKey, fileIDs []int64) (*dedupe.DuplicateGroup, error) {
	if len(fileIDs) < 2 {
		return nil, fmt.Errorf("%w: a group needs at least two files", ErrInvalidGroup)
	}

	seen := make(map[int64]bool, len(fileIDs))
	for _, id := range fileIDs {
		if seen[id] {
			return nil, fmt.Errorf("%w: file %d listed twice", ErrInvalidGroup, id)
		}
		seen[id] = true
	}

	files, err := s.database.FindFilesByIDs(ctx, ownerID, fileIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: finding files: %v", ErrInventoryFetch, err)
	}
	if len(files) != len(fileIDs) {
		found := make(map[int64]bool, len(files))
		for _, f := range files {
			found[f.ID] = true
		}
		for _, id := range fileIDs {
			if !found[id] {
				return nil, fmt.Errorf("%w: %d", ErrUnknownFile, id)
			}
		}
	}

	if key == "" {
		key = dedupe.GroupKey(fmt.Sprintf("ids:%v", fileIDs))
	}
	return dedupe.NewDuplicateGroup(key, files), nil
}

func (s *Service) logSkipped(ownerID int64, skipped []dedupe.GroupingError) {
	for _, e := range skipped {
		s.logger.Warn("skipping malformed file record", "owner_id", ownerID, "file_id", e.FileID, "reason", e.Reason)
	}
}

// accessCounts maps file id to access count for the owner.
func (s *Service) accessCounts(ctx context.Context, ownerID int64) (map[int64]int, error) {
	patterns, err := s.database.ListUsagePatterns(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing usage patterns: %w", err)
	}
	counts := make(map[int64]int, len(patterns))
	for _, p := range patterns {
		counts[p.FileID] = p.AccessCount
	}
	return counts, nil
}

func fileIDs(files []*model.FileRecord) []int64 {
	ids := make([]int64, len(files))
	for i, f := range files {
		ids[i] = f.ID
	}
	return ids
}
