package declutter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"declutter-go/internal/cost"
	"declutter-go/internal/dedupe"
	"declutter-go/internal/model"
)

// Recommendation priorities, 5 being the most urgent.
const (
	PriorityDuplicates = 5
	PriorityCompress   = 3
	PriorityArchive    = 2
)

// GenerateRecommendations evaluates the recommendation rules over the owner's
// live files and persists the results as pending.
func (s *Service) GenerateRecommendations(ctx context.Context, ownerID int64) ([]*model.OptimizationRecommendation, error) {
	files, err := s.inventory(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	recs := s.recommend(ownerID, files, s.now())
	if len(recs) == 0 {
		return recs, nil
	}
	if err := s.database.SaveRecommendations(ctx, recs); err != nil {
		return nil, fmt.Errorf("saving recommendations: %w", err)
	}
	return recs, nil
}

// recommend runs the three rule passes. Each pass yields at most one
// recommendation. Savings are estimated in GB.
func (s *Service) recommend(ownerID int64, files []*model.FileRecord, now time.Time) []*model.OptimizationRecommendation {
	var recs []*model.OptimizationRecommendation
	add := func(t model.RecommendationType, title, desc string, ids []int64, savings float64, priority int) {
		recs = append(recs, &model.OptimizationRecommendation{
			OwnerID:          ownerID,
			Type:             t,
			Title:            title,
			Description:      desc,
			FileIDs:          ids,
			PotentialSavings: savings,
			Priority:         priority,
			Status:           model.StatusPending,
			CreatedAt:        now,
		})
	}

	if groups := dedupe.Detect(files, dedupe.ScopeAll).Groups; len(groups) > 0 {
		var ids []int64
		var wasted int64
		for _, g := range groups {
			ids = append(ids, g.FileIDs()[1:]...)
			wasted += g.WastedSize
		}
		add(model.RecommendDelete,
			"Remove Duplicate Files",
			fmt.Sprintf("Found %d groups of duplicate files that can be cleaned up", len(groups)),
			ids, cost.GB(wasted), PriorityDuplicates)
	}

	var large []*model.FileRecord
	for _, f := range files {
		if f.Size() > s.recs.LargeFileBytes {
			large = append(large, f)
		}
	}
	if len(large) > 0 {
		add(model.RecommendCompress,
			"Compress Large Files",
			fmt.Sprintf("Found %d large files that could be compressed to save space", len(large)),
			capIDs(large, s.recs.MaxCompressIDs), cost.GB(totalSize(large))*s.recs.CompressRatio, PriorityCompress)
	}

	cutoff := now.AddDate(0, 0, -s.recs.ArchiveAfterDays)
	var old []*model.FileRecord
	for _, f := range files {
		if f.LastModified != nil && f.LastModified.Before(cutoff) {
			old = append(old, f)
		}
	}
	if len(old) > 0 {
		add(model.RecommendArchive,
			"Archive Old Files",
			fmt.Sprintf("Found %d files not modified in over %d days that could be archived", len(old), s.recs.ArchiveAfterDays),
			capIDs(old, s.recs.MaxArchiveIDs), cost.GB(totalSize(old))*s.recs.ArchiveRatio, PriorityArchive)
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Priority > recs[j].Priority })
	return recs
}

func capIDs(files []*model.FileRecord, n int) []int64 {
	if n > 0 && len(files) > n {
		files = files[:n]
	}
	return fileIDs(files)
}

func totalSize(files []*model.FileRecord) int64 {
	var n int64
	for _, f := range files {
		n += f.Size()
	}
	return n
}
