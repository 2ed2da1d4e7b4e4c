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

// SnapshotAllProviders is the cloud_provider of whole-inventory snapshots.
const SnapshotAllProviders = "all"

// Overview holds whole-inventory totals.
type Overview struct {
	TotalSize        int64   `json:"total_size"`
	TotalFiles       int     `json:"total_files"`
	DuplicateSize    int64   `json:"duplicate_size"`
	DuplicateCount   int     `json:"duplicate_count"`
	PotentialSavings float64 `json:"potential_savings"`
}

// ProviderAnalysis holds the totals of one connected provider. Duplicates are
// counted within the provider only.
type ProviderAnalysis struct {
	TotalSize        int64   `json:"total_size"`
	TotalFiles       int     `json:"total_files"`
	DuplicateSize    int64   `json:"duplicate_size"`
	DuplicateCount   int     `json:"duplicate_count"`
	PotentialSavings float64 `json:"potential_savings"`
	DuplicateGroups  int     `json:"duplicate_groups"`
}

// FileTypeStats counts files of one category.
type FileTypeStats struct {
	Count int   `json:"count"`
	Size  int64 `json:"size"`
}

// UsageSummary buckets the owner's tracked files by access frequency.
type UsageSummary struct {
	FrequentlyAccessed int            `json:"frequently_accessed"`
	RarelyAccessed     int            `json:"rarely_accessed"`
	NeverAccessed      int            `json:"never_accessed"`
	AccessFrequency    map[string]int `json:"access_frequency"`
}

// StorageAnalysisReport is the result of AnalyzeStorage.
type StorageAnalysisReport struct {
	OwnerID         int64                               `json:"owner_id"`
	Overview        Overview                            `json:"overview"`
	ByProvider      map[string]*ProviderAnalysis        `json:"by_provider"`
	FileTypes       map[string]*FileTypeStats           `json:"file_types"`
	UsagePatterns   UsageSummary                        `json:"usage_patterns"`
	Recommendations []*model.OptimizationRecommendation `json:"recommendations"`
	SnapshotID      int64                               `json:"snapshot_id"`
	GeneratedAt     time.Time                           `json:"generated_at"`
}

// AnalysisCompletedEvent is published after each analysis.
type AnalysisCompletedEvent struct {
	OwnerID          int64   `json:"owner_id"`
	SnapshotID       int64   `json:"snapshot_id"`
	TotalSize        int64   `json:"total_size"`
	PotentialSavings float64 `json:"potential_savings"`
}

// AnalyzeStorage computes the owner's storage report from a single inventory
// snapshot, then appends one analysis snapshot and the generated
// recommendations atomically. Any fetch failure fails the whole call.
// The inventory volume is checked against the plan's storage_analysis limit.
func (s *Service) AnalyzeStorage(ctx context.Context, ownerID int64) (*StorageAnalysisReport, error) {
	files, err := s.inventory(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	conns, err := s.database.ListActiveConnections(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing connections: %v", ErrInventoryFetch, err)
	}
	patterns, err := s.database.ListUsagePatterns(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing usage patterns: %v", ErrInventoryFetch, err)
	}

	var totalSize int64
	for _, f := range files {
		totalSize += f.Size()
	}
	if err := s.checkGate(ctx, AccessRequest{
		OwnerID: ownerID,
		ActorID: ownerID,
		Feature: FeatureStorageAnalysis,
		Amount:  totalSize,
	}); err != nil {
		return nil, err
	}

	now := s.now()
	report := &StorageAnalysisReport{
		OwnerID:     ownerID,
		ByProvider:  s.providerBreakdown(files, conns),
		FileTypes:   fileTypeStats(files),
		GeneratedAt: now,
	}

	report.Overview.TotalFiles = len(files)
	report.Overview.TotalSize = totalSize
	for _, p := range report.ByProvider {
		report.Overview.DuplicateSize += p.DuplicateSize
		report.Overview.DuplicateCount += p.DuplicateCount
		report.Overview.PotentialSavings += p.PotentialSavings
	}
	report.UsagePatterns = summarizeUsage(patterns)
	report.Recommendations = s.recommend(ownerID, files, now)

	snapshot := &model.StorageAnalysisSnapshot{
		OwnerID:          ownerID,
		CloudProvider:    SnapshotAllProviders,
		TotalSize:        report.Overview.TotalSize,
		FileCount:        report.Overview.TotalFiles,
		DuplicateSize:    report.Overview.DuplicateSize,
		DuplicateCount:   report.Overview.DuplicateCount,
		PotentialSavings: report.Overview.PotentialSavings,
		AnalysisDate:     now,
	}
	if err := s.database.SaveAnalysis(ctx, snapshot, report.Recommendations); err != nil {
		return nil, fmt.Errorf("saving analysis: %w", err)
	}
	report.SnapshotID = snapshot.ID

	s.logger.Info("storage analysis completed",
		"owner_id", ownerID,
		"files", report.Overview.TotalFiles,
		"duplicate_size", report.Overview.DuplicateSize,
		"recommendations", len(report.Recommendations))
	s.publish(ctx, SubjectAnalysisCompleted, AnalysisCompletedEvent{
		OwnerID:          ownerID,
		SnapshotID:       snapshot.ID,
		TotalSize:        report.Overview.TotalSize,
		PotentialSavings: report.Overview.PotentialSavings,
	})
	return report, nil
}

func (s *Service) providerBreakdown(files []*model.FileRecord, conns []*model.CloudConnection) map[string]*ProviderAnalysis {
	byProvider := make(map[string][]*model.FileRecord)
	for _, f := range files {
		byProvider[f.Provider] = append(byProvider[f.Provider], f)
	}

	out := make(map[string]*ProviderAnalysis, len(conns))
	for _, c := range conns {
		if _, done := out[c.Provider]; done {
			continue
		}
		pf := byProvider[c.Provider]
		pa := &ProviderAnalysis{TotalFiles: len(pf)}
		for _, f := range pf {
			pa.TotalSize += f.Size()
		}

		d := dedupe.Detect(pf, dedupe.ScopeAll)
		pa.DuplicateGroups = len(d.Groups)
		for _, g := range d.Groups {
			pa.DuplicateSize += g.WastedSize
			pa.DuplicateCount += len(g.Files) - 1
		}
		pa.PotentialSavings = s.costs.StorageCost(cost.GB(pa.DuplicateSize), c.Provider)
		out[c.Provider] = pa
	}
	return out
}

func fileTypeStats(files []*model.FileRecord) map[string]*FileTypeStats {
	out := make(map[string]*FileTypeStats)
	for _, f := range files {
		c := FileCategory(f.Name)
		st, ok := out[c]
		if !ok {
			st = &FileTypeStats{}
			out[c] = st
		}
		st.Count++
		st.Size += f.Size()
	}
	return out
}

func summarizeUsage(patterns []*model.UsagePattern) UsageSummary {
	u := UsageSummary{AccessFrequency: make(map[string]int)}
	for _, p := range patterns {
		freq := p.AccessFrequency
		if freq == "" {
			freq = "unknown"
		}
		u.AccessFrequency[freq]++

		switch p.AccessFrequency {
		case model.FrequencyDaily:
			u.FrequentlyAccessed++
		case model.FrequencyYearly:
			u.RarelyAccessed++
		}
		if p.AccessCount == 0 {
			u.NeverAccessed++
		}
	}
	return u
}

// SavingsReport projects the owner's achievable savings.
type SavingsReport struct {
	OwnerID int64 `json:"owner_id"`
	// TotalSavings is the monthly cost of the duplicate bytes across providers.
	TotalSavings float64            `json:"total_savings"`
	ByProvider   map[string]float64 `json:"by_provider"`
	// DuplicateSavings is the duplicate volume in GB.
	DuplicateSavings float64 `json:"duplicate_savings"`
	MonthlySavings   float64 `json:"monthly_savings"`
	YearlySavings    float64 `json:"yearly_savings"`
	// RecommendationSavings sums the GB estimates of the recommendations.
	RecommendationSavings float64                             `json:"recommendation_savings"`
	Recommendations       []*model.OptimizationRecommendation `json:"recommendations"`
}

// CalculateSavings runs an analysis and summarises its savings.
func (s *Service) CalculateSavings(ctx context.Context, ownerID int64) (*SavingsReport, error) {
	report, err := s.AnalyzeStorage(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	out := &SavingsReport{
		OwnerID:          ownerID,
		TotalSavings:     report.Overview.PotentialSavings,
		ByProvider:       make(map[string]float64, len(report.ByProvider)),
		DuplicateSavings: cost.GB(report.Overview.DuplicateSize),
		MonthlySavings:   report.Overview.PotentialSavings,
		YearlySavings:    report.Overview.PotentialSavings * 12,
		Recommendations:  report.Recommendations,
	}
	for p, pa := range report.ByProvider {
		out.ByProvider[p] = pa.PotentialSavings
	}
	for _, r := range report.Recommendations {
		out.RecommendationSavings += r.PotentialSavings
	}
	return out, nil
}

// OptimizationPotential projects every optimization technique over the
// owner's inventory, priced at provider. It requires advanced analytics.
func (s *Service) OptimizationPotential(ctx context.Context, ownerID int64, provider string) (map[cost.Technique]cost.Potential, error) {
	if err := s.checkGate(ctx, AccessRequest{
		OwnerID: ownerID,
		ActorID: ownerID,
		Feature: FeatureAdvancedAnalytics,
	}); err != nil {
		return nil, err
	}

	files, err := s.inventory(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	stats := fileTypeStats(files)
	sizes := make(map[string]float64, len(stats))
	for c, st := range stats {
		sizes[c] = cost.GB(st.Size)
	}
	return s.costs.OptimizationPotential(sizes, provider), nil
}

// Providers returns the distinct providers in the report, sorted.
func (r *StorageAnalysisReport) Providers() []string {
	out := make([]string, 0, len(r.ByProvider))
	for p := range r.ByProvider {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
