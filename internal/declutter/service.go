package declutter

import (
	"context"
	"fmt"
	"time"

	"declutter-go/internal/cost"
	"declutter-go/internal/dedupe"
	"declutter-go/internal/model"
)

// RecommendationPolicy holds the constants of the recommendation rules.
type RecommendationPolicy struct {
	LargeFileBytes   int64
	CompressRatio    float64
	MaxCompressIDs   int
	ArchiveAfterDays int
	ArchiveRatio     float64
	MaxArchiveIDs    int
}

// DefaultRecommendationPolicy compresses files over 100MB (30%) and archives
// files untouched for a year (50%).
func DefaultRecommendationPolicy() RecommendationPolicy {
	return RecommendationPolicy{
		LargeFileBytes:   100 * 1024 * 1024,
		CompressRatio:    0.3,
		MaxCompressIDs:   10,
		ArchiveAfterDays: 365,
		ArchiveRatio:     0.5,
		MaxArchiveIDs:    20,
	}
}

// Options are the optional settings of a Service.
type Options struct {
	// PrimaryCloud is the owner's designated primary provider for keep_primary_cloud.
	PrimaryCloud string
	// Policy picks a strategy for batch groups that arrive without one.
	Policy dedupe.SelectionPolicy
	// Recommendations overrides DefaultRecommendationPolicy.
	Recommendations *RecommendationPolicy
	// Exclude hides matching inventory records from every operation.
	Exclude Excluder
}

// Service is the orchestration layer behind the CLI and HTTP API. It owns no
// state; the inventory and all history live in the Database.
type Service struct {
	database Database
	deleters Deleters
	gate     FeatureGate
	events   EventPublisher
	costs    *cost.Calculator
	logger   Logger
	clock    Clock
	opts     Options
	recs     RecommendationPolicy
}

// NewService creates a Service with the provided dependencies.
// deleters and events may be nil.
func NewService(database Database, deleters Deleters, gate FeatureGate, events EventPublisher, costs *cost.Calculator, logger Logger, clock Clock, opts Options) *Service {
	if events == nil {
		events = NopPublisher{}
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if costs == nil {
		costs = cost.NewCalculator(nil, cost.DefaultRate)
	}
	recs := DefaultRecommendationPolicy()
	if opts.Recommendations != nil {
		recs = *opts.Recommendations
	}
	return &Service{
		database: database,
		deleters: deleters,
		gate:     gate,
		events:   events,
		costs:    costs,
		logger:   logger,
		clock:    clock,
		opts:     opts,
		recs:     recs,
	}
}

// Costs exposes the calculator the service prices with.
func (s *Service) Costs() *cost.Calculator {
	return s.costs
}

// inventory loads one consistent snapshot of the owner's live files.
func (s *Service) inventory(ctx context.Context, ownerID int64) ([]*model.FileRecord, error) {
	files, err := s.database.ListFiles(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing files: %v", ErrInventoryFetch, err)
	}
	if s.opts.Exclude == nil {
		return files, nil
	}

	kept := files[:0:0]
	for _, f := range files {
		if s.opts.Exclude.Excluded(f) {
			continue
		}
		kept = append(kept, f)
	}
	if excluded := len(files) - len(kept); excluded > 0 {
		s.logger.Debug("inventory records excluded", "owner_id", ownerID, "count", excluded)
	}
	return kept, nil
}

// publish emits an event and logs, rather than returns, a failure.
func (s *Service) publish(ctx context.Context, subject string, payload any) {
	if err := s.events.Publish(ctx, subject, payload); err != nil {
		s.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}

// RecordAccess registers one access of a file and updates its frequency bucket.
func (s *Service) RecordAccess(ctx context.Context, ownerID, fileID int64) (*model.UsagePattern, error) {
	files, err := s.database.FindFilesByIDs(ctx, ownerID, []int64{fileID})
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFile, fileID)
	}

	p, err := s.database.FindUsagePattern(ctx, ownerID, fileID)
	if err != nil {
		return nil, fmt.Errorf("finding usage pattern: %w", err)
	}
	if p == nil {
		p = &model.UsagePattern{OwnerID: ownerID, FileID: fileID}
	}

	p.AccessCount++
	p.LastAccessed = s.clock.Now().UTC()
	p.AccessFrequency = AccessFrequency(p.AccessCount)

	if err := s.database.SaveUsagePattern(ctx, p); err != nil {
		return nil, fmt.Errorf("saving usage pattern: %w", err)
	}
	return p, nil
}

// AccessFrequency buckets an access count.
func AccessFrequency(count int) string {
	switch {
	case count >= 30:
		return model.FrequencyDaily
	case count >= 4:
		return model.FrequencyWeekly
	case count >= 1:
		return model.FrequencyMonthly
	default:
		return model.FrequencyYearly
	}
}

// ListRecommendations returns stored recommendations, optionally filtered by status.
func (s *Service) ListRecommendations(ctx context.Context, ownerID int64, status model.RecommendationStatus) ([]*model.OptimizationRecommendation, error) {
	if status != "" && !model.ValidRecommendationStatus(status) {
		return nil, fmt.Errorf("unknown recommendation status: %q", status)
	}
	return s.database.ListRecommendations(ctx, ownerID, status)
}

// SetRecommendationStatus records the user's decision on a recommendation.
func (s *Service) SetRecommendationStatus(ctx context.Context, ownerID, id int64, status model.RecommendationStatus) error {
	if !model.ValidRecommendationStatus(status) {
		return fmt.Errorf("unknown recommendation status: %q", status)
	}
	if err := s.database.UpdateRecommendationStatus(ctx, ownerID, id, status); err != nil {
		return fmt.Errorf("updating recommendation %d: %w", id, err)
	}
	return nil
}

// History returns the owner's most recent analysis snapshots.
func (s *Service) History(ctx context.Context, ownerID int64, limit int) ([]*model.StorageAnalysisSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.database.ListSnapshots(ctx, ownerID, limit)
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}
