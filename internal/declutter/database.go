package declutter

import (
	"context"
	"time"

	"declutter-go/internal/model"
)

// Database is the persistence layer for the inventory, analysis history,
// metering and the remote-delete queue.
//
// Lookups that find nothing return nil and no error.
type Database interface {
	// Inventory

	// ListFiles returns the owner's files that are not soft-deleted, ordered by id.
	ListFiles(ctx context.Context, ownerID int64) ([]*model.FileRecord, error)
	// FindFilesByIDs returns the owner's live files among ids, in the order of ids.
	// Unknown or deleted ids are omitted.
	FindFilesByIDs(ctx context.Context, ownerID int64, ids []int64) ([]*model.FileRecord, error)
	// UpsertFile inserts or updates a file keyed by (owner, provider, cloud_native_id).
	// An update never clears is_deleted.
	UpsertFile(ctx context.Context, f *model.FileRecord) (*model.FileRecord, error)
	// SoftDeleteFiles marks the files deleted in a single transaction.
	SoftDeleteFiles(ctx context.Context, ownerID int64, ids []int64) error
	ListActiveConnections(ctx context.Context, ownerID int64) ([]*model.CloudConnection, error)
	UpsertConnection(ctx context.Context, c *model.CloudConnection) (*model.CloudConnection, error)

	// Usage patterns
	ListUsagePatterns(ctx context.Context, ownerID int64) ([]*model.UsagePattern, error)
	FindUsagePattern(ctx context.Context, ownerID, fileID int64) (*model.UsagePattern, error)
	SaveUsagePattern(ctx context.Context, p *model.UsagePattern) error

	// Analysis history

	// SaveAnalysis appends the snapshot and its recommendations atomically and assigns their ids.
	SaveAnalysis(ctx context.Context, snapshot *model.StorageAnalysisSnapshot, recs []*model.OptimizationRecommendation) error
	SaveRecommendations(ctx context.Context, recs []*model.OptimizationRecommendation) error
	// ListRecommendations returns the owner's recommendations, newest first.
	// An empty status returns all of them.
	ListRecommendations(ctx context.Context, ownerID int64, status model.RecommendationStatus) ([]*model.OptimizationRecommendation, error)
	UpdateRecommendationStatus(ctx context.Context, ownerID, id int64, status model.RecommendationStatus) error
	// ListSnapshots returns the owner's most recent snapshots, newest first.
	ListSnapshots(ctx context.Context, ownerID int64, limit int) ([]*model.StorageAnalysisSnapshot, error)

	// Metering

	// GetPlan returns the owner's plan, or "" when the owner has no subscription.
	GetPlan(ctx context.Context, ownerID int64) (string, error)
	SetPlan(ctx context.Context, ownerID int64, plan string) error
	GetUsage(ctx context.Context, ownerID int64, feature string) (int64, error)
	IncrementUsage(ctx context.Context, ownerID int64, feature string) error

	// Remote delete queue
	EnqueueRemoteDelete(ctx context.Context, task *model.RemoteDeleteTask) error
	ListPendingRemoteDeletes(ctx context.Context, ownerID int64) ([]*model.RemoteDeleteTask, error)
	CompleteRemoteDelete(ctx context.Context, id int64, at time.Time) error
	RecordRemoteDeleteAttempt(ctx context.Context, id int64, lastError string) error

	// Operations
	CreateOperation(ctx context.Context, operation, parameters string, startedAt time.Time) (*model.Operation, error)
	FinishOperation(ctx context.Context, id int64, status string, finishedAt time.Time) error
	ListOperations(ctx context.Context, limit int) ([]*model.Operation, error)

	// BackupTo writes a consistent copy of the database to path.
	BackupTo(path string) error
	// CheckMigrations verifies the schema is at the latest version.
	CheckMigrations() error
	Close() error
}
