package model

import "time"

// FileRecord is one file known in a user's connected clouds.
// Uniquely identified by (OwnerID, Provider, CloudNativeID).
type FileRecord struct {
	ID            int64      `json:"id"`
	OwnerID       int64      `json:"owner_id"`
	Provider      string     `json:"provider"`
	CloudNativeID string     `json:"cloud_native_id"`
	Name          string     `json:"name"`
	SizeBytes     *int64     `json:"size_bytes"`
	Path          string     `json:"path,omitempty"`
	ContentHash   string     `json:"content_hash,omitempty"`
	LastModified  *time.Time `json:"last_modified,omitempty"`
	LastAccessed  *time.Time `json:"last_accessed,omitempty"`
	IsDeleted     bool       `json:"is_deleted"`
}

// Size returns the file size in bytes, treating an unknown size as 0.
func (f *FileRecord) Size() int64 {
	if f.SizeBytes == nil {
		return 0
	}
	return *f.SizeBytes
}

// CloudConnection is a user's link to one cloud provider account.
type CloudConnection struct {
	ID           int64     `json:"id"`
	OwnerID      int64     `json:"owner_id"`
	Provider     string    `json:"provider"`
	AccountEmail string    `json:"account_email,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Access frequency buckets.
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
	FrequencyYearly  = "yearly"
)

// UsagePattern tracks how often a file is accessed.
type UsagePattern struct {
	ID              int64     `json:"id"`
	OwnerID         int64     `json:"owner_id"`
	FileID          int64     `json:"file_id"`
	AccessCount     int       `json:"access_count"`
	AccessFrequency string    `json:"access_frequency"`
	LastAccessed    time.Time `json:"last_accessed"`
}

// RecommendationType classifies an optimization suggestion.
type RecommendationType string

const (
	RecommendArchive  RecommendationType = "archive"
	RecommendCompress RecommendationType = "compress"
	RecommendDelete   RecommendationType = "delete"
	RecommendMove     RecommendationType = "move"
)

// RecommendationStatus is the user's disposition of a recommendation.
type RecommendationStatus string

const (
	StatusPending   RecommendationStatus = "pending"
	StatusApplied   RecommendationStatus = "applied"
	StatusDismissed RecommendationStatus = "dismissed"
)

// ValidRecommendationStatus reports whether s is a known status.
func ValidRecommendationStatus(s RecommendationStatus) bool {
	switch s {
	case StatusPending, StatusApplied, StatusDismissed:
		return true
	}
	return false
}

// OptimizationRecommendation is one persisted suggestion from an analysis run.
// PotentialSavings is expressed in GB.
type OptimizationRecommendation struct {
	ID               int64                `json:"id"`
	OwnerID          int64                `json:"owner_id"`
	Type             RecommendationType   `json:"type"`
	Title            string               `json:"title"`
	Description      string               `json:"description"`
	FileIDs          []int64              `json:"file_ids"`
	PotentialSavings float64              `json:"potential_savings"`
	Priority         int                  `json:"priority"`
	Status           RecommendationStatus `json:"status"`
	CreatedAt        time.Time            `json:"created_at"`
}

// StorageAnalysisSnapshot is an append-only record of one analysis run.
type StorageAnalysisSnapshot struct {
	ID               int64     `json:"id"`
	OwnerID          int64     `json:"owner_id"`
	CloudProvider    string    `json:"cloud_provider"`
	TotalSize        int64     `json:"total_size"`
	FileCount        int       `json:"file_count"`
	DuplicateSize    int64     `json:"duplicate_size"`
	DuplicateCount   int       `json:"duplicate_count"`
	PotentialSavings float64   `json:"potential_savings"`
	AnalysisDate     time.Time `json:"analysis_date"`
}

// UsageCounter meters a gated feature for an owner within the current billing period.
type UsageCounter struct {
	OwnerID     int64  `json:"owner_id"`
	Feature     string `json:"feature"`
	UsageAmount int64  `json:"usage_amount"`
}

// RemoteDeleteTask is a remote deletion that failed after the local soft-delete
// committed and is waiting to be retried.
type RemoteDeleteTask struct {
	ID            int64      `json:"id"`
	OwnerID       int64      `json:"owner_id"`
	FileID        int64      `json:"file_id"`
	Provider      string     `json:"provider"`
	CloudNativeID string     `json:"cloud_native_id"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Operation is an audit record of a mutating CLI command.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}
