package declutter

import (
	"context"
	"io"

	"declutter-go/internal/model"
)

// RemoteDeleter removes a file from one cloud provider.
type RemoteDeleter interface {
	DeleteRemoteFile(ctx context.Context, cloudNativeID string) error
}

// Deleters resolves the RemoteDeleter for a provider name.
type Deleters interface {
	Deleter(provider string) (RemoteDeleter, bool)
}

// Gated features.
const (
	FeatureStorageAnalysis         = "storage_analysis"
	FeatureCrossCloudDeduplication = "cross_cloud_deduplication"
	FeatureAdvancedAnalytics       = "advanced_analytics"
)

// Gate denial reasons.
const (
	ReasonUnauthorized        = "unauthorized"
	ReasonFeatureNotAvailable = "feature_not_available"
	ReasonUsageLimitExceeded  = "usage_limit_exceeded"
)

// AccessRequest asks whether ActorID may use Feature on behalf of OwnerID.
// With Increment set, an allowed request is also metered.
type AccessRequest struct {
	OwnerID   int64
	ActorID   int64
	Feature   string
	Increment bool
	// Amount is the size of a volume-limited request, e.g. bytes analysed.
	// When set it is checked against the limit instead of the recorded usage.
	Amount int64
}

// AccessDecision is the gate's answer. Limit is 0 when the feature is unlimited.
type AccessDecision struct {
	Access bool   `json:"access"`
	Reason string `json:"reason,omitempty"`
	Usage  int64  `json:"usage"`
	Limit  int64  `json:"limit,omitempty"`
}

// FeatureGate decides whether a plan permits an operation and meters usage.
type FeatureGate interface {
	CheckAccess(ctx context.Context, req AccessRequest) (*AccessDecision, error)
}

// Event subjects, relative to the publisher's prefix.
const (
	SubjectFilesMerged       = "files.merged"
	SubjectAnalysisCompleted = "analysis.completed"
)

// EventPublisher emits domain events. Publishing is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

// Excluder hides inventory records from analysis, e.g. by glob pattern.
type Excluder interface {
	Excluded(f *model.FileRecord) bool
}

// Archive stores report exports and database backups.
type Archive interface {
	// Put stores size bytes read from r under key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// Get writes the object stored under key to w.
	Get(ctx context.Context, key string, w io.Writer) error
	// List returns the keys under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	// ValidateSetup verifies that the archive is reachable.
	ValidateSetup(ctx context.Context) error
}

// Encryptor encrypts report exports with a public key and unlocks the
// passphrase-protected private key for reading them back.
type Encryptor interface {
	// Setup generates a key pair and protects the private key with passphrase.
	Setup(passphrase string) error
	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error
	// Unlock decrypts the private key using the passphrase.
	Unlock(passphrase string) (DecryptionContext, error)
	// IsConfigured returns true if both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
