package testutil

import (
	"context"
	"testing"
	"time"

	"declutter-go/internal/declutter"
	"declutter-go/internal/model"
)

// NewFile returns an unsaved file record. The cloud-native id is derived
// from provider and name.
func NewFile(ownerID int64, provider, name string, size int64) *model.FileRecord {
	return &model.FileRecord{
		OwnerID:       ownerID,
		Provider:      provider,
		CloudNativeID: provider + ":" + name,
		Name:          name,
		SizeBytes:     &size,
		Path:          "/" + name,
	}
}

// ModifiedAt sets LastModified and returns f.
func ModifiedAt(f *model.FileRecord, t time.Time) *model.FileRecord {
	f.LastModified = &t
	return f
}

// WithID sets the cloud-native id and returns f.
func WithID(f *model.FileRecord, cloudNativeID string) *model.FileRecord {
	f.CloudNativeID = cloudNativeID
	return f
}

// WithHash sets the content hash and returns f.
func WithHash(f *model.FileRecord, hash string) *model.FileRecord {
	f.ContentHash = hash
	return f
}

// SeedFiles upserts files and returns the stored records.
func SeedFiles(t *testing.T, db declutter.Database, files ...*model.FileRecord) []*model.FileRecord {
	t.Helper()
	out := make([]*model.FileRecord, 0, len(files))
	for _, f := range files {
		saved, err := db.UpsertFile(context.Background(), f)
		if err != nil {
			t.Fatalf("UpsertFile(%s) error = %v", f.Name, err)
		}
		out = append(out, saved)
	}
	return out
}

// SeedConnections marks providers as active connections for ownerID.
func SeedConnections(t *testing.T, db declutter.Database, ownerID int64, providers ...string) {
	t.Helper()
	for _, p := range providers {
		_, err := db.UpsertConnection(context.Background(), &model.CloudConnection{
			OwnerID:      ownerID,
			Provider:     p,
			AccountEmail: p + "@example.com",
			IsActive:     true,
		})
		if err != nil {
			t.Fatalf("UpsertConnection(%s) error = %v", p, err)
		}
	}
}
