package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"declutter-go/internal/model"
)

// Inventory is the import document produced by the provider sync jobs.
type Inventory struct {
	OwnerID     int64                 `json:"owner_id"`
	Connections []InventoryConnection `json:"connections"`
	Files       []InventoryFile       `json:"files"`
}

type InventoryConnection struct {
	Provider     string `json:"provider"`
	AccountEmail string `json:"account_email"`
	// IsActive defaults to true when omitted.
	IsActive *bool `json:"is_active"`
}

type InventoryFile struct {
	Provider      string     `json:"provider"`
	CloudNativeID string     `json:"cloud_native_id"`
	Name          string     `json:"name"`
	SizeBytes     *int64     `json:"size_bytes"`
	Path          string     `json:"path"`
	ContentHash   string     `json:"content_hash"`
	LastModified  *time.Time `json:"last_modified"`
	LastAccessed  *time.Time `json:"last_accessed"`
}

// ImportSummary counts what an import wrote.
type ImportSummary struct {
	OwnerID     int64
	Connections int
	Files       int
}

// ImportInventory upserts the connections and files of an inventory document.
// A document without owner_id is imported for ownerID; a document for a
// different owner is rejected.
func (a *DeclutterApp) ImportInventory(ctx context.Context, ownerID int64, r io.Reader) (*ImportSummary, error) {
	var inv Inventory
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&inv); err != nil {
		return nil, fmt.Errorf("decoding inventory: %w", err)
	}
	if inv.OwnerID == 0 {
		inv.OwnerID = ownerID
	}
	if inv.OwnerID != ownerID {
		return nil, fmt.Errorf("inventory is for owner %d, not %d", inv.OwnerID, ownerID)
	}

	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	summary, err := a.importInventory(ctx, &inv)
	return summary, a.op.Fail(err)
}

func (a *DeclutterApp) importInventory(ctx context.Context, inv *Inventory) (*ImportSummary, error) {
	summary := &ImportSummary{OwnerID: inv.OwnerID}

	for i, c := range inv.Connections {
		if c.Provider == "" {
			return summary, fmt.Errorf("connection %d: provider is required", i)
		}
		active := c.IsActive == nil || *c.IsActive
		if _, err := a.db.UpsertConnection(ctx, &model.CloudConnection{
			OwnerID:      inv.OwnerID,
			Provider:     c.Provider,
			AccountEmail: c.AccountEmail,
			IsActive:     active,
			CreatedAt:    a.clock.Now().UTC(),
		}); err != nil {
			return summary, fmt.Errorf("importing connection %s: %w", c.Provider, err)
		}
		summary.Connections++
	}

	for i, f := range inv.Files {
		if f.Provider == "" || f.CloudNativeID == "" {
			return summary, fmt.Errorf("file %d: provider and cloud_native_id are required", i)
		}
		if _, err := a.db.UpsertFile(ctx, &model.FileRecord{
			OwnerID:       inv.OwnerID,
			Provider:      f.Provider,
			CloudNativeID: f.CloudNativeID,
			Name:          f.Name,
			SizeBytes:     f.SizeBytes,
			Path:          f.Path,
			ContentHash:   f.ContentHash,
			LastModified:  f.LastModified,
			LastAccessed:  f.LastAccessed,
		}); err != nil {
			return summary, fmt.Errorf("importing file %s/%s: %w", f.Provider, f.CloudNativeID, err)
		}
		summary.Files++
	}

	a.logger.Info("inventory imported", "owner_id", inv.OwnerID, "connections", summary.Connections, "files", summary.Files)
	return summary, nil
}
