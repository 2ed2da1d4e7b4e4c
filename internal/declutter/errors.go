package declutter

import (
	"errors"
	"fmt"
)

var (
	// ErrInventoryFetch wraps store failures while loading the inventory.
	// The whole call failed and may be retried.
	ErrInventoryFetch = errors.New("inventory fetch failed")
	// ErrUnknownFile means a request referenced a file the owner does not have.
	ErrUnknownFile = errors.New("unknown file")
	// ErrInvalidGroup means a merge request did not describe a usable group.
	ErrInvalidGroup = errors.New("invalid duplicate group")
	// ErrNotFound is returned by updates that matched no row, and by merges of
	// a group whose files were removed since it was detected.
	ErrNotFound = errors.New("not found")
	// ErrDeleteUnsupported is returned by deleters whose provider API cannot
	// delete files. Such failures are reported but never queued for retry.
	ErrDeleteUnsupported = errors.New("provider does not support deletion")
)

// FeatureGateDenied is returned when the feature gate refuses an operation.
type FeatureGateDenied struct {
	Feature string
	Reason  string
	Usage   int64
	Limit   int64
}

func (e *FeatureGateDenied) Error() string {
	if e.Reason == ReasonUsageLimitExceeded {
		return fmt.Sprintf("feature %s denied: %s (%d/%d)", e.Feature, e.Reason, e.Usage, e.Limit)
	}
	return fmt.Sprintf("feature %s denied: %s", e.Feature, e.Reason)
}

// RemoteDeleteFailure records one file whose remote deletion failed after the
// local soft-delete committed.
type RemoteDeleteFailure struct {
	FileID        int64  `json:"file_id"`
	Provider      string `json:"provider"`
	CloudNativeID string `json:"cloud_native_id"`
	Message       string `json:"error"`
	Err           error  `json:"-"`
}

func (e *RemoteDeleteFailure) Error() string {
	return fmt.Sprintf("deleting %s file %s (id %d): %s", e.Provider, e.CloudNativeID, e.FileID, e.Message)
}

func (e *RemoteDeleteFailure) Unwrap() error { return e.Err }
