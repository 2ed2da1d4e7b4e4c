package declutter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"declutter-go/internal/dedupe"
	"declutter-go/internal/model"
)

// Merge result statuses.
const (
	MergeSuccess = "success"
	MergeFailed  = "failed"
)

// MergeRequest describes one group merge.
type MergeRequest struct {
	OwnerID int64
	// ActorID is the user performing the merge. Zero means the owner.
	ActorID int64
	Group   *dedupe.DuplicateGroup
	// Strategy names the strategy to apply. Empty uses the selection policy.
	Strategy string
	// TargetCloud overrides the configured primary cloud for keep_primary_cloud.
	TargetCloud string
	// SelectedFileID is the file to keep for user_choice.
	SelectedFileID int64
}

// MergeResult is the outcome of merging one group.
type MergeResult struct {
	GroupID        string                 `json:"group_id"`
	Status         string                 `json:"status"`
	Detail         string                 `json:"detail,omitempty"`
	Strategy       dedupe.StrategyName    `json:"strategy,omitempty"`
	KeptID         int64                  `json:"kept_id,omitempty"`
	RemovedIDs     []int64                `json:"removed_ids,omitempty"`
	ReclaimedBytes int64                  `json:"reclaimed_bytes"`
	RemoteFailures []*RemoteDeleteFailure `json:"remote_failures,omitempty"`
	SkippedRemote  []int64                `json:"skipped_remote,omitempty"`
}

// FilesMergedEvent is published after a group merge.
type FilesMergedEvent struct {
	OwnerID    int64               `json:"owner_id"`
	GroupKey   string              `json:"group_key"`
	KeptID     int64               `json:"kept_id"`
	RemovedIDs []int64             `json:"removed_ids"`
	Strategy   dedupe.StrategyName `json:"strategy"`
}

// MergeGroup applies a strategy to one duplicate group. The removed files are
// soft-deleted in one committed transaction before any remote deletion is
// attempted; remote failures leave them soft-deleted and are queued for retry.
//
// The strategy is resolved before the feature gate is consulted so that a bad
// request is not metered. A denial is returned as *FeatureGateDenied.
func (s *Service) MergeGroup(ctx context.Context, req MergeRequest) (*MergeResult, error) {
	return s.mergeGroup(ctx, req, nil)
}

func (s *Service) mergeGroup(ctx context.Context, req MergeRequest, counts map[int64]int) (*MergeResult, error) {
	g := req.Group
	if g == nil || len(g.Files) < 2 {
		return nil, fmt.Errorf("%w: a group needs at least two files", ErrInvalidGroup)
	}
	for _, f := range g.Files {
		if f.OwnerID != 0 && f.OwnerID != req.OwnerID {
			return nil, fmt.Errorf("%w: %d", ErrUnknownFile, f.ID)
		}
	}

	if err := s.checkLive(ctx, req.OwnerID, g); err != nil {
		return nil, err
	}

	fn, name, err := s.strategyFor(ctx, req, counts)
	if err != nil {
		return nil, err
	}

	actor := req.ActorID
	if actor == 0 {
		actor = req.OwnerID
	}
	if err := s.checkGate(ctx, AccessRequest{
		OwnerID:   req.OwnerID,
		ActorID:   actor,
		Feature:   FeatureCrossCloudDeduplication,
		Increment: true,
	}); err != nil {
		return nil, err
	}

	decision, err := fn(g)
	if err != nil {
		return nil, err
	}
	if decision.Strategy == "" {
		decision.Strategy = name
	}
	return s.applyMerge(ctx, req.OwnerID, decision)
}

// checkLive fails with ErrNotFound when any file of g was soft-deleted after
// the group was detected, so a stale group is neither metered nor merged twice.
func (s *Service) checkLive(ctx context.Context, ownerID int64, g *dedupe.DuplicateGroup) error {
	ids := fileIDs(g.Files)
	live, err := s.database.FindFilesByIDs(ctx, ownerID, ids)
	if err != nil {
		return fmt.Errorf("%w: finding group files: %v", ErrInventoryFetch, err)
	}
	if len(live) != len(ids) {
		return fmt.Errorf("group %s is stale: %w", g.Key, ErrNotFound)
	}
	return nil
}

func (s *Service) strategyFor(ctx context.Context, req MergeRequest, counts map[int64]int) (dedupe.StrategyFunc, dedupe.StrategyName, error) {
	opts := dedupe.StrategyOptions{
		PrimaryCloud:   s.opts.PrimaryCloud,
		SelectedFileID: req.SelectedFileID,
	}
	if req.TargetCloud != "" {
		opts.PrimaryCloud = req.TargetCloud
	}

	if req.Strategy != "" {
		fn, err := dedupe.Lookup(req.Strategy, opts)
		if err != nil {
			return nil, "", err
		}
		return fn, dedupe.StrategyName(req.Strategy), nil
	}

	if counts == nil {
		var err error
		if counts, err = s.accessCounts(ctx, req.OwnerID); err != nil {
			return nil, "", err
		}
	}
	selector := dedupe.Selector{Policy: s.opts.Policy, Options: opts}
	return selector.Select(req.Group, counts)
}

func (s *Service) checkGate(ctx context.Context, req AccessRequest) error {
	if s.gate == nil {
		return nil
	}
	decision, err := s.gate.CheckAccess(ctx, req)
	if err != nil {
		return fmt.Errorf("checking feature access: %w", err)
	}
	if !decision.Access {
		return &FeatureGateDenied{
			Feature: req.Feature,
			Reason:  decision.Reason,
			Usage:   decision.Usage,
			Limit:   decision.Limit,
		}
	}
	return nil
}

func (s *Service) applyMerge(ctx context.Context, ownerID int64, d *dedupe.MergeDecision) (*MergeResult, error) {
	removedIDs := fileIDs(d.Removed)
	result := &MergeResult{
		GroupID:        string(d.GroupKey),
		Status:         MergeSuccess,
		Strategy:       d.Strategy,
		KeptID:         d.Kept.ID,
		RemovedIDs:     removedIDs,
		ReclaimedBytes: d.ReclaimedBytes(),
	}

	if err := s.database.SoftDeleteFiles(ctx, ownerID, removedIDs); err != nil {
		return nil, fmt.Errorf("soft-deleting files: %w", err)
	}
	s.logger.Info("files soft-deleted", "owner_id", ownerID, "group_key", d.GroupKey, "kept_id", d.Kept.ID, "removed", len(removedIDs))

	for _, f := range d.Removed {
		var deleter RemoteDeleter
		ok := false
		if s.deleters != nil {
			deleter, ok = s.deleters.Deleter(f.Provider)
		}
		if !ok {
			s.logger.Warn("no remote deleter for provider, skipping", "provider", f.Provider, "file_id", f.ID)
			result.SkippedRemote = append(result.SkippedRemote, f.ID)
			continue
		}

		if err := deleter.DeleteRemoteFile(ctx, f.CloudNativeID); err != nil {
			failure := &RemoteDeleteFailure{
				FileID:        f.ID,
				Provider:      f.Provider,
				CloudNativeID: f.CloudNativeID,
				Message:       err.Error(),
				Err:           err,
			}
			result.RemoteFailures = append(result.RemoteFailures, failure)
			if errors.Is(err, ErrDeleteUnsupported) {
				s.logger.Warn("provider cannot delete remotely, remove the file by hand", "provider", f.Provider, "file_id", f.ID)
				continue
			}
			s.logger.Error("remote delete failed", "provider", f.Provider, "file_id", f.ID, "error", err)
			s.enqueueRetry(ctx, ownerID, failure)
		}
	}

	if len(result.RemoteFailures) > 0 {
		result.Status = MergeFailed
		msgs := make([]string, len(result.RemoteFailures))
		for i, rf := range result.RemoteFailures {
			msgs[i] = rf.Error()
		}
		result.Detail = "remote delete failed: " + strings.Join(msgs, "; ")
		return result, nil
	}

	s.publish(ctx, SubjectFilesMerged, FilesMergedEvent{
		OwnerID:    ownerID,
		GroupKey:   string(d.GroupKey),
		KeptID:     d.Kept.ID,
		RemovedIDs: removedIDs,
		Strategy:   d.Strategy,
	})
	return result, nil
}

func (s *Service) enqueueRetry(ctx context.Context, ownerID int64, failure *RemoteDeleteFailure) {
	task := &model.RemoteDeleteTask{
		OwnerID:       ownerID,
		FileID:        failure.FileID,
		Provider:      failure.Provider,
		CloudNativeID: failure.CloudNativeID,
		Attempts:      1,
		LastError:     failure.Message,
		CreatedAt:     s.now(),
	}
	if err := s.database.EnqueueRemoteDelete(ctx, task); err != nil {
		s.logger.Error("queueing remote delete retry failed", "file_id", failure.FileID, "error", err)
	}
}

// BatchMerge merges each group independently. A failing group is reported as
// failed and the batch continues. Cancellation is checked between groups; the
// groups not reached are reported as cancelled and ctx.Err() is returned
// alongside the results.
func (s *Service) BatchMerge(ctx context.Context, ownerID int64, groups []*dedupe.DuplicateGroup, strategy string) ([]*MergeResult, error) {
	results := make([]*MergeResult, 0, len(groups))

	var counts map[int64]int
	if strategy == "" {
		var err error
		if counts, err = s.accessCounts(ctx, ownerID); err != nil {
			return nil, err
		}
	}

	for i, g := range groups {
		if err := ctx.Err(); err != nil {
			for _, rest := range groups[i:] {
				results = append(results, failedResult(rest, "cancelled"))
			}
			s.logger.Info("batch merge cancelled", "owner_id", ownerID, "processed", i, "total", len(groups))
			return results, err
		}

		res, err := s.mergeGroup(ctx, MergeRequest{
			OwnerID:  ownerID,
			ActorID:  ownerID,
			Group:    g,
			Strategy: strategy,
		}, counts)
		if err != nil {
			s.logger.Warn("group merge failed", "owner_id", ownerID, "group_key", groupKey(g), "error", err)
			results = append(results, failedResult(g, err.Error()))
			continue
		}
		results = append(results, res)
	}

	return results, nil
}

func failedResult(g *dedupe.DuplicateGroup, detail string) *MergeResult {
	return &MergeResult{GroupID: groupKey(g), Status: MergeFailed, Detail: detail}
}

func groupKey(g *dedupe.DuplicateGroup) string {
	if g == nil {
		return ""
	}
	return string(g.Key)
}

// RetryReport summarises a RetryRemoteDeletes run.
type RetryReport struct {
	Attempted int                    `json:"attempted"`
	Succeeded int                    `json:"succeeded"`
	Failed    []*RemoteDeleteFailure `json:"failed,omitempty"`
}

// RetryRemoteDeletes retries every queued remote deletion of the owner.
func (s *Service) RetryRemoteDeletes(ctx context.Context, ownerID int64) (*RetryReport, error) {
	tasks, err := s.database.ListPendingRemoteDeletes(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing pending remote deletes: %w", err)
	}

	report := &RetryReport{}
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var deleter RemoteDeleter
		ok := false
		if s.deleters != nil {
			deleter, ok = s.deleters.Deleter(task.Provider)
		}
		if !ok {
			s.logger.Warn("no remote deleter for provider, leaving task queued", "provider", task.Provider, "task_id", task.ID)
			continue
		}

		report.Attempted++
		derr := deleter.DeleteRemoteFile(ctx, task.CloudNativeID)
		if derr == nil {
			if err := s.database.CompleteRemoteDelete(ctx, task.ID, s.now()); err != nil {
				return report, fmt.Errorf("completing remote delete %d: %w", task.ID, err)
			}
			report.Succeeded++
			continue
		}

		report.Failed = append(report.Failed, &RemoteDeleteFailure{
			FileID:        task.FileID,
			Provider:      task.Provider,
			CloudNativeID: task.CloudNativeID,
			Message:       derr.Error(),
			Err:           derr,
		})
		if err := s.database.RecordRemoteDeleteAttempt(ctx, task.ID, derr.Error()); err != nil {
			return report, fmt.Errorf("recording remote delete attempt %d: %w", task.ID, err)
		}
	}

	s.logger.Info("remote delete retry finished", "owner_id", ownerID, "attempted", report.Attempted, "succeeded", report.Succeeded)
	return report, nil
}

// IsClientError reports whether err was caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, dedupe.ErrStrategyNotFound) ||
		errors.Is(err, dedupe.ErrInvalidSelection) ||
		errors.Is(err, ErrUnknownFile) ||
		errors.Is(err, ErrInvalidGroup)
}
