package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"declutter-go/internal/declutter"
	"declutter-go/internal/dedupe"
)

func (s *Server) listDuplicates(c *gin.Context) {
	owner := ownerFromContext(c)
	scope, err := dedupe.ParseScope(c.Query("scope"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	var d *dedupe.Detection
	if byHash, _ := strconv.ParseBool(c.Query("by_hash")); byHash {
		d, err = s.svc.FindDuplicatesByHash(c.Request.Context(), owner, scope)
	} else {
		d, err = s.svc.FindDuplicates(c.Request.Context(), owner, scope)
	}
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"groups":       nonNil(d.Groups),
		"unverifiable": d.Unverifiable,
		"total_wasted": d.TotalWasted(),
	})
}

func (s *Server) listSimilar(c *gin.Context) {
	groups, err := s.svc.FindSimilar(c.Request.Context(), ownerFromContext(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": nonNil(groups)})
}

// groupRef names a group either by detected key or by explicit file ids.
type groupRef struct {
	GroupKey string  `json:"group_key"`
	FileIDs  []int64 `json:"file_ids"`
}

type mergeRequest struct {
	groupRef
	Scope          string `json:"scope"`
	Strategy       string `json:"strategy"`
	TargetCloud    string `json:"target_cloud"`
	SelectedFileID int64  `json:"selected_file_id"`
}

func (s *Server) resolve(ctx context.Context, owner int64, ref groupRef, scope dedupe.Scope) (*dedupe.DuplicateGroup, error) {
	if len(ref.FileIDs) > 0 {
		return s.svc.ResolveGroup(ctx, owner, dedupe.GroupKey(ref.GroupKey), ref.FileIDs)
	}
	g, err := s.svc.FindGroup(ctx, owner, dedupe.GroupKey(ref.GroupKey), scope)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, declutter.ErrNotFound
	}
	return g, nil
}

func (s *Server) mergeGroup(c *gin.Context) {
	owner := ownerFromContext(c)
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.GroupKey == "" && len(req.FileIDs) == 0 {
		badRequest(c, "group_key or file_ids is required")
		return
	}
	scope, err := dedupe.ParseScope(req.Scope)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	g, err := s.resolve(c.Request.Context(), owner, req.groupRef, scope)
	if err != nil {
		s.respondError(c, err)
		return
	}

	res, err := s.svc.MergeGroup(c.Request.Context(), declutter.MergeRequest{
		OwnerID:        owner,
		Group:          g,
		Strategy:       req.Strategy,
		TargetCloud:    req.TargetCloud,
		SelectedFileID: req.SelectedFileID,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type batchRequest struct {
	// Groups to merge; empty merges every group detected in Scope.
	Groups   []groupRef `json:"groups"`
	Scope    string     `json:"scope"`
	Strategy string     `json:"strategy"`
	Async    bool       `json:"async"`
}

func (s *Server) batchMerge(c *gin.Context) {
	owner := ownerFromContext(c)
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	scope, err := dedupe.ParseScope(req.Scope)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	var plan *batchPlan
	if len(req.Groups) == 0 {
		d, err := s.svc.FindDuplicates(ctx, owner, scope)
		if err != nil {
			s.respondError(c, err)
			return
		}
		plan = &batchPlan{results: make([]*declutter.MergeResult, len(d.Groups))}
		for i, g := range d.Groups {
			plan.add(i, g)
		}
	} else {
		plan = s.planBatch(ctx, owner, req.Groups, scope)
	}

	if req.Async && s.jobs != nil {
		job, jobCtx := s.jobs.Create(context.WithoutCancel(ctx), "batch_merge", owner)
		go func() {
			results, err := s.runBatch(jobCtx, owner, plan, req.Strategy)
			s.jobs.Finish(job.ID, results, err)
		}()
		c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "groups": len(plan.results)})
		return
	}

	results, err := s.runBatch(ctx, owner, plan, req.Strategy)
	if err != nil && results == nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": nonNil(results), "summary": summarize(results)})
}

// batchPlan holds one result slot per requested group. Refs that failed to
// resolve are filled in up front; the rest are merged in order.
type batchPlan struct {
	results []*declutter.MergeResult
	groups  []*dedupe.DuplicateGroup
	slots   []int
}

func (p *batchPlan) add(slot int, g *dedupe.DuplicateGroup) {
	p.groups = append(p.groups, g)
	p.slots = append(p.slots, slot)
}

func (p *batchPlan) fail(slot int, id, detail string) {
	p.results[slot] = &declutter.MergeResult{GroupID: id, Status: declutter.MergeFailed, Detail: detail}
}

func (s *Server) planBatch(ctx context.Context, owner int64, refs []groupRef, scope dedupe.Scope) *batchPlan {
	plan := &batchPlan{results: make([]*declutter.MergeResult, len(refs))}
	claimed := make(map[int64]string)
	for i, ref := range refs {
		id := ref.GroupKey
		if id == "" {
			id = fmt.Sprintf("ids:%v", ref.FileIDs)
		}
		if ref.GroupKey == "" && len(ref.FileIDs) == 0 {
			plan.fail(i, id, "group_key or file_ids is required")
			continue
		}

		g, err := s.resolve(ctx, owner, ref, scope)
		if err != nil {
			s.logger.Warn("batch group did not resolve", "owner_id", owner, "group", id, "error", err)
			plan.fail(i, id, err.Error())
			continue
		}

		overlap := ""
		for _, f := range g.Files {
			if prev, ok := claimed[f.ID]; ok {
				overlap = fmt.Sprintf("file %d is already in group %s", f.ID, prev)
				break
			}
		}
		if overlap != "" {
			plan.fail(i, string(g.Key), overlap)
			continue
		}
		for _, f := range g.Files {
			claimed[f.ID] = string(g.Key)
		}
		plan.add(i, g)
	}
	return plan
}

// runBatch merges the resolved groups and returns the results in request order.
func (s *Server) runBatch(ctx context.Context, owner int64, plan *batchPlan, strategy string) ([]*declutter.MergeResult, error) {
	merged, err := s.svc.BatchMerge(ctx, owner, plan.groups, strategy)
	if merged == nil && err != nil {
		return nil, err
	}
	out := append([]*declutter.MergeResult(nil), plan.results...)
	for i, r := range merged {
		out[plan.slots[i]] = r
	}
	return out, err
}

func summarize(results []*declutter.MergeResult) gin.H {
	var ok, failed int
	var reclaimed int64
	for _, r := range results {
		if r.Status == declutter.MergeSuccess {
			ok++
			reclaimed += r.ReclaimedBytes
		} else {
			failed++
		}
	}
	return gin.H{"succeeded": ok, "failed": failed, "reclaimed_bytes": reclaimed}
}

func (s *Server) retryDeletes(c *gin.Context) {
	report, err := s.svc.RetryRemoteDeletes(c.Request.Context(), ownerFromContext(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) getJob(c *gin.Context) {
	if s.jobs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "jobs are disabled"})
		return
	}
	job, err := s.jobs.Get(c.Param("id"), ownerFromContext(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) cancelJob(c *gin.Context) {
	if s.jobs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "jobs are disabled"})
		return
	}
	job, err := s.jobs.Cancel(c.Param("id"), ownerFromContext(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) recordAccess(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid file id")
		return
	}
	p, err := s.svc.RecordAccess(c.Request.Context(), ownerFromContext(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
