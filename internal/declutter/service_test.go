package declutter_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"declutter-go/internal/cost"
	"declutter-go/internal/database"
	"declutter-go/internal/declutter"
	"declutter-go/internal/dedupe"
	"declutter-go/internal/filter"
	"declutter-go/internal/model"
	"declutter-go/internal/remote"
	"declutter-go/internal/testutil"
)

const owner = int64(1)

const gib = int64(cost.BytesPerGB)

type harness struct {
	svc      *declutter.Service
	db       *database.SQLiteDatabase
	gate     *testutil.StubGate
	events   *testutil.RecordingPublisher
	deleters map[string]*remote.MemoryDeleter
	clock    *testutil.StubClock
}

func newHarness(t *testing.T, opts declutter.Options) *harness {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	reg, dels := testutil.MemoryDeleters("onedrive", "googledrive", "dropbox")
	h := &harness{
		db:       db,
		gate:     testutil.NewStubGate(),
		events:   &testutil.RecordingPublisher{},
		deleters: dels,
		clock:    testutil.FixedClock(),
	}
	costs := cost.NewCalculator(map[string]float64{
		"onedrive":     0.0069,
		"google_drive": 0.0199,
		"dropbox":      0.0059,
	}, cost.DefaultRate)
	h.svc = declutter.NewService(db, reg, h.gate, h.events, costs, nil, h.clock, opts)
	return h
}

func (h *harness) liveIDs(t *testing.T) map[int64]bool {
	t.Helper()
	files, err := h.db.ListFiles(context.Background(), owner)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	out := make(map[int64]bool, len(files))
	for _, f := range files {
		out[f.ID] = true
	}
	return out
}

func TestFindDuplicates(t *testing.T) {
	h := newHarness(t, declutter.Options{})
	testutil.SeedFiles(t, h.db,
		testutil.NewFile(owner, "onedrive", "beach.jpg", 2048),
		testutil.NewFile(owner, "googledrive", "beach.jpg", 2048),
		testutil.NewFile(owner, "onedrive", "notes.txt", 10),
		testutil.NewFile(2, "onedrive", "notes.txt", 10),
	)

	tests := []struct {
		scope      dedupe.Scope
		wantGroups int
	}{
		{scope: dedupe.ScopeAll, wantGroups: 1},
		{scope: dedupe.ScopeCrossCloud, wantGroups: 1},
		{scope: dedupe.ScopeSameCloud, wantGroups: 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			d, err := h.svc.FindDuplicates(context.Background(), owner, tt.scope)
			if err != nil {
				t.Fatalf("FindDuplicates() error = %v", err)
			}
			if len(d.Groups) != tt.wantGroups {
				t.Errorf("groups = %d, want %d", len(d.Groups), tt.wantGroups)
			}
		})
	}

	t.Run("other owners are invisible", func(t *testing.T) {
		d, err := h.svc.FindDuplicates(context.Background(), 2, dedupe.ScopeAll)
		if err != nil {
			t.Fatalf("FindDuplicates() error = %v", err)
		}
		if len(d.Groups) != 0 {
			t.Errorf("owner 2 groups = %d, want 0", len(d.Groups))
		}
	})
}

func TestFindDuplicates_Excluded(t *testing.T) {
	m, err := filter.New([]string{"*.tmp"})
	if err != nil {
		t.Fatalf("filter.New() error = %v", err)
	}
	h := newHarness(t, declutter.Options{Exclude: m})
	testutil.SeedFiles(t, h.db,
		testutil.NewFile(owner, "onedrive", "cache.tmp", 5),
		testutil.NewFile(owner, "dropbox", "cache.tmp", 5),
	)

	d, err := h.svc.FindDuplicates(context.Background(), owner, dedupe.ScopeAll)
	if err != nil {
		t.Fatalf("FindDuplicates() error = %v", err)
	}
	if len(d.Groups) != 0 {
		t.Errorf("groups = %d, want excluded files hidden", len(d.Groups))
	}
}

func findGroup(t *testing.T, h *harness, name string, size int64) *dedupe.DuplicateGroup {
	t.Helper()
	g, err := h.svc.FindGroup(context.Background(), owner, dedupe.GroupKey("ns:"+name+":"+strconv.FormatInt(size, 10)), dedupe.ScopeAll)
	if err != nil {
		t.Fatalf("FindGroup() error = %v", err)
	}
	if g == nil {
		t.Fatalf("group %s/%d not found", name, size)
	}
	return g
}

func TestMergeGroup(t *testing.T) {
	t.Run("keeps the target cloud copy and deletes the rest", func(t *testing.T) {
		h := newHarness(t, declutter.Options{PrimaryCloud: "onedrive"})
		files := testutil.SeedFiles(t, h.db,
			testutil.NewFile(owner, "onedrive", "beach.jpg", 2048),
			testutil.NewFile(owner, "googledrive", "beach.jpg", 2048),
			testutil.NewFile(owner, "dropbox", "beach.jpg", 2048),
			testutil.NewFile(owner, "onedrive", "other.jpg", 7),
		)
		g := findGroup(t, h, "beach.jpg", 2048)

		res, err := h.svc.MergeGroup(context.Background(), declutter.MergeRequest{
			OwnerID:     owner,
			Group:       g,
			Strategy:    string(dedupe.KeepPrimaryCloud),
			TargetCloud: "googledrive",
		})
		if err != nil {
			t.Fatalf("MergeGroup() error = %v", err)
		}
		if res.Status != declutter.MergeSuccess {
			t.Fatalf("Status = %q, detail %q", res.Status, res.Detail)
		}
		if res.KeptID != files[1].ID {
			t.Errorf("KeptID = %d, want googledrive copy %d", res.KeptID, files[1].ID)
		}
		if res.ReclaimedBytes != 4096 {
			t.Errorf("ReclaimedBytes = %d, want 4096", res.ReclaimedBytes)
		}

		live := h.liveIDs(t)
		if len(live) != 2 || !live[files[1].ID] || !live[files[3].ID] {
			t.Errorf("live files = %v, want kept copy and unrelated file", live)
		}
		if got := h.deleters["onedrive"].Deleted(); len(got) != 1 || got[0] != files[0].CloudNativeID {
			t.Errorf("onedrive deletes = %v", got)
		}
		if got := h.deleters["googledrive"].Deleted(); len(got) != 0 {
			t.Errorf("kept copy was deleted remotely: %v", got)
		}
		if got := h.events.Events(declutter.SubjectFilesMerged); len(got) != 1 {
			t.Errorf("files.merged events = %d, want 1", len(got))
		}

		reqs := h.gate.Requests()
		if len(reqs) != 1 || reqs[0].Feature != declutter.FeatureCrossCloudDeduplication || !reqs[0].Increment {
			t.Errorf("gate requests = %+v", reqs)
		}
	})

	t.Run("unconfigured providers are skipped", func(t *testing.T) {
		h := newHarness(t, declutter.Options{})
		files := testutil.SeedFiles(t, h.db,
			testutil.NewFile(owner, "onedrive", "a.pdf", 100),
			testutil.NewFile(owner, "icloud", "a.pdf", 100),
		)
		g := findGroup(t, h, "a.pdf", 100)

		res, err := h.svc.MergeGroup(context.Background(), declutter.MergeRequest{OwnerID: owner, Group: g, Strategy: "keep_largest"})
		if err != nil {
			t.Fatalf("MergeGroup() error = %v", err)
		}
		if res.Status != declutter.MergeSuccess {
			t.Errorf("Status = %q, want success", res.Status)
		}
		if len(res.SkippedRemote) != 1 || res.SkippedRemote[0] != files[1].ID {
			t.Errorf("SkippedRemote = %v, want [%d]", res.SkippedRemote, files[1].ID)
		}
	})

	t.Run("remote failure keeps the soft delete and queues a retry", func(t *testing.T) {
		h := newHarness(t, declutter.Options{})
		files := testutil.SeedFiles(t, h.db,
			testutil.NewFile(owner, "onedrive", "a.pdf", 100),
			testutil.NewFile(owner, "dropbox", "a.pdf", 100),
		)
		h.deleters["dropbox"].FailOn(files[1].CloudNativeID, errors.New("rate limited"))
		g := findGroup(t, h, "a.pdf", 100)

		res, err := h.svc.MergeGroup(context.Background(), declutter.MergeRequest{OwnerID: owner, Group: g, Strategy: "keep_largest"})
		if err != nil {
			t.Fatalf("MergeGroup() error = %v", err)
		}
		if res.Status != declutter.MergeFailed || !strings.Contains(res.Detail, "remote delete failed") {
			t.Errorf("result = %+v, want failed with remote detail", res)
		}
		if len(res.RemoteFailures) != 1 || res.RemoteFailures[0].FileID != files[1].ID {
			t.Errorf("RemoteFailures = %+v", res.RemoteFailures)
		}
		if h.liveIDs(t)[files[1].ID] {
			t.Error("file is live again after remote failure")
		}
		if got := h.events.Events(declutter.SubjectFilesMerged); len(got) != 0 {
			t.Errorf("files.merged published for a failed merge")
		}

		tasks, err := h.db.ListPendingRemoteDeletes(context.Background(), owner)
		if err != nil {
			t.Fatalf("ListPendingRemoteDeletes() error = %v", err)
		}
		if len(tasks) != 1 || tasks[0].FileID != files[1].ID {
			t.Fatalf("pending tasks = %+v", tasks)
		}

		report, err := h.svc.RetryRemoteDeletes(context.Background(), owner)
		if err != nil {
			t.Fatalf("RetryRemoteDeletes() error = %v", err)
		}
		if report.Attempted != 1 || report.Succeeded != 0 || len(report.Failed) != 1 {
			t.Errorf("first retry = %+v, want one failure", report)
		}

		h.deleters["dropbox"].FailOn(files[1].CloudNativeID, nil)
		report, err = h.svc.RetryRemoteDeletes(context.Background(), owner)
		if err != nil {
			t.Fatalf("RetryRemoteDeletes() error = %v", err)
		}
		if report.Succeeded != 1 {
			t.Errorf("second retry = %+v, want one success", report)
		}
		tasks, _ = h.db.ListPendingRemoteDeletes(context.Background(), owner)
		if len(tasks) != 0 {
			t.Errorf("pending tasks after success = %d, want 0", len(tasks))
		}
	})

	t.Run("unsupported provider is reported but not queued", func(t *testing.T) {
		h := newHarness(t, declutter.Options{})
		files := testutil.SeedFiles(t, h.db,
			testutil.NewFile(owner, "onedrive", "a.pdf", 100),
			testutil.NewFile(owner, "dropbox", "a.pdf", 100),
		)
		h.deleters["dropbox"].FailOn(files[1].CloudNativeID, remote.ErrUnsupported)
		g := findGroup(t, h, "a.pdf", 100)

		res, err := h.svc.MergeGroup(context.Background(), declutter.MergeRequest{
			OwnerID: owner, Group: g, Strategy: string(dedupe.KeepPrimaryCloud), TargetCloud: "onedrive",
		})
		if err != nil {
			t.Fatalf("MergeGroup() error = %v", err)
		}
		if len(res.RemoteFailures) != 1 || !errors.Is(res.RemoteFailures[0], declutter.ErrDeleteUnsupported) {
			t.Errorf("RemoteFailures = %+v, want one unsupported failure", res.RemoteFailures)
		}
		tasks, err := h.db.ListPendingRemoteDeletes(context.Background(), owner)
		if err != nil {
			t.Fatalf("ListPendingRemoteDeletes() error = %v", err)
		}
		if len(tasks) != 0 {
			t.Errorf("pending tasks = %d, want 0", len(tasks))
		}
	})

	t.Run("stale group is rejected before the gate", func(t *testing.T) {
		h := newHarness(t, declutter.Options{})
		testutil.SeedFiles(t, h.db,
			testutil.NewFile(owner, "onedrive", "a.pdf", 100),
			testutil.NewFile(owner, "dropbox", "a.pdf", 100),
		)
		g := findGroup(t, h, "a.pdf", 100)
		req := declutter.MergeRequest{OwnerID: owner, Group: g, Strategy: "keep_largest"}

		if _, err := h.svc.MergeGroup(context.Background(), req); err != nil {
			t.Fatalf("MergeGroup() error = %v", err)
		}
		_, err := h.svc.MergeGroup(context.Background(), req)
		if !errors.Is(err, declutter.ErrNotFound) {
			t.Fatalf("MergeGroup() second error = %v, want ErrNotFound", err)
		}
		if got := len(h.gate.Requests()); got != 1 {
			t.Errorf("gate requests = %d, want 1", got)
		}
	})

	t.Run("gate denial leaves files untouched", func(t *testing.T) {
		h := newHarness(t, declutter.Options{})
		testutil.SeedFiles(t, h.db,
			testutil.NewFile(owner, "onedrive", "a.pdf", 100),
			testutil.NewFile(owner, "dropbox", "a.pdf", 100),
		)
		h.gate.Deny(declutter.FeatureCrossCloudDeduplication, declutter.ReasonUsageLimitExceeded)
		g := findGroup(t, h, "a.pdf", 100)

		_, err := h.svc.MergeGroup(context.Background(), declutter.MergeRequest{OwnerID: owner, Group: g, Strategy: "keep_largest"})
		var denied *declutter.FeatureGateDenied
		if !errors.As(err, &denied) || denied.Reason != declutter.ReasonUsageLimitExceeded {
			t.Fatalf("MergeGroup() error = %v, want usage_limit_exceeded denial", err)
		}
		if len(h.liveIDs(t)) != 2 {
			t.Error("files deleted despite gate denial")
		}
	})

	t.Run("unknown strategy is not metered", func(t *testing.T) {
		h := newHarness(t, declutter.Options{})
		testutil.SeedFiles(t, h.db,
			testutil.NewFile(owner, "onedrive", "a.pdf", 100),
			testutil.NewFile(owner, "dropbox", "a.pdf", 100),
		)
		g := findGroup(t, h, "a.pdf", 100)

		_, err := h.svc.MergeGroup(context.Background(), declutter.MergeRequest{OwnerID: owner, Group: g, Strategy: "keep_smallest"})
		if !errors.Is(err, dedupe.ErrStrategyNotFound) {
			t.Fatalf("MergeGroup() error = %v, want ErrStrategyNotFound", err)
		}
		if !declutter.IsClientError(err) {
			t.Error("IsClientError() = false for unknown strategy")
		}
		if len(h.gate.Requests()) != 0 {
			t.Errorf("gate consulted %d times, want 0", len(h.gate.Requests()))
		}
	})

	t.Run("user choice outside the group", func(t *testing.T) {
		h := newHarness(t, declutter.Options{})
		testutil.SeedFiles(t, h.db,
			testutil.NewFile(owner, "onedrive", "a.pdf", 100),
			testutil.NewFile(owner, "dropbox", "a.pdf", 100),
		)
		g := findGroup(t, h, "a.pdf", 100)

		_, err := h.svc.MergeGroup(context.Background(), declutter.MergeRequest{
			OwnerID: owner, Group: g, Strategy: "user_choice", SelectedFileID: 999,
		})
		if !errors.Is(err, dedupe.ErrInvalidSelection) {
			t.Errorf("MergeGroup() error = %v, want ErrInvalidSelection", err)
		}
	})

	t.Run("another owner's group is rejected", func(t *testing.T) {
		h := newHarness(t, declutter.Options{})
		testutil.SeedFiles(t, h.db,
			testutil.NewFile(owner, "onedrive", "a.pdf", 100),
			testutil.NewFile(owner, "dropbox", "a.pdf", 100),
		)
		g := findGroup(t, h, "a.pdf", 100)

		_, err := h.svc.MergeGroup(context.Background(), declutter.MergeRequest{OwnerID: 2, Group: g, Strategy: "keep_largest"})
		if !errors.Is(err, declutter.ErrUnknownFile) {
			t.Errorf("MergeGroup() error = %v, want ErrUnknownFile", err)
		}
	})
}

func TestResolveGroup(t *testing.T) {
	h := newHarness(t, declutter.Options{})
	files := testutil.SeedFiles(t, h.db,
		testutil.NewFile(owner, "onedrive", "a.pdf", 100),
		testutil.NewFile(owner, "dropbox", "a-copy.pdf", 90),
		testutil.NewFile(2, "dropbox", "theirs.pdf", 90),
	)

	g, err := h.svc.ResolveGroup(context.Background(), owner, "", []int64{files[0].ID, files[1].ID})
	if err != nil {
		t.Fatalf("ResolveGroup() error = %v", err)
	}
	if len(g.Files) != 2 || g.TotalSize != 190 || g.WastedSize != 90 {
		t.Errorf("group = %+v", g)
	}

	tests := []struct {
		name string
		ids  []int64
		want error
	}{
		{name: "single file", ids: []int64{files[0].ID}, want: declutter.ErrInvalidGroup},
		{name: "repeated id", ids: []int64{files[0].ID, files[0].ID}, want: declutter.ErrInvalidGroup},
		{name: "other owner's file", ids: []int64{files[0].ID, files[2].ID}, want: declutter.ErrUnknownFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.ResolveGroup(context.Background(), owner, "", tt.ids)
			if !errors.Is(err, tt.want) {
				t.Errorf("ResolveGroup() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBatchMerge(t *testing.T) {
	seed := func(t *testing.T, h *harness) []*dedupe.DuplicateGroup {
		t.Helper()
		testutil.SeedFiles(t, h.db,
			testutil.NewFile(owner, "onedrive", "a.pdf", 100),
			testutil.NewFile(owner, "dropbox", "a.pdf", 100),
			testutil.NewFile(owner, "onedrive", "b.mp4", 500),
			testutil.NewFile(owner, "googledrive", "b.mp4", 500),
		)
		d, err := h.svc.FindDuplicates(context.Background(), owner, dedupe.ScopeAll)
		if err != nil {
			t.Fatalf("FindDuplicates() error = %v", err)
		}
		if len(d.Groups) != 2 {
			t.Fatalf("groups = %d, want 2", len(d.Groups))
		}
		return d.Groups
	}

	t.Run("merges every group", func(t *testing.T) {
		h := newHarness(t, declutter.Options{})
		results, err := h.svc.BatchMerge(context.Background(), owner, seed(t, h), "")
		if err != nil {
			t.Fatalf("BatchMerge() error = %v", err)
		}
		for _, r := range results {
			if r.Status != declutter.MergeSuccess || r.Strategy != dedupe.KeepLargest {
				t.Errorf("result = %+v", r)
			}
		}
		if len(h.liveIDs(t)) != 2 {
			t.Errorf("live files = %d, want 2", len(h.liveIDs(t)))
		}
	})

	t.Run("unknown strategy fails each group without deleting", func(t *testing.T) {
		h := newHarness(t, declutter.Options{})
		results, err := h.svc.BatchMerge(context.Background(), owner, seed(t, h), "keep_smallest")
		if err != nil {
			t.Fatalf("BatchMerge() error = %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("results = %d, want 2", len(results))
		}
		for _, r := range results {
			if r.Status != declutter.MergeFailed || !strings.Contains(r.Detail, "strategy not found") {
				t.Errorf("result = %+v, want strategy not found", r)
			}
		}
		if len(h.liveIDs(t)) != 4 {
			t.Error("files deleted by a failed batch")
		}
	})

	t.Run("an invalid group does not stop the batch", func(t *testing.T) {
		h := newHarness(t, declutter.Options{})
		groups := seed(t, h)
		groups = append([]*dedupe.DuplicateGroup{{Key: "bad"}}, groups...)

		results, err := h.svc.BatchMerge(context.Background(), owner, groups, "keep_largest")
		if err != nil {
			t.Fatalf("BatchMerge() error = %v", err)
		}
		if results[0].Status != declutter.MergeFailed || results[0].GroupID != "bad" {
			t.Errorf("first result = %+v, want failed", results[0])
		}
		if results[1].Status != declutter.MergeSuccess || results[2].Status != declutter.MergeSuccess {
			t.Errorf("later groups = %+v, %+v", results[1], results[2])
		}
	})

	t.Run("remote failure in one group leaves the others merged", func(t *testing.T) {
		h := newHarness(t, declutter.Options{PrimaryCloud: "onedrive"})
		files := testutil.SeedFiles(t, h.db,
			testutil.NewFile(owner, "onedrive", "a.pdf", 100),
			testutil.NewFile(owner, "dropbox", "a.pdf", 100),
			testutil.NewFile(owner, "onedrive", "c.doc", 30),
			testutil.NewFile(owner, "dropbox", "c.doc", 30),
			testutil.NewFile(owner, "onedrive", "b.mp4", 500),
			testutil.NewFile(owner, "dropbox", "b.mp4", 500),
		)
		h.deleters["dropbox"].FailOn(files[3].CloudNativeID, errors.New("server error"))
		groups := []*dedupe.DuplicateGroup{
			findGroup(t, h, "a.pdf", 100),
			findGroup(t, h, "c.doc", 30),
			findGroup(t, h, "b.mp4", 500),
		}

		results, err := h.svc.BatchMerge(context.Background(), owner, groups, string(dedupe.KeepPrimaryCloud))
		if err != nil {
			t.Fatalf("BatchMerge() error = %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("results = %d, want 3", len(results))
		}
		want := []string{declutter.MergeSuccess, declutter.MergeFailed, declutter.MergeSuccess}
		for i, r := range results {
			if r.Status != want[i] {
				t.Errorf("results[%d].Status = %q, want %q (detail %q)", i, r.Status, want[i], r.Detail)
			}
		}
		if got := h.deleters["dropbox"].Deleted(); len(got) != 2 {
			t.Errorf("dropbox deletes = %v, want the two healthy groups", got)
		}
	})

	t.Run("a group merged by an earlier batch fails as stale", func(t *testing.T) {
		h := newHarness(t, declutter.Options{})
		groups := seed(t, h)

		if _, err := h.svc.BatchMerge(context.Background(), owner, groups, "keep_largest"); err != nil {
			t.Fatalf("BatchMerge() first error = %v", err)
		}
		deletes := len(h.deleters["onedrive"].Deleted()) + len(h.deleters["dropbox"].Deleted()) + len(h.deleters["googledrive"].Deleted())

		results, err := h.svc.BatchMerge(context.Background(), owner, groups, "keep_largest")
		if err != nil {
			t.Fatalf("BatchMerge() second error = %v", err)
		}
		for _, r := range results {
			if r.Status != declutter.MergeFailed || !strings.Contains(r.Detail, "not found") {
				t.Errorf("result = %+v, want stale failure", r)
			}
		}
		again := len(h.deleters["onedrive"].Deleted()) + len(h.deleters["dropbox"].Deleted()) + len(h.deleters["googledrive"].Deleted())
		if again != deletes {
			t.Errorf("remote deletes = %d after second batch, want %d", again, deletes)
		}
		if got := len(h.gate.Requests()); got != 2 {
			t.Errorf("gate requests = %d, want 2", got)
		}
	})

	t.Run("cancellation between groups", func(t *testing.T) {
		h := newHarness(t, declutter.Options{})
		groups := seed(t, h)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		results, err := h.svc.BatchMerge(ctx, owner, groups, "keep_largest")
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("BatchMerge() error = %v, want Canceled", err)
		}
		if len(results) != 2 {
			t.Fatalf("results = %d, want 2", len(results))
		}
		for _, r := range results {
			if r.Status != declutter.MergeFailed || r.Detail != "cancelled" {
				t.Errorf("result = %+v, want cancelled", r)
			}
		}
		if len(h.liveIDs(t)) != 4 {
			t.Error("cancelled batch deleted files")
		}
	})
}

func TestAnalyzeStorage(t *testing.T) {
	h := newHarness(t, declutter.Options{})
	testutil.SeedConnections(t, h.db, owner, "onedrive", "google_drive")
	files := testutil.SeedFiles(t, h.db,
		testutil.NewFile(owner, "onedrive", "movie.mp4", gib),
		testutil.WithID(testutil.NewFile(owner, "onedrive", "movie.mp4", gib), "onedrive:movie-copy"),
		testutil.NewFile(owner, "google_drive", "movie.mp4", gib),
		testutil.NewFile(owner, "google_drive", "song.mp3", 1024),
		testutil.NewFile(owner, "google_drive", "blob", 1),
	)
	if _, err := h.svc.RecordAccess(context.Background(), owner, files[3].ID); err != nil {
		t.Fatalf("RecordAccess() error = %v", err)
	}

	report, err := h.svc.AnalyzeStorage(context.Background(), owner)
	if err != nil {
		t.Fatalf("AnalyzeStorage() error = %v", err)
	}

	if report.Overview.TotalFiles != 5 || report.Overview.TotalSize != 3*gib+1025 {
		t.Errorf("overview = %+v", report.Overview)
	}
	if report.Overview.DuplicateSize != gib || report.Overview.DuplicateCount != 1 {
		t.Errorf("overview duplicates = %d bytes / %d, want within-provider copy only", report.Overview.DuplicateSize, report.Overview.DuplicateCount)
	}

	od := report.ByProvider["onedrive"]
	if od == nil || od.TotalFiles != 2 || od.DuplicateGroups != 1 {
		t.Fatalf("onedrive = %+v", od)
	}
	if od.PotentialSavings != 0.0069 {
		t.Errorf("onedrive savings = %v, want 0.0069", od.PotentialSavings)
	}
	if gd := report.ByProvider["google_drive"]; gd == nil || gd.DuplicateCount != 0 {
		t.Errorf("google_drive = %+v", gd)
	}

	if got := report.FileTypes["Videos"]; got == nil || got.Count != 3 {
		t.Errorf("Videos = %+v", got)
	}
	if got := report.FileTypes[declutter.CategoryOther]; got == nil || got.Count != 1 {
		t.Errorf("Other = %+v", got)
	}
	if report.UsagePatterns.AccessFrequency["monthly"] != 1 {
		t.Errorf("usage = %+v", report.UsagePatterns)
	}

	reqs := h.gate.Requests()
	if len(reqs) != 1 || reqs[0].Feature != declutter.FeatureStorageAnalysis || reqs[0].Amount != report.Overview.TotalSize {
		t.Errorf("gate requests = %+v", reqs)
	}

	history, err := h.svc.History(context.Background(), owner, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].ID != report.SnapshotID || history[0].CloudProvider != declutter.SnapshotAllProviders {
		t.Errorf("history = %+v", history)
	}
	if got := h.events.Events(declutter.SubjectAnalysisCompleted); len(got) != 1 {
		t.Errorf("analysis.completed events = %d, want 1", len(got))
	}
	if got := report.Providers(); len(got) != 2 || got[0] != "google_drive" {
		t.Errorf("Providers() = %v", got)
	}
}

func TestAnalyzeStorage_Denied(t *testing.T) {
	h := newHarness(t, declutter.Options{})
	testutil.SeedFiles(t, h.db, testutil.NewFile(owner, "onedrive", "a.jpg", 1))
	h.gate.Deny(declutter.FeatureStorageAnalysis, declutter.ReasonFeatureNotAvailable)

	_, err := h.svc.AnalyzeStorage(context.Background(), owner)
	var denied *declutter.FeatureGateDenied
	if !errors.As(err, &denied) {
		t.Fatalf("AnalyzeStorage() error = %v, want denial", err)
	}
	history, _ := h.svc.History(context.Background(), owner, 10)
	if len(history) != 0 {
		t.Error("snapshot written for a denied analysis")
	}
}

func TestAnalyzeStorage_PublishFailureIsIgnored(t *testing.T) {
	h := newHarness(t, declutter.Options{})
	h.events.Err = errors.New("nats down")
	testutil.SeedFiles(t, h.db, testutil.NewFile(owner, "onedrive", "a.jpg", 1))

	if _, err := h.svc.AnalyzeStorage(context.Background(), owner); err != nil {
		t.Fatalf("AnalyzeStorage() error = %v", err)
	}
}

func TestGenerateRecommendations(t *testing.T) {
	h := newHarness(t, declutter.Options{})
	old := h.clock.Now().AddDate(-2, 0, 0)
	testutil.SeedFiles(t, h.db,
		testutil.NewFile(owner, "onedrive", "dup.jpg", 10),
		testutil.NewFile(owner, "dropbox", "dup.jpg", 10),
		testutil.NewFile(owner, "onedrive", "backup.zip", 200*1024*1024),
		testutil.ModifiedAt(testutil.NewFile(owner, "onedrive", "taxes-2021.pdf", 1024), old),
		testutil.ModifiedAt(testutil.NewFile(owner, "onedrive", "fresh.pdf", 1024), h.clock.Now().Add(-time.Hour)),
	)

	recs, err := h.svc.GenerateRecommendations(context.Background(), owner)
	if err != nil {
		t.Fatalf("GenerateRecommendations() error = %v", err)
	}

	wantTypes := []model.RecommendationType{model.RecommendDelete, model.RecommendCompress, model.RecommendArchive}
	if len(recs) != len(wantTypes) {
		t.Fatalf("recommendations = %d, want %d", len(recs), len(wantTypes))
	}
	for i, want := range wantTypes {
		if recs[i].Type != want {
			t.Errorf("recs[%d].Type = %q, want %q", i, recs[i].Type, want)
		}
		if recs[i].Status != model.StatusPending || recs[i].ID == 0 {
			t.Errorf("recs[%d] = %+v, want persisted pending", i, recs[i])
		}
	}
	if len(recs[0].FileIDs) != 1 {
		t.Errorf("delete ids = %v, want one removable copy", recs[0].FileIDs)
	}
	if len(recs[2].FileIDs) != 1 {
		t.Errorf("archive ids = %v, want only the old file", recs[2].FileIDs)
	}

	stored, err := h.svc.ListRecommendations(context.Background(), owner, model.StatusPending)
	if err != nil {
		t.Fatalf("ListRecommendations() error = %v", err)
	}
	if len(stored) != 3 {
		t.Errorf("stored = %d, want 3", len(stored))
	}

	if err := h.svc.SetRecommendationStatus(context.Background(), owner, recs[0].ID, model.StatusDismissed); err != nil {
		t.Fatalf("SetRecommendationStatus() error = %v", err)
	}
	if err := h.svc.SetRecommendationStatus(context.Background(), owner, recs[0].ID, "maybe"); err == nil {
		t.Error("SetRecommendationStatus() accepted an unknown status")
	}
	if err := h.svc.SetRecommendationStatus(context.Background(), owner, 9999, model.StatusApplied); !errors.Is(err, declutter.ErrNotFound) {
		t.Errorf("SetRecommendationStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestGenerateRecommendations_Empty(t *testing.T) {
	h := newHarness(t, declutter.Options{})
	testutil.SeedFiles(t, h.db, testutil.NewFile(owner, "onedrive", "small.txt", 1))

	recs, err := h.svc.GenerateRecommendations(context.Background(), owner)
	if err != nil {
		t.Fatalf("GenerateRecommendations() error = %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("recommendations = %d, want 0", len(recs))
	}
}

func TestCalculateSavings(t *testing.T) {
	h := newHarness(t, declutter.Options{})
	testutil.SeedConnections(t, h.db, owner, "dropbox")
	testutil.SeedFiles(t, h.db,
		testutil.NewFile(owner, "dropbox", "a.iso", 2*gib),
		testutil.WithID(testutil.NewFile(owner, "dropbox", "a.iso", 2*gib), "dropbox:a-2"),
	)

	s, err := h.svc.CalculateSavings(context.Background(), owner)
	if err != nil {
		t.Fatalf("CalculateSavings() error = %v", err)
	}
	if s.DuplicateSavings != 2 {
		t.Errorf("DuplicateSavings = %v GB, want 2", s.DuplicateSavings)
	}
	if s.ByProvider["dropbox"] != s.TotalSavings || s.TotalSavings != 2*0.0059 {
		t.Errorf("savings = %+v", s)
	}
	if s.YearlySavings != s.MonthlySavings*12 {
		t.Errorf("YearlySavings = %v, want 12 × %v", s.YearlySavings, s.MonthlySavings)
	}
}

func TestRecordAccess(t *testing.T) {
	h := newHarness(t, declutter.Options{})
	files := testutil.SeedFiles(t, h.db, testutil.NewFile(owner, "onedrive", "a.txt", 1))

	var p *model.UsagePattern
	for i := 0; i < 4; i++ {
		var err error
		if p, err = h.svc.RecordAccess(context.Background(), owner, files[0].ID); err != nil {
			t.Fatalf("RecordAccess() error = %v", err)
		}
	}
	if p.AccessCount != 4 || p.AccessFrequency != model.FrequencyWeekly {
		t.Errorf("pattern = %+v, want 4 accesses, weekly", p)
	}

	if _, err := h.svc.RecordAccess(context.Background(), owner, 999); !errors.Is(err, declutter.ErrUnknownFile) {
		t.Errorf("RecordAccess(missing) error = %v, want ErrUnknownFile", err)
	}
}

func TestAccessFrequency(t *testing.T) {
	tests := []struct {
		count int
		want  string
	}{
		{0, model.FrequencyYearly},
		{1, model.FrequencyMonthly},
		{3, model.FrequencyMonthly},
		{4, model.FrequencyWeekly},
		{29, model.FrequencyWeekly},
		{30, model.FrequencyDaily},
	}
	for _, tt := range tests {
		if got := declutter.AccessFrequency(tt.count); got != tt.want {
			t.Errorf("AccessFrequency(%d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}
