package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"declutter-go/internal/config"
	"declutter-go/internal/declutter"
	"declutter-go/internal/model"
	"declutter-go/internal/testutil"
)

const owner = int64(1)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.NewConfig("test-instance", base)
	cfg.Database.Type = "memory"
	cfg.Encryption.Type = "test"
	cfg.Providers = []config.ProviderConfig{{Type: "memory", Name: "onedrive"}, {Type: "memory", Name: "googledrive"}}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, operation string) *DeclutterApp {
	t.Helper()
	a, err := NewDeclutterApp(context.Background(), cfg, operation, Options{Clock: testutil.FixedClock()})
	if err != nil {
		t.Fatalf("NewDeclutterApp() error = %v", err)
	}
	return a
}

const inventoryDoc = `{
  "connections": [
    {"provider": "onedrive", "account_email": "me@example.com"},
    {"provider": "googledrive"}
  ],
  "files": [
    {"provider": "onedrive", "cloud_native_id": "od-1", "name": "beach.jpg", "size_bytes": 2048, "path": "/photos/beach.jpg"},
    {"provider": "googledrive", "cloud_native_id": "gd-1", "name": "beach.jpg", "size_bytes": 2048, "path": "/beach.jpg"},
    {"provider": "onedrive", "cloud_native_id": "od-2", "name": "notes.txt", "size_bytes": 10}
  ]
}`

func importFixture(t *testing.T, a *DeclutterApp) {
	t.Helper()
	summary, err := a.ImportInventory(context.Background(), owner, strings.NewReader(inventoryDoc))
	if err != nil {
		t.Fatalf("ImportInventory() error = %v", err)
	}
	if summary.Connections != 2 || summary.Files != 3 {
		t.Fatalf("summary = %+v, want 2 connections and 3 files", summary)
	}
}

func TestNewDeclutterApp_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "bad database", mutate: func(c *config.Config) { c.Database.Type = "postgres" }},
		{name: "bad archive", mutate: func(c *config.Config) { c.Archive.Type = "tape" }},
		{name: "bad encryption", mutate: func(c *config.Config) { c.Encryption.Type = "rot13" }},
		{name: "bad events", mutate: func(c *config.Config) { c.Events.Type = "kafka" }},
		{name: "bad provider", mutate: func(c *config.Config) { c.Providers = []config.ProviderConfig{{Type: "ftp"}} }},
		{name: "bad log level", mutate: func(c *config.Config) { c.LogLevel = "loud" }},
		{name: "bad ignore pattern", mutate: func(c *config.Config) { c.Analysis.Ignore = []string{"[a"} }},
		{name: "plans without free", mutate: func(c *config.Config) { c.Plans = []config.PlanConfig{{Name: "pro"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			a, err := NewDeclutterApp(context.Background(), cfg, "Test", Options{})
			if err == nil {
				a.Close()
				t.Fatal("NewDeclutterApp() error = nil, want error")
			}
		})
	}
}

func TestImportInventory(t *testing.T) {
	a := newTestApp(t, testConfig(t), "ImportInventory")
	defer a.Close()
	importFixture(t, a)

	t.Run("re-import updates in place", func(t *testing.T) {
		if _, err := a.ImportInventory(context.Background(), owner, strings.NewReader(inventoryDoc)); err != nil {
			t.Fatalf("ImportInventory() error = %v", err)
		}
		files, err := a.db.ListFiles(context.Background(), owner)
		if err != nil {
			t.Fatalf("ListFiles() error = %v", err)
		}
		if len(files) != 3 {
			t.Errorf("files = %d, want 3", len(files))
		}
	})

	t.Run("other owner rejected", func(t *testing.T) {
		_, err := a.ImportInventory(context.Background(), owner, strings.NewReader(`{"owner_id": 7}`))
		if err == nil {
			t.Fatal("ImportInventory() error = nil, want owner mismatch")
		}
	})

	t.Run("missing cloud id", func(t *testing.T) {
		_, err := a.ImportInventory(context.Background(), owner, strings.NewReader(`{"files": [{"provider": "onedrive", "name": "x"}]}`))
		if err == nil {
			t.Fatal("ImportInventory() error = nil, want validation error")
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := a.ImportInventory(context.Background(), owner, strings.NewReader(`{"filez": []}`))
		if err == nil {
			t.Fatal("ImportInventory() error = nil, want decode error")
		}
	})
}

func TestMergeAndAnalyze(t *testing.T) {
	a := newTestApp(t, testConfig(t), "Merge")
	defer a.Close()
	importFixture(t, a)
	ctx := context.Background()

	d, err := a.FindDuplicates(ctx, owner, "cross_cloud", false)
	if err != nil {
		t.Fatalf("FindDuplicates() error = %v", err)
	}
	if len(d.Groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(d.Groups))
	}

	res, err := a.Merge(ctx, owner, MergeOptions{Key: string(d.Groups[0].Key), Strategy: "keep_primary_cloud", TargetCloud: "googledrive"})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if res.Status != declutter.MergeSuccess || res.ReclaimedBytes != 2048 {
		t.Errorf("result = %+v, want success reclaiming 2048", res)
	}

	if _, err := a.Merge(ctx, owner, MergeOptions{Key: string(d.Groups[0].Key)}); !errors.Is(err, declutter.ErrNotFound) {
		t.Errorf("second Merge() error = %v, want ErrNotFound", err)
	}
	if a.op.Status != "error" {
		t.Errorf("operation status = %q, want error after a failed merge", a.op.Status)
	}

	report, err := a.Analyze(ctx, owner)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if report.Overview.TotalFiles != 2 {
		t.Errorf("TotalFiles = %d, want 2", report.Overview.TotalFiles)
	}
}

func TestIgnorePatterns(t *testing.T) {
	cfg := testConfig(t)
	cfg.Analysis.Ignore = []string{"*.jpg"}
	a := newTestApp(t, cfg, "FindDuplicates")
	defer a.Close()
	importFixture(t, a)

	d, err := a.FindDuplicates(context.Background(), owner, "", false)
	if err != nil {
		t.Fatalf("FindDuplicates() error = %v", err)
	}
	if len(d.Groups) != 0 {
		t.Errorf("groups = %d, want 0 with *.jpg ignored", len(d.Groups))
	}
}

func TestPlan(t *testing.T) {
	a := newTestApp(t, testConfig(t), "SetPlan")
	defer a.Close()
	ctx := context.Background()

	plan, err := a.Plan(ctx, owner)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan != "free" {
		t.Errorf("Plan() = %q, want free", plan)
	}

	if err := a.SetPlan(ctx, owner, "pro"); err != nil {
		t.Fatalf("SetPlan() error = %v", err)
	}
	if plan, _ := a.Plan(ctx, owner); plan != "pro" {
		t.Errorf("Plan() = %q, want pro", plan)
	}
	if err := a.SetPlan(ctx, owner, "platinum"); err == nil {
		t.Error("SetPlan(platinum) error = nil, want unknown plan")
	}
}

func TestRecommendations(t *testing.T) {
	a := newTestApp(t, testConfig(t), "Recommendations")
	defer a.Close()
	importFixture(t, a)
	ctx := context.Background()

	recs, err := a.GenerateRecommendations(ctx, owner)
	if err != nil {
		t.Fatalf("GenerateRecommendations() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("recommendations = %d, want 1", len(recs))
	}
	if err := a.SetRecommendationStatus(ctx, owner, recs[0].ID, model.StatusDismissed); err != nil {
		t.Fatalf("SetRecommendationStatus() error = %v", err)
	}
	pending, err := a.ListRecommendations(ctx, owner, "pending")
	if err != nil {
		t.Fatalf("ListRecommendations() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestReports(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive = config.ArchiveConfig{Type: "memory"}
	a := newTestApp(t, cfg, "ExportReport")
	defer a.Close()
	importFixture(t, a)
	ctx := context.Background()

	for _, encrypt := range []bool{false, true} {
		key, err := a.ExportReport(ctx, owner, encrypt)
		if err != nil {
			t.Fatalf("ExportReport(%v) error = %v", encrypt, err)
		}
		if !strings.HasPrefix(key, "reports/1/") {
			t.Errorf("key = %q, want reports/1/ prefix", key)
		}
		if got := strings.HasSuffix(key, ".age"); got != encrypt {
			t.Errorf("key %q encrypted suffix = %v, want %v", key, got, encrypt)
		}

		asked := false
		var out bytes.Buffer
		err = a.OpenReport(ctx, key, func() (string, error) { asked = true; return "pass", nil }, &out)
		if err != nil {
			t.Fatalf("OpenReport() error = %v", err)
		}
		if asked != encrypt {
			t.Errorf("passphrase asked = %v, want %v", asked, encrypt)
		}
		if !strings.Contains(out.String(), `"overview"`) {
			t.Errorf("report = %q, want the analysis JSON", out.String())
		}
	}

	keys, err := a.ListReports(ctx, owner)
	if err != nil {
		t.Fatalf("ListReports() error = %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("reports = %v, want 2", keys)
	}
}

func TestReports_NoArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive = config.ArchiveConfig{}
	a := newTestApp(t, cfg, "ExportReport")
	defer a.Close()

	if _, err := a.ExportReport(context.Background(), owner, false); !errors.Is(err, ErrNoArchive) {
		t.Errorf("ExportReport() error = %v, want ErrNoArchive", err)
	}
}

func TestClose_BacksUpDatabase(t *testing.T) {
	cfg := testConfig(t)
	root := filepath.Join(cfg.BaseDir, "archive")
	cfg.Archive = config.ArchiveConfig{Type: "filesystem", Root: root}

	a := newTestApp(t, cfg, "ImportInventory")
	importFixture(t, a)
	id := a.op.ID
	if id == 0 {
		t.Fatal("operation was not persisted")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	backup := filepath.Join(root, filepath.FromSlash(BackupKey("test-instance", id)))
	info, err := os.Stat(backup)
	if err != nil {
		t.Fatalf("backup not uploaded: %v", err)
	}
	if info.Size() == 0 {
		t.Error("backup is empty")
	}
}

func TestClose_ReadOnlyOperationSkipsBackup(t *testing.T) {
	cfg := testConfig(t)
	root := filepath.Join(cfg.BaseDir, "archive")
	cfg.Archive = config.ArchiveConfig{Type: "filesystem", Root: root}

	a := newTestApp(t, cfg, "FindDuplicates")
	if _, err := a.FindDuplicates(context.Background(), owner, "", false); err != nil {
		t.Fatalf("FindDuplicates() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "backups")); !os.IsNotExist(err) {
		t.Errorf("backups dir stat error = %v, want not exist", err)
	}
}

func TestBackupKey(t *testing.T) {
	if got := BackupKey("host-1", 42); got != "backups/host-1/declutter-42.db" {
		t.Errorf("BackupKey() = %q", got)
	}
}
