// Package app wires the declutter service from configuration for the CLI and
// the HTTP server.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"declutter-go/internal/archive"
	"declutter-go/internal/config"
	"declutter-go/internal/cost"
	"declutter-go/internal/database"
	"declutter-go/internal/declutter"
	"declutter-go/internal/dedupe"
	"declutter-go/internal/encryption"
	"declutter-go/internal/events"
	"declutter-go/internal/filter"
	"declutter-go/internal/gate"
	"declutter-go/internal/model"
	"declutter-go/internal/remote"
)

// DeclutterApp is the application layer between the CLI and the Service.
// It constructs all dependencies from config, tracks the running operation
// and manages the DB lifecycle on Close.
type DeclutterApp struct {
	cfg       *config.Config
	db        declutter.Database
	gate      *gate.PlanGate
	archive   declutter.Archive
	encryptor declutter.Encryptor
	events    events.Publisher
	service   *declutter.Service
	logger    declutter.Logger
	clock     declutter.Clock
	op        *Operation
	logFile   *os.File
}

// Options adjust how NewDeclutterApp builds the app.
type Options struct {
	// Console receives log output in addition to the log file. Nil disables it.
	Console io.Writer
	// Clock defaults to the wall clock.
	Clock declutter.Clock
}

// NewDeclutterApp creates a fully wired DeclutterApp from the given config.
// operation identifies the command being run (e.g. "Analyze", "BatchMerge").
// The caller must call Close when done.
func NewDeclutterApp(ctx context.Context, cfg *config.Config, operation string, opts Options) (*DeclutterApp, error) {
	clock := opts.Clock
	if clock == nil {
		clock = declutter.RealClock{}
	}

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	exclude, err := newExcluder(cfg.Analysis)
	if err != nil {
		return nil, err
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	plans := cfg.Plans
	if len(plans) == 0 {
		plans = config.DefaultPlans()
	}
	pg, err := gate.NewPlanGate(plans, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating feature gate: %w", err)
	}

	deleters, err := remote.NewDeletersFromConfig(ctx, cfg.Providers)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating remote deleters: %w", err)
	}

	arch, err := archive.NewArchiveFromConfig(ctx, cfg.Archive)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating archive: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	opID := clock.Now().UTC().Format("20060102T150405Z")
	sl, logFile, err := newLogger(cfg.LogDir, opID, level, opts.Console)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	pub, err := events.NewPublisherFromConfig(cfg.Events, logger)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating event publisher: %w", err)
	}

	rates := cfg.Costs.Rates
	if len(rates) == 0 {
		rates = config.DefaultCostRates()
	}
	svcOpts := declutter.Options{
		PrimaryCloud:    cfg.Analysis.PrimaryCloud,
		Recommendations: recommendationPolicy(cfg.Recommendations),
	}
	if exclude != nil {
		svcOpts.Exclude = exclude
	}
	svc := declutter.NewService(db, deleters, pg, pub, cost.NewCalculator(rates, cfg.Costs.DefaultRate), logger, clock, svcOpts)

	return &DeclutterApp{
		cfg:       cfg,
		db:        db,
		gate:      pg,
		archive:   arch,
		encryptor: enc,
		events:    pub,
		service:   svc,
		logger:    logger,
		clock:     clock,
		op:        NewOperation(operation, ""),
		logFile:   logFile,
	}, nil
}

// newExcluder merges the inline and file-based ignore patterns. It returns nil
// when there are none.
func newExcluder(cfg config.AnalysisConfig) (*filter.Matcher, error) {
	patterns := append([]string{}, cfg.Ignore...)
	if cfg.IgnoreFile != "" {
		more, err := filter.ParseFile(cfg.IgnoreFile)
		if err != nil {
			return nil, fmt.Errorf("reading ignore file: %w", err)
		}
		patterns = append(patterns, more...)
	}
	m, err := filter.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("parsing ignore patterns: %w", err)
	}
	if m.Len() == 0 {
		return nil, nil
	}
	return m, nil
}

func recommendationPolicy(cfg config.RecommendationsConfig) *declutter.RecommendationPolicy {
	if cfg == (config.RecommendationsConfig{}) {
		return nil
	}
	return &declutter.RecommendationPolicy{
		LargeFileBytes:   cfg.LargeFileBytes,
		CompressRatio:    cfg.CompressRatio,
		MaxCompressIDs:   cfg.MaxCompressIDs,
		ArchiveAfterDays: cfg.ArchiveAfterDays,
		ArchiveRatio:     cfg.ArchiveRatio,
		MaxArchiveIDs:    cfg.MaxArchiveIDs,
	}
}

// Service returns the wired service, e.g. for the HTTP server.
func (a *DeclutterApp) Service() *declutter.Service { return a.service }

// Logger returns the app's logger.
func (a *DeclutterApp) Logger() declutter.Logger { return a.logger }

// SetParameters records the command's parameters on the operation.
func (a *DeclutterApp) SetParameters(params string) {
	a.op.Parameters = params
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for DB-mutating commands.
func (a *DeclutterApp) persistOperation(ctx context.Context) error {
	if a.op.Persisted() {
		return nil
	}
	op, err := a.db.CreateOperation(ctx, a.op.Name, a.op.Parameters, a.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = op.ID
	return nil
}

// FindDuplicates lists the owner's duplicate groups in scope.
func (a *DeclutterApp) FindDuplicates(ctx context.Context, ownerID int64, scope string, byHash bool) (*dedupe.Detection, error) {
	s, err := dedupe.ParseScope(scope)
	if err != nil {
		return nil, err
	}
	if byHash {
		return a.service.FindDuplicatesByHash(ctx, ownerID, s)
	}
	return a.service.FindDuplicates(ctx, ownerID, s)
}

// FindSimilar lists groups of similarly named files.
func (a *DeclutterApp) FindSimilar(ctx context.Context, ownerID int64) ([]*dedupe.SimilarGroup, error) {
	return a.service.FindSimilar(ctx, ownerID)
}

// MergeOptions are the CLI-facing parameters of a single merge.
type MergeOptions struct {
	Key         string
	Scope       string
	Strategy    string
	TargetCloud string
	// Keep selects the file to keep; it implies the user_choice strategy.
	Keep int64
}

// Merge finds the group named by opts.Key and merges it.
func (a *DeclutterApp) Merge(ctx context.Context, ownerID int64, opts MergeOptions) (*declutter.MergeResult, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	scope, err := dedupe.ParseScope(opts.Scope)
	if err != nil {
		return nil, a.op.Fail(err)
	}
	g, err := a.service.FindGroup(ctx, ownerID, dedupe.GroupKey(opts.Key), scope)
	if err != nil {
		return nil, a.op.Fail(err)
	}
	if g == nil {
		return nil, a.op.Fail(fmt.Errorf("duplicate group %s: %w", opts.Key, declutter.ErrNotFound))
	}

	strategy := opts.Strategy
	if opts.Keep != 0 && strategy == "" {
		strategy = string(dedupe.UserChoice)
	}
	res, err := a.service.MergeGroup(ctx, declutter.MergeRequest{
		OwnerID:        ownerID,
		Group:          g,
		Strategy:       strategy,
		TargetCloud:    opts.TargetCloud,
		SelectedFileID: opts.Keep,
	})
	return res, a.op.Fail(err)
}

// BatchMerge merges every group detected in scope.
func (a *DeclutterApp) BatchMerge(ctx context.Context, ownerID int64, scope, strategy string) ([]*declutter.MergeResult, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	d, err := a.FindDuplicates(ctx, ownerID, scope, false)
	if err != nil {
		return nil, a.op.Fail(err)
	}
	results, err := a.service.BatchMerge(ctx, ownerID, d.Groups, strategy)
	return results, a.op.Fail(err)
}

// RetryDeletes retries the owner's queued remote deletions.
func (a *DeclutterApp) RetryDeletes(ctx context.Context, ownerID int64) (*declutter.RetryReport, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	report, err := a.service.RetryRemoteDeletes(ctx, ownerID)
	return report, a.op.Fail(err)
}

// Analyze runs a storage analysis, appending a snapshot.
func (a *DeclutterApp) Analyze(ctx context.Context, ownerID int64) (*declutter.StorageAnalysisReport, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	report, err := a.service.AnalyzeStorage(ctx, ownerID)
	return report, a.op.Fail(err)
}

// Savings runs an analysis and summarises its savings.
func (a *DeclutterApp) Savings(ctx context.Context, ownerID int64) (*declutter.SavingsReport, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	report, err := a.service.CalculateSavings(ctx, ownerID)
	return report, a.op.Fail(err)
}

// GenerateRecommendations stores a fresh set of recommendations.
func (a *DeclutterApp) GenerateRecommendations(ctx context.Context, ownerID int64) ([]*model.OptimizationRecommendation, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	recs, err := a.service.GenerateRecommendations(ctx, ownerID)
	return recs, a.op.Fail(err)
}

// ListRecommendations lists stored recommendations, optionally by status.
func (a *DeclutterApp) ListRecommendations(ctx context.Context, ownerID int64, status string) ([]*model.OptimizationRecommendation, error) {
	return a.service.ListRecommendations(ctx, ownerID, model.RecommendationStatus(status))
}

// SetRecommendationStatus applies or dismisses a recommendation.
func (a *DeclutterApp) SetRecommendationStatus(ctx context.Context, ownerID, id int64, status model.RecommendationStatus) error {
	if err := a.persistOperation(ctx); err != nil {
		return err
	}
	return a.op.Fail(a.service.SetRecommendationStatus(ctx, ownerID, id, status))
}

// History returns the owner's most recent analysis snapshots.
func (a *DeclutterApp) History(ctx context.Context, ownerID int64, limit int) ([]*model.StorageAnalysisSnapshot, error) {
	return a.service.History(ctx, ownerID, limit)
}

// Operations returns the most recent recorded operations.
func (a *DeclutterApp) Operations(ctx context.Context, limit int) ([]*model.Operation, error) {
	return a.db.ListOperations(ctx, limit)
}

// RecordAccess registers one access of a file.
func (a *DeclutterApp) RecordAccess(ctx context.Context, ownerID, fileID int64) (*model.UsagePattern, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	p, err := a.service.RecordAccess(ctx, ownerID, fileID)
	return p, a.op.Fail(err)
}

// Plan returns the owner's subscription plan.
func (a *DeclutterApp) Plan(ctx context.Context, ownerID int64) (string, error) {
	plan, err := a.db.GetPlan(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if plan == "" {
		plan = gate.DefaultPlan
	}
	return plan, nil
}

// SetPlan moves the owner to a configured plan.
func (a *DeclutterApp) SetPlan(ctx context.Context, ownerID int64, plan string) error {
	if !a.gate.HasPlan(plan) {
		return fmt.Errorf("unknown plan %q (configured: %v)", plan, a.gate.Plans())
	}
	if err := a.persistOperation(ctx); err != nil {
		return err
	}
	return a.op.Fail(a.db.SetPlan(ctx, ownerID, plan))
}

// SetupEncryption generates the report encryption key pair.
func (a *DeclutterApp) SetupEncryption(passphrase string) error {
	return a.encryptor.Setup(passphrase)
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the operation record, snapshots the DB
// and uploads it to the archive when one is configured.
// For non-persisted operations: just closes the database.
func (a *DeclutterApp) Close() error {
	ctx := context.Background()
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	var snapshot string
	if a.op.Persisted() {
		if err := a.db.FinishOperation(ctx, a.op.ID, a.op.Status, a.clock.Now().UTC()); err != nil {
			keep(fmt.Errorf("finishing operation: %w", err))
		}
		if a.archive != nil {
			path, err := a.snapshotDatabase()
			keep(err)
			snapshot = path
		}
	}

	if err := a.db.Close(); err != nil {
		keep(fmt.Errorf("closing database: %w", err))
	}

	if snapshot != "" {
		keep(a.uploadBackup(ctx, snapshot))
		os.Remove(snapshot)
	}

	if err := a.events.Close(); err != nil {
		keep(fmt.Errorf("closing event publisher: %w", err))
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

func (a *DeclutterApp) snapshotDatabase() (string, error) {
	tmp, err := os.CreateTemp("", "declutter-db-backup-*.db")
	if err != nil {
		return "", fmt.Errorf("creating temp file for db backup: %w", err)
	}
	path := tmp.Name()
	tmp.Close()

	if err := a.db.BackupTo(path); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("backing up database: %w", err)
	}
	return path, nil
}

// BackupKey is the archive key of the database snapshot taken after operation id.
func BackupKey(instanceID string, id int64) string {
	return fmt.Sprintf("backups/%s/declutter-%d.db", instanceID, id)
}

func (a *DeclutterApp) uploadBackup(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening db backup for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat db backup: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	if err := a.archive.Put(ctx, BackupKey(a.cfg.InstanceID, a.op.ID), f, info.Size()); err != nil {
		return fmt.Errorf("uploading db backup: %w", err)
	}
	return nil
}
