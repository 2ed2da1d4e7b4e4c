package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"declutter-go/internal/database/migrations"
	"declutter-go/internal/declutter"
	"declutter-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the Database interface using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: :memory: is per-connection, and SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// TODO: enable WAL and busy_timeout once the API server shares a file database with CLI runs.

	return db, nil
}

// Migrate brings the schema to the latest version.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// Inventory

const fileColumns = `id, owner_id, provider, cloud_native_id, name, size_bytes, path, content_hash, last_modified, last_accessed, is_deleted`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*model.FileRecord, error) {
	var (
		f            model.FileRecord
		size         sql.NullInt64
		lastModified sql.NullTime
		lastAccessed sql.NullTime
	)
	if err := row.Scan(&f.ID, &f.OwnerID, &f.Provider, &f.CloudNativeID, &f.Name, &size,
		&f.Path, &f.ContentHash, &lastModified, &lastAccessed, &f.IsDeleted); err != nil {
		return nil, err
	}
	if size.Valid {
		f.SizeBytes = &size.Int64
	}
	if lastModified.Valid {
		t := lastModified.Time.UTC()
		f.LastModified = &t
	}
	if lastAccessed.Valid {
		t := lastAccessed.Time.UTC()
		f.LastAccessed = &t
	}
	return &f, nil
}

func (s *SQLiteDatabase) queryFiles(ctx context.Context, query string, args ...any) ([]*model.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*model.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *SQLiteDatabase) ListFiles(ctx context.Context, ownerID int64) ([]*model.FileRecord, error) {
	files, err := s.queryFiles(ctx, `SELECT `+fileColumns+` FROM files WHERE owner_id = ? AND is_deleted = 0 ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return files, nil
}

func (s *SQLiteDatabase) FindFilesByIDs(ctx context.Context, ownerID int64, ids []int64) ([]*model.FileRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, ownerID)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id = ? AND is_deleted = 0 AND id IN (` + placeholders(len(ids)) + `)`

	files, err := s.queryFiles(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding files by ids: %w", err)
	}

	byID := make(map[int64]*model.FileRecord, len(files))
	for _, f := range files {
		byID[f.ID] = f
	}
	ordered := make([]*model.FileRecord, 0, len(files))
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			ordered = append(ordered, f)
			delete(byID, id)
		}
	}
	return ordered, nil
}

func (s *SQLiteDatabase) UpsertFile(ctx context.Context, f *model.FileRecord) (*model.FileRecord, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (owner_id, provider, cloud_native_id, name, size_bytes, path, content_hash, last_modified, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, provider, cloud_native_id) DO UPDATE SET
			name = excluded.name,
			size_bytes = excluded.size_bytes,
			path = excluded.path,
			content_hash = excluded.content_hash,
			last_modified = excluded.last_modified,
			last_accessed = excluded.last_accessed`,
		f.OwnerID, f.Provider, f.CloudNativeID, f.Name, f.SizeBytes, f.Path, f.ContentHash,
		utcPtr(f.LastModified), utcPtr(f.LastAccessed))
	if err != nil {
		return nil, fmt.Errorf("upserting file %s/%s: %w", f.Provider, f.CloudNativeID, err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE owner_id = ? AND provider = ? AND cloud_native_id = ?`,
		f.OwnerID, f.Provider, f.CloudNativeID)
	saved, err := scanFile(row)
	if err != nil {
		return nil, fmt.Errorf("reading upserted file %s/%s: %w", f.Provider, f.CloudNativeID, err)
	}
	return saved, nil
}

func (s *SQLiteDatabase) SoftDeleteFiles(ctx context.Context, ownerID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `UPDATE files SET is_deleted = 1 WHERE owner_id = ? AND id = ? AND is_deleted = 0`, ownerID, id)
		if err != nil {
			return fmt.Errorf("soft-deleting file %d: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("soft-deleting file %d: %w", id, declutter.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListActiveConnections(ctx context.Context, ownerID int64) ([]*model.CloudConnection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, provider, account_email, is_active, created_at
		FROM cloud_connections WHERE owner_id = ? AND is_active = 1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	defer rows.Close()

	var conns []*model.CloudConnection
	for rows.Next() {
		var c model.CloudConnection
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Provider, &c.AccountEmail, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		conns = append(conns, &c)
	}
	return conns, rows.Err()
}

func (s *SQLiteDatabase) UpsertConnection(ctx context.Context, c *model.CloudConnection) (*model.CloudConnection, error) {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cloud_connections (owner_id, provider, account_email, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, provider, account_email) DO UPDATE SET is_active = excluded.is_active`,
		c.OwnerID, c.Provider, c.AccountEmail, c.IsActive, createdAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("upserting connection %s: %w", c.Provider, err)
	}

	var saved model.CloudConnection
	err = s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, provider, account_email, is_active, created_at
		FROM cloud_connections WHERE owner_id = ? AND provider = ? AND account_email = ?`,
		c.OwnerID, c.Provider, c.AccountEmail).
		Scan(&saved.ID, &saved.OwnerID, &saved.Provider, &saved.AccountEmail, &saved.IsActive, &saved.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("reading connection %s: %w", c.Provider, err)
	}
	return &saved, nil
}

// Usage patterns

func (s *SQLiteDatabase) ListUsagePatterns(ctx context.Context, ownerID int64) ([]*model.UsagePattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, file_id, access_count, access_frequency, last_accessed
		FROM file_usage_patterns WHERE owner_id = ? ORDER BY file_id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing usage patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*model.UsagePattern
	for rows.Next() {
		var p model.UsagePattern
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.FileID, &p.AccessCount, &p.AccessFrequency, &p.LastAccessed); err != nil {
			return nil, fmt.Errorf("scanning usage pattern: %w", err)
		}
		patterns = append(patterns, &p)
	}
	return patterns, rows.Err()
}

func (s *SQLiteDatabase) FindUsagePattern(ctx context.Context, ownerID, fileID int64) (*model.UsagePattern, error) {
	var p model.UsagePattern
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, file_id, access_count, access_frequency, last_accessed
		FROM file_usage_patterns WHERE owner_id = ? AND file_id = ?`, ownerID, fileID).
		Scan(&p.ID, &p.OwnerID, &p.FileID, &p.AccessCount, &p.AccessFrequency, &p.LastAccessed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding usage pattern: %w", err)
	}
	return &p, nil
}

func (s *SQLiteDatabase) SaveUsagePattern(ctx context.Context, p *model.UsagePattern) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_usage_patterns (owner_id, file_id, access_count, access_frequency, last_accessed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, file_id) DO UPDATE SET
			access_count = excluded.access_count,
			access_frequency = excluded.access_frequency,
			last_accessed = excluded.last_accessed`,
		p.OwnerID, p.FileID, p.AccessCount, p.AccessFrequency, p.LastAccessed.UTC())
	if err != nil {
		return fmt.Errorf("saving usage pattern for file %d: %w", p.FileID, err)
	}
	err = s.db.QueryRowContext(ctx, `SELECT id FROM file_usage_patterns WHERE owner_id = ? AND file_id = ?`,
		p.OwnerID, p.FileID).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("reading usage pattern id: %w", err)
	}
	return nil
}

// Analysis history

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertRecommendations returns the new row ids in the order of recs. The
// caller assigns them once the transaction has committed.
func insertRecommendations(ctx context.Context, ex execer, recs []*model.OptimizationRecommendation) ([]int64, error) {
	ids := make([]int64, 0, len(recs))
	for _, r := range recs {
		fileIDs, err := json.Marshal(nonNilIDs(r.FileIDs))
		if err != nil {
			return nil, fmt.Errorf("encoding file ids: %w", err)
		}
		res, err := ex.ExecContext(ctx, `
			INSERT INTO optimization_recommendations
				(owner_id, recommendation_type, title, description, file_ids, potential_savings, priority, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.OwnerID, string(r.Type), r.Title, r.Description, string(fileIDs), r.PotentialSavings, r.Priority, string(recommendationStatus(r)), r.CreatedAt.UTC())
		if err != nil {
			return nil, fmt.Errorf("inserting %s recommendation: %w", r.Type, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("reading recommendation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func recommendationStatus(r *model.OptimizationRecommendation) model.RecommendationStatus {
	if r.Status == "" {
		return model.StatusPending
	}
	return r.Status
}

func assignRecommendationIDs(recs []*model.OptimizationRecommendation, ids []int64) {
	for i, r := range recs {
		r.ID = ids[i]
		r.Status = recommendationStatus(r)
	}
}

func (s *SQLiteDatabase) SaveAnalysis(ctx context.Context, snap *model.StorageAnalysisSnapshot, recs []*model.OptimizationRecommendation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO storage_analysis
			(owner_id, cloud_provider, total_size, file_count, duplicate_size, duplicate_count, potential_savings, analysis_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.OwnerID, snap.CloudProvider, snap.TotalSize, snap.FileCount, snap.DuplicateSize, snap.DuplicateCount,
		snap.PotentialSavings, snap.AnalysisDate.UTC())
	if err != nil {
		return fmt.Errorf("inserting analysis snapshot: %w", err)
	}
	snapID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading snapshot id: %w", err)
	}

	recIDs, err := insertRecommendations(ctx, tx, recs)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	snap.ID = snapID
	assignRecommendationIDs(recs, recIDs)
	return nil
}

func (s *SQLiteDatabase) SaveRecommendations(ctx context.Context, recs []*model.OptimizationRecommendation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	ids, err := insertRecommendations(ctx, tx, recs)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	assignRecommendationIDs(recs, ids)
	return nil
}

func (s *SQLiteDatabase) ListRecommendations(ctx context.Context, ownerID int64, status model.RecommendationStatus) ([]*model.OptimizationRecommendation, error) {
	query := `
		SELECT id, owner_id, recommendation_type, title, description, file_ids, potential_savings, priority, status, created_at
		FROM optimization_recommendations WHERE owner_id = ?`
	args := []any{ownerID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing recommendations: %w", err)
	}
	defer rows.Close()

	var recs []*model.OptimizationRecommendation
	for rows.Next() {
		var (
			r      model.OptimizationRecommendation
			typ    string
			ids    string
			status string
		)
		if err := rows.Scan(&r.ID, &r.OwnerID, &typ, &r.Title, &r.Description, &ids, &r.PotentialSavings,
			&r.Priority, &status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning recommendation: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &r.FileIDs); err != nil {
			return nil, fmt.Errorf("decoding file ids of recommendation %d: %w", r.ID, err)
		}
		r.Type = model.RecommendationType(typ)
		r.Status = model.RecommendationStatus(status)
		r.CreatedAt = r.CreatedAt.UTC()
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}

func (s *SQLiteDatabase) UpdateRecommendationStatus(ctx context.Context, ownerID, id int64, status model.RecommendationStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE optimization_recommendations SET status = ? WHERE owner_id = ? AND id = ?`,
		string(status), ownerID, id)
	if err != nil {
		return fmt.Errorf("updating recommendation status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating recommendation status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("recommendation %d: %w", id, declutter.ErrNotFound)
	}
	return nil
}

func (s *SQLiteDatabase) ListSnapshots(ctx context.Context, ownerID int64, limit int) ([]*model.StorageAnalysisSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, cloud_provider, total_size, file_count, duplicate_size, duplicate_count, potential_savings, analysis_date
		FROM storage_analysis WHERE owner_id = ? ORDER BY analysis_date DESC, id DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*model.StorageAnalysisSnapshot
	for rows.Next() {
		var sn model.StorageAnalysisSnapshot
		if err := rows.Scan(&sn.ID, &sn.OwnerID, &sn.CloudProvider, &sn.TotalSize, &sn.FileCount, &sn.DuplicateSize,
			&sn.DuplicateCount, &sn.PotentialSavings, &sn.AnalysisDate); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		sn.AnalysisDate = sn.AnalysisDate.UTC()
		snaps = append(snaps, &sn)
	}
	return snaps, rows.Err()
}

// Metering

func (s *SQLiteDatabase) GetPlan(ctx context.Context, ownerID int64) (string, error) {
	var plan string
	err := s.db.QueryRowContext(ctx, `SELECT plan FROM subscriptions WHERE owner_id = ?`, ownerID).Scan(&plan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("getting plan: %w", err)
	}
	return plan, nil
}

func (s *SQLiteDatabase) SetPlan(ctx context.Context, ownerID int64, plan string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (owner_id, plan, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (owner_id) DO UPDATE SET plan = excluded.plan, updated_at = excluded.updated_at`,
		ownerID, plan, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("setting plan: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) GetUsage(ctx context.Context, ownerID int64, feature string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT usage_amount FROM usage_tracking WHERE owner_id = ? AND feature = ?`,
		ownerID, feature).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("getting usage: %w", err)
	}
	return n, nil
}

func (s *SQLiteDatabase) IncrementUsage(ctx context.Context, ownerID int64, feature string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_tracking (owner_id, feature, usage_amount) VALUES (?, ?, 1)
		ON CONFLICT (owner_id, feature) DO UPDATE SET usage_amount = usage_amount + 1`,
		ownerID, feature)
	if err != nil {
		return fmt.Errorf("incrementing usage: %w", err)
	}
	return nil
}

// Remote delete queue

func (s *SQLiteDatabase) EnqueueRemoteDelete(ctx context.Context, t *model.RemoteDeleteTask) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO remote_delete_tasks (owner_id, file_id, provider, cloud_native_id, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.OwnerID, t.FileID, t.Provider, t.CloudNativeID, t.Attempts, t.LastError, t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("enqueueing remote delete: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading task id: %w", err)
	}
	t.ID = id
	return nil
}

func (s *SQLiteDatabase) ListPendingRemoteDeletes(ctx context.Context, ownerID int64) ([]*model.RemoteDeleteTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, file_id, provider, cloud_native_id, attempts, last_error, created_at, completed_at
		FROM remote_delete_tasks WHERE owner_id = ? AND completed_at IS NULL ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing remote deletes: %w", err)
	}
	defer rows.Close()

	var tasks []*model.RemoteDeleteTask
	for rows.Next() {
		var (
			t         model.RemoteDeleteTask
			completed sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.FileID, &t.Provider, &t.CloudNativeID, &t.Attempts,
			&t.LastError, &t.CreatedAt, &completed); err != nil {
			return nil, fmt.Errorf("scanning remote delete task: %w", err)
		}
		if completed.Valid {
			t.CompletedAt = &completed.Time
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

func (s *SQLiteDatabase) CompleteRemoteDelete(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE remote_delete_tasks SET completed_at = ?, attempts = attempts + 1, last_error = '' WHERE id = ?`,
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("completing remote delete: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) RecordRemoteDeleteAttempt(ctx context.Context, id int64, lastError string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE remote_delete_tasks SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		lastError, id)
	if err != nil {
		return fmt.Errorf("recording remote delete attempt: %w", err)
	}
	return nil
}

// Operation tracking

func (s *SQLiteDatabase) CreateOperation(ctx context.Context, operation, parameters string, startedAt time.Time) (*model.Operation, error) {
	op := &model.Operation{Operation: operation, Parameters: parameters, Status: "running", StartedAt: startedAt.UTC()}
	res, err := s.db.ExecContext(ctx, `INSERT INTO operations (started_at, operation, parameters, status) VALUES (?, ?, ?, ?)`,
		op.StartedAt, op.Operation, op.Parameters, op.Status)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("reading operation id: %w", err)
	}
	return op, nil
}

func (s *SQLiteDatabase) FinishOperation(ctx context.Context, id int64, status string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE operations SET status = ?, finished_at = ? WHERE id = ?`, status, finishedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(ctx context.Context, limit int) ([]*model.Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, operation, parameters, status
		FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*model.Operation
	for rows.Next() {
		var (
			op       model.Operation
			finished sql.NullTime
		)
		if err := rows.Scan(&op.ID, &op.StartedAt, &finished, &op.Operation, &op.Parameters, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if finished.Valid {
			op.FinishedAt = &finished.Time
		}
		ops = append(ops, &op)
	}
	return ops, rows.Err()
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
// destPath must not exist or must be an empty file.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

// Compile-time check that SQLiteDatabase implements declutter.Database interface
var _ declutter.Database = (*SQLiteDatabase)(nil)
