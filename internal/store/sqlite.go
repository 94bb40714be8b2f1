package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hirelens/hirelens/internal/domain"
	"github.com/hirelens/hirelens/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS interviews (
		id TEXT PRIMARY KEY,
		candidate_name TEXT NOT NULL,
		candidate_email TEXT NOT NULL,
		interview_type TEXT NOT NULL,
		scheduled_at INTEGER NOT NULL,
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL,
		transcript TEXT NOT NULL DEFAULT '',
		analysis_json TEXT,
		feedback TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interviews_created_by ON interviews(created_by, created_at);
	CREATE INDEX IF NOT EXISTS idx_interviews_status ON interviews(status);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const interviewColumns = `id, candidate_name, candidate_email, interview_type,
	       scheduled_at, status, notes, created_by, transcript, analysis_json,
	       feedback, created_at, updated_at`

func scanInterview(row interface{ Scan(...any) error }) (*domain.Interview, error) {
	var iv domain.Interview
	var analysisJSON sql.NullString
	var scheduledAt, createdAt, updatedAt int64

	err := row.Scan(
		&iv.ID, &iv.CandidateName, &iv.CandidateEmail, &iv.InterviewType,
		&scheduledAt, &iv.Status, &iv.Notes, &iv.CreatedBy, &iv.Transcript,
		&analysisJSON, &iv.Feedback, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	iv.ScheduledAt = time.Unix(scheduledAt, 0)
	iv.CreatedAt = time.Unix(createdAt, 0)
	iv.UpdatedAt = time.Unix(updatedAt, 0)

	if analysisJSON.Valid && analysisJSON.String != "" {
		var snapshot domain.AnalysisSnapshot
		if err := json.Unmarshal([]byte(analysisJSON.String), &snapshot); err != nil {
			return nil, fmt.Errorf("decode analysis snapshot: %w", err)
		}
		iv.Analysis = &snapshot
	}

	return &iv, nil
}

func marshalAnalysis(snapshot *domain.AnalysisSnapshot) (interface{}, error) {
	if snapshot == nil {
		return nil, nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode analysis snapshot: %w", err)
	}
	return string(data), nil
}

// GetInterview retrieves an interview by id.
func (s *SQLiteStore) GetInterview(ctx context.Context, id string) (*domain.Interview, error) {
	query := `SELECT ` + interviewColumns + ` FROM interviews WHERE id = ?`

	iv, err := scanInterview(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan interview row: %w", err)
	}
	return iv, nil
}

// CreateInterview inserts a new interview record.
func (s *SQLiteStore) CreateInterview(ctx context.Context, iv *domain.Interview) error {
	analysisJSON, err := marshalAnalysis(iv.Analysis)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO interviews (` + interviewColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		iv.ID, iv.CandidateName, iv.CandidateEmail, iv.InterviewType,
		iv.ScheduledAt.Unix(), iv.Status, iv.Notes, iv.CreatedBy, iv.Transcript,
		analysisJSON, iv.Feedback, iv.CreatedAt.Unix(), iv.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert interview: %w", err)
	}
	return nil
}

// UpdateInterview overwrites the full interview record.
// Retries on SQLite concurrency errors since the control state machine and the
// live snapshot path can collide on the same row.
func (s *SQLiteStore) UpdateInterview(ctx context.Context, iv *domain.Interview) error {
	analysisJSON, err := marshalAnalysis(iv.Analysis)
	if err != nil {
		return err
	}

	query := `
	UPDATE interviews SET
		candidate_name = ?, candidate_email = ?, interview_type = ?,
		scheduled_at = ?, status = ?, notes = ?, transcript = ?,
		analysis_json = ?, feedback = ?, updated_at = ?
	WHERE id = ?`

	return s.execWithRetry(ctx, "update interview", iv.ID, func() (sql.Result, error) {
		return s.db.ExecContext(ctx, query,
			iv.CandidateName, iv.CandidateEmail, iv.InterviewType,
			iv.ScheduledAt.Unix(), iv.Status, iv.Notes, iv.Transcript,
			analysisJSON, iv.Feedback, time.Now().Unix(), iv.ID,
		)
	})
}

// UpdateStatus persists a status change without touching other fields.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	query := `UPDATE interviews SET status = ?, updated_at = ? WHERE id = ?`
	return s.execWithRetry(ctx, "update status", id, func() (sql.Result, error) {
		return s.db.ExecContext(ctx, query, status, time.Now().Unix(), id)
	})
}

// SaveAnalysis persists the live transcript and analysis snapshot.
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, id string, transcript string, analysis *domain.AnalysisSnapshot) error {
	analysisJSON, err := marshalAnalysis(analysis)
	if err != nil {
		return err
	}

	query := `UPDATE interviews SET transcript = ?, analysis_json = ?, updated_at = ? WHERE id = ?`
	return s.execWithRetry(ctx, "save analysis", id, func() (sql.Result, error) {
		return s.db.ExecContext(ctx, query, transcript, analysisJSON, time.Now().Unix(), id)
	})
}

// ListInterviews returns interviews created by the given user, newest first.
func (s *SQLiteStore) ListInterviews(ctx context.Context, createdBy string) ([]*domain.Interview, error) {
	query := `SELECT ` + interviewColumns + ` FROM interviews WHERE created_by = ? ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, createdBy)
	if err != nil {
		return nil, fmt.Errorf("query interviews: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close interview rows", "error", closeErr)
		}
	}()

	var interviews []*domain.Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interview row: %w", err)
		}
		interviews = append(interviews, iv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interviews: %w", err)
	}

	return interviews, nil
}

// execWithRetry runs a write with exponential backoff on SQLITE_BUSY errors
// and verifies the target row existed.
func (s *SQLiteStore) execWithRetry(ctx context.Context, op, id string, exec func() (sql.Result, error)) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		result, err := exec()
		if err == nil {
			rows, raErr := result.RowsAffected()
			if raErr != nil {
				return fmt.Errorf("%s rows affected: %w", op, raErr)
			}
			if rows == 0 {
				return fmt.Errorf("%s: interview %s: %w", op, id, shared.ErrNotFound)
			}
			return nil
		}

		lastErr = err
		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // exponential backoff: 50ms, 100ms, 200ms
			slog.Debug("sqlite write conflict, retrying",
				"op", op,
				"interview_id", id,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}
		break
	}

	return fmt.Errorf("%s: %w", op, lastErr)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
