package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tserav/inferno/internal/model"

	_ "modernc.org/sqlite"
)

const createFrameRecordsTable = `
CREATE TABLE IF NOT EXISTS frame_records (
    id           TEXT PRIMARY KEY,
    session_id   TEXT NOT NULL,
    frame_seq    INTEGER NOT NULL,
    status       TEXT NOT NULL,
    payload_size INTEGER,
    latency_ms   INTEGER,
    submitted_at DATETIME NOT NULL,
    retrieved_at DATETIME,
    UNIQUE(session_id, frame_seq)
)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createFrameRecordsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create frame_records table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateFrameRecord inserts a new frame record.
func (s *SQLiteStore) CreateFrameRecord(ctx context.Context, fr *model.FrameRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO frame_records (
			id, session_id, frame_seq, status, payload_size,
			latency_ms, submitted_at, retrieved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		fr.ID, fr.SessionID, fr.FrameSeq, fr.Status, fr.PayloadSize,
		fr.LatencyMS, fr.SubmittedAt, fr.RetrievedAt,
	)
	if err != nil {
		return fmt.Errorf("insert frame record: %w", err)
	}
	return nil
}

// GetFrameRecord retrieves a frame record by ID.
func (s *SQLiteStore) GetFrameRecord(ctx context.Context, id string) (*model.FrameRecord, error) {
	fr := &model.FrameRecord{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, frame_seq, status, payload_size,
			latency_ms, submitted_at, retrieved_at
		FROM frame_records WHERE id = ?`, id,
	).Scan(
		&fr.ID, &fr.SessionID, &fr.FrameSeq, &fr.Status, &fr.PayloadSize,
		&fr.LatencyMS, &fr.SubmittedAt, &fr.RetrievedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get frame record: %w", err)
	}
	return fr, nil
}

// ListFrameRecords returns a paginated list of frame records ordered by
// submitted_at DESC, along with the total count of all records.
func (s *SQLiteStore) ListFrameRecords(ctx context.Context, limit, offset int) ([]*model.FrameRecord, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM frame_records").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count frame records: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, session_id, frame_seq, status, payload_size,
			latency_ms, submitted_at, retrieved_at
		FROM frame_records ORDER BY submitted_at DESC, frame_seq DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list frame records: %w", err)
	}
	defer rows.Close()

	var records []*model.FrameRecord
	for rows.Next() {
		fr := &model.FrameRecord{}
		if err := rows.Scan(
			&fr.ID, &fr.SessionID, &fr.FrameSeq, &fr.Status, &fr.PayloadSize,
			&fr.LatencyMS, &fr.SubmittedAt, &fr.RetrievedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan frame record: %w", err)
		}
		records = append(records, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate frame records: %w", err)
	}

	return records, total, nil
}

// MarkFrameRetrieved transitions a pending frame to completed with its
// measured latency and payload size.
func (s *SQLiteStore) MarkFrameRetrieved(ctx context.Context, sessionID string, frameSeq uint64, latencyMS, payloadSize int, retrievedAt time.Time) error {
	// Only pending frames may complete; a frame is retrieved exactly once.
	result, err := s.db.ExecContext(ctx,
		`UPDATE frame_records
		SET status = ?, latency_ms = ?, payload_size = ?, retrieved_at = ?
		WHERE session_id = ? AND frame_seq = ? AND status = ?`,
		model.FrameStatusCompleted, latencyMS, payloadSize, retrievedAt,
		sessionID, frameSeq, model.FrameStatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark frame retrieved: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkSessionFaulted transitions every still-pending frame of the session to
// faulted. Once the pipeline faults, those frames can never be drained.
// Completing nothing is not an error: the session may have no pending frames.
func (s *SQLiteStore) MarkSessionFaulted(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE frame_records SET status = ?
		WHERE session_id = ? AND status = ?`,
		model.FrameStatusFaulted, sessionID, model.FrameStatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark session faulted: %w", err)
	}
	return nil
}

// GetFrameStats computes aggregate statistics over all frame records.
func (s *SQLiteStore) GetFrameStats(ctx context.Context) (*FrameStats, error) {
	stats := &FrameStats{
		CountByStatus: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM frame_records GROUP BY status",
	)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	// Release the result set before the next query so the follow-up
	// statements reuse the same pooled connection.
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close status counts: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(latency_ms), 0), COALESCE(SUM(payload_size), 0)
		FROM frame_records WHERE status = ?`,
		model.FrameStatusCompleted,
	).Scan(&stats.AvgLatencyMS, &stats.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("aggregate completed frames: %w", err)
	}

	stats.FPSBySession = make(map[string]float64)
	sessRows, err := s.db.QueryContext(ctx,
		`SELECT session_id, COUNT(*),
			(julianday(MAX(retrieved_at)) - julianday(MIN(submitted_at))) * 86400.0
		FROM frame_records WHERE status = ? GROUP BY session_id`,
		model.FrameStatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("session throughput: %w", err)
	}
	defer sessRows.Close()

	for sessRows.Next() {
		var sessionID string
		var count int
		var elapsedSec float64
		if err := sessRows.Scan(&sessionID, &count, &elapsedSec); err != nil {
			return nil, fmt.Errorf("scan session throughput: %w", err)
		}
		if elapsedSec > 0 {
			stats.FPSBySession[sessionID] = float64(count) / elapsedSec
		}
	}
	if err := sessRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session throughput: %w", err)
	}

	return stats, nil
}
