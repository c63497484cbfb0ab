package store

import (
	"context"
	"errors"
	"time"

	"github.com/tserav/inferno/internal/model"
)

// ErrNotFound is returned when a frame record is not found.
var ErrNotFound = errors.New("frame record not found")

// FrameStats holds aggregate pipeline history statistics. FPSBySession maps
// each session with completed frames to its throughput, completed frames
// over the span from first submission to last retrieval.
type FrameStats struct {
	Total         int                `json:"total"`
	CountByStatus map[string]int     `json:"count_by_status"`
	AvgLatencyMS  float64            `json:"avg_latency_ms"`
	TotalBytes    int64              `json:"total_bytes"`
	FPSBySession  map[string]float64 `json:"fps_by_session"`
}

// Store defines the persistence operations for frame history.
type Store interface {
	CreateFrameRecord(ctx context.Context, fr *model.FrameRecord) error
	GetFrameRecord(ctx context.Context, id string) (*model.FrameRecord, error)
	ListFrameRecords(ctx context.Context, limit, offset int) ([]*model.FrameRecord, int, error)
	MarkFrameRetrieved(ctx context.Context, sessionID string, frameSeq uint64, latencyMS, payloadSize int, retrievedAt time.Time) error
	MarkSessionFaulted(ctx context.Context, sessionID string) error
	GetFrameStats(ctx context.Context) (*FrameStats, error)
	Close() error
}
