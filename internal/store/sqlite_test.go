package store

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tserav/inferno/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeTestRecord(sessionID string, seq uint64) *model.FrameRecord {
	return &model.FrameRecord{
		ID:          model.NewID(),
		SessionID:   sessionID,
		FrameSeq:    seq,
		Status:      model.FrameStatusPending,
		SubmittedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestCreateAndGetFrameRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fr := makeTestRecord("session-a", 0)

	if err := s.CreateFrameRecord(ctx, fr); err != nil {
		t.Fatalf("CreateFrameRecord: %v", err)
	}

	got, err := s.GetFrameRecord(ctx, fr.ID)
	if err != nil {
		t.Fatalf("GetFrameRecord: %v", err)
	}

	if got.ID != fr.ID {
		t.Errorf("ID = %q, want %q", got.ID, fr.ID)
	}
	if got.SessionID != fr.SessionID {
		t.Errorf("SessionID = %q, want %q", got.SessionID, fr.SessionID)
	}
	if got.FrameSeq != fr.FrameSeq {
		t.Errorf("FrameSeq = %d, want %d", got.FrameSeq, fr.FrameSeq)
	}
	if got.Status != model.FrameStatusPending {
		t.Errorf("Status = %q, want %q", got.Status, model.FrameStatusPending)
	}
	if got.RetrievedAt != nil {
		t.Errorf("RetrievedAt = %v, want nil", got.RetrievedAt)
	}
}

func TestGetFrameRecordNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetFrameRecord(context.Background(), model.NewID())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetFrameRecord = %v, want ErrNotFound", err)
	}
}

func TestDuplicateSequenceRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateFrameRecord(ctx, makeTestRecord("session-a", 7)); err != nil {
		t.Fatalf("CreateFrameRecord: %v", err)
	}
	if err := s.CreateFrameRecord(ctx, makeTestRecord("session-a", 7)); err == nil {
		t.Error("expected unique constraint violation for duplicate (session, seq), got nil")
	}
	// The same sequence in a different session is fine.
	if err := s.CreateFrameRecord(ctx, makeTestRecord("session-b", 7)); err != nil {
		t.Errorf("CreateFrameRecord in other session: %v", err)
	}
}

func TestMarkFrameRetrieved(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fr := makeTestRecord("session-a", 3)

	if err := s.CreateFrameRecord(ctx, fr); err != nil {
		t.Fatalf("CreateFrameRecord: %v", err)
	}

	retrievedAt := time.Now().UTC().Truncate(time.Second)
	if err := s.MarkFrameRetrieved(ctx, "session-a", 3, 42, 1024, retrievedAt); err != nil {
		t.Fatalf("MarkFrameRetrieved: %v", err)
	}

	got, err := s.GetFrameRecord(ctx, fr.ID)
	if err != nil {
		t.Fatalf("GetFrameRecord: %v", err)
	}
	if got.Status != model.FrameStatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, model.FrameStatusCompleted)
	}
	if got.LatencyMS == nil || *got.LatencyMS != 42 {
		t.Errorf("LatencyMS = %v, want 42", got.LatencyMS)
	}
	if got.PayloadSize == nil || *got.PayloadSize != 1024 {
		t.Errorf("PayloadSize = %v, want 1024", got.PayloadSize)
	}
	if got.RetrievedAt == nil || !got.RetrievedAt.Equal(retrievedAt) {
		t.Errorf("RetrievedAt = %v, want %v", got.RetrievedAt, retrievedAt)
	}
}

func TestMarkFrameRetrievedNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.MarkFrameRetrieved(context.Background(), "session-x", 99, 1, 1, time.Now().UTC())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkFrameRetrieved = %v, want ErrNotFound", err)
	}
}

func TestListFrameRecordsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		fr := makeTestRecord("session-a", uint64(i))
		fr.SubmittedAt = base.Add(time.Duration(i) * time.Second)
		if err := s.CreateFrameRecord(ctx, fr); err != nil {
			t.Fatalf("CreateFrameRecord[%d]: %v", i, err)
		}
	}

	records, total, err := s.ListFrameRecords(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListFrameRecords: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	// Most recently submitted first.
	if records[0].FrameSeq != 4 || records[1].FrameSeq != 3 {
		t.Errorf("page seqs = [%d, %d], want [4, 3]", records[0].FrameSeq, records[1].FrameSeq)
	}

	records, _, err = s.ListFrameRecords(ctx, 2, 4)
	if err != nil {
		t.Fatalf("ListFrameRecords offset: %v", err)
	}
	if len(records) != 1 || records[0].FrameSeq != 0 {
		t.Errorf("last page = %v, want single record with seq 0", records)
	}
}

func TestGetFrameStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 4; i++ {
		fr := makeTestRecord("session-a", uint64(i))
		fr.SubmittedAt = base
		if err := s.CreateFrameRecord(ctx, fr); err != nil {
			t.Fatalf("CreateFrameRecord[%d]: %v", i, err)
		}
	}
	// Complete two of them with known latencies, sizes and retrieval times.
	if err := s.MarkFrameRetrieved(ctx, "session-a", 0, 10, 100, base.Add(time.Second)); err != nil {
		t.Fatalf("MarkFrameRetrieved[0]: %v", err)
	}
	if err := s.MarkFrameRetrieved(ctx, "session-a", 1, 30, 300, base.Add(2*time.Second)); err != nil {
		t.Fatalf("MarkFrameRetrieved[1]: %v", err)
	}

	stats, err := s.GetFrameStats(ctx)
	if err != nil {
		t.Fatalf("GetFrameStats: %v", err)
	}

	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.CountByStatus[model.FrameStatusCompleted] != 2 {
		t.Errorf("completed count = %d, want 2", stats.CountByStatus[model.FrameStatusCompleted])
	}
	if stats.CountByStatus[model.FrameStatusPending] != 2 {
		t.Errorf("pending count = %d, want 2", stats.CountByStatus[model.FrameStatusPending])
	}
	if stats.AvgLatencyMS != 20 {
		t.Errorf("AvgLatencyMS = %v, want 20", stats.AvgLatencyMS)
	}
	if stats.TotalBytes != 400 {
		t.Errorf("TotalBytes = %d, want 400", stats.TotalBytes)
	}

	// Two frames completed over the 2s span from first submission to last
	// retrieval: 1 fps.
	fps, ok := stats.FPSBySession["session-a"]
	if !ok {
		t.Fatal("FPSBySession missing session-a")
	}
	if math.Abs(fps-1.0) > 0.01 {
		t.Errorf("session fps = %v, want 1.0", fps)
	}
}

func TestMarkSessionFaulted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.CreateFrameRecord(ctx, makeTestRecord("session-a", uint64(i))); err != nil {
			t.Fatalf("CreateFrameRecord[%d]: %v", i, err)
		}
	}
	other := makeTestRecord("session-b", 0)
	if err := s.CreateFrameRecord(ctx, other); err != nil {
		t.Fatalf("CreateFrameRecord other session: %v", err)
	}
	// One frame was drained before the fault; it stays completed.
	if err := s.MarkFrameRetrieved(ctx, "session-a", 0, 5, 10, time.Now().UTC()); err != nil {
		t.Fatalf("MarkFrameRetrieved: %v", err)
	}

	if err := s.MarkSessionFaulted(ctx, "session-a"); err != nil {
		t.Fatalf("MarkSessionFaulted: %v", err)
	}

	stats, err := s.GetFrameStats(ctx)
	if err != nil {
		t.Fatalf("GetFrameStats: %v", err)
	}
	if got := stats.CountByStatus[model.FrameStatusFaulted]; got != 2 {
		t.Errorf("faulted count = %d, want 2", got)
	}
	if got := stats.CountByStatus[model.FrameStatusCompleted]; got != 1 {
		t.Errorf("completed count = %d, want 1", got)
	}
	// The other session's pending frame is untouched.
	got, err := s.GetFrameRecord(ctx, other.ID)
	if err != nil {
		t.Fatalf("GetFrameRecord: %v", err)
	}
	if got.Status != model.FrameStatusPending {
		t.Errorf("other session status = %q, want %q", got.Status, model.FrameStatusPending)
	}

	// Faulting an already-faulted session is a no-op.
	if err := s.MarkSessionFaulted(ctx, "session-a"); err != nil {
		t.Errorf("repeated MarkSessionFaulted: %v", err)
	}
}

func TestGetFrameStatsEmpty(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.GetFrameStats(context.Background())
	if err != nil {
		t.Fatalf("GetFrameStats: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Total = %d, want 0", stats.Total)
	}
	if stats.AvgLatencyMS != 0 {
		t.Errorf("AvgLatencyMS = %v, want 0", stats.AvgLatencyMS)
	}
}
