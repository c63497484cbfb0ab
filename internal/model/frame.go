package model

import "time"

// Frame record status constants. A frame is pending from submission until
// its result is drained; faulted marks frames stranded by a pipeline fault,
// which can never be drained.
const (
	FrameStatusPending   = "pending"
	FrameStatusCompleted = "completed"
	FrameStatusFaulted   = "faulted"
)

// FrameRecord is the persisted history entry for one frame pushed through
// the pipeline. SessionID groups frames belonging to one pipeline session;
// FrameSeq is the pipeline's submission sequence number within that session.
type FrameRecord struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	FrameSeq    uint64     `json:"frame_seq"`
	Status      string     `json:"status"`
	PayloadSize *int       `json:"payload_size,omitempty"`
	LatencyMS   *int       `json:"latency_ms,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	RetrievedAt *time.Time `json:"retrieved_at,omitempty"`
}
