package api

import (
	"net/http"
	"time"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total        int                `json:"total"`
	ByStatus     map[string]int     `json:"by_status"`
	AvgLatencyMS float64            `json:"avg_latency_ms"`
	TotalBytes   int64              `json:"total_bytes"`
	FPSBySession map[string]float64 `json:"fps_by_session"`
}

// pipelineStatsResponse is the JSON response for GET /v1/pipeline/stats,
// the live perf snapshot of the running session.
type pipelineStatsResponse struct {
	SessionID       string  `json:"session_id"`
	FPS             float64 `json:"fps"`
	MeanLatencyMS   float64 `json:"mean_latency_ms"`
	FramesCompleted uint64  `json:"frames_completed"`
	InUse           int     `json:"in_use"`
	Capacity        int     `json:"capacity"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetFrameStats(r.Context())
	if err != nil {
		s.logger.Error("get frame stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:        stats.Total,
		ByStatus:     stats.CountByStatus,
		AvgLatencyMS: stats.AvgLatencyMS,
		TotalBytes:   stats.TotalBytes,
		FPSBySession: stats.FPSBySession,
	})
}

func (s *Server) handleGetPipelineStats(w http.ResponseWriter, _ *http.Request) {
	snap := s.pipe.Perf()

	s.writeJSON(w, http.StatusOK, pipelineStatsResponse{
		SessionID:       s.sessionID,
		FPS:             snap.FPS,
		MeanLatencyMS:   float64(snap.MeanLatency) / float64(time.Millisecond),
		FramesCompleted: snap.FramesCompleted,
		InUse:           snap.InUse,
		Capacity:        snap.Capacity,
	})
}
