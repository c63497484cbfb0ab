package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tserav/inferno/internal/model"
	"github.com/tserav/inferno/internal/pipeline"
	"github.com/tserav/inferno/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 8 << 20 // 8 MB, frames carry raw tensor payloads
)

// submitFrameRequest is the JSON body for POST /v1/frames. Input blobs are
// base64-encoded by the standard []byte JSON representation.
type submitFrameRequest struct {
	Inputs map[string][]byte `json:"inputs"`
}

// drainedFrame is one in-order result returned by the drain endpoint.
type drainedFrame struct {
	FrameID   uint64 `json:"frame_id"`
	Payload   []byte `json:"payload"`
	LatencyMS int    `json:"latency_ms"`
}

// drainFramesResponse wraps the drained results, oldest sequence first.
type drainFramesResponse struct {
	Frames []drainedFrame `json:"frames"`
}

// listFramesResponse wraps the paginated frame history response.
type listFramesResponse struct {
	Frames []*model.FrameRecord `json:"frames"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

func (s *Server) handleSubmitFrame(w http.ResponseWriter, r *http.Request) {
	var req submitFrameRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if len(req.Inputs) == 0 {
		s.writeError(w, http.StatusBadRequest, "at least one input blob is required")
		return
	}

	frameID, err := s.pipe.Submit(req.Inputs)
	switch {
	case errors.Is(err, pipeline.ErrPoolExhausted):
		s.writeError(w, http.StatusTooManyRequests, "all inference requests are in use, drain results first")
		return
	case errors.Is(err, pipeline.ErrOutputNotSet):
		s.writeError(w, http.StatusUnprocessableEntity, "pipeline output name is not configured")
		return
	case err != nil:
		s.logger.Error("submit frame", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit frame")
		return
	}

	fr := &model.FrameRecord{
		ID:          model.NewID(),
		SessionID:   s.sessionID,
		FrameSeq:    frameID,
		Status:      model.FrameStatusPending,
		SubmittedAt: time.Now().UTC(),
	}
	if err := s.store.CreateFrameRecord(r.Context(), fr); err != nil {
		s.logger.Error("create frame record", "frame_id", frameID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to record frame")
		return
	}

	s.writeJSON(w, http.StatusAccepted, fr)
}

func (s *Server) handleDrainFrames(w http.ResponseWriter, r *http.Request) {
	// Only block when frames are in flight; draining an idle session returns
	// whatever is already buffered instead of waiting for a frame that will
	// never arrive.
	if s.pipe.InUse() > 0 {
		if err := s.pipe.WaitForData(); err != nil {
			s.logger.Error("pipeline fault", "error", err)
			// Frames stranded behind the fault will never be drained.
			if mErr := s.store.MarkSessionFaulted(r.Context(), s.sessionID); mErr != nil {
				s.logger.Error("mark session faulted", "error", mErr)
			}
			s.writeError(w, http.StatusInternalServerError, "pipeline fault: "+err.Error())
			return
		}
	}

	frames := []drainedFrame{}
	for {
		res, ok := s.pipe.GetResult()
		if !ok {
			break
		}

		now := time.Now().UTC()
		latencyMS := int(now.Sub(res.StartTime).Milliseconds())
		if err := s.store.MarkFrameRetrieved(r.Context(), s.sessionID, res.FrameID, latencyMS, len(res.Payload), now); err != nil {
			s.logger.Error("mark frame retrieved", "frame_id", res.FrameID, "error", err)
		}

		frames = append(frames, drainedFrame{
			FrameID:   res.FrameID,
			Payload:   res.Payload,
			LatencyMS: latencyMS,
		})
	}

	s.writeJSON(w, http.StatusOK, drainFramesResponse{Frames: frames})
}

func (s *Server) handleGetFrame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	fr, err := s.store.GetFrameRecord(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "frame not found")
		return
	}
	if err != nil {
		s.logger.Error("get frame", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get frame")
		return
	}

	s.writeJSON(w, http.StatusOK, fr)
}

func (s *Server) handleListFrames(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	frames, total, err := s.store.ListFrameRecords(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list frames", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list frames")
		return
	}

	if frames == nil {
		frames = []*model.FrameRecord{}
	}

	s.writeJSON(w, http.StatusOK, listFramesResponse{
		Frames: frames,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
