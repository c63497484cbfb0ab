package api

import "net/http"

// healthResponse reports liveness plus the running session's pool state, so
// a probe can tell a healthy-but-saturated pipeline from an idle one.
type healthResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	InUse     int    `json:"in_use"`
	Capacity  int    `json:"capacity"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		SessionID: s.sessionID,
		InUse:     s.pipe.InUse(),
		Capacity:  s.pipe.Capacity(),
	})
}
