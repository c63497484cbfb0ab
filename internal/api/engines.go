package api

import "net/http"

func (s *Server) handleListEngines(w http.ResponseWriter, _ *http.Request) {
	engines := s.registry.List()
	s.writeJSON(w, http.StatusOK, engines)
}
