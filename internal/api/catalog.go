package api

import "net/http"

func (s *Server) handleListFunctions(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.functions.List())
}

func (s *Server) handleListDatasources(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.datasources.List())
}

func (s *Server) handleGetExecutors(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.executors.Stats())
}
