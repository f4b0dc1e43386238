package server

import (
	"encoding/json"
	"net/http"

	"github.com/vamojunto/nfce-tracker/internal/auth"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}

	res, err := s.auth.Register(r.Context(), req)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}

	res, err := s.auth.Login(r.Context(), req)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
