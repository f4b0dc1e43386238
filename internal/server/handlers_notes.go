package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vamojunto/nfce-tracker/internal/common"
	"github.com/vamojunto/nfce-tracker/internal/ingest"
	"github.com/vamojunto/nfce-tracker/internal/repository"
)

type ingestBody struct {
	QRCode string `json:"qrcode"`
}

type ingestResponse struct {
	Created bool `json:"created"`
	Note    any  `json:"note"`
}

// handleIngest accepts a QR-code payload and runs the full pipeline.
// 201 means a note was created; 200 means the receipt was already stored
// and the existing note is returned.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	var body ingestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}

	res, err := s.ingest.Ingest(r.Context(), ingest.Request{UserID: userID, QRCode: body.QRCode})
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, ingestResponse{Created: res.Created, Note: res.Note})
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	filter := noteFilterFromQuery(r)
	notes, err := s.notes.List(r.Context(), userID, filter)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes, "count": len(notes)})
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	noteID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, s.logger, fmt.Errorf("%w: note id must be a UUID", common.ErrValidation))
		return
	}

	note, err := s.notes.GetByID(r.Context(), userID, noteID)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	noteID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, s.logger, fmt.Errorf("%w: note id must be a UUID", common.ErrValidation))
		return
	}

	if err := s.notes.Delete(r.Context(), userID, noteID); err != nil {
		respondError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportNotes(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	out, err := s.export.ExportNotesXLSX(r.Context(), userID, noteFilterFromQuery(r))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	filename := "notes-" + time.Now().UTC().Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(out)
}

func noteFilterFromQuery(r *http.Request) repository.NoteFilter {
	q := r.URL.Query()
	filter := repository.NoteFilter{Establishment: q.Get("establishment")}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = v
	}
	if v, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		filter.IssuedFrom = &v
	}
	if v, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		// "to" is a whole day, inclusive
		end := v.Add(24 * time.Hour)
		filter.IssuedBefore = &end
	}
	return filter
}
