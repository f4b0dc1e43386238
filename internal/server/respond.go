package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vamojunto/nfce-tracker/internal/auth"
	"github.com/vamojunto/nfce-tracker/internal/common"
	"github.com/vamojunto/nfce-tracker/internal/repository"
	"github.com/vamojunto/nfce-tracker/internal/scraper"
)

// errorBody is the JSON shape of every error response. Reason is a stable
// machine-readable code; Message is for humans and may change.
type errorBody struct {
	Error struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	var body errorBody
	body.Error.Reason = reason
	body.Error.Message = message
	writeJSON(w, status, body)
}

// respondError maps pipeline and storage errors onto HTTP statuses. The
// mapping separates caller mistakes (4xx) from upstream and internal
// failures (5xx) so clients know whether a retry can help.
func respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var fetchErr *scraper.FetchError

	switch {
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrInvalidInput):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
	case errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, repository.ErrUserExists):
		writeError(w, http.StatusConflict, "account_exists", "an account with this email or CPF already exists")
	case errors.Is(err, scraper.ErrPageStructure):
		// the viewer answered but the page carried no receipt: either the
		// key does not resolve or the layout changed
		logger.Warn("extraction failed", "error", err)
		writeError(w, http.StatusBadGateway, "page_structure_error", "consultation page could not be read")
	case errors.As(err, &fetchErr):
		logger.Warn("viewer unreachable", "error", err)
		writeError(w, http.StatusBadGateway, "network_error", "consultation service unavailable")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
