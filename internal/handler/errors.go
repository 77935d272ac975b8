package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/notebook-tasks/internal/paging"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
	"github.com/BuzzLyutic/notebook-tasks/internal/service"
	"github.com/BuzzLyutic/notebook-tasks/pkg/respond"
)

func handleErrors(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var (
		loadErr *paging.LoadError
		ioErr   *repo.IOError
	)
	switch {
	case repo.IsCanceled(err) && r.Context().Err() != nil:
		// The client went away; nobody reads the response.
		logger.Debug("request cancelled", zap.String("path", r.URL.Path))
	case errors.Is(err, service.ErrValidation), errors.Is(err, paging.ErrInvalidPage):
		respond.Error(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, repo.ErrorNotFound):
		respond.Error(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, repo.ErrorConflict):
		respond.Error(w, r, http.StatusConflict, "conflict")
	case errors.Is(err, repo.ErrInvalidReference):
		respond.Error(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &loadErr):
		logger.Warn("page load failed", zap.Int("page", loadErr.Page), zap.Error(err))
		w.Header().Set("Retry-After", "1")
		respond.JSON(w, r, http.StatusServiceUnavailable, map[string]any{
			"error": "page load failed",
			"page":  loadErr.Page,
		})
	case errors.Is(err, paging.ErrStale):
		w.Header().Set("Retry-After", "1")
		respond.Error(w, r, http.StatusServiceUnavailable, "results changed while loading")
	case errors.As(err, &ioErr):
		logger.Error("storage error", zap.String("op", ioErr.Op), zap.Error(err))
		w.Header().Set("Retry-After", "1")
		respond.Error(w, r, http.StatusServiceUnavailable, "storage unavailable")
	default:
		logger.Error("internal error", zap.Error(err))
		respond.Error(w, r, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a JSON body into dst and answers 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		respond.Error(w, r, http.StatusBadRequest, "empty request body")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respond.Error(w, r, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(w, r, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
