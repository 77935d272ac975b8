package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/prefs"
	"github.com/BuzzLyutic/notebook-tasks/pkg/respond"
)

// FilterHandler exposes the preference setters. Every call answers with the
// resulting filter.
type FilterHandler struct {
	prefs  *prefs.State
	logger *zap.Logger
}

func NewFilterHandler(state *prefs.State, logger *zap.Logger) *FilterHandler {
	return &FilterHandler{prefs: state, logger: logger}
}

func (h *FilterHandler) Routes(r chi.Router) {
	r.Get("/", h.Get)
	r.Put("/priority-order", h.SetPriorityOrder)
	r.Put("/sort", h.SetSortCondition)
	r.Put("/notebook", h.SelectNotebook)
	r.Put("/date-range", h.SetDateRange)
	r.Put("/search", h.SetSearchQuery)
	r.Put("/search-range", h.SetSearchRangeAll)
	r.Post("/toggle/{name}", h.Toggle)
	r.Post("/states/{state}", h.ToggleState)
	r.Post("/priorities/{priority}", h.TogglePriority)
}

func (h *FilterHandler) Get(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, r, http.StatusOK, h.prefs.Spec())
}

func (h *FilterHandler) reply(w http.ResponseWriter, r *http.Request, spec model.FilterSpec, err error) {
	if err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, spec)
}

func (h *FilterHandler) SetPriorityOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value model.PriorityOrder `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	spec, err := h.prefs.SetPriorityOrder(req.Value)
	h.reply(w, r, spec, err)
}

func (h *FilterHandler) SetSortCondition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value model.SortCondition `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	spec, err := h.prefs.SetSortCondition(req.Value)
	h.reply(w, r, spec, err)
}

func (h *FilterHandler) SelectNotebook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NotebookID int64 `json:"notebook_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	spec, err := h.prefs.SelectNotebook(req.NotebookID)
	h.reply(w, r, spec, err)
}

func (h *FilterHandler) SetDateRange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	}
	if !decode(w, r, &req) {
		return
	}
	if !req.Start.IsZero() && !req.End.IsZero() && req.End.Before(req.Start) {
		respond.Error(w, r, http.StatusBadRequest, "end is before start")
		return
	}
	spec, err := h.prefs.SetDateRange(req.Start, req.End)
	h.reply(w, r, spec, err)
}

func (h *FilterHandler) SetSearchQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if !decode(w, r, &req) {
		return
	}
	spec, err := h.prefs.SetSearchQuery(req.Query)
	h.reply(w, r, spec, err)
}

func (h *FilterHandler) SetSearchRangeAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		All bool `json:"all"`
	}
	if !decode(w, r, &req) {
		return
	}
	spec, err := h.prefs.SetSearchRangeAll(req.All)
	h.reply(w, r, spec, err)
}

func (h *FilterHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var (
		spec model.FilterSpec
		err  error
	)
	switch chi.URLParam(r, "name") {
	case "date":
		spec, err = h.prefs.ToggleDateEnabled()
	case "order":
		spec, err = h.prefs.ToggleOrderEnabled()
	case "favorite":
		spec, err = h.prefs.ToggleFavorite()
	default:
		respond.Error(w, r, http.StatusNotFound, "unknown toggle")
		return
	}
	h.reply(w, r, spec, err)
}

func (h *FilterHandler) ToggleState(w http.ResponseWriter, r *http.Request) {
	st, err := model.ParseState(chi.URLParam(r, "state"))
	if err != nil {
		respond.Error(w, r, http.StatusBadRequest, err.Error())
		return
	}
	spec, err := h.prefs.ToggleState(st)
	h.reply(w, r, spec, err)
}

func (h *FilterHandler) TogglePriority(w http.ResponseWriter, r *http.Request) {
	p, err := model.ParsePriority(chi.URLParam(r, "priority"))
	if err != nil {
		respond.Error(w, r, http.StatusBadRequest, err.Error())
		return
	}
	spec, err := h.prefs.TogglePriority(p)
	h.reply(w, r, spec, err)
}
