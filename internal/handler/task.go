package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/paging"
	"github.com/BuzzLyutic/notebook-tasks/internal/prefs"
	"github.com/BuzzLyutic/notebook-tasks/internal/service"
	"github.com/BuzzLyutic/notebook-tasks/pkg/respond"
)

// staleRetries bounds how often List reloads a page whose filter or data
// changed underneath it.
const staleRetries = 3

type TaskHandler struct {
	service *service.TaskService
	engine  *paging.Engine
	prefs   *prefs.State
	logger  *zap.Logger
}

func NewTaskHandler(srv *service.TaskService, engine *paging.Engine, state *prefs.State, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: srv,
		engine:  engine,
		prefs:   state,
		logger:  logger,
	}
}

func (h *TaskHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/refresh", h.RefreshKey)
	r.Post("/batch/{op}", h.Batch)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Post("/restore", h.Restore)
		r.Post("/favorite", h.Favorite)
		r.Get("/photos", h.ListPhotos)
		r.Post("/photos", h.AddPhoto)
	})
}

// List returns one page of the tasks matching the current filter.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	n := 1
	if s := r.URL.Query().Get("page"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			respond.Error(w, r, http.StatusBadRequest, "invalid page")
			return
		}
		n = v
	}

	var (
		page paging.Page
		err  error
	)
	for range staleRetries {
		page, err = h.engine.Load(r.Context(), n, h.prefs.Spec())
		if !errors.Is(err, paging.ErrStale) {
			break
		}
	}
	if err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, page)
}

// RefreshKey answers which page to reload after the list changed, given the
// anchor position on screen, optionally the id of the item shown there, and
// the pages already loaded (comma separated).
func (h *TaskHandler) RefreshKey(w http.ResponseWriter, r *http.Request) {
	var state paging.State
	if s := r.URL.Query().Get("anchor"); s != "" {
		anchor, err := strconv.Atoi(s)
		if err != nil || anchor < 0 {
			respond.Error(w, r, http.StatusBadRequest, "invalid anchor")
			return
		}
		state.Anchor = &anchor
	}
	if s := r.URL.Query().Get("anchor_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id < 1 {
			respond.Error(w, r, http.StatusBadRequest, "invalid anchor_id")
			return
		}
		state.AnchorID = &id
	}
	if s := r.URL.Query().Get("pages"); s != "" {
		for _, part := range strings.Split(s, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 1 {
				respond.Error(w, r, http.StatusBadRequest, "invalid pages")
				return
			}
			state.Pages = append(state.Pages, loadedPage(n))
		}
	}

	key, err := h.engine.ResolveRefreshKey(r.Context(), state, h.prefs.Spec())
	if err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, map[string]int{"page": key})
}

// loadedPage stands in for a full page the client holds. Its next key marks
// it full, so it covers PageSize positions without carrying items.
func loadedPage(n int) paging.Page {
	p := paging.Page{Number: n}
	next := n + 1
	p.NextKey = &next
	if n > 1 {
		prev := n - 1
		p.PrevKey = &prev
	}
	return p
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.Task
	if !decode(w, r, &req) {
		return
	}
	if req.NotebookID == 0 {
		req.NotebookID = model.NoNotebook
	}

	task, err := h.service.Create(r.Context(), req)
	if err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/tasks/%d", task.ID))
	respond.JSON(w, r, http.StatusCreated, task)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req model.Task
	if !decode(w, r, &req) {
		return
	}
	req.ID = id
	if req.NotebookID == 0 {
		req.NotebookID = model.NoNotebook
	}

	task, err := h.service.Update(r.Context(), req)
	if err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

// Delete moves the task to the trash, or removes it for good with ?purge=true.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	purge, _ := strconv.ParseBool(r.URL.Query().Get("purge"))

	var err error
	if purge {
		err = h.service.Purge(r.Context(), id)
	} else {
		err = h.service.Delete(r.Context(), id)
	}
	if err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Restore(r.Context(), id); err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) Favorite(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Favorite bool `json:"favorite"`
	}
	if !decode(w, r, &req) {
		return
	}
	task, err := h.service.SetFavorite(r.Context(), id, req.Favorite)
	if err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	photos, err := h.service.ListPhotos(r.Context(), id)
	if err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	if photos == nil {
		photos = []model.Photo{}
	}
	respond.JSON(w, r, http.StatusOK, photos)
}

func (h *TaskHandler) AddPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req struct {
		URI string `json:"uri"`
	}
	if !decode(w, r, &req) {
		return
	}
	photo, err := h.service.AddPhoto(r.Context(), id, req.URI)
	if err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusCreated, photo)
}

func (h *TaskHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePhoto(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
