package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/service"
	"github.com/BuzzLyutic/notebook-tasks/pkg/respond"
)

type NotebookHandler struct {
	service *service.NotebookService
	logger  *zap.Logger
}

func NewNotebookHandler(srv *service.NotebookService, logger *zap.Logger) *NotebookHandler {
	return &NotebookHandler{service: srv, logger: logger}
}

func (h *NotebookHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

func (h *NotebookHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Notebook{}
	}
	respond.JSON(w, r, http.StatusOK, list)
}

func (h *NotebookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.Notebook
	if !decode(w, r, &req) {
		return
	}
	n, err := h.service.Create(r.Context(), req)
	if err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/notebooks/%d", n.ID))
	respond.JSON(w, r, http.StatusCreated, n)
}

func (h *NotebookHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	n, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, n)
}

func (h *NotebookHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req model.Notebook
	if !decode(w, r, &req) {
		return
	}
	req.ID = id
	n, err := h.service.Update(r.Context(), req)
	if err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, n)
}

// Delete removes the notebook; its tasks go to the trash.
func (h *NotebookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
