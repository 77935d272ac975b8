package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/pkg/respond"
)

type batchRequest struct {
	IDs        []int64      `json:"ids"`
	NotebookID *int64       `json:"notebook_id,omitempty"`
	State      *model.State `json:"state,omitempty"`
}

// Batch runs one of delete, restore, move, copy or state over a list of ids.
// Unknown ids come back under "missing".
func (h *TaskHandler) Batch(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "op")
	switch op {
	case "delete", "restore", "move", "copy", "state":
	default:
		respond.Error(w, r, http.StatusNotFound, "unknown batch operation")
		return
	}

	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	if (op == "move" || op == "copy") && req.NotebookID == nil {
		respond.Error(w, r, http.StatusBadRequest, "notebook_id is required")
		return
	}
	if op == "state" && req.State == nil {
		respond.Error(w, r, http.StatusBadRequest, "state is required")
		return
	}

	ctx := r.Context()
	if op == "copy" {
		copies, err := h.service.Copy(ctx, req.IDs, *req.NotebookID)
		if err != nil {
			handleErrors(w, r, h.logger, err)
			return
		}
		if copies == nil {
			copies = []model.Task{}
		}
		respond.JSON(w, r, http.StatusOK, map[string]any{"tasks": copies})
		return
	}

	var (
		res model.BatchResult
		err error
	)
	switch op {
	case "delete":
		res, err = h.service.DeleteMany(ctx, req.IDs)
	case "restore":
		res, err = h.service.RestoreMany(ctx, req.IDs)
	case "move":
		res, err = h.service.Move(ctx, req.IDs, *req.NotebookID)
	case "state":
		res, err = h.service.SetState(ctx, req.IDs, *req.State)
	}
	if err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	if res.Applied == nil {
		res.Applied = []int64{}
	}
	if res.Missing == nil {
		res.Missing = []int64{}
	}
	respond.JSON(w, r, http.StatusOK, res)
}
