package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
)

type NotebookService struct {
	repo repo.NotebookRepository
}

func NewNotebookService(r repo.NotebookRepository) *NotebookService {
	return &NotebookService{repo: r}
}

func (s *NotebookService) Create(ctx context.Context, n model.Notebook) (model.Notebook, error) {
	if err := validateNotebook(n); err != nil {
		return n, err
	}
	return s.repo.CreateNotebook(ctx, n)
}

func (s *NotebookService) Get(ctx context.Context, id int64) (model.Notebook, error) {
	return s.repo.GetNotebook(ctx, id)
}

func (s *NotebookService) List(ctx context.Context) ([]model.Notebook, error) {
	return s.repo.ListNotebooks(ctx)
}

func (s *NotebookService) Update(ctx context.Context, n model.Notebook) (model.Notebook, error) {
	if err := validateNotebook(n); err != nil {
		return n, err
	}
	return s.repo.UpdateNotebook(ctx, n)
}

// Delete removes the notebook and moves its tasks to the trash.
func (s *NotebookService) Delete(ctx context.Context, id int64) error {
	return s.repo.DeleteNotebook(ctx, id)
}

func validateNotebook(n model.Notebook) error {
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !n.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %d", ErrValidation, int(n.Priority))
	}
	return nil
}
