package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/notebook-tasks/internal/aggregate"
	"github.com/BuzzLyutic/notebook-tasks/internal/metrics"
	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/paging"
	"github.com/BuzzLyutic/notebook-tasks/internal/prefs"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo/memory"
	"github.com/BuzzLyutic/notebook-tasks/internal/service"
)

type testEnv struct {
	router http.Handler
	store  *memory.Store
	prefs  *prefs.State
}

func setupHandler(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := zap.NewNop()
	m := metrics.New(nil)
	engine := paging.NewEngine(store, paging.WithLogger(logger), paging.WithMetrics(m))
	changes := store.Subscribe(ctx)
	go engine.Watch(ctx, changes)

	state, err := prefs.Open(prefs.NewMemoryStore())
	require.NoError(t, err)

	tasks := service.NewTaskService(store, store)
	counter := aggregate.NewCounter(store, aggregate.WithLogger(logger), aggregate.WithMetrics(m))
	router := NewRouter(Handlers{
		Tasks:     NewTaskHandler(tasks, engine, state, logger),
		Counts:    NewCountHandler(counter, state, logger),
		Filter:    NewFilterHandler(state, logger),
		Notebooks: NewNotebookHandler(service.NewNotebookService(store), logger),
	}, m, prometheus.NewRegistry())

	return &testEnv{router: router, store: store, prefs: state}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		var err error
		payload, err = json.Marshal(b)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func (e *testEnv) seed(t *testing.T, n int, mutate func(i int, task *model.Task)) []model.Task {
	t.Helper()
	out := make([]model.Task, 0, n)
	for i := range n {
		task := model.Task{Title: fmt.Sprintf("task %02d", i), NotebookID: model.NoNotebook}
		if mutate != nil {
			mutate(i, &task)
		}
		created, err := e.store.Create(context.Background(), task)
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func jsonDecode(w *httptest.ResponseRecorder, v any) error {
	return json.NewDecoder(w.Body).Decode(v)
}
