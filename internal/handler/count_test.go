package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
)

func TestCountHandler_Get(t *testing.T) {
	env := setupHandler(t)
	ctx := context.Background()
	nb, err := env.store.CreateNotebook(ctx, model.Notebook{Title: "Work"})
	require.NoError(t, err)
	env.seed(t, 4, func(i int, task *model.Task) {
		task.Priority = model.PriorityHigh
		task.Favorite = i == 0
	})
	env.seed(t, 2, func(_ int, task *model.Task) {
		task.NotebookID = nb.ID
		task.State = model.StateActive
	})

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantTotal int64
	}{
		{"current scope", "", http.StatusOK, 4},
		{"all notebooks", "?notebook=all", http.StatusOK, 6},
		{"one notebook", "?notebook=" + itoa(nb.ID), http.StatusOK, 2},
		{"bad notebook", "?notebook=work", http.StatusBadRequest, 0},
		{"bad flag", "?filtered=perhaps", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/counts"+tt.query, nil)
			require.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			counts := decodeBody[model.AggregateCount](t, w)
			assert.Equal(t, tt.wantTotal, counts.Total)
			assert.True(t, counts.Consistent())
		})
	}

	_, err = env.prefs.ToggleFavorite()
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/counts?filtered=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), decodeBody[model.AggregateCount](t, w).Total)

	// The summary ignores the favorite filter.
	w = env.do(t, http.MethodGet, "/api/counts", nil)
	assert.Equal(t, int64(4), decodeBody[model.AggregateCount](t, w).Total)
}

func TestCountHandler_Watch(t *testing.T) {
	env := setupHandler(t)
	env.seed(t, 2, nil)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/counts/watch?notebook=all", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan model.AggregateCount)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			payload, ok := strings.CutPrefix(sc.Text(), "data: ")
			if !ok {
				continue
			}
			var v model.AggregateCount
			if json.Unmarshal([]byte(payload), &v) == nil {
				events <- v
			}
		}
	}()

	next := func() model.AggregateCount {
		select {
		case v, ok := <-events:
			require.True(t, ok, "stream closed")
			return v
		case <-ctx.Done():
			t.Fatal("no event received")
			return model.AggregateCount{}
		}
	}

	assert.Equal(t, int64(2), next().Total)
	env.seed(t, 1, func(_ int, task *model.Task) { task.Priority = model.PriorityLow })
	got := next()
	assert.Equal(t, int64(3), got.Total)
	assert.Equal(t, int64(1), got.Low)
}

func TestCountHandler_WatchFollowsFilter(t *testing.T) {
	env := setupHandler(t)
	nb, err := env.store.CreateNotebook(context.Background(), model.Notebook{Title: "Work"})
	require.NoError(t, err)
	env.seed(t, 2, nil)
	env.seed(t, 5, func(_ int, task *model.Task) { task.NotebookID = nb.ID })

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/counts/watch", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	read := func() model.AggregateCount {
		for sc.Scan() {
			if payload, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
				var v model.AggregateCount
				require.NoError(t, json.Unmarshal([]byte(payload), &v))
				return v
			}
		}
		t.Fatal("stream ended")
		return model.AggregateCount{}
	}

	assert.Equal(t, int64(2), read().Total)
	_, err = env.prefs.SelectNotebook(nb.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), read().Total)
}
