package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
)

func TestFilterHandler(t *testing.T) {
	env := setupHandler(t)

	w := env.do(t, http.MethodGet, "/api/filter", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeBody[model.FilterSpec](t, w).Equal(model.DefaultFilterSpec()))

	start := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		check    func(*testing.T, model.FilterSpec)
	}{
		{
			name: "priority order", method: http.MethodPut, path: "/api/filter/priority-order",
			body: map[string]any{"value": "high_first"}, wantCode: http.StatusOK,
			check: func(t *testing.T, s model.FilterSpec) {
				assert.Equal(t, model.PriorityOrderHighFirst, s.Sort.PriorityOrder)
			},
		},
		{
			name: "unknown priority order", method: http.MethodPut, path: "/api/filter/priority-order",
			body: map[string]any{"value": "sideways"}, wantCode: http.StatusBadRequest,
		},
		{
			name: "sort", method: http.MethodPut, path: "/api/filter/sort",
			body: map[string]any{"value": "created_asc"}, wantCode: http.StatusOK,
			check: func(t *testing.T, s model.FilterSpec) {
				assert.Equal(t, model.SortCreatedAsc, s.Sort.Condition)
			},
		},
		{
			name: "notebook", method: http.MethodPut, path: "/api/filter/notebook",
			body: map[string]any{"notebook_id": 3}, wantCode: http.StatusOK,
			check: func(t *testing.T, s model.FilterSpec) {
				assert.Equal(t, int64(3), s.NotebookID)
			},
		},
		{
			name: "search range", method: http.MethodPut, path: "/api/filter/search-range",
			body: map[string]any{"all": true}, wantCode: http.StatusOK,
			check: func(t *testing.T, s model.FilterSpec) {
				assert.True(t, s.SearchRangeAll)
			},
		},
		{
			name: "search", method: http.MethodPut, path: "/api/filter/search",
			body: map[string]any{"query": "milk"}, wantCode: http.StatusOK,
			check: func(t *testing.T, s model.FilterSpec) {
				assert.Equal(t, "milk", s.SearchQuery)
			},
		},
		{
			name: "date range", method: http.MethodPut, path: "/api/filter/date-range",
			body: map[string]any{"start": start, "end": end}, wantCode: http.StatusOK,
			check: func(t *testing.T, s model.FilterSpec) {
				assert.True(t, s.DateRangeStart.Equal(start))
				assert.True(t, s.DateRangeEnd.Equal(end))
			},
		},
		{
			name: "inverted date range", method: http.MethodPut, path: "/api/filter/date-range",
			body: map[string]any{"start": end, "end": start}, wantCode: http.StatusBadRequest,
		},
		{
			name: "toggle date", method: http.MethodPost, path: "/api/filter/toggle/date", wantCode: http.StatusOK,
			check: func(t *testing.T, s model.FilterSpec) { assert.True(t, s.DateEnabled) },
		},
		{
			name: "toggle order", method: http.MethodPost, path: "/api/filter/toggle/order", wantCode: http.StatusOK,
			check: func(t *testing.T, s model.FilterSpec) { assert.False(t, s.Sort.OrderEnabled) },
		},
		{
			name: "unknown toggle", method: http.MethodPost, path: "/api/filter/toggle/color", wantCode: http.StatusNotFound,
		},
		{
			name: "state bit", method: http.MethodPost, path: "/api/filter/states/completed", wantCode: http.StatusOK,
			check: func(t *testing.T, s model.FilterSpec) {
				assert.False(t, s.States.Has(model.StateCompleted))
				assert.True(t, s.States.Has(model.StateActive))
			},
		},
		{
			name: "unknown state", method: http.MethodPost, path: "/api/filter/states/paused", wantCode: http.StatusBadRequest,
		},
		{
			name: "priority bit", method: http.MethodPost, path: "/api/filter/priorities/low", wantCode: http.StatusOK,
			check: func(t *testing.T, s model.FilterSpec) { assert.False(t, s.Priorities.Has(model.PriorityLow)) },
		},
		{
			name: "unknown priority", method: http.MethodPost, path: "/api/filter/priorities/urgent", wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.check != nil {
				tt.check(t, decodeBody[model.FilterSpec](t, w))
			}
		})
	}

	// Everything above went through the preference state.
	spec := env.prefs.Spec()
	assert.Equal(t, model.PriorityOrderHighFirst, spec.Sort.PriorityOrder)
	assert.Equal(t, "milk", spec.SearchQuery)
}
