package respond

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	type page struct {
		Number  int   `json:"number"`
		Items   []int `json:"items"`
		NextKey *int  `json:"next_key"`
	}

	tests := []struct {
		name string
		code int
		data any
		want string
	}{
		{"page", http.StatusOK, page{Number: 1, Items: []int{4, 2}}, `{"number":1,"items":[4,2],"next_key":null}`},
		{"created task", http.StatusCreated, map[string]int64{"id": 17}, `{"id":17}`},
		{"empty batch", http.StatusOK, []int64{}, `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			JSON(w, httptest.NewRequest(http.MethodGet, "/api/tasks", nil), tt.code, tt.data)

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.want, w.Body.String())
		})
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, httptest.NewRequest(http.MethodPut, "/api/filter/sort", nil), http.StatusBadRequest, "unknown sort condition")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var got map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, map[string]string{"error": "unknown sort condition"}, got)
}

func TestEvent(t *testing.T) {
	w := httptest.NewRecorder()

	StartStream(w)
	require.NoError(t, Event(w, "counts", map[string]int{"total": 3}))
	require.NoError(t, Event(w, "counts", map[string]int{"total": 4}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.True(t, w.Flushed)

	var events, data []string
	sc := bufio.NewScanner(strings.NewReader(w.Body.String()))
	for sc.Scan() {
		line := sc.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
		}
		if payload, ok := strings.CutPrefix(line, "data: "); ok {
			data = append(data, payload)
		}
	}
	assert.Equal(t, []string{"counts", "counts"}, events)
	assert.Equal(t, []string{`{"total":3}`, `{"total":4}`}, data)
}

func TestEventEncodeError(t *testing.T) {
	w := httptest.NewRecorder()
	err := Event(w, "bad", make(chan int))
	assert.Error(t, err)
	assert.Empty(t, w.Body.String())
}
