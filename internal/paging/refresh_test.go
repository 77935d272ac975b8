package paging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo/memory"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo/repotest"
)

func pageOf(n, size int) Page {
	items := make([]model.TaskDetail, size)
	return newPage(n, items, 1)
}

func TestRefreshKey(t *testing.T) {
	tests := []struct {
		name   string
		state  State
		want   int
		wantOK bool
	}{
		{"no anchor", State{Pages: []Page{pageOf(1, 20)}}, 0, false},
		{"no pages", State{Anchor: ptr(3)}, 0, false},
		{"first page uses next key", State{Anchor: ptr(3), Pages: []Page{pageOf(1, 20), pageOf(2, 20)}}, 1, true},
		{"middle page uses prev key", State{Anchor: ptr(25), Pages: []Page{pageOf(1, 20), pageOf(2, 20), pageOf(3, 10)}}, 2, true},
		{"anchor past loaded pages", State{Anchor: ptr(90), Pages: []Page{pageOf(2, 20), pageOf(3, 20)}}, 3, true},
		{"anchor before loaded pages", State{Anchor: ptr(2), Pages: []Page{pageOf(3, 20), pageOf(4, 20)}}, 3, true},
		{"single short page", State{Anchor: ptr(2), Pages: []Page{pageOf(1, 5)}}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RefreshKey(tt.state)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRefreshKeyAfterDeletion(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		deleteLo  int
		deleteHi  int
		wantPage  int
		neighbour int
	}{
		{"ten rows after the anchor", 30, 40, 2, 25},
		{"everything from page two on", 20, 50, 1, 19},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := repotest.NewClock()
			s := memory.New(memory.WithClock(clock.Now))
			seed(t, s, clock, 50, nil)
			e := NewEngine(s)
			spec := model.DefaultFilterSpec()

			var state State
			var ordered []int64
			for p, err := range e.Pages(ctx, spec) {
				require.NoError(t, err)
				state.Pages = append(state.Pages, p)
				ordered = append(ordered, idsOf(p.Items)...)
			}
			require.Len(t, state.Pages, 3)
			require.Len(t, ordered, 50)
			state.Anchor = ptr(25)

			_, err := s.SetDeleted(ctx, ordered[tt.deleteLo:tt.deleteHi], true)
			require.NoError(t, err)
			e.Invalidate()

			key, err := e.ResolveRefreshKey(ctx, state, spec)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, key)

			p, err := e.Load(ctx, key, spec)
			require.NoError(t, err)
			assert.NotEmpty(t, p.Items)
			assert.Contains(t, idsOf(p.Items), ordered[tt.neighbour])
		})
	}
}

func TestResolveRefreshKeyWithoutAnchor(t *testing.T) {
	e := NewEngine(new(MockSource))
	key, err := e.ResolveRefreshKey(context.Background(), State{}, model.DefaultFilterSpec())
	require.NoError(t, err)
	assert.Equal(t, 1, key)
}

func TestResolveRefreshKeyCountFailure(t *testing.T) {
	src := new(MockSource)
	src.On("Get", mock.Anything, int64(0)).Return(model.Task{}, repo.ErrorNotFound)
	src.On("Count", mock.Anything, mock.Anything).Return(model.AggregateCount{}, errors.New("closed"))
	e := NewEngine(src)
	state := State{Anchor: ptr(25), Pages: []Page{pageOf(1, 20), pageOf(2, 20)}}

	_, err := e.ResolveRefreshKey(context.Background(), state, model.DefaultFilterSpec())
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, 2, loadErr.Page)
}

func TestResolveRefreshKeyAnchorReadFailure(t *testing.T) {
	src := new(MockSource)
	src.On("Get", mock.Anything, int64(7)).Return(model.Task{}, &repo.IOError{Op: "get task", Err: errors.New("disk")})
	e := NewEngine(src)
	state := State{Anchor: ptr(25), AnchorID: ptr64(7), Pages: []Page{loaded(1), loaded(2)}}

	_, err := e.ResolveRefreshKey(context.Background(), state, model.DefaultFilterSpec())
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	src.AssertNotCalled(t, "Count", mock.Anything, mock.Anything)
}

func ptr64(v int64) *int64 { return &v }

// loaded is a full page the caller holds without its items.
func loaded(n int) Page {
	p := Page{Number: n}
	next := n + 1
	p.NextKey = &next
	if n > 1 {
		prev := n - 1
		p.PrevKey = &prev
	}
	return p
}

func TestRefreshKeyWithoutItems(t *testing.T) {
	pages := []Page{loaded(1), loaded(2), loaded(3)}
	for anchor, want := range map[int]int{0: 1, 19: 1, 20: 2, 39: 2, 40: 3, 59: 3, 75: 3} {
		got, ok := RefreshKey(State{Anchor: ptr(anchor), Pages: pages})
		require.True(t, ok)
		assert.Equal(t, want, got, "anchor %d", anchor)
	}
}

func TestRefreshKeyFollowsAnchorItem(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		deleteLo int
		deleteHi int
		wantPage int
	}{
		{"ten rows before the anchor", 0, 10, 1},
		{"first page gone", 0, 20, 1},
		{"rows around the anchor", 22, 25, 2},
		{"nothing deleted", 0, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := repotest.NewClock()
			s := memory.New(memory.WithClock(clock.Now))
			seed(t, s, clock, 50, nil)
			e := NewEngine(s)
			spec := model.DefaultFilterSpec()

			var state State
			var ordered []int64
			for p, err := range e.Pages(ctx, spec) {
				require.NoError(t, err)
				state.Pages = append(state.Pages, p)
				ordered = append(ordered, idsOf(p.Items)...)
			}
			require.Len(t, ordered, 50)
			state.Anchor = ptr(25)

			if tt.deleteHi > tt.deleteLo {
				_, err := s.SetDeleted(ctx, ordered[tt.deleteLo:tt.deleteHi], true)
				require.NoError(t, err)
			}
			e.Invalidate()

			key, err := e.ResolveRefreshKey(ctx, state, spec)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, key)

			p, err := e.Load(ctx, key, spec)
			require.NoError(t, err)
			got := idsOf(p.Items)
			assert.Contains(t, got, ordered[25])
			assert.Contains(t, got, ordered[26])

			// The same answer when the caller only sends the anchor id.
			bare := State{Anchor: ptr(25), AnchorID: &ordered[25], Pages: []Page{loaded(1), loaded(2), loaded(3)}}
			key, err = e.ResolveRefreshKey(ctx, bare, spec)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, key)
		})
	}
}

func TestRefreshKeyPurgedAnchorFallsBack(t *testing.T) {
	ctx := context.Background()
	clock := repotest.NewClock()
	s := memory.New(memory.WithClock(clock.Now))
	tasks := seed(t, s, clock, 50, nil)
	e := NewEngine(s)

	require.NoError(t, s.Purge(ctx, tasks[0].ID))
	state := State{Anchor: ptr(39), AnchorID: &tasks[0].ID, Pages: []Page{loaded(1), loaded(2), loaded(3)}}
	key, err := e.ResolveRefreshKey(ctx, state, model.DefaultFilterSpec())
	require.NoError(t, err)
	assert.Equal(t, 2, key)
}
