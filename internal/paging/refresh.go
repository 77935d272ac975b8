package paging

import (
	"context"
	"errors"

	"github.com/BuzzLyutic/notebook-tasks/internal/filter"
	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/repo"
)

// State is what a consumer has on screen: the loaded pages and the absolute
// position of the item it is showing. AnchorID names that item when the
// pages do not carry their items.
type State struct {
	Anchor   *int
	AnchorID *int64
	Pages    []Page
}

// RefreshKey picks the page to reload after an invalidation: the loaded page
// closest to the anchor, addressed through its previous key, or through its
// next key when it is the first page.
func RefreshKey(s State) (int, bool) {
	if s.Anchor == nil || len(s.Pages) == 0 {
		return 0, false
	}
	p := closestPage(s.Pages, *s.Anchor)
	if p.PrevKey != nil {
		return *p.PrevKey + 1, true
	}
	if p.NextKey != nil {
		return *p.NextKey - 1, true
	}
	return 0, false
}

// extent is the number of positions a page covers. A page with a next key
// is full even when the caller did not keep its items.
func (p Page) extent() int {
	if p.NextKey != nil {
		return PageSize
	}
	return len(p.Items)
}

func closestPage(pages []Page, anchor int) Page {
	best, bestDist := pages[0], -1
	for _, p := range pages {
		start := (p.Number - 1) * PageSize
		end := start + p.extent()
		var dist int
		switch {
		case anchor < start:
			dist = start - anchor
		case anchor >= end:
			dist = anchor - end + 1
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = p, dist
		}
	}
	return best
}

// anchorID returns the id of the anchor item, taken from the state or from
// the loaded page holding the anchor position.
func anchorID(s State) (int64, bool) {
	if s.AnchorID != nil {
		return *s.AnchorID, true
	}
	if s.Anchor == nil {
		return 0, false
	}
	for _, p := range s.Pages {
		i := *s.Anchor - (p.Number-1)*PageSize
		if i >= 0 && i < len(p.Items) {
			return p.Items[i].ID, true
		}
	}
	return 0, false
}

// ResolveRefreshKey returns the page that now holds the anchor item, found
// by counting the rows ordered before it. Rows deleted ahead of the anchor
// shift it to an earlier page. When the item is unknown it falls back to
// RefreshKey. The result is clamped to the pages that exist now.
func (e *Engine) ResolveRefreshKey(ctx context.Context, s State, spec model.FilterSpec) (int, error) {
	q := filter.Compile(spec)
	if q.Unsatisfiable() {
		return 1, nil
	}
	key, ok := RefreshKey(s)

	if id, found := anchorID(s); found {
		task, err := e.src.Get(ctx, id)
		switch {
		case err == nil:
			before, err := e.src.Count(ctx, q.Before(task))
			if err != nil {
				return 0, &LoadError{Page: key, Version: e.Version(), Err: err}
			}
			key, ok = int(before.Total/PageSize)+1, true
		case errors.Is(err, repo.ErrorNotFound):
		default:
			return 0, &LoadError{Page: key, Version: e.Version(), Err: err}
		}
	}
	if !ok {
		return 1, nil
	}

	c, err := e.src.Count(ctx, q)
	if err != nil {
		return 0, &LoadError{Page: key, Version: e.Version(), Err: err}
	}
	last := max(1, int((c.Total+PageSize-1)/PageSize))
	return min(max(key, 1), last), nil
}
