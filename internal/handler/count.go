package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/notebook-tasks/internal/aggregate"
	"github.com/BuzzLyutic/notebook-tasks/internal/model"
	"github.com/BuzzLyutic/notebook-tasks/internal/prefs"
	"github.com/BuzzLyutic/notebook-tasks/pkg/respond"
)

type CountHandler struct {
	counter *aggregate.Counter
	prefs   *prefs.State
	logger  *zap.Logger
}

func NewCountHandler(counter *aggregate.Counter, state *prefs.State, logger *zap.Logger) *CountHandler {
	return &CountHandler{counter: counter, prefs: state, logger: logger}
}

func (h *CountHandler) Routes(r chi.Router) {
	r.Get("/", h.Get)
	r.Get("/watch", h.Watch)
}

// countParams reads ?notebook=all|ID and ?filtered=bool. Without notebook
// the scope follows the current filter.
type countParams struct {
	scope    *model.NotebookScope
	filtered bool
}

func parseCountParams(r *http.Request) (countParams, bool) {
	var p countParams
	q := r.URL.Query()
	switch nb := q.Get("notebook"); nb {
	case "":
	case "all":
		p.scope = &model.NotebookScope{All: true}
	default:
		id, err := strconv.ParseInt(nb, 10, 64)
		if err != nil {
			return p, false
		}
		p.scope = &model.NotebookScope{NotebookID: id}
	}
	if s := q.Get("filtered"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return p, false
		}
		p.filtered = v
	}
	return p, true
}

func (p countParams) request(spec model.FilterSpec) aggregate.Request {
	req := aggregate.Request{Scope: spec.Scope()}
	if p.scope != nil {
		req.Scope = *p.scope
	}
	if p.filtered {
		req.Spec = &spec
	}
	return req
}

func (h *CountHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := parseCountParams(r)
	if !ok {
		respond.Error(w, r, http.StatusBadRequest, "invalid count parameters")
		return
	}
	req := p.request(h.prefs.Spec())

	var (
		counts model.AggregateCount
		err    error
	)
	if req.Spec != nil {
		counts, err = h.counter.Counts(r.Context(), req.Scope, *req.Spec)
	} else {
		counts, err = h.counter.Summary(r.Context(), req.Scope)
	}
	if err != nil {
		handleErrors(w, r, h.logger, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, counts)
}

// Watch streams counts as server-sent events until the client disconnects.
// When the scope comes from the filter, filter changes switch the stream.
func (h *CountHandler) Watch(w http.ResponseWriter, r *http.Request) {
	p, ok := parseCountParams(r)
	if !ok {
		respond.Error(w, r, http.StatusBadRequest, "invalid count parameters")
		return
	}
	ctx := r.Context()

	tr := aggregate.NewTracker(h.counter)
	defer tr.Stop()

	var specs <-chan model.FilterSpec
	if p.scope == nil || p.filtered {
		specs = h.prefs.Subscribe(ctx)
	} else {
		tr.Track(ctx, p.request(h.prefs.Spec()))
	}

	respond.StartStream(w)
	for {
		select {
		case <-ctx.Done():
			return
		case spec, ok := <-specs:
			if !ok {
				specs = nil
				continue
			}
			tr.Track(ctx, p.request(spec))
		case v := <-tr.Updates():
			if err := respond.Event(w, "counts", v); err != nil {
				h.logger.Debug("count stream closed", zap.Error(err))
				return
			}
		}
	}
}
