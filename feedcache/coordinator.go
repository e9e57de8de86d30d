// Package feedcache caches feedback lists per status filter and coordinates
// fetching, forced refresh and optimistic vote patches.
//
// Each filter moves Empty → Loading → Ready. A Ready filter can re-enter
// Loading on refresh while keeping its items, so readers never see it flash
// to empty. At most one fetch per filter is in flight at a time.
package feedcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/c360studio/feddy/api"
)

// Fetcher loads the authoritative list for one status.
type Fetcher interface {
	FetchFeedbacks(ctx context.Context, status api.FeedbackStatus) ([]api.FeedbackItem, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, status api.FeedbackStatus) ([]api.FeedbackItem, error)

// FetchFeedbacks calls f.
func (f FetcherFunc) FetchFeedbacks(ctx context.Context, status api.FeedbackStatus) ([]api.FeedbackItem, error) {
	return f(ctx, status)
}

// View is an immutable snapshot of one filter.
type View struct {
	Status      api.FeedbackStatus
	Items       []api.FeedbackItem
	Loading     bool
	Ready       bool
	Invalidated bool
	// Err is the last fetch error as "<type>: <message>", empty after a success.
	Err string
}

// filterState is the mutable state of one filter. Guarded by Coordinator.mu.
type filterState struct {
	items       []api.FeedbackItem
	ready       bool
	loading     bool
	invalidated bool
	// refetch is set by a forced request that arrived while loading.
	refetch bool
	err     string
}

// Coordinator owns the per-filter cache. It is the only writer; readers get
// copies through View.
type Coordinator struct {
	fetcher  Fetcher
	logger   *slog.Logger
	onChange func(View)

	mu       sync.Mutex
	filters  map[api.FeedbackStatus]*filterState
	selected api.FeedbackStatus
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithChangeHook registers fn to receive a snapshot after every state change
// of a filter. fn runs outside the coordinator lock and may be called from
// several goroutines.
func WithChangeHook(fn func(View)) Option {
	return func(c *Coordinator) {
		c.onChange = fn
	}
}

// New creates a Coordinator with the IN_REVIEW filter selected.
func New(fetcher Fetcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		fetcher:  fetcher,
		logger:   slog.Default(),
		filters:  make(map[api.FeedbackStatus]*filterState),
		selected: api.StatusInReview,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getOrCreate returns the state for filter. Caller holds c.mu.
func (c *Coordinator) getOrCreate(filter api.FeedbackStatus) *filterState {
	if st, ok := c.filters[filter]; ok {
		return st
	}
	st := &filterState{}
	c.filters[filter] = st
	return st
}

// Select makes filter the active one for optimistic votes.
func (c *Coordinator) Select(filter api.FeedbackStatus) error {
	if !filter.Valid() {
		return fmt.Errorf("unknown filter %q", filter)
	}
	c.mu.Lock()
	c.selected = filter
	c.mu.Unlock()
	return nil
}

// Selected returns the active filter.
func (c *Coordinator) Selected() api.FeedbackStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Request makes sure filter has data.
//
// Without force it serves the cache when the filter is Ready with a non-empty
// list and has not been invalidated. While a fetch for filter is in flight the
// call does nothing; a forced call in that window marks the filter invalidated
// and the in-flight caller fetches once more after its result is applied. The
// error of the last fetch, if any, is returned after it has been recorded on
// the filter.
func (c *Coordinator) Request(ctx context.Context, filter api.FeedbackStatus, force bool) error {
	if !filter.Valid() {
		return fmt.Errorf("unknown filter %q", filter)
	}

	c.mu.Lock()
	st := c.getOrCreate(filter)
	if st.loading {
		if force {
			st.invalidated = true
			st.refetch = true
		}
		c.mu.Unlock()
		c.logger.Debug("Fetch already in flight", "filter", filter, "force", force)
		return nil
	}
	if !force && !st.invalidated && st.ready && len(st.items) > 0 {
		c.mu.Unlock()
		return nil
	}
	st.loading = true
	st.invalidated = false
	started := c.snapshot(filter, st)
	c.mu.Unlock()

	c.notify(started)

	for {
		c.logger.Debug("Fetching feedback", "filter", filter, "force", force)
		items, err := c.fetcher.FetchFeedbacks(ctx, filter)

		c.mu.Lock()
		if err != nil {
			st.err = errorMessage(err)
		} else {
			st.items = slices.Clone(items)
			if st.items == nil {
				st.items = []api.FeedbackItem{}
			}
			st.ready = true
			st.err = ""
		}
		again := st.refetch
		st.refetch = false
		if again {
			st.invalidated = false
		} else {
			st.loading = false
		}
		finished := c.snapshot(filter, st)
		c.mu.Unlock()

		c.notify(finished)

		if again {
			c.logger.Debug("Refetching after forced request during fetch", "filter", filter)
			continue
		}
		if err != nil {
			c.logger.Warn("Feedback fetch failed", "filter", filter, "error", finished.Err)
			return err
		}
		c.logger.Debug("Feedback fetched", "filter", filter, "count", len(finished.Items))
		return nil
	}
}

// Refresh is a forced Request.
func (c *Coordinator) Refresh(ctx context.Context, filter api.FeedbackStatus) error {
	return c.Request(ctx, filter, true)
}

// ApplyOptimisticVote marks itemID voted and adds one vote in the selected
// filter's cache. It reports whether the item was found there.
func (c *Coordinator) ApplyOptimisticVote(itemID string) bool {
	c.mu.Lock()
	filter := c.selected
	st, ok := c.filters[filter]
	if !ok {
		c.mu.Unlock()
		return false
	}

	idx := slices.IndexFunc(st.items, func(item api.FeedbackItem) bool {
		return item.ID == itemID
	})
	if idx < 0 {
		c.mu.Unlock()
		return false
	}

	st.items[idx].UserVoted = true
	st.items[idx].VoteCount++
	view := c.snapshot(filter, st)
	c.mu.Unlock()

	c.notify(view)
	return true
}

// Invalidate marks filters so their next Request fetches even if cached.
func (c *Coordinator) Invalidate(filters ...api.FeedbackStatus) {
	var views []View

	c.mu.Lock()
	for _, f := range filters {
		if !f.Valid() {
			continue
		}
		st := c.getOrCreate(f)
		st.invalidated = true
		views = append(views, c.snapshot(f, st))
	}
	c.mu.Unlock()

	for _, v := range views {
		c.notify(v)
	}
}

// InvalidateAll invalidates every filter.
func (c *Coordinator) InvalidateAll() {
	c.Invalidate(api.Statuses...)
}

// View returns a snapshot of filter.
func (c *Coordinator) View(filter api.FeedbackStatus) View {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.filters[filter]
	if !ok {
		return View{Status: filter}
	}
	return c.snapshot(filter, st)
}

// Views returns snapshots of all filters in status order.
func (c *Coordinator) Views() []View {
	views := make([]View, 0, len(api.Statuses))
	for _, s := range api.Statuses {
		views = append(views, c.View(s))
	}
	return views
}

// snapshot copies st. Caller holds c.mu.
func (c *Coordinator) snapshot(filter api.FeedbackStatus, st *filterState) View {
	return View{
		Status:      filter,
		Items:       slices.Clone(st.items),
		Loading:     st.loading,
		Ready:       st.ready,
		Invalidated: st.invalidated,
		Err:         st.err,
	}
}

func (c *Coordinator) notify(v View) {
	if c.onChange != nil {
		c.onChange(v)
	}
}

// errorMessage renders err with its taxonomy discriminator.
func errorMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Display()
	}
	return err.Error()
}
