// Package listing debounces search and pagination input for paginated lists
// and drops answers that arrive after a newer request was issued. Superseded
// requests run to completion; only their answers are discarded.
package listing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/ace-billing/internal/observability/metrics"
	"github.com/wolfman30/ace-billing/pkg/logging"
)

// DefaultDebounce is the quiet period before a search or page change fires.
const DefaultDebounce = 500 * time.Millisecond

// Query is the list position. Page is 1-indexed.
type Query struct {
	Page   int    `json:"page"`
	Search string `json:"search"`
}

// FromUIPage converts the pagination widget's 0-indexed selection.
func FromUIPage(zeroIndexed int) int {
	if zeroIndexed < 0 {
		return 1
	}
	return zeroIndexed + 1
}

// FetchFunc loads one page for q.
type FetchFunc[T any] func(ctx context.Context, q Query) (T, error)

// ResultFunc receives the answer of the latest request.
type ResultFunc[T any] func(q Query, result T, err error)

// Options configures a Controller.
type Options struct {
	// Name labels stale-result metrics and logs.
	Name    string
	Delay   time.Duration
	Metrics *metrics.APIMetrics
	Logger  *logging.Logger
}

// Controller holds the list query and fires debounced fetches.
type Controller[T any] struct {
	name    string
	delay   time.Duration
	fetch   FetchFunc[T]
	apply   ResultFunc[T]
	metrics *metrics.APIMetrics
	logger  *logging.Logger

	mu     sync.Mutex
	base   context.Context
	stop   context.CancelFunc
	query  Query
	timer  *time.Timer
	gen    uint64
	closed bool
}

// New creates a controller. Fetches run on ctx, which bounds the
// controller's lifetime together with Close.
func New[T any](ctx context.Context, fetch FetchFunc[T], apply ResultFunc[T], opts Options) *Controller[T] {
	delay := opts.Delay
	if delay <= 0 {
		delay = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	name := opts.Name
	if name == "" {
		name = "list"
	}
	base, stop := context.WithCancel(ctx)
	return &Controller[T]{
		name:    name,
		delay:   delay,
		fetch:   fetch,
		apply:   apply,
		metrics: opts.Metrics,
		logger:  logger.Component("listing").With("list", name),
		base:    base,
		stop:    stop,
		query:   Query{Page: 1},
	}
}

// Query returns the current list position.
func (c *Controller[T]) Query() Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// SetSearch changes the search term. The page stays where it was.
func (c *Controller[T]) SetSearch(term string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query.Search = strings.TrimSpace(term)
	c.armLocked()
}

// SetPage moves to a 1-indexed page.
func (c *Controller[T]) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query.Page = page
	c.armLocked()
}

// Flush fires the pending request now instead of waiting out the delay.
func (c *Controller[T]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.fireLocked()
}

// Close stops the pending timer and cancels any request still in flight.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.stop()
}

func (c *Controller[T]) armLocked() {
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		c.timer = nil
		c.fireLocked()
	})
}

func (c *Controller[T]) fireLocked() {
	c.gen++
	gen := c.gen
	q := c.query
	ctx := c.base

	go func() {
		result, err := c.fetch(ctx, q)

		c.mu.Lock()
		stale := gen != c.gen || c.closed
		c.mu.Unlock()

		if stale {
			c.metrics.ObserveStaleResult(c.name)
			c.logger.Debug("dropping stale list result", "page", q.Page, "search", q.Search)
			return
		}
		if c.apply != nil {
			c.apply(q, result, err)
		}
	}()
}
