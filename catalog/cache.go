package catalog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Source runs a remote media search.
type Source interface {
	Search(ctx context.Context, q Query) ([]Record, error)
}

// Previewer produces a small inline placeholder (a data URL) for one image.
type Previewer interface {
	Preview(ctx context.Context, publicID, format string) (string, error)
}

// Recorder observes cache activity. The metrics package provides one.
type Recorder interface {
	CacheHit()
	CacheMiss()
	FetchCompleted(d time.Duration, err error)
	Populated(c *Catalog)
}

// PreviewPolicy selects how blur placeholders are filled in after a fetch.
type PreviewPolicy string

const (
	// PreviewPerEntry computes one placeholder per entry with bounded concurrency.
	PreviewPerEntry PreviewPolicy = "per-entry"
	// PreviewShared computes a single placeholder and applies it to every
	// entry. Only suitable as a generic loading tint.
	PreviewShared PreviewPolicy = "shared"
	// PreviewNone leaves placeholders empty.
	PreviewNone PreviewPolicy = "none"
)

// ParsePreviewPolicy validates a policy name; empty means PreviewPerEntry.
func ParsePreviewPolicy(s string) (PreviewPolicy, error) {
	switch p := PreviewPolicy(s); p {
	case "":
		return PreviewPerEntry, nil
	case PreviewPerEntry, PreviewShared, PreviewNone:
		return p, nil
	default:
		return "", fmt.Errorf("unknown preview policy %q", s)
	}
}

// Options configures a Cache.
type Options struct {
	Query        Query
	Policy       PreviewPolicy
	Workers      int           // concurrent preview requests (default 8)
	TTL          time.Duration // 0 keeps a populated catalog until Invalidate
	FetchTimeout time.Duration // bounds the remote search (default 30s)

	// PreviewTimeout bounds the placeholder pass that follows a search
	// (default 2m). A catalog whose previews ran out of time is kept only
	// for DegradedTTL (default 1m) before the next read fetches again.
	PreviewTimeout time.Duration
	DegradedTTL    time.Duration

	Logger   *zap.Logger
	Recorder Recorder
}

func (o *Options) setDefaults() {
	if o.Query.Expression == "" {
		o.Query = NewQuery("", DefaultMaxResults)
	}
	if o.Policy == "" {
		o.Policy = PreviewPerEntry
	}
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 30 * time.Second
	}
	if o.PreviewTimeout <= 0 {
		o.PreviewTimeout = 2 * time.Minute
	}
	if o.DegradedTTL <= 0 {
		o.DegradedTTL = time.Minute
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
}

const flightKey = "catalog"

// Cache serves the catalog to any number of concurrent readers. The first
// reader after a cold start, an Invalidate or a TTL expiry triggers one
// remote fetch; concurrent readers share that fetch instead of starting
// their own.
type Cache struct {
	src  Source
	prev Previewer
	opts Options
	log  *zap.Logger
	now  func() time.Time

	mu      sync.RWMutex
	cur     *Catalog
	expires time.Time // set for catalogs with incomplete previews
	gen     uint64

	group singleflight.Group
}

// New creates a Cache over src. prev may be nil, which disables placeholders.
func New(src Source, prev Previewer, opts Options) *Cache {
	opts.setDefaults()
	if prev == nil {
		opts.Policy = PreviewNone
	}
	return &Cache{
		src:  src,
		prev: prev,
		opts: opts,
		log:  opts.Logger.Named("catalog"),
		now:  time.Now,
	}
}

func (c *Cache) valid() bool {
	if c.cur == nil {
		return false
	}
	if !c.expires.IsZero() && !c.now().Before(c.expires) {
		return false
	}
	return c.opts.TTL <= 0 || c.now().Sub(c.cur.FetchedAt) < c.opts.TTL
}

func (c *Cache) cached() (*Catalog, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.valid() {
		return c.cur, c.gen
	}
	return nil, c.gen
}

// Invalidate drops the cached catalog so the next read fetches again. A
// fetch already in flight still answers its waiters but is not stored.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.cur = nil
	c.gen++
	c.mu.Unlock()
	c.group.Forget(flightKey)
	c.log.Info("catalog invalidated")
}

// Peek returns the cached catalog without fetching, or nil when cold.
func (c *Cache) Peek() *Catalog {
	cat, _ := c.cached()
	return cat
}

// Catalog returns the cached catalog, populating it first when cold. A warm
// cache returns the same *Catalog on every call and performs no I/O.
func (c *Cache) Catalog(ctx context.Context) (*Catalog, error) {
	if cat, _ := c.cached(); cat != nil {
		c.opts.Recorder.CacheHit()
		return cat, nil
	}
	c.opts.Recorder.CacheMiss()

	ch := c.group.DoChan(flightKey, func() (any, error) {
		cat, gen := c.cached()
		if cat != nil {
			return cat, nil
		}
		// The fetch outlives any single caller; late arrivals may still be
		// waiting on it after the first caller has gone away.
		return c.populate(context.WithoutCancel(ctx), gen)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Catalog), nil
	}
}

// Entry returns the entry with the given ID, or ErrNotFound.
func (c *Cache) Entry(ctx context.Context, id int) (Entry, error) {
	cat, err := c.Catalog(ctx)
	if err != nil {
		return Entry{}, err
	}
	e, ok := cat.Find(id)
	if !ok {
		return Entry{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return e, nil
}

func (c *Cache) populate(ctx context.Context, gen uint64) (*Catalog, error) {
	start := c.now()
	sctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	records, err := c.src.Search(sctx, c.opts.Query)
	cancel()
	c.opts.Recorder.FetchCompleted(c.now().Sub(start), err)
	if err != nil {
		fe := newFetchError(c.opts.Query, err)
		c.log.Error("catalog fetch failed",
			zap.String("expression", c.opts.Query.Expression),
			zap.Int("attempts", fe.Attempts),
			zap.Error(err))
		return nil, fe
	}

	entries, skipped := Reduce(records)
	if skipped > 0 {
		c.log.Warn("skipped malformed records",
			zap.Int("skipped", skipped),
			zap.Int("received", len(records)))
	}

	pctx, cancel := context.WithTimeout(ctx, c.opts.PreviewTimeout)
	failures := c.fillPreviews(pctx, entries)
	timedOut := pctx.Err() != nil
	cancel()
	cat := newCatalog(entries, skipped, failures, c.now())
	if timedOut {
		c.log.Warn("previews ran out of time",
			zap.Duration("preview_timeout", c.opts.PreviewTimeout),
			zap.Duration("retry_in", c.opts.DegradedTTL))
	}

	c.log.Info("catalog populated",
		zap.Int("entries", cat.Len()),
		zap.Int("skipped", skipped),
		zap.Int("preview_failures", failures),
		zap.Duration("took", c.now().Sub(start)))
	c.opts.Recorder.Populated(cat)

	// An empty result is handed back but not kept, so the next read asks again.
	if cat.Len() == 0 {
		return cat, nil
	}
	c.mu.Lock()
	if c.gen == gen {
		c.cur = cat
		c.expires = time.Time{}
		if timedOut {
			c.expires = cat.FetchedAt.Add(c.opts.DegradedTTL)
		}
	}
	c.mu.Unlock()
	return cat, nil
}

// fillPreviews back-fills BlurPlaceholder according to the policy and returns
// the number of placeholders that could not be produced. A failed preview
// never fails the catalog.
func (c *Cache) fillPreviews(ctx context.Context, entries []Entry) int {
	if len(entries) == 0 {
		return 0
	}
	switch c.opts.Policy {
	case PreviewNone:
		return 0
	case PreviewShared:
		url, err := c.prev.Preview(ctx, entries[0].PublicID, entries[0].Format)
		if err != nil {
			c.log.Warn("shared preview failed", zap.String("public_id", entries[0].PublicID), zap.Error(err))
			return len(entries)
		}
		for i := range entries {
			entries[i].BlurPlaceholder = url
		}
		return 0
	}

	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(c.opts.Workers)
	for i := range entries {
		g.Go(func() error {
			if ctx.Err() != nil {
				failed.Add(1)
				return nil
			}
			url, err := c.prev.Preview(ctx, entries[i].PublicID, entries[i].Format)
			if err != nil {
				failed.Add(1)
				c.log.Debug("preview failed", zap.String("public_id", entries[i].PublicID), zap.Error(err))
				return nil
			}
			entries[i].BlurPlaceholder = url
			return nil
		})
	}
	_ = g.Wait()

	n := int(failed.Load())
	if n > 0 {
		c.log.Warn("previews failed", zap.Int("failed", n), zap.Int("total", len(entries)))
	}
	return n
}

type nopRecorder struct{}

func (nopRecorder) CacheHit()                           {}
func (nopRecorder) CacheMiss()                          {}
func (nopRecorder) FetchCompleted(time.Duration, error) {}
func (nopRecorder) Populated(*Catalog)                  {}
