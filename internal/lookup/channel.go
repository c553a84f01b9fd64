package lookup

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"
)

// ChannelConfig holds configuration for creating a Channel.
type ChannelConfig struct {
	Name        string        // Required: e.g. "metadata", "coverart"
	BaseURL     string        // Required: prefix joined with each request key
	MinInterval time.Duration // Optional: minimum spacing between network calls
	Timeout     time.Duration // Optional: per-request deadline for the network call
	DefaultTTL  time.Duration // Optional: defaults to DefaultTTL
	Now         func() time.Time
}

// ChannelStats is a point-in-time snapshot of a channel.
type ChannelStats struct {
	Name         string `json:"name"`
	Queued       int    `json:"queued"`
	InFlight     bool   `json:"in_flight"`
	InFlightKey  string `json:"in_flight_key,omitempty"`
	NetworkCalls int64  `json:"network_calls"`
	CacheHits    int64  `json:"cache_hits"`
	Failures     int64  `json:"failures"`
	Canceled     int64  `json:"canceled"`
}

// Channel is a rate-limited request queue with a single in-flight slot.
// Requests run in priority-then-FIFO order; a cache hit resolves without a network call.
type Channel struct {
	name       string
	baseURL    string
	transport  Transport
	cache      Cache
	defaultTTL time.Duration
	timeout    time.Duration
	limiter    *rate.Limiter
	now        func() time.Time
	logger     hclog.Logger

	mu     sync.Mutex
	queue  []*Pending
	active *Pending
	closed bool
	stats  ChannelStats

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewChannel creates a channel and starts its worker. cache may be nil.
func NewChannel(cfg ChannelConfig, transport Transport, cache Cache, logger hclog.Logger) *Channel {
	if logger == nil {
		logger = hclog.Default()
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	c := &Channel{
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		transport:  transport,
		cache:      cache,
		defaultTTL: ttl,
		timeout:    cfg.Timeout,
		now:        now,
		logger:     logger.Named("channel").With("channel", cfg.Name),
		stats:      ChannelStats{Name: cfg.Name},
		wake:       make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
	if cfg.MinInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}

	c.wg.Add(1)
	go c.run()
	return c
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Enqueue queues req and returns its handle. Canceling ctx aborts the request
// the same way owner cancellation does.
func (c *Channel) Enqueue(ctx context.Context, req Request) *Pending {
	p := newPending(ctx, req, c.baseURL+req.Key, c.now())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		p.resolve(Response{}, ErrClosed)
		return p
	}
	if req.Priority == PriorityHigh {
		c.insertHigh(p)
	} else {
		c.queue = append(c.queue, p)
	}
	c.mu.Unlock()

	c.signal()
	return p
}

// insertHigh places p behind earlier high-priority requests and ahead of all normal ones.
// Caller holds c.mu.
func (c *Channel) insertHigh(p *Pending) {
	idx := 0
	for idx < len(c.queue) && c.queue[idx].req.Priority == PriorityHigh {
		idx++
	}
	c.queue = append(c.queue, nil)
	copy(c.queue[idx+1:], c.queue[idx:])
	c.queue[idx] = p
}

// CancelOwner rejects every queued request of owner with ErrCanceled and aborts the
// in-flight call if owner holds it. Other owners are untouched. Returns the number of
// requests affected.
func (c *Channel) CancelOwner(owner string) int {
	if owner == "" {
		return 0
	}

	c.mu.Lock()
	kept := make([]*Pending, 0, len(c.queue))
	var removed []*Pending
	for _, p := range c.queue {
		if p.req.Owner == owner {
			removed = append(removed, p)
		} else {
			kept = append(kept, p)
		}
	}
	c.queue = kept
	active := c.active
	c.stats.Canceled += int64(len(removed))
	c.mu.Unlock()

	for _, p := range removed {
		p.resolve(Response{}, ErrCanceled)
	}

	affected := len(removed)
	if active != nil && active.req.Owner == owner {
		// The worker sees the canceled context, resolves the request and moves on.
		active.cancel()
		affected++
	}
	if affected > 0 {
		c.logger.Debug("canceled owner requests", "owner", owner, "count", affected)
	}
	return affected
}

// Stats returns a snapshot of queue depth and counters.
func (c *Channel) Stats() ChannelStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Queued = len(c.queue)
	if c.active != nil {
		stats.InFlight = true
		stats.InFlightKey = c.active.req.Key
	}
	return stats
}

// Close rejects queued requests with ErrClosed, aborts the in-flight call and
// stops the worker.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	queued := c.queue
	c.queue = nil
	active := c.active
	close(c.stopCh)
	c.mu.Unlock()

	for _, p := range queued {
		p.resolve(Response{}, ErrClosed)
	}
	if active != nil {
		active.cancel()
	}
	c.wg.Wait()
}

func (c *Channel) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Channel) run() {
	defer c.wg.Done()

	for {
		p, slot, ok := c.next()
		if !ok {
			return
		}
		c.execute(p, slot)

		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
	}
}

// next blocks until a request may start: the queue is non-empty and the limiter
// grants a slot. The dequeue itself is deferred, so high-priority requests arriving
// during the wait still go first. The returned reservation is nil without a limiter.
func (c *Channel) next() (*Pending, *rateSlot, bool) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, nil, false
		}
		if len(c.queue) == 0 {
			c.mu.Unlock()
			select {
			case <-c.wake:
				continue
			case <-c.stopCh:
				return nil, nil, false
			}
		}

		var slot *rateSlot
		if c.limiter != nil {
			now := c.now()
			slot = &rateSlot{res: c.limiter.ReserveN(now, 1), at: now}
			if delay := slot.res.DelayFrom(now); delay > 0 {
				slot.res.CancelAt(now)
				c.mu.Unlock()
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
					continue
				case <-c.stopCh:
					timer.Stop()
					return nil, nil, false
				}
			}
		}

		p := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.active = p
		c.mu.Unlock()
		return p, slot, true
	}
}

// rateSlot is a granted limiter reservation and the time it was taken.
type rateSlot struct {
	res *rate.Reservation
	at  time.Time
}

// release hands an unused slot back; only network calls spend one. Canceling at
// the reservation time restores the token as if it was never taken.
func (c *Channel) release(slot *rateSlot) {
	if slot != nil {
		slot.res.CancelAt(slot.at)
	}
}

func (c *Channel) execute(p *Pending, slot *rateSlot) {
	if p.ctx.Err() != nil {
		c.release(slot)
		c.count(func(s *ChannelStats) { s.Canceled++ })
		p.resolve(Response{}, ErrCanceled)
		return
	}

	ttl := p.req.TTL
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	if c.cache != nil && p.req.Cache != CacheBypass {
		if entry, ok := c.cache.Get(p.url); ok && entry.FreshAt(c.now(), ttl) {
			c.release(slot)
			c.count(func(s *ChannelStats) { s.CacheHits++ })
			p.resolve(Response{
				Status:       StatusOK,
				ResponseCode: 200,
				Body:         entry.Payload,
				FetchedAt:    entry.FetchedAt,
				FromCache:    true,
			}, nil)
			return
		}
	}

	c.count(func(s *ChannelStats) { s.NetworkCalls++ })

	ctx := p.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	body, code, err := c.transport.Fetch(ctx, p.url)
	if p.ctx.Err() != nil {
		c.count(func(s *ChannelStats) { s.Canceled++ })
		p.resolve(Response{}, ErrCanceled)
		return
	}

	fetchedAt := c.now()
	if err != nil || code < 200 || code > 299 {
		c.count(func(s *ChannelStats) { s.Failures++ })
		if err != nil && len(body) == 0 {
			body = []byte(err.Error())
		}
		c.logger.Warn("lookup request failed", "key", p.req.Key, "code", code, "error", err)
		p.resolve(Response{
			Status:       StatusError,
			ResponseCode: code,
			Body:         body,
			FetchedAt:    fetchedAt,
		}, nil)
		return
	}

	if c.cache != nil {
		c.cache.Put(p.url, Entry{Payload: body, FetchedAt: fetchedAt, TTL: ttl})
	}
	c.logger.Trace("lookup request done", "key", p.req.Key, "owner", p.req.Owner,
		"duration", time.Since(start).Round(time.Millisecond))
	p.resolve(Response{
		Status:       StatusOK,
		ResponseCode: code,
		Body:         body,
		FetchedAt:    fetchedAt,
	}, nil)
}

func (c *Channel) count(update func(*ChannelStats)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
}
