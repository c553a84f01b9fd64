package lookup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrCanceled is returned for requests removed by owner cancellation or whose
	// caller context ended. Bulk callers should ignore it during teardown.
	ErrCanceled = errors.New("lookup request canceled")

	// ErrClosed is returned for requests enqueued on, or still queued in, a closed channel.
	ErrClosed = errors.New("lookup channel closed")
)

// Priority orders requests within a channel.
type Priority int

const (
	PriorityNormal Priority = iota
	// PriorityHigh requests are queued ahead of every normal request but never
	// preempt the request already in flight.
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

// CachePolicy controls how a request uses the response cache.
type CachePolicy int

const (
	CacheDefault CachePolicy = iota
	// CacheBypass skips the cache read. The fresh response is still written through.
	CacheBypass
)

// Request is one outbound query.
type Request struct {
	// Owner groups requests for bulk cancellation. Empty owners cannot be canceled.
	Owner string
	// Key is the path and query relative to the channel base URL,
	// e.g. "artist/?query=Beatles&fmt=json".
	Key      string
	Priority Priority
	Cache    CachePolicy
	// TTL overrides the channel's default freshness window when positive.
	TTL time.Duration
}

// Status tells a successful fetch apart from a transport failure.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Response is the resolved value of a request. Transport failures resolve to
// StatusError with the HTTP code (0 for network errors) and the raw body.
type Response struct {
	Status       Status    `json:"status"`
	ResponseCode int       `json:"responseCode"`
	Body         []byte    `json:"-"`
	FetchedAt    time.Time `json:"fetchedAt"`
	FromCache    bool      `json:"fromCache"`
}

// OK reports whether the response carries a 2xx payload.
func (r Response) OK() bool {
	return r.Status == StatusOK
}

// Pending is the handle for a queued request. It resolves exactly once.
type Pending struct {
	req        Request
	url        string
	enqueuedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	once sync.Once
	done chan struct{}
	resp Response
	err  error
}

func newPending(parent context.Context, req Request, url string, now time.Time) *Pending {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Pending{
		req:        req,
		url:        url,
		enqueuedAt: now,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Owner returns the owner the request was enqueued for.
func (p *Pending) Owner() string { return p.req.Owner }

// Key returns the request key.
func (p *Pending) Key() string { return p.req.Key }

// Done is closed once the request is resolved.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the request resolves or ctx ends. An ended ctx yields an
// error matching both ErrCanceled and ctx.Err().
func (p *Pending) Wait(ctx context.Context) (Response, error) {
	select {
	case <-p.done:
		return p.resp, p.err
	case <-ctx.Done():
		return Response{}, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	}
}

func (p *Pending) resolve(resp Response, err error) bool {
	resolved := false
	p.once.Do(func() {
		p.resp = resp
		p.err = err
		resolved = true
		close(p.done)
	})
	p.cancel()
	return resolved
}
