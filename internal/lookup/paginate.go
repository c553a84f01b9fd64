package lookup

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultPageSize = 100
	DefaultMaxPages = 50
)

// Querier runs a single query through the retry policy.
type Querier interface {
	Query(ctx context.Context, channel string, req Request) (*Response, error)
}

// OwnerScoper is implemented by queriers that can end a context when its owner
// is canceled. *Service implements it.
type OwnerScoper interface {
	Scope(ctx context.Context, owner string) (context.Context, context.CancelFunc)
}

// Page is one decoded page of a paginated result. Merge appends the items of
// next to the receiver and returns the combined page.
type Page[P any] interface {
	// PageTotal is the total item count the server reported, if any.
	PageTotal() (int, bool)
	PageLen() int
	Merge(next P) P
}

// PageQuery describes a paginated request.
type PageQuery struct {
	Channel  string
	Owner    string
	Priority Priority
	TTL      time.Duration
	// Key builds the request key for one page.
	Key      func(offset, limit int) string
	PageSize int
	MaxPages int
}

// FetchAll requests pages until the reported total is reached, a page comes back
// empty or without a total, or a page yields no result. The offset advances by the
// page size on every request so a misbehaving server cannot make it loop. ok is
// false when not even the first page produced a result.
//
// A later page with no result ends the walk with the pages gathered so far.
// Canceling the owner or ctx between pages stops the walk with ErrCanceled.
func FetchAll[P Page[P]](ctx context.Context, q Querier, pq PageQuery, decode func([]byte) (P, error)) (P, bool, error) {
	size := pq.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	maxPages := pq.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	if scoper, ok := q.(OwnerScoper); ok {
		var release context.CancelFunc
		ctx, release = scoper.Scope(ctx, pq.Owner)
		defer release()
	}

	var acc P
	have := false
	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return acc, have, fmt.Errorf("%w: %w", ErrCanceled, err)
		}
		offset := page * size
		resp, err := q.Query(ctx, pq.Channel, Request{
			Owner:    pq.Owner,
			Key:      pq.Key(offset, size),
			Priority: pq.Priority,
			TTL:      pq.TTL,
		})
		if err != nil {
			return acc, have, err
		}
		if resp == nil {
			break
		}
		next, err := decode(resp.Body)
		if err != nil {
			break
		}

		if have {
			acc = acc.Merge(next)
		} else {
			acc = next
			have = true
		}

		total, known := next.PageTotal()
		if next.PageLen() == 0 || !known || offset+size >= total {
			break
		}
	}
	return acc, have, nil
}
