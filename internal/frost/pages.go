package frost

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"
)

// Getter is the transport Pages needs: resolve a reference and GET it.
type Getter interface {
	Resolve(ref string) (string, error)
	Get(ctx context.Context, target string) ([]byte, error)
}

// FetchPage retrieves and decodes one collection page.
func FetchPage[T any](ctx context.Context, g Getter, ref string) (Page[T], error) {
	target, err := g.Resolve(ref)
	if err != nil {
		return Page[T]{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	body, err := g.Get(ctx, target)
	if err != nil {
		return Page[T]{}, err
	}
	var page Page[T]
	if err := json.Unmarshal(body, &page); err != nil {
		return Page[T]{}, fmt.Errorf("%w: decode %s: %w", ErrFetchFailed, target, err)
	}
	return page, nil
}

// Pages walks a collection by following @iot.nextLink until the server
// stops sending one. Each range over the returned sequence starts a fresh
// crawl from ref. After an error is yielded the sequence ends.
func Pages[T any](ctx context.Context, g Getter, ref string) iter.Seq2[Page[T], error] {
	return func(yield func(Page[T], error) bool) {
		next := ref
		for {
			page, err := FetchPage[T](ctx, g, next)
			if err != nil {
				yield(Page[T]{}, err)
				return
			}
			if !yield(page, nil) {
				return
			}
			link, ok := page.Next()
			if !ok {
				return
			}
			next = link
		}
	}
}

// Datastreams crawls every datastream with its Thing expanded.
func (c *Client) Datastreams(ctx context.Context) iter.Seq2[Page[Datastream], error] {
	return Pages[Datastream](ctx, c, DatastreamsQuery(c.cfg.PageSize))
}

// Observations crawls one datastream's observations newest first, limited
// to phenomenon times after since unless since is zero.
func (c *Client) Observations(ctx context.Context, dsID int64, since time.Time) iter.Seq2[Page[Observation], error] {
	return Pages[Observation](ctx, c, ObservationsQuery(dsID, c.cfg.PageSize, since))
}
