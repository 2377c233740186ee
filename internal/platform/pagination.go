package platform

import (
	"context"
	"net/url"
)

// Pager walks all pages of a list operation lazily. It is restartable: the
// cursor only advances after a page is fetched successfully, so a failed
// Next can simply be called again and re-issues from the last good cursor,
// not from the beginning.
type Pager struct {
	exchange *Exchange
	req      *Request
	cursor   string
	done     bool
}

// NewPager creates a pager over a list request. The request's query is
// cloned; the pager owns the page_info parameter.
func NewPager(exchange *Exchange, req *Request) *Pager {
	cloned := *req
	q := url.Values{}
	for k, vs := range req.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	cloned.Query = q
	return &Pager{exchange: exchange, req: &cloned}
}

// Next fetches the next page. Returns (nil, false, nil) once exhausted.
// On error the cursor is unchanged, so the caller can retry Next.
func (p *Pager) Next(ctx context.Context) (*Response, bool, error) {
	if p.done {
		return nil, false, nil
	}

	if p.cursor != "" {
		p.req.Query.Set("page_info", p.cursor)
	}

	resp, err := p.exchange.Execute(ctx, p.req)
	if err != nil {
		return nil, false, err
	}

	// Only advance after success.
	p.cursor = resp.NextCursor
	if p.cursor == "" {
		p.done = true
	}
	return resp, true, nil
}

// Each invokes fn for every page until exhaustion or error.
func (p *Pager) Each(ctx context.Context, fn func(*Response) error) error {
	for {
		resp, ok, err := p.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(resp); err != nil {
			return err
		}
	}
}
