package automation

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result is one settled branch of a fan-out.
type Result struct {
	Retailer string
	Response Response
	Err      error
}

// FanOut runs fn against every caller concurrently and waits for all of them.
// A failing branch never cancels its siblings; results keep callers' order.
func FanOut(ctx context.Context, callers []Caller, fn func(ctx context.Context, c Caller) (Response, error)) []Result {
	results := make([]Result, len(callers))
	var g errgroup.Group
	for i, c := range callers {
		i, c := i, c
		g.Go(func() error {
			resp, err := fn(ctx, c)
			results[i] = Result{Retailer: c.Retailer(), Response: resp, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// MergeProducts concatenates the products of successful branches, tags each
// with its branch's retailer and re-indexes the combined list.
func MergeProducts(results []Result) []Product {
	var merged []Product
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		for _, p := range r.Response.Products(r.Retailer) {
			p.Index = len(merged)
			merged = append(merged, p)
		}
	}
	return merged
}
