// Package backendtest wraps a backend for tests that assert on remote calls.
package backendtest

import (
	"context"
	"strings"
	"sync"

	"github.com/msa-portal/portal-backend/internal/backend"
)

// Counting forwards to Backend and counts every remote operation. Ops are
// recorded as "query:<collection>", "call:<procedure>", "insert:<collection>",
// "update:<collection>" and "delete:<collection>". The fn fields replace the
// forwarded call when set.
type Counting struct {
	backend.Backend

	mu    sync.Mutex
	calls map[string]int

	QueryFn func(ctx context.Context, collection string, spec backend.QuerySpec) ([]backend.Row, int, error)
	CallFn  func(ctx context.Context, procedure string, args map[string]any) (backend.Payload, error)
}

// NewCounting wraps b.
func NewCounting(b backend.Backend) *Counting {
	return &Counting{Backend: b, calls: map[string]int{}}
}

func (c *Counting) count(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
}

// Calls returns how often op ran.
func (c *Counting) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// Writes counts every insert, update, delete and every procedure call not
// listed in reads.
func (c *Counting) Writes(reads ...string) int {
	skip := map[string]bool{}
	for _, r := range reads {
		skip["call:"+r] = true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for op, count := range c.calls {
		if skip[op] || strings.HasPrefix(op, "query:") {
			continue
		}
		n += count
	}
	return n
}

// Total counts every remote operation.
func (c *Counting) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, count := range c.calls {
		n += count
	}
	return n
}

func (c *Counting) Query(ctx context.Context, collection string, spec backend.QuerySpec) ([]backend.Row, int, error) {
	c.count("query:" + collection)
	if c.QueryFn != nil {
		return c.QueryFn(ctx, collection, spec)
	}
	return c.Backend.Query(ctx, collection, spec)
}

func (c *Counting) Call(ctx context.Context, procedure string, args map[string]any) (backend.Payload, error) {
	c.count("call:" + procedure)
	if c.CallFn != nil {
		return c.CallFn(ctx, procedure, args)
	}
	return c.Backend.Call(ctx, procedure, args)
}

func (c *Counting) Insert(ctx context.Context, collection string, row backend.Row) (backend.Row, error) {
	c.count("insert:" + collection)
	return c.Backend.Insert(ctx, collection, row)
}

func (c *Counting) Update(ctx context.Context, collection, id string, patch backend.Row) (backend.Row, error) {
	c.count("update:" + collection)
	return c.Backend.Update(ctx, collection, id, patch)
}

func (c *Counting) Delete(ctx context.Context, collection, id string) error {
	c.count("delete:" + collection)
	return c.Backend.Delete(ctx, collection, id)
}
