package tablestore

import (
	"context"
	"sync"
)

// Cached keeps the most recent rows of each table in memory. Every Save
// goes through to the underlying backend before the cache entry is
// replaced, so reads made through this instance always see the latest write
// made through it. Writes by other processes are not observed; use Cached
// only when this process owns the documents.
type Cached struct {
	next Backend

	mu   sync.Mutex
	rows map[string][]Row
}

// NewCached wraps next with a per-table cache.
func NewCached(next Backend) *Cached {
	return &Cached{next: next, rows: make(map[string][]Row)}
}

func (c *Cached) Initialize(ctx context.Context, t Table) error {
	return c.next.Initialize(ctx, t)
}

func (c *Cached) Load(ctx context.Context, t Table) ([]Row, error) {
	c.mu.Lock()
	rows, ok := c.rows[t.Name]
	c.mu.Unlock()
	if ok {
		return cloneRows(rows), nil
	}

	rows, err := c.next.Load(ctx, t)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.rows[t.Name] = cloneRows(rows)
	c.mu.Unlock()
	return rows, nil
}

func (c *Cached) Save(ctx context.Context, t Table, rows []Row) error {
	if err := c.next.Save(ctx, t, rows); err != nil {
		c.Invalidate(t)
		return err
	}
	c.mu.Lock()
	c.rows[t.Name] = cloneRows(rows)
	c.mu.Unlock()
	return nil
}

// Invalidate drops the cached rows of t; the next Load reads through.
func (c *Cached) Invalidate(t Table) {
	c.mu.Lock()
	delete(c.rows, t.Name)
	c.mu.Unlock()
}
