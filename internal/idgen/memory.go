// Package idgen hands out primary keys per cluster and table.
package idgen

import (
	"context"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// Memory is a process local generator: every (cluster, table) pair counts
// up from its start value. It suits tests and single process deployments.
type Memory struct {
	next  *xsync.MapOf[string, int64]
	start int64
}

// NewMemory returns a generator whose first id is start+1.
func NewMemory(start int64) *Memory {
	return &Memory{next: xsync.NewMapOf[string, int64](), start: start}
}

// NextIDs reserves n consecutive ids.
func (m *Memory) NextIDs(ctx context.Context, cluster, table string, n int) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, errors.Errorf("idgen: cannot reserve %d ids", n)
	}
	last, _ := m.next.Compute(cluster+"."+table, func(old int64, loaded bool) (int64, bool) {
		if !loaded {
			old = m.start
		}
		return old + int64(n), false
	})
	out := make([]int64, n)
	for i := range out {
		out[i] = last - int64(n) + int64(i) + 1
	}
	return out, nil
}

// Seed moves the counter of (cluster, table) forward so the next id is above
// last. Counters never move backwards.
func (m *Memory) Seed(cluster, table string, last int64) {
	m.next.Compute(cluster+"."+table, func(old int64, loaded bool) (int64, bool) {
		if !loaded {
			old = m.start
		}
		if last > old {
			return last, false
		}
		return old, false
	})
}
