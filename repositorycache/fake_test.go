package repositorycache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-repository-shardcache/cache"
	"github.com/goliatone/go-repository-shardcache/pkg/testsupport"
	"github.com/goliatone/go-repository-shardcache/shard"
)

type account struct {
	ID   int64  `msgpack:"id"`
	Name string `msgpack:"name"`
	Age  int    `msgpack:"age"`
}

func accountPK(id int64) shard.EntityPK { return shard.PK("id", id) }

var accountModel = Model[account]{
	Cluster: "app",
	PK:      func(a account) shard.EntityPK { return accountPK(a.ID) },
	NeedsID: func(a account) bool { return a.ID == 0 },
	SetID:   func(a *account, id int64) { a.ID = id },
}

// testTopology has four masters, each mirrored by one slave sharing its
// database name but using its own handle.
func testTopology(t *testing.T) *shard.Topology {
	t.Helper()
	masters := make([]shard.Node, 4)
	slaves := make([]shard.Node, 4)
	for i := range masters {
		masters[i] = shard.Node{Name: fmt.Sprintf("db%d", i)}
		slaves[i] = shard.Node{Name: fmt.Sprintf("db%d", i), Handle: fmt.Sprintf("db%d_r", i)}
	}
	topo, err := shard.NewTopology(shard.Config{
		Clusters: []shard.ClusterConfig{{
			Name: "app",
			Regions: []shard.Region{{
				Start:   0,
				End:     1 << 40,
				Masters: masters,
				Slaves:  [][]shard.Node{slaves},
			}},
			Tables: map[string]int{"account": 1},
			Global: &shard.GlobalConfig{
				Master: shard.Node{Name: "global"},
				Tables: []string{"country"},
			},
		}},
	}, nil)
	if err != nil {
		t.Fatalf("failed to build topology: %v", err)
	}
	return topo
}

// fakeExecutor keeps rows per handle and physical table and records every
// statement as "op:handle.table".
type fakeExecutor struct {
	mu     sync.Mutex
	tables map[string]map[int64]account
	calls     []string
	requested [][]string
	fail      map[string]error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{tables: map[string]map[int64]account{}, fail: map[string]error{}}
}

func tableName(res shard.Resource) string {
	return res.Handle + "." + res.PhysicalTable()
}

func (f *fakeExecutor) seed(handle, table string, rows ...account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := handle + "." + table
	if f.tables[name] == nil {
		f.tables[name] = map[int64]account{}
	}
	for _, r := range rows {
		f.tables[name][r.ID] = r
	}
}

func (f *fakeExecutor) recordCall(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeExecutor) getCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeExecutor) clearCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.requested = nil
}

func (f *fakeExecutor) getRequested() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.requested...)
}

func (f *fakeExecutor) countCalls(prefix string) int {
	n := 0
	for _, c := range f.getCalls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeExecutor) Acquire(_ context.Context, res shard.Resource) (Session[account], error) {
	if err := f.fail["acquire"]; err != nil {
		return nil, err
	}
	return &fakeSession{f: f, table: tableName(res)}, nil
}

type fakeSession struct {
	f     *fakeExecutor
	table string
}

func (s *fakeSession) begin(op string) error {
	s.f.recordCall(op + ":" + s.table)
	return s.f.fail[op]
}

// rows returns the table sorted by id, like a primary key scan.
func (s *fakeSession) rows() []account {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	out := make([]account, 0, len(s.f.tables[s.table]))
	for _, r := range s.f.tables[s.table] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeSession) SelectByPks(_ context.Context, pks []shard.EntityPK) ([]account, error) {
	if err := s.begin("select_by_pks"); err != nil {
		return nil, err
	}
	want := map[string]bool{}
	var asked []string
	for _, pk := range pks {
		want[pk.Key()] = true
		asked = append(asked, pk.ValueString())
	}
	s.f.mu.Lock()
	s.f.requested = append(s.f.requested, asked)
	s.f.mu.Unlock()
	var out []account
	for _, r := range s.rows() {
		if want[accountPK(r.ID).Key()] {
			out = append(out, r)
		}
	}
	// Databases return IN lookups in their own order.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *fakeSession) SelectPksByQuery(ctx context.Context, q *Query) ([]shard.EntityPK, error) {
	if err := s.begin("select_pks_by_query"); err != nil {
		return nil, err
	}
	rows, err := s.query(q)
	if err != nil {
		return nil, err
	}
	out := make([]shard.EntityPK, len(rows))
	for i, r := range rows {
		out[i] = accountPK(r.ID)
	}
	return out, nil
}

func (s *fakeSession) SelectByQuery(_ context.Context, q *Query) ([]account, error) {
	if err := s.begin("select_by_query"); err != nil {
		return nil, err
	}
	return s.query(q)
}

func (s *fakeSession) Count(context.Context) (int64, error) {
	if err := s.begin("count"); err != nil {
		return 0, err
	}
	return int64(len(s.rows())), nil
}

func (s *fakeSession) CountByQuery(_ context.Context, q *Query) (int64, error) {
	if err := s.begin("count_by_query"); err != nil {
		return 0, err
	}
	rows, err := s.query(q)
	return int64(len(rows)), err
}

func (s *fakeSession) Insert(_ context.Context, rows []account) error {
	if err := s.begin("insert"); err != nil {
		return err
	}
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.tables[s.table] == nil {
		s.f.tables[s.table] = map[int64]account{}
	}
	for _, r := range rows {
		s.f.tables[s.table][r.ID] = r
	}
	return nil
}

func (s *fakeSession) Update(_ context.Context, rows []account) error {
	if err := s.begin("update"); err != nil {
		return err
	}
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	for _, r := range rows {
		if _, ok := s.f.tables[s.table][r.ID]; ok {
			s.f.tables[s.table][r.ID] = r
		}
	}
	return nil
}

func (s *fakeSession) Delete(_ context.Context, pks []shard.EntityPK) (int64, error) {
	if err := s.begin("delete"); err != nil {
		return 0, err
	}
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	var n int64
	for _, pk := range pks {
		id, _ := pk.Values()[0].(int64)
		if _, ok := s.f.tables[s.table][id]; ok {
			delete(s.f.tables[s.table], id)
			n++
		}
	}
	return n, nil
}

func (s *fakeSession) Close() error { return nil }

func (s *fakeSession) query(q *Query) ([]account, error) {
	var out []account
	for _, r := range s.rows() {
		vals, err := FieldValues(r)
		if err != nil {
			return nil, err
		}
		if matches(vals, q.Conditions()) {
			out = append(out, r)
		}
	}
	if orders := q.Orders(); len(orders) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			vi, _ := FieldValues(out[i])
			vj, _ := FieldValues(out[j])
			for _, o := range orders {
				c := compareValues(vi[o.Field], vj[o.Field])
				if c != 0 {
					return (c < 0) != o.Desc
				}
			}
			return false
		})
	}
	if start, limit, ok := q.Page(); ok {
		out = page(out, start, limit)
	}
	return out, nil
}

func matches(vals map[string]any, conds []Condition) bool {
	result := true
	for i, c := range conds {
		ok := matchOne(vals[c.Field], c)
		switch {
		case i == 0:
			result = ok
		case c.Or:
			result = result || ok
		default:
			result = result && ok
		}
	}
	return result
}

func matchOne(v any, c Condition) bool {
	switch c.Op {
	case OpIsNull:
		return v == nil
	case OpIsNotNull:
		return v != nil
	case OpIn:
		for _, x := range c.Value.([]any) {
			if compareValues(v, x) == 0 {
				return true
			}
		}
		return false
	case OpLike:
		return strings.Contains(fmt.Sprint(v), strings.Trim(fmt.Sprint(c.Value), "%"))
	}
	d := compareValues(v, c.Value)
	switch c.Op {
	case OpEq:
		return d == 0
	case OpNe:
		return d != 0
	case OpGt:
		return d > 0
	case OpGte:
		return d >= 0
	case OpLt:
		return d < 0
	case OpLte:
		return d <= 0
	}
	return false
}

// fakeTx records enlisted resources and runs commit hooks on Commit.
type fakeTx struct {
	mu         sync.Mutex
	enlisted   []string
	hooks      []func(context.Context)
	rolledBack int
}

func (tx *fakeTx) Enlist(_ context.Context, res shard.Resource) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.enlisted = append(tx.enlisted, tableName(res))
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.rolledBack++
	tx.hooks = nil
	return nil
}

func (tx *fakeTx) OnCommit(fn func(context.Context)) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.hooks = append(tx.hooks, fn)
}

func (tx *fakeTx) Commit(ctx context.Context) {
	tx.mu.Lock()
	hooks := tx.hooks
	tx.hooks = nil
	tx.mu.Unlock()
	for _, fn := range hooks {
		fn(ctx)
	}
}

type sequenceIDs struct {
	next int64
}

func (g *sequenceIDs) NextIDs(_ context.Context, _, _ string, n int) ([]int64, error) {
	out := make([]int64, n)
	for i := range out {
		g.next++
		out[i] = g.next
	}
	return out, nil
}

var errDatabaseDown = errors.New("database down")

type harness struct {
	repo    *Repository[account]
	db      *fakeExecutor
	primary *testsupport.MemoryStore
	second  *testsupport.MemoryStore
	topo    *shard.Topology
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		db:      newFakeExecutor(),
		primary: testsupport.NewMemoryStore(),
		second:  testsupport.NewMemoryStore(),
		topo:    testTopology(t),
	}
	m, err := cache.NewManager(cache.DefaultConfig(),
		cache.WithPrimaryStore(h.primary),
		cache.WithSecondStore(h.second),
		cache.WithSecondOptions(cache.WithVersionSeed(func() int64 { return 100 })),
	)
	if err != nil {
		t.Fatalf("failed to create cache manager: %v", err)
	}
	h.repo, err = New(accountModel, h.topo, h.db, m, opts...)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	return h
}

func (h *harness) master(t *testing.T, key shard.ShardingKey) shard.Resource {
	t.Helper()
	res, err := h.topo.Select("account", key, shard.Master())
	if err != nil {
		t.Fatalf("failed to resolve %v: %v", key, err)
	}
	return res
}

func ids(rows []account) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
