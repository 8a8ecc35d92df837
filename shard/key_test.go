package shard

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityPKKey(t *testing.T) {
	assert.Equal(t, PK("id", 7).Key(), PK("id", int64(7)).Key())
	assert.Equal(t, PK("id", "a").Key(), PK("id", []byte("a")).Key())
	assert.True(t, PK("id", uint16(3)).Equal(PK("id", 3)))
	assert.False(t, PK("id", 3).Equal(PK("uid", 3)))

	ab := CompositePK(PKField{Name: "a", Value: "1"}, PKField{Name: "b", Value: "23"})
	abAlt := CompositePK(PKField{Name: "a", Value: "12"}, PKField{Name: "b", Value: "3"})
	assert.NotEqual(t, ab.Key(), abAlt.Key())
	assert.NotEqual(t, ab.ValueString(), abAlt.ValueString())
}

func TestEntityPKValueString(t *testing.T) {
	assert.Equal(t, "42", PK("id", 42).ValueString())
	assert.Equal(t, "a:b", PK("id", "a:b").ValueString(), "single column stays unescaped")

	assert.Equal(t, "1:23", CompositePK(PKField{Name: "a", Value: 1}, PKField{Name: "b", Value: 23}).ValueString())
	assert.Equal(t, "12:3", CompositePK(PKField{Name: "a", Value: 12}, PKField{Name: "b", Value: 3}).ValueString())

	left := CompositePK(PKField{Name: "a", Value: "x:"}, PKField{Name: "b", Value: "y"})
	right := CompositePK(PKField{Name: "a", Value: "x"}, PKField{Name: "b", Value: ":y"})
	assert.Equal(t, `x\::y`, left.ValueString())
	assert.Equal(t, `x:\:y`, right.ValueString())
	assert.NotEqual(t, left.ValueString(), right.ValueString())

	slash := CompositePK(PKField{Name: "a", Value: `x\`}, PKField{Name: "b", Value: "y"})
	assert.Equal(t, `x\\:y`, slash.ValueString())
}

func TestEntityPKAccessors(t *testing.T) {
	pk := CompositePK(PKField{Name: "tenant", Value: 1}, PKField{Name: "id", Value: "x"})
	assert.Equal(t, []string{"tenant", "id"}, pk.Names())
	assert.Equal(t, []any{1, "x"}, pk.Values())
	assert.Equal(t, 2, pk.Len())
	assert.Equal(t, "1:x", pk.String())

	fields := pk.Fields()
	fields[0].Value = 99
	assert.Equal(t, 1, pk.Values()[0], "Fields must return a copy")
}

func TestHashRouterResolve(t *testing.T) {
	candidates := []Resource{{DBName: "db0"}, {DBName: "db1"}, {DBName: "db2"}, {DBName: "db3"}}

	r := NewHashRouter("")
	res, err := r.Resolve(NewShardingKey("app", 42), candidates)
	require.NoError(t, err)
	assert.Equal(t, "db2", res.DBName)

	_, err = r.Resolve(NewShardingKey("app", 42), nil)
	assert.Error(t, err)
}

func TestHashRouterValue_UnsignedWidthsAgree(t *testing.T) {
	r := NewHashRouter("")
	for _, n := range []uint64{0, 42, math.MaxInt64, math.MaxInt64 + 1, math.MaxUint64} {
		fromUint, err := r.Value(uint(n))
		require.NoError(t, err)
		fromUint64, err := r.Value(n)
		require.NoError(t, err)
		assert.Equal(t, fromUint64, fromUint, "factor %d", n)
		assert.GreaterOrEqual(t, fromUint64, int64(0), "factor %d", n)
	}

	small, err := r.Value(uint64(42))
	require.NoError(t, err)
	signed, err := r.Value(42)
	require.NoError(t, err)
	assert.Equal(t, signed, small)

	top, err := r.Value(uint64(math.MaxUint64))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), top)
}

func TestHashAlgosAreStable(t *testing.T) {
	for _, algo := range []HashAlgo{HashMurmur3, HashCity, HashXX, HashFNV} {
		r := NewHashRouter(algo)
		first, err := r.Value("user-123")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, first, int64(0))
		for i := 0; i < 10; i++ {
			v, err := r.Value("user-123")
			require.NoError(t, err)
			assert.Equal(t, first, v, string(algo))
		}
	}
}

func TestParseHashAlgo(t *testing.T) {
	algo, err := ParseHashAlgo(" City ")
	require.NoError(t, err)
	assert.Equal(t, HashCity, algo)

	algo, err = ParseHashAlgo("")
	require.NoError(t, err)
	assert.Equal(t, HashMurmur3, algo)

	_, err = ParseHashAlgo("md5")
	assert.Error(t, err)
}

func TestResourceCoordinate(t *testing.T) {
	res := Resource{Cluster: "app", DBName: "db1", Table: "user", TableIndex: 3, RegionStart: 0, RegionEnd: 999}
	assert.Equal(t, "appdb1.0-999.user3", res.Coordinate())
	assert.Equal(t, "user3", res.PhysicalTable())
}
