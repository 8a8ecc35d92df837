package shard

import (
	"fmt"
	"strconv"
	"strings"
)

// ShardingKey pairs a logical cluster name with the value used to pick a shard.
// It is immutable once constructed.
type ShardingKey struct {
	cluster string
	factor  any
}

// NewShardingKey returns a key routing factor inside cluster.
func NewShardingKey(cluster string, factor any) ShardingKey {
	return ShardingKey{cluster: cluster, factor: factor}
}

// Cluster returns the logical cluster name.
func (k ShardingKey) Cluster() string { return k.cluster }

// Factor returns the routing value.
func (k ShardingKey) Factor() any { return k.factor }

// IsZero reports whether the key carries no routing information.
func (k ShardingKey) IsZero() bool { return k.cluster == "" && k.factor == nil }

func (k ShardingKey) String() string {
	return fmt.Sprintf("%s:%v", k.cluster, k.factor)
}

// PKField is a single column of a primary key.
type PKField struct {
	Name  string
	Value any
}

// EntityPK is an ordered list of primary key columns. A single column key is
// the common case; composite keys keep their declaration order.
type EntityPK struct {
	fields []PKField
}

// PK builds a single column primary key.
func PK(name string, value any) EntityPK {
	return EntityPK{fields: []PKField{{Name: name, Value: value}}}
}

// CompositePK builds a primary key from ordered fields.
func CompositePK(fields ...PKField) EntityPK {
	return EntityPK{fields: append([]PKField(nil), fields...)}
}

// Fields returns a copy of the key columns.
func (p EntityPK) Fields() []PKField {
	return append([]PKField(nil), p.fields...)
}

// Names returns the column names in order.
func (p EntityPK) Names() []string {
	names := make([]string, len(p.fields))
	for i, f := range p.fields {
		names[i] = f.Name
	}
	return names
}

// Values returns the column values in order.
func (p EntityPK) Values() []any {
	values := make([]any, len(p.fields))
	for i, f := range p.fields {
		values[i] = f.Value
	}
	return values
}

// Len returns the number of key columns.
func (p EntityPK) Len() int { return len(p.fields) }

// Equal compares two keys by column names and normalized values.
func (p EntityPK) Equal(other EntityPK) bool {
	return p.Key() == other.Key()
}

// Key returns a canonical string usable as a map key. Values are length
// prefixed so that composite keys never collide.
func (p EntityPK) Key() string {
	var b strings.Builder
	for i, f := range p.fields {
		if i > 0 {
			b.WriteByte('|')
		}
		v := FormatValue(f.Value)
		b.WriteString(f.Name)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(len(v)))
		b.WriteByte(':')
		b.WriteString(v)
	}
	return b.String()
}

// ValueString renders the column values as the segment written into entity
// cache keys. A single column is its value string; composite values are
// joined with ':' and any ':' or '\' inside a value is escaped with '\'.
func (p EntityPK) ValueString() string {
	if len(p.fields) == 1 {
		return FormatValue(p.fields[0].Value)
	}
	var b strings.Builder
	for i, f := range p.fields {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(valueEscaper.Replace(FormatValue(f.Value)))
	}
	return b.String()
}

var valueEscaper = strings.NewReplacer(`\`, `\\`, ":", `\:`)

func (p EntityPK) String() string {
	return p.ValueString()
}

// FormatValue renders a key value the same way regardless of its integer width
// or whether the driver handed back bytes instead of a string.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int:
		return strconv.FormatInt(int64(t), 10)
	case int8:
		return strconv.FormatInt(int64(t), 10)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint8:
		return strconv.FormatUint(uint64(t), 10)
	case uint16:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
