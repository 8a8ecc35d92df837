package shard

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-faster/city"
	"github.com/spaolacci/murmur3"
)

// HashAlgo names the hash used to turn non-integer sharding factors into
// routing values.
type HashAlgo string

const (
	HashMurmur3 HashAlgo = "murmur3"
	HashCity    HashAlgo = "city"
	HashXX      HashAlgo = "xxhash"
	HashFNV     HashAlgo = "fnv"
)

// ParseHashAlgo maps a configuration string to a HashAlgo. An empty name
// selects murmur3.
func ParseHashAlgo(name string) (HashAlgo, error) {
	switch HashAlgo(strings.ToLower(strings.TrimSpace(name))) {
	case "", HashMurmur3:
		return HashMurmur3, nil
	case HashCity:
		return HashCity, nil
	case HashXX:
		return HashXX, nil
	case HashFNV:
		return HashFNV, nil
	default:
		return "", fmt.Errorf("unknown hash algorithm %q", name)
	}
}

// Sum returns a stable 32 bit hash of data. The result never depends on the
// process, so routing survives restarts.
func (a HashAlgo) Sum(data []byte) uint32 {
	switch a {
	case HashCity:
		return city.Hash32(data)
	case HashXX:
		return uint32(xxhash.Sum64(data))
	case HashFNV:
		h := fnv.New32a()
		_, _ = h.Write(data)
		return h.Sum32()
	default:
		return murmur3.Sum32(data)
	}
}
