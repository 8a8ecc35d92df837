package shard

import (
	"fmt"
	"strconv"
)

// Role tells whether a resource points at a master or a slave node.
type Role uint8

const (
	RoleMaster Role = iota
	RoleSlave
)

func (r Role) String() string {
	if r == RoleSlave {
		return "slave"
	}
	return "master"
}

// Target selects the node pool a read runs against.
type Target struct {
	Role       Role
	SlaveIndex int
}

// Master targets the master nodes.
func Master() Target { return Target{Role: RoleMaster} }

// Slave targets the slave pool with the given index.
func Slave(index int) Target { return Target{Role: RoleSlave, SlaveIndex: index} }

// IsSlave reports whether the target reads from a slave pool.
func (t Target) IsSlave() bool { return t.Role == RoleSlave }

func (t Target) String() string {
	if t.IsSlave() {
		return "slave[" + strconv.Itoa(t.SlaveIndex) + "]"
	}
	return "master"
}

// Resource is the fully resolved coordinate of one physical table: the
// database node holding it, the sharding region and the table index.
type Resource struct {
	Cluster     string
	DBName      string
	Handle      string
	Table       string
	TableIndex  int
	RegionStart int64
	RegionEnd   int64
	Global      bool
	Role        Role
}

// RegionCapacity renders the region bounds as "start-end".
func (r Resource) RegionCapacity() string {
	return strconv.FormatInt(r.RegionStart, 10) + "-" + strconv.FormatInt(r.RegionEnd, 10)
}

// PhysicalTable returns the table name as it exists in the database.
func (r Resource) PhysicalTable() string {
	if r.Global {
		return r.Table
	}
	return r.Table + strconv.Itoa(r.TableIndex)
}

// Coordinate identifies the physical table inside the cluster. It is the
// shared prefix of every cache key derived from this resource.
func (r Resource) Coordinate() string {
	if r.Global {
		return r.Cluster + "." + r.Table
	}
	return r.Cluster + r.DBName + "." + r.RegionCapacity() + "." + r.PhysicalTable()
}

func (r Resource) String() string {
	if r.Global {
		return fmt.Sprintf("%s/%s@%s(%s)", r.Cluster, r.Table, r.Handle, r.Role)
	}
	return fmt.Sprintf("%s/%s/%s/%s@%s(%s)", r.Cluster, r.DBName, r.RegionCapacity(), r.PhysicalTable(), r.Handle, r.Role)
}
