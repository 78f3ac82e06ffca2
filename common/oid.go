package common

import "fmt"

// oid is object id
// in ppzs, this is expected to be used as table identifier
// see https://github.com/postgres/postgres/blob/2f47715cc8649f854b1df28dfc338af9801db217/src/include/postgres_ext.h#L28-L31
type oid uint32

// Relation is table oid
// the oid is uniquely allocated to each table when created,
// and each table has its own undo log keyed by the oid.
type Relation oid

const (
	InvalidRelation Relation = 0
	// the oids below this are reserved for system catalogs in postgres
	FirstRelation Relation = 16384
)

// IsValid checks whether the relation is valid
func (rel Relation) IsValid() bool {
	return rel != InvalidRelation
}

func (rel Relation) String() string {
	return fmt.Sprintf("rel %d", uint32(rel))
}
