package tuple

import "fmt"

// LockMode is the strength of tuple lock
// the order is KeyShare < Share < NoKeyExclusive < Exclusive, but conflicts are decided
// by Compatible, not by the order alone.
// see https://github.com/postgres/postgres/blob/27b77ecf9f4d5be211900eda54d8155ada50d696/src/include/nodes/lockoptions.h#L49-L59
type LockMode uint8

const (
	// SELECT FOR KEY SHARE
	LockModeKeyShare LockMode = iota
	// SELECT FOR SHARE
	LockModeShare
	// SELECT FOR NO KEY UPDATE, and UPDATEs that don't modify key columns
	LockModeNoKeyExclusive
	// SELECT FOR UPDATE, UPDATEs that modify key columns, and DELETE
	LockModeExclusive
)

// IsValid checks whether the lock mode is known
func (m LockMode) IsValid() bool {
	return m <= LockModeExclusive
}

func (m LockMode) String() string {
	switch m {
	case LockModeKeyShare:
		return "KeyShare"
	case LockModeShare:
		return "Share"
	case LockModeNoKeyExclusive:
		return "NoKeyExclusive"
	case LockModeExclusive:
		return "Exclusive"
	}
	return fmt.Sprintf("LockMode(%d)", uint8(m))
}

// ParseLockMode parses the name returned by String
func ParseLockMode(s string) (LockMode, bool) {
	for m := LockModeKeyShare; m <= LockModeExclusive; m++ {
		if m.String() == s {
			return m, true
		}
	}
	return 0, false
}

// Compatible checks whether the requested lock can be granted while held is held by another transaction.
// this is not symmetric.
// an unknown lock mode is a programming error and panics.
func Compatible(held, requested LockMode) bool {
	if !held.IsValid() {
		panic(fmt.Sprintf("unknown tuple lock mode %d", held))
	}
	switch requested {
	case LockModeKeyShare:
		return held == LockModeKeyShare ||
			held == LockModeShare ||
			held == LockModeNoKeyExclusive
	case LockModeShare:
		return held == LockModeKeyShare ||
			held == LockModeShare
	case LockModeNoKeyExclusive:
		return held == LockModeKeyShare
	case LockModeExclusive:
		return false
	}
	panic(fmt.Sprintf("unknown tuple lock mode %d", requested))
}

// ImpliedLockMode is the lock strength an UPDATE implicitly holds on the old row version
func ImpliedLockMode(keyUpdate bool) LockMode {
	if keyUpdate {
		return LockModeExclusive
	}
	return LockModeNoKeyExclusive
}
