/*
Page is the unit of physical location in ppzs.
The visibility engine never reads page contents. It only carries page ids and
slot indexes around as the physical half of an undo pointer or a tuple id, so
this package keeps the identifiers and nothing of the on-disk layout.
*/
package page

import "math"

/*
PageSize is the byte size of page. 8KB is the default size in postgres
see block_size parameter in https://www.postgresql.org/docs/current/runtime-config-preset.html
the commit log packs transaction status bits into pages of this size.
*/
const PageSize = 8192

// PageID is the unique identifier given to each page, which is called blockNumber in postgres
// see https://github.com/postgres/postgres/blob/d63d957e330c611f7a8c0ed02e4407f40f975026/src/include/storage/block.h#L17-L31
type PageID uint32

const (
	// first page id in file
	FirstPageID PageID = 0
	// invalid page id
	InvalidPageID PageID = math.MaxUint32
	// max page id
	MaxPageID PageID = math.MaxUint32 - 1
)

// IsValid checks whether the page id is valid
func (id PageID) IsValid() bool {
	return id != InvalidPageID
}

// SlotIndex is the index of the slot within page
// this is not byte offset. the first slot's index is 0 and the next one's index is 1....
type SlotIndex uint16

// see: https://github.com/postgres/postgres/blob/27b77ecf9f4d5be211900eda54d8155ada50d696/src/include/storage/off.h#L26-L28
const (
	// first slot index
	FirstSlotIndex SlotIndex = 0
	// max slot index
	MaxSlotIndex SlotIndex = math.MaxUint16 - 1
	// invalid slot index
	InvalidSlotIndex SlotIndex = math.MaxUint16
)
