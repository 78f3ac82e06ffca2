/*
clog bitmap

The state of each transaction is represented with 2 bits in clog.
So the page looks just like the array of 2bits, the first transaction of a byte in the highest bits.
The location of the transaction (page, byte offset within page and bit shift within a byte) can
be calculated from transaction id.
*/
package clog

import (
	"github.com/HayatoShiba/ppzs/storage/page"
	"github.com/HayatoShiba/ppzs/transaction/txid"
)

// state is the state of each transaction
// this is represented with 2bits
// see https://github.com/postgres/postgres/blob/27b77ecf9f4d5be211900eda54d8155ada50d696/src/include/access/clog.h#L25-L30
type state byte

const (
	// 0 indicates the transaction is in progress. so when initialization of page,
	// all transactions in page is treated as in-progress.
	stateInProgress state = 0x00
	stateCommitted  state = 0x01
	stateAborted    state = 0x02
)

const (
	// 2bits per transaction. see state
	clogBits = 2
	// clogNumPerByte is the number of transactions per byte
	clogNumPerByte = 8 / clogBits
	// clogNumPerPage is the number of transactions per page
	clogNumPerPage = page.PageSize * clogNumPerByte
	// stateMask extracts one state from the lowest bits
	stateMask = byte(1<<clogBits - 1)
)

// location is where the state of a transaction is stored
type location struct {
	pageID     page.PageID
	byteOffset int
	// shift moves the state to the lowest bits
	shift int
}

// locate calculates location from transaction id
func locate(txID txid.TxID) location {
	numInPage := int(txID % clogNumPerPage)
	numInByte := int(txID % clogNumPerByte)
	return location{
		pageID:     page.PageID(txID / clogNumPerPage),
		byteOffset: numInPage / clogNumPerByte,
		shift:      8 - clogBits - numInByte*clogBits,
	}
}

// statusPage is one page of clog
type statusPage [page.PageSize]byte

// get returns the state stored at loc
// see https://github.com/postgres/postgres/blob/75f49221c22286104f032827359783aa5f4e6646/src/backend/access/transam/clog.c#L638
func (p *statusPage) get(loc location) state {
	return state(p[loc.byteOffset] >> loc.shift & stateMask)
}

// set stores st at loc. other transactions in the same byte are not changed
func (p *statusPage) set(loc location, st state) {
	b := p[loc.byteOffset] &^ (stateMask << loc.shift)
	p[loc.byteOffset] = b | byte(st)<<loc.shift
}
