package undo

import (
	"encoding/binary"

	"github.com/HayatoShiba/ppzs/storage/page"
	"github.com/HayatoShiba/ppzs/storage/tuple"
	"github.com/HayatoShiba/ppzs/transaction/txid"
	"github.com/pkg/errors"
)

/*
encoded undo record is

- header: 33 byte
  - type: 1 byte
  - ptr: 14 byte (counter 8 byte, page id 4 byte, offset 2 byte)
  - xid: 4 byte
  - prev: 14 byte

- body
  - insert: cid 4 byte, speculative token 4 byte
  - delete: cid 4 byte, changed partition 1 byte
  - update: cid 4 byte, new tid 8 byte, key update 1 byte
  - tuple lock: lock mode 1 byte
*/
const (
	ptrSize    = 14
	headerSize = 1 + ptrSize + 4 + ptrSize
)

var bodySize = map[RecordType]int{
	TypeInsert:    8,
	TypeDelete:    5,
	TypeUpdate:    4 + tuple.TidSize + 1,
	TypeTupleLock: 1,
}

func appendPtr(b []byte, p Ptr) []byte {
	b = binary.LittleEndian.AppendUint64(b, p.Counter)
	b = binary.LittleEndian.AppendUint32(b, uint32(p.PageID))
	return binary.LittleEndian.AppendUint16(b, uint16(p.Offset))
}

func readPtr(b []byte) Ptr {
	return Ptr{
		Counter: binary.LittleEndian.Uint64(b[0:8]),
		PageID:  page.PageID(binary.LittleEndian.Uint32(b[8:12])),
		Offset:  page.SlotIndex(binary.LittleEndian.Uint16(b[12:14])),
	}
}

func appendBool(b []byte, v bool) []byte {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}

func appendHeader(b []byte, typ RecordType, h Header) []byte {
	b = append(b, byte(typ))
	b = appendPtr(b, h.Ptr)
	b = binary.LittleEndian.AppendUint32(b, uint32(h.Xid))
	return appendPtr(b, h.Prev)
}

// MarshalRecord encodes the record. the record is stored at ptr regardless of rec's own Ptr.
func MarshalRecord(rec Record, ptr Ptr) ([]byte, error) {
	if rec == nil {
		return nil, errors.Wrap(ErrUnknownRecordType, "nil record")
	}
	h := rec.RecordHeader()
	h.Ptr = ptr
	b := make([]byte, 0, headerSize+bodySize[rec.Type()])

	switch r := rec.(type) {
	case *Insert:
		b = appendHeader(b, TypeInsert, h)
		b = binary.LittleEndian.AppendUint32(b, uint32(r.Cid))
		b = binary.LittleEndian.AppendUint32(b, r.SpeculativeToken)
	case *Delete:
		b = appendHeader(b, TypeDelete, h)
		b = binary.LittleEndian.AppendUint32(b, uint32(r.Cid))
		b = appendBool(b, r.ChangedPartition)
	case *Update:
		b = appendHeader(b, TypeUpdate, h)
		b = binary.LittleEndian.AppendUint32(b, uint32(r.Cid))
		b = tuple.AppendTid(b, r.NewTid)
		b = appendBool(b, r.KeyUpdate)
	case *TupleLock:
		if !r.Mode.IsValid() {
			return nil, errors.Errorf("unknown tuple lock mode %d", r.Mode)
		}
		b = appendHeader(b, TypeTupleLock, h)
		b = append(b, byte(r.Mode))
	default:
		return nil, errors.Wrapf(ErrUnknownRecordType, "%T", rec)
	}
	return b, nil
}

// UnmarshalRecord decodes the record encoded by MarshalRecord
func UnmarshalRecord(b []byte) (Record, error) {
	if len(b) < headerSize {
		return nil, errors.Wrapf(ErrMalformedRecord, "record is %d bytes", len(b))
	}
	typ := RecordType(b[0])
	size, ok := bodySize[typ]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownRecordType, "type %d", b[0])
	}
	if len(b) != headerSize+size {
		return nil, errors.Wrapf(ErrMalformedRecord, "%s record is %d bytes", typ, len(b))
	}
	h := Header{
		Ptr:  readPtr(b[1:]),
		Xid:  txid.TxID(binary.LittleEndian.Uint32(b[1+ptrSize:])),
		Prev: readPtr(b[1+ptrSize+4:]),
	}
	body := b[headerSize:]

	switch typ {
	case TypeInsert:
		return &Insert{
			Header:           h,
			Cid:              txid.CommandID(binary.LittleEndian.Uint32(body[0:4])),
			SpeculativeToken: binary.LittleEndian.Uint32(body[4:8]),
		}, nil
	case TypeDelete:
		return &Delete{
			Header:           h,
			Cid:              txid.CommandID(binary.LittleEndian.Uint32(body[0:4])),
			ChangedPartition: body[4] != 0,
		}, nil
	case TypeUpdate:
		return &Update{
			Header:    h,
			Cid:       txid.CommandID(binary.LittleEndian.Uint32(body[0:4])),
			NewTid:    tuple.ReadTid(body[4 : 4+tuple.TidSize]),
			KeyUpdate: body[4+tuple.TidSize] != 0,
		}, nil
	case TypeTupleLock:
		mode := tuple.LockMode(body[0])
		if !mode.IsValid() {
			return nil, errors.Wrapf(ErrMalformedRecord, "unknown tuple lock mode %d", body[0])
		}
		return &TupleLock{Header: h, Mode: mode}, nil
	}
	return nil, errors.Wrapf(ErrUnknownRecordType, "type %d", b[0])
}
