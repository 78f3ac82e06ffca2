package main

import (
	"fmt"
	"os"

	"github.com/HayatoShiba/ppzs/am/zedstore"
	"github.com/HayatoShiba/ppzs/storage/page"
	"github.com/HayatoShiba/ppzs/storage/tuple"
	"github.com/HayatoShiba/ppzs/storage/undo"
	"github.com/HayatoShiba/ppzs/transaction/txid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// fixture describes undo chains and the status of the transactions which wrote them
type fixture struct {
	// Current is the transaction evaluating the chains. 0 means none.
	Current    uint32   `yaml:"current"`
	InProgress []uint32 `yaml:"in_progress"`
	Committed  []uint32 `yaml:"committed"`
	CurCid     uint32   `yaml:"curcid"`
	// Horizon is the removal horizon of NonVacuumable
	Horizon uint32 `yaml:"horizon"`
	// OldestUndo is the counter of the oldest undo pointer. 0 means nothing is retired.
	OldestUndo uint64       `yaml:"oldest_undo"`
	Rows       []fixtureRow `yaml:"rows"`
}

type fixtureRow struct {
	Name string `yaml:"name"`
	// Records are the undo records of the row, oldest first
	Records []fixtureRecord `yaml:"records"`
}

type fixtureRecord struct {
	Type             string   `yaml:"type"`
	Xid              uint32   `yaml:"xid"`
	Cid              uint32   `yaml:"cid"`
	Token            uint32   `yaml:"token"`
	ChangedPartition bool     `yaml:"changed_partition"`
	KeyUpdate        bool     `yaml:"key_update"`
	NewTid           []uint32 `yaml:"new_tid"`
	Mode             string   `yaml:"mode"`
}

// chain is the row built from the fixture
type chain struct {
	name string
	tid  tuple.Tid
	head undo.Ptr
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read fixture %s", path)
	}
	return parseFixture(data)
}

func parseFixture(data []byte) (*fixture, error) {
	f := &fixture{}
	if err := yaml.UnmarshalStrict(data, f); err != nil {
		return nil, errors.Wrap(err, "yaml.UnmarshalStrict failed")
	}
	if len(f.Rows) == 0 {
		return nil, errors.New("fixture has no rows")
	}
	return f, nil
}

func toTxIDs(ids []uint32) []txid.TxID {
	xids := make([]txid.TxID, 0, len(ids))
	for _, id := range ids {
		xids = append(xids, txid.TxID(id))
	}
	return xids
}

// oracle returns the status oracle answering from the fixture
func (f *fixture) oracle() *zedstore.StaticOracle {
	return zedstore.NewStaticOracle(txid.TxID(f.Current), toTxIDs(f.InProgress), toTxIDs(f.Committed))
}

// toRecord converts the fixture record into undo record
func (fr fixtureRecord) toRecord() (undo.Record, error) {
	h := undo.Header{Xid: txid.TxID(fr.Xid)}
	cid := txid.CommandID(fr.Cid)
	switch fr.Type {
	case "insert":
		return &undo.Insert{Header: h, Cid: cid, SpeculativeToken: fr.Token}, nil
	case "delete":
		return &undo.Delete{Header: h, Cid: cid, ChangedPartition: fr.ChangedPartition}, nil
	case "update":
		if len(fr.NewTid) != 2 {
			return nil, errors.Errorf("update needs new_tid [page, slot]: %v", fr.NewTid)
		}
		newTid := tuple.NewTid(page.PageID(fr.NewTid[0]), page.SlotIndex(fr.NewTid[1]))
		return &undo.Update{Header: h, Cid: cid, NewTid: newTid, KeyUpdate: fr.KeyUpdate}, nil
	case "lock":
		mode, ok := tuple.ParseLockMode(fr.Mode)
		if !ok {
			return nil, errors.Errorf("unknown lock mode %q", fr.Mode)
		}
		return &undo.TupleLock{Header: h, Mode: mode}, nil
	}
	return nil, errors.Wrapf(undo.ErrUnknownRecordType, "%q", fr.Type)
}

// build appends the chains of all rows to store
func (f *fixture) build(store *undo.MemStore) ([]chain, error) {
	chains := make([]chain, 0, len(f.Rows))
	for i, r := range f.Rows {
		records := make([]undo.Record, 0, len(r.Records))
		for _, fr := range r.Records {
			rec, err := fr.toRecord()
			if err != nil {
				return nil, errors.Wrapf(err, "row %q", r.Name)
			}
			records = append(records, rec)
		}
		head, err := store.AppendChain(undo.InvalidPtr, records...)
		if err != nil {
			return nil, errors.Wrapf(err, "row %q", r.Name)
		}
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("row%d", i)
		}
		chains = append(chains, chain{
			name: name,
			tid:  tuple.NewTid(page.FirstPageID, page.SlotIndex(i)),
			head: head,
		})
	}
	if f.OldestUndo > 0 {
		store.Discard(undo.Ptr{Counter: f.OldestUndo})
	}
	return chains, nil
}
