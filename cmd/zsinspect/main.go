/*
zsinspect evaluates undo chains described in a YAML fixture under every snapshot kind.

	zsinspect --fixture chains.yaml [--config ppzs.yaml] [--snapshot mvcc] [--lock-mode Exclusive]

Each row of the fixture is a chain of undo records, oldest first. The status of the
transactions is taken from the fixture, so no transaction manager is running.
*/
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/HayatoShiba/ppzs/am/zedstore"
	"github.com/HayatoShiba/ppzs/config"
	"github.com/HayatoShiba/ppzs/storage/tuple"
	"github.com/HayatoShiba/ppzs/storage/undo"
	"github.com/HayatoShiba/ppzs/transaction/snapshot"
	"github.com/HayatoShiba/ppzs/transaction/txid"
	"github.com/pkg/errors"
)

type options struct {
	fixturePath string
	configPath  string
	snapshot    string
	lockMode    string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("zsinspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.fixturePath, "fixture", "",
		`YAML file describing the undo chains and the transaction status`)
	fs.StringVar(&opts.configPath, "config", "",
		`YAML configuration file`)
	fs.StringVar(&opts.snapshot, "snapshot", "",
		`evaluate only with this snapshot kind (mvcc, self, any, dirty, non-vacuumable)`)
	fs.StringVar(&opts.lockMode, "lock-mode", "",
		`also check update/lock with this mode (KeyShare, Share, NoKeyExclusive, Exclusive)`)
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.fixturePath == "" {
		return opts, errors.New("--fixture is required")
	}
	return opts, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	cfg := config.Default()
	if opts.configPath != "" {
		if cfg, err = config.Load(opts.configPath); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}
	logger, err := cfg.Log.NewLogger(stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	f, err := loadFixture(opts.fixturePath)
	if err != nil {
		logger.Error("failed to load fixture", "path", opts.fixturePath, "error", err)
		return 1
	}
	if err := inspect(f, cfg, opts, logger, stdout); err != nil {
		logger.Error("inspection failed", "error", err)
		return 1
	}
	return 0
}

// inspect evaluates every row of the fixture and writes one line per row and snapshot kind
func inspect(f *fixture, cfg config.Config, opts options, logger *slog.Logger, stdout io.Writer) error {
	store := undo.NewMemStore(cfg.Undo.RecordsPerPage, logger)
	chains, err := f.build(store)
	if err != nil {
		return errors.Wrap(err, "build failed")
	}
	oracle := f.oracle()
	curcid := txid.CommandID(f.CurCid)

	snaps := []snapshot.Snapshot{
		oracle.Snapshot(curcid),
		snapshot.Self{},
		snapshot.Any{},
		snapshot.Dirty{},
		snapshot.NonVacuumable{VisTest: snapshot.NewGlobalVisTest(txid.TxID(f.Horizon))},
	}
	if opts.snapshot != "" {
		var selected []snapshot.Snapshot
		for _, snap := range snaps {
			if snap.Kind().String() == opts.snapshot {
				selected = append(selected, snap)
			}
		}
		if len(selected) == 0 {
			return errors.Errorf("unknown snapshot kind %q", opts.snapshot)
		}
		snaps = selected
	}

	var mode tuple.LockMode
	checkUpdate := opts.lockMode != ""
	if checkUpdate {
		var ok bool
		if mode, ok = tuple.ParseLockMode(opts.lockMode); !ok {
			return errors.Errorf("unknown lock mode %q", opts.lockMode)
		}
	}

	scanOpts := []zedstore.Option{zedstore.WithMaxDepth(cfg.Engine.MaxChainDepth), zedstore.WithLogger(logger)}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROW\tSNAPSHOT\tRESULT\tXMIN\tDETAIL")
	for _, c := range chains {
		for _, snap := range snaps {
			slot := zedstore.NewSlot(c.head)
			vis, err := zedstore.NewScan(store, oracle, snap, scanOpts...).SatisfiesVisibility(slot)
			if err != nil {
				return errors.Wrapf(err, "row %q with %s snapshot", c.name, snap.Kind())
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.name, snap.Kind(), visibleString(vis.Visible), slot.Xmin, visibilityDetail(vis))
		}
		if checkUpdate {
			slot := zedstore.NewSlot(c.head)
			res, err := zedstore.NewScan(store, oracle, oracle.Snapshot(curcid), scanOpts...).SatisfiesUpdate(c.tid, slot, mode)
			if err != nil {
				return errors.Wrapf(err, "row %q with lock mode %s", c.name, mode)
			}
			fmt.Fprintf(w, "%s\tupdate(%s)\t%s\t%s\t%s\n", c.name, mode, res.Result, slot.Xmin, updateDetail(res))
		}
	}
	return w.Flush()
}

func visibleString(visible bool) string {
	if visible {
		return "visible"
	}
	return "invisible"
}

func visibilityDetail(vis zedstore.Visibility) string {
	var details []string
	if vis.ObsoletingXid.IsValid() {
		details = append(details, "obsoleting="+vis.ObsoletingXid.String())
	}
	if vis.NextTid.IsValid() {
		details = append(details, "next="+vis.NextTid.String())
	}
	if vis.RecentlyDead {
		details = append(details, "recently-dead")
	}
	if vis.Dirty.Xmin.IsValid() {
		details = append(details, "dirty-xmin="+vis.Dirty.Xmin.String())
	}
	if vis.Dirty.Xmax.IsValid() {
		details = append(details, "dirty-xmax="+vis.Dirty.Xmax.String())
	}
	if vis.Dirty.SpeculativeToken != 0 {
		details = append(details, fmt.Sprintf("token=%d", vis.Dirty.SpeculativeToken))
	}
	return joinDetails(details)
}

func updateDetail(res zedstore.UpdateResult) string {
	var details []string
	if res.Failure.Xmax.IsValid() {
		details = append(details, "xmax="+res.Failure.Xmax.String())
	}
	if res.Failure.Tid.IsValid() || res.Failure.Tid.IsMovedPartitions() {
		details = append(details, "ctid="+res.Failure.Tid.String())
	}
	if res.NextTid.IsValid() {
		details = append(details, "next="+res.NextTid.String())
	}
	if res.ThisXactHasLock {
		details = append(details, "has-lock")
	}
	if !res.UndoRecordNeeded {
		details = append(details, "undo-not-needed")
	}
	return joinDetails(details)
}

func joinDetails(details []string) string {
	if len(details) == 0 {
		return "-"
	}
	return strings.Join(details, " ")
}
