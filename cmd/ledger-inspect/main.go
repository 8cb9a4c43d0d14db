// ledger-inspect dumps and verifies persisted ledger state snapshots.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Bloxxix/stellar-core/core/state"
	"github.com/Bloxxix/stellar-core/core/types"
	"github.com/Bloxxix/stellar-core/invariant"
)

var app = &cli.App{
	Name:  "ledger-inspect",
	Usage: "inspect persisted live/hot-archive state snapshots",
	Commands: []*cli.Command{
		commandDump,
		commandVerify,
	},
}

var dbFlag = &cli.StringFlag{
	Name:     "db",
	Usage:    "path to the snapshot database",
	Required: true,
}

var commandDump = &cli.Command{
	Name:  "dump",
	Usage: "print every entry of a persisted snapshot pair",
	Flags: []cli.Flag{dbFlag},
	Action: func(c *cli.Context) error {
		live, archive, err := openSnapshots(c.String("db"))
		if err != nil {
			return err
		}
		header := live.Header()
		fmt.Printf("ledger %d protocol %d: %d live, %d archived\n",
			header.Seq, header.Protocol, live.Len(), archive.Len())

		dump := func(label string, e types.LedgerEntry) {
			fmt.Printf("%s %-18s last_modified=%-8d %x\n", label, e.Type, e.LastModified, e.Key().Encode())
		}
		live.Ascend(func(e types.LedgerEntry) bool {
			dump("live", e)
			return true
		})
		archive.Ascend(func(e types.LedgerEntry) bool {
			dump("arch", e)
			return true
		})
		return nil
	},
}

var commandVerify = &cli.Command{
	Name:  "verify",
	Usage: "run the archival consistency startup scan over a persisted snapshot pair",
	Flags: []cli.Flag{dbFlag},
	Action: func(c *cli.Context) error {
		live, archive, err := openSnapshots(c.String("db"))
		if err != nil {
			return err
		}
		mgr := invariant.NewManager()
		if _, err := invariant.RegisterArchivedStateConsistency(mgr); err != nil {
			return err
		}
		if err := mgr.Enable("ArchivedStateConsistency"); err != nil {
			return err
		}
		if err := mgr.Start(live, archive); err != nil {
			return err
		}
		fmt.Printf("ok: %d live, %d archived, disjoint\n", live.Len(), archive.Len())
		return nil
	},
}

func openSnapshots(path string) (*state.LiveSnapshot, *state.ArchiveSnapshot, error) {
	db, err := state.OpenDB(path)
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()
	return db.ReadSnapshots()
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
