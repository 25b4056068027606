// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Command lsmkv is a manual/operational tool for poking at an lsmkv
// database directory: opening it, reading and writing individual keys,
// scanning a range, and triggering a compaction or repair. It is not part
// of the engine's correctness surface, the same way the teacher's own
// cmd/pebble tool sits alongside the library rather than inside it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/student-go/lsmkv"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "lsmkv",
		Short: "inspect and operate on an lsmkv database directory",
	}
	root.AddCommand(
		newOpenCmd(),
		newGetCmd(),
		newPutCmd(),
		newScanCmd(),
		newCompactCmd(),
		newRepairCmd(),
	)
	return root
}

// withDB opens the database at dir, runs fn, and always closes it
// afterward, returning whichever error came first.
func withDB(dir string, readOnly bool, fn func(db *lsmkv.DB) error) error {
	opts := &lsmkv.Options{CreateIfMissing: true, ReadOnly: readOnly}
	db, err := lsmkv.Open(dir, opts)
	if err != nil {
		return err
	}
	err = fn(db)
	if closeErr := db.Close(); err == nil {
		err = closeErr
	}
	return err
}

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <dir>",
		Short: "open a database, creating it if missing, and report its metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(args[0], false, func(db *lsmkv.DB) error {
				fmt.Fprintln(cmd.OutOrStdout(), db.Metrics())
				return nil
			})
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <dir> <key>",
		Short: "print the value stored under key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(args[0], true, func(db *lsmkv.DB) error {
				val, err := db.Get([]byte(args[1]), nil)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(val))
				return nil
			})
		},
	}
}

func newPutCmd() *cobra.Command {
	var sync bool
	cmd := &cobra.Command{
		Use:   "put <dir> <key> <value>",
		Short: "store value under key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := lsmkv.NoSync
			if sync {
				opts = lsmkv.Sync
			}
			return withDB(args[0], false, func(db *lsmkv.DB) error {
				return db.Set([]byte(args[1]), []byte(args[2]), opts)
			})
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", false, "fsync the write-ahead log before returning")
	return cmd
}

func newScanCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "scan <dir> [start]",
		Short: "print every live key/value pair from start (or the beginning) in order",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(args[0], true, func(db *lsmkv.DB) error {
				it, err := db.NewIter(nil)
				if err != nil {
					return err
				}
				defer it.Close()

				if len(args) == 2 {
					it.SeekGE([]byte(args[1]))
				} else {
					it.First()
				}
				n := 0
				for ; it.Valid(); it.Next() {
					if limit > 0 && n >= limit {
						break
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", it.Key(), it.Value())
					n++
				}
				return it.Error()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many entries (0 for no limit)")
	return cmd
}

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact <dir> <start> <end>",
		Short: "manually compact the key range [start, end]",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(args[0], false, func(db *lsmkv.DB) error {
				return db.CompactRange([]byte(args[1]), []byte(args[2]))
			})
		},
	}
}

func newRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair <dir>",
		Short: "rebuild a database's manifest from the tables still present on disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return lsmkv.Repair(args[0], &lsmkv.Options{})
		},
	}
}
