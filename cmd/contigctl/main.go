// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The contigctl command provides companion tooling for contig: auditing
// the persisted contig database, rendering DOT exports and summarising
// the weight profile of a node stream.
//
// The contig database written by contig with the -db flag holds called
// contig records in JSON keyed and ordered by reference index and
// anchor position. Output from contigctl audit is a JSON stream on
// stdout.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"modernc.org/kv"

	"github.com/kortschak/contig/graphviz"
	"github.com/kortschak/contig/internal/store"
	"github.com/kortschak/contig/positional"
)

func main() {
	root := &cobra.Command{
		Use:           "contigctl",
		Short:         "companion tooling for the contig assembler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(auditCmd(), renderCmd(), depthCmd())
	err := root.Execute()
	if err != nil {
		log.Fatal(err)
	}
}

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <db>",
		Short: "dump a contig database as a JSON stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := kv.Open(args[0], &kv.Options{Compare: store.ByPosition})
			if err != nil {
				return err
			}
			defer db.Close()

			it, err := db.SeekFirst()
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			for {
				k, v, err := it.Next()
				if err != nil {
					if err == io.EOF {
						return nil
					}
					return err
				}
				var c positional.Contig
				err = json.Unmarshal(v, &c)
				if err != nil {
					return err
				}
				key := store.UnmarshalContigKey(k)
				err = enc.Encode(record{Key: key, Contig: c})
				if err != nil {
					return err
				}
			}
		},
	}
}

type record struct {
	Key    store.ContigKey
	Contig positional.Contig
}

func renderCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "render <file.dot>...",
		Short: "render DOT exports with Graphviz",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				out, err := graphviz.Render(path, format)
				if err != nil {
					return err
				}
				fmt.Println(out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "svg", "Graphviz output format")
	return cmd
}

func depthCmd() *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "depth <nodes>",
		Short: "summarise the weight profile of a node stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = os.Stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			index := positional.NewIndex(k)
			src := positional.NewJSONSource(r, k, nil)
			for {
				n, err := src.Next()
				if err != nil {
					if err == io.EOF {
						break
					}
					return err
				}
				err = index.Add(n)
				if err != nil {
					return err
				}
			}
			sum, err := positional.GraphDepth(index)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(sum)
		},
	}
	cmd.Flags().IntVar(&k, "k", 21, "k-mer length of the node stream")
	return cmd
}
