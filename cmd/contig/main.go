// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// contig is a streaming structural variant contig caller. It reads a
// position-sorted stream of positional de Bruijn graph path nodes,
// incrementally calls the best scoring anchored contigs through the
// loaded graph and emits them as FASTQ records with their supporting
// evidence. Called contigs can additionally be persisted to a
// position-ordered database and the working graph exported in DOT
// format.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fastq"
	"github.com/biogo/biogo/seq/linear"
	"github.com/biogo/hts/fai"
	"modernc.org/kv"

	"github.com/kortschak/contig/config"
	"github.com/kortschak/contig/graphviz"
	"github.com/kortschak/contig/internal/store"
	"github.com/kortschak/contig/positional"
)

func main() {
	in := flag.String("input", "-", "specify the node stream input file ('-' is stdin)")
	conf := flag.String("config", "", "specify the assembly configuration file (required)")
	ref := flag.String("ref", "", "specify a reference fasta for sequence naming")
	dbPath := flag.String("db", "", "specify a contig database file to write")
	dotDir := flag.String("dot", "", "specify a directory for per-contig DOT exports")
	render := flag.String("render", "", "specify a Graphviz output format for DOT exports")
	memoDir := flag.String("memo", "", "specify a directory for memoization state exports")
	stats := flag.Bool("stats", false, "specify logging of per-contig statistics")
	flag.Parse()

	if *conf == "" {
		flag.Usage()
		os.Exit(2)
	}

	log.Println(os.Args)

	cfg, err := config.Load(*conf)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	pc := cfg.Positional(log.New(os.Stderr, "", log.LstdFlags))

	refName := fmt.Sprint(pc.ReferenceIndex)
	if *ref != "" {
		refName, err = referenceName(*ref, pc.ReferenceIndex)
		if err != nil {
			log.Fatalf("failed to resolve reference name: %v", err)
		}
	}

	var src io.Reader = os.Stdin
	if *in != "-" {
		f, err := os.Open(*in)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		src = f
	}

	var db *kv.DB
	if *dbPath != "" {
		db, err = kv.Create(*dbPath, &kv.Options{Compare: store.ByPosition})
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
	}

	var exported int
	if *dotDir != "" {
		pc.Graph = func(x *positional.Index, full []positional.Subnode) error {
			exported++
			path := filepath.Join(*dotDir, fmt.Sprintf("assembly.%s.%d.dot", refName, exported))
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			err = positional.ExportDot(f, x, full, pc.K)
			if err != nil {
				f.Close()
				return err
			}
			err = f.Close()
			if err != nil {
				return err
			}
			if *render != "" {
				_, err = graphviz.Render(path, *render)
			}
			return err
		}
	}
	if *memoDir != "" {
		var snapshots int
		pc.CallerState = func(c *positional.Caller) error {
			snapshots++
			path := filepath.Join(*memoDir, fmt.Sprintf("assembly.path.memoization.%s.%d.csv", refName, snapshots))
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			err = c.ExportState(f)
			if err != nil {
				f.Close()
				return err
			}
			return f.Close()
		}
	}
	if *stats {
		pc.ContigStats = func(s positional.ContigStats) error {
			log.Printf("contig at %d: %d nodes (%d truncated), anchors %d/%d, score %d, evidence %d",
				s.ContigStartPosition, s.ContigNodes, s.TruncatedNodes, s.StartAnchorNodes, s.EndAnchorNodes, s.Score, s.EvidenceCount)
			return nil
		}
	}

	tracker := positional.NewTracker()
	asm, err := positional.NewAssembler(pc, positional.NewJSONSource(src, pc.K, tracker), tracker)
	if err != nil {
		log.Fatal(err)
	}

	out := fastq.NewWriter(os.Stdout)
	var emitted int64
	for asm.Next() {
		c := asm.Contig()
		emitted++
		err = writeFastq(out, c, refName, emitted)
		if err != nil {
			log.Fatalf("failed to write contig: %v", err)
		}
		if db != nil {
			err = persist(db, c, emitted)
			if err != nil {
				log.Fatalf("failed to persist contig: %v", err)
			}
		}
	}
	if err := asm.Err(); err != nil {
		log.Fatal(err)
	}
	log.Printf("emitted %d contigs from %d nodes", emitted, asm.TrackingUnderlyingConsumed())
}

// referenceName resolves the configured reference index against the
// fasta's index, in file order.
func referenceName(path string, index int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	idx, err := fai.NewIndex(f)
	if err != nil {
		return "", err
	}
	recs := make([]fai.Record, 0, len(idx))
	for _, r := range idx {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Start < recs[j].Start })
	if index < 0 || index >= len(recs) {
		return "", fmt.Errorf("reference index %d outside fasta with %d sequences", index, len(recs))
	}
	return recs[index].Name, nil
}

func writeFastq(w *fastq.Writer, c *positional.Contig, refName string, n int64) error {
	ql := make([]alphabet.QLetter, len(c.Bases))
	for i := range ql {
		ql[i] = alphabet.QLetter{L: alphabet.Letter(c.Bases[i]), Q: alphabet.Qphred(c.Quals[i])}
	}
	s := linear.NewQSeq(fmt.Sprintf("contig_%s_%d", refName, n), ql, alphabet.DNA, alphabet.Sanger)
	s.Desc = description(c, refName)
	_, err := w.Write(s)
	return err
}

func description(c *positional.Contig, refName string) string {
	switch c.Kind {
	case positional.Unanchored:
		return fmt.Sprintf("%v %s:%d-%d evidence=%d", c.Kind, refName, c.BreakendStart, c.BreakendEnd, len(c.EvidenceIDs))
	case positional.ForwardAnchored:
		return fmt.Sprintf("%v %s:%d anchor=%d evidence=%d", c.Kind, refName, c.StartAnchorPosition, c.StartAnchorBases, len(c.EvidenceIDs))
	case positional.BackwardAnchored:
		return fmt.Sprintf("%v %s:%d anchor=%d evidence=%d", c.Kind, refName, c.EndAnchorPosition, c.EndAnchorBases, len(c.EvidenceIDs))
	default:
		return fmt.Sprintf("%v %s:%d-%d anchors=%d,%d evidence=%d", c.Kind, refName,
			c.StartAnchorPosition, c.EndAnchorPosition, c.StartAnchorBases, c.EndAnchorBases, len(c.EvidenceIDs))
	}
}

func persist(db *kv.DB, c *positional.Contig, seq int64) error {
	v, err := json.Marshal(c)
	if err != nil {
		return err
	}
	k := store.MarshalContigKey(store.ContigKey{
		ReferenceIndex: int64(c.ReferenceIndex),
		Start:          int64(c.Start()),
		End:            int64(c.End()),
		Kind:           int8(c.Kind),
		Seq:            seq,
	})
	return db.Set(k, v)
}
