// Package main provides the txgraphd CLI, a small demo harness driving the
// transactional graph engine end to end.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nornicdb/txgraph/graph"
	"github.com/nornicdb/txgraph/txn"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "txgraphd",
		Short: "txgraphd - in-memory transactional RDF graph engine",
		Long: `txgraphd drives a transactional graph engine supporting concurrent
readers and a single writer, with delta-graph overlays and background
reconciliation between an active and a stale chain.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("txgraphd v%s\n", version)
		},
	})

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted begin/add/commit/read session against an in-memory graph",
		RunE:  runDemo,
	}
	demoCmd.Flags().Int("triples", 5, "number of triples to write, one per WRITE transaction")
	rootCmd.AddCommand(demoCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDemo(cmd *cobra.Command, args []string) error {
	count, err := cmd.Flags().GetInt("triples")
	if err != nil {
		return err
	}

	tg, err := txn.New(txn.DefaultConfig())
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}
	defer tg.Close()

	for i := 0; i < count; i++ {
		w, err := tg.Begin(txn.Write)
		if err != nil {
			return fmt.Errorf("begin write %d: %w", i, err)
		}
		subject := fmt.Sprintf("node%d", i)
		triple := graph.NewTriple(subject, "follows", fmt.Sprintf("node%d", (i+1)%count))
		if err := w.Add(triple); err != nil {
			return fmt.Errorf("add %s: %w", triple, err)
		}
		if err := w.Commit(); err != nil {
			return fmt.Errorf("commit %d: %w", i, err)
		}
		if err := w.End(); err != nil {
			return fmt.Errorf("end write %d: %w", i, err)
		}
		fmt.Printf("committed %s\n", triple)
	}

	r, err := tg.Begin(txn.Read)
	if err != nil {
		return fmt.Errorf("begin read: %w", err)
	}
	defer r.End()

	size, err := r.Size()
	if err != nil {
		return fmt.Errorf("size: %w", err)
	}
	fmt.Printf("read snapshot size: %d\n", size)

	it, err := r.Find(graph.WithPredicate("follows"))
	if err != nil {
		return fmt.Errorf("find: %w", err)
	}
	for it.Next() {
		fmt.Printf("  %s\n", it.Triple())
	}
	return it.Err()
}
