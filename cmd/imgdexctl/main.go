// Package main provides the imgdex command line tool.
//
// Usage:
//
//	imgdexctl [flags] <command> [args]
//
// Commands:
//
//	ingest     - Register image files with the document store
//	run        - Describe and embed pending documents
//	reconcile  - Repair drift between documents and the vector index
//	sync       - Run the pipeline, reconcile and report stats
//	search     - Query the corpus
//	stats      - Show indexing progress
//	delete     - Remove documents and their points
//
// Commands run in-process against the backends named in the config.
package main

import (
	"fmt"
	"os"

	"github.com/kailas-cloud/imgdex/cmd/imgdexctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
