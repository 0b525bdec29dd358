package main

/*
bio-polish polishes a genome assembly using short-read alignments. Unlike
single-best-hit polishers it expects SAM input where each read is reported
at all of its candidate loci (e.g. bwa mem -a), which lets it repair errors
inside repeats: each read's evidence is split evenly across its accepted
placements and every reference position is resolved by depth-normalized
weighted voting.
*/

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/polish/polish"
)

var (
	fractionValid   = flag.Float64("fraction-valid", polish.DefaultOpts.FractionValid, "A base must make up at least this fraction of the read depth to be considered valid")
	fractionInvalid = flag.Float64("fraction-invalid", polish.DefaultOpts.FractionInvalid, "A base must make up less than this fraction of the read depth to be considered invalid")
	maxErrors       = flag.Int("max-errors", polish.DefaultOpts.MaxErrors, "Ignore alignments with more than this many mismatches and indels")
	minDepth        = flag.Int("min-depth", polish.DefaultOpts.MinDepth, "A base must occur at least this many times in the pileup to be considered valid")
	careful         = flag.Bool("careful", polish.DefaultOpts.Careful, "Ignore multi-placement reads entirely instead of splitting their evidence")
	debugPath       = flag.String("debug", polish.DefaultOpts.DebugPath, "Optional file to store per-base decision information")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] assembly.fasta alignments.sam [alignments2.sam ...]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Polished FASTA is written to stdout.\nOptions:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	args := flag.Args()
	if len(args) < 2 {
		log.Fatalf("Missing positional arguments (assembly FASTA and at least one SAM file required); please check flag syntax: '%v'", args)
	}
	opts := polish.Opts{
		FractionValid:   *fractionValid,
		FractionInvalid: *fractionInvalid,
		MaxErrors:       *maxErrors,
		MinDepth:        *minDepth,
		Careful:         *careful,
		DebugPath:       *debugPath,
	}
	ctx := vcontext.Background()
	if err := polish.Polish(ctx, args[0], args[1:], opts, os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}
