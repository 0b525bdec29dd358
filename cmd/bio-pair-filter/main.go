package main

/*
bio-pair-filter is a pre-processing step for bio-polish on paired-end data.
It infers the read set's correct pair orientation and insert-size range
from the unambiguous (single-locus) pairs, then appends a ZP:Z:fail tag to
multi-mapped alignments that are not part of a concordant pair, so
bio-polish will not count them. Passing lines are copied through
byte-identical.
*/

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/polish/filter"
)

var (
	in1         = flag.String("in1", "", "Input SAM file, first read of each pair")
	in2         = flag.String("in2", "", "Input SAM file, second read of each pair")
	out1        = flag.String("out1", "", "Output SAM file, first read of each pair")
	out2        = flag.String("out2", "", "Output SAM file, second read of each pair")
	orientation = flag.String("orientation", filter.DefaultOpts.Orientation.String(), "Expected pair orientation (ff, fr, rf, rr or auto)")
	low         = flag.Float64("low", filter.DefaultOpts.Low, "Low insert-size percentile threshold")
	high        = flag.Float64("high", filter.DefaultOpts.High, "High insert-size percentile threshold")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -in1 r1.sam -in2 r2.sam -out1 out1.sam -out2 out2.sam [OPTIONS]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	for name, v := range map[string]string{"-in1": *in1, "-in2": *in2, "-out1": *out1, "-out2": *out2} {
		if v == "" {
			log.Fatalf("%s is required", name)
		}
	}
	o, err := filter.ParseOrientation(*orientation)
	if err != nil {
		log.Fatalf("%v", err)
	}
	opts := filter.Opts{
		In1:         *in1,
		In2:         *in2,
		Out1:        *out1,
		Out2:        *out2,
		Orientation: o,
		Low:         *low,
		High:        *high,
	}
	ctx := vcontext.Background()
	if err := filter.Filter(ctx, opts); err != nil {
		log.Fatalf("%v", err)
	}
}
