// Package polish drives assembly polishing: it loads the assembly into
// per-reference pileups, streams in multi-placement short-read alignments
// with depth-normalized weights, and emits a per-base consensus sequence
// for each reference.
package polish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/polish/pileup"
	"github.com/grailbio/polish/seqio"
	"github.com/grailbio/polish/util"
)

// NameSuffix is appended to each reference name in the polished output.
const NameSuffix = "_polished"

// Opts configures a polishing run.
type Opts struct {
	// FractionValid is the minimum fraction of a position's depth a vote
	// needs to be considered valid.
	FractionValid float64
	// FractionInvalid is the fraction of depth below which a vote is
	// ignored entirely; votes between the two fractions block a change.
	FractionInvalid float64
	// MaxErrors drops alignments with more than this many mismatches and
	// indels.
	MaxErrors int
	// MinDepth keeps the original base wherever weighted depth is lower.
	MinDepth int
	// Careful drops multi-placement reads outright instead of splitting
	// their evidence across loci.
	Careful bool
	// DebugPath, if set, receives a per-position TSV of every consensus
	// decision.
	DebugPath string
}

// DefaultOpts holds the default polishing settings.
var DefaultOpts = Opts{
	FractionValid:   0.5,
	FractionInvalid: 0.2,
	MaxErrors:       10,
	MinDepth:        5,
}

func (o *Opts) validate() error {
	if o.FractionValid <= 0 || o.FractionValid >= 1 {
		return fmt.Errorf("fraction-valid must be between 0 and 1 (exclusive)")
	}
	if o.FractionInvalid <= 0 || o.FractionInvalid >= 1 {
		return fmt.Errorf("fraction-invalid must be between 0 and 1 (exclusive)")
	}
	if o.FractionInvalid >= o.FractionValid {
		return fmt.Errorf("fraction-invalid must be less than fraction-valid")
	}
	return nil
}

// seqResult is the outcome of polishing one reference sequence.
type seqResult struct {
	name      string
	seq       string
	meanDepth float64
	zeroDepth int
	changed   int
	debug     []byte
}

// Polish runs the consensus path end to end: assemblyPath names the FASTA
// assembly to polish, samPaths the alignment files (all loci per read).
// The polished FASTA is written to out.
func Polish(ctx context.Context, assemblyPath string, samPaths []string, opts Opts, out io.Writer) error {
	start := time.Now()
	if err := opts.validate(); err != nil {
		return err
	}

	names, seqs, err := seqio.Load(ctx, assemblyPath)
	if err != nil {
		return err
	}
	pileups := make(map[string]*pileup.Pileup, len(names))
	for _, name := range names {
		log.Printf("%s (%d bp)", name, len(seqs[name]))
		pileups[name] = pileup.New(seqs[name])
	}

	totalAlignments, totalUsed := 0, 0
	for _, path := range samPaths {
		stats, err := addToPileups(ctx, path, pileups, opts)
		if err != nil {
			return err
		}
		log.Printf("%s: %d alignments from %d reads", path, stats.alignments, stats.reads)
		totalAlignments += stats.alignments
		totalUsed += stats.used
	}
	log.Printf("%d alignments kept, %d discarded", totalUsed, totalAlignments-totalUsed)

	// Each reference's pileup is now read-only, so consensus resolution
	// parallelizes cleanly across references.
	results := make([]seqResult, len(names))
	if err := traverse.Each(len(names), func(i int) (err error) {
		results[i], err = polishSequence(names[i], pileups[names[i]], opts)
		return
	}); err != nil {
		return err
	}

	if opts.DebugPath != "" {
		if err := writeDebug(ctx, opts.DebugPath, results); err != nil {
			return err
		}
	}
	for _, res := range results {
		seqLen := len(pileups[res.name].Bases)
		coverage := 100 * float64(seqLen-res.zeroDepth) / float64(seqLen)
		changedPct := 100 * float64(res.changed) / float64(seqLen)
		log.Printf("%s: mean depth %.1fx, %d bp at depth zero (%.4f%% coverage)",
			res.name, res.meanDepth, res.zeroDepth, coverage)
		log.Printf("%s: %d positions changed (%.4f%%), estimated pre-polishing accuracy %.4f%%",
			res.name, res.changed, changedPct, 100-changedPct)
		if _, err := fmt.Fprintf(out, ">%s%s\n%s\n", res.name, NameSuffix, res.seq); err != nil {
			return err
		}
	}
	log.Printf("polish time: %s", util.FormatDuration(time.Since(start)))
	return nil
}

// polishSequence resolves every position of one reference and assembles
// the polished sequence, dropping deletion markers.
func polishSequence(name string, p *pileup.Pileup, opts Opts) (seqResult, error) {
	res := seqResult{name: name}
	var (
		polished   strings.Builder
		debugBuf   bytes.Buffer
		debugTSV   *tsv.Writer
		totalDepth float64
	)
	if opts.DebugPath != "" {
		debugTSV = tsv.NewWriter(&debugBuf)
	}
	for pos := range p.Bases {
		b := &p.Bases[pos]
		c := b.Resolve(opts.MinDepth, opts.FractionValid, opts.FractionInvalid)
		if c.Status == pileup.Changed {
			res.changed++
		}
		totalDepth += b.Depth()
		if b.Depth() == 0 {
			res.zeroDepth++
		}
		if debugTSV != nil {
			if err := writeDebugRow(debugTSV, name, pos, b, c); err != nil {
				return res, err
			}
		}
		polished.WriteString(c.Seq)
	}
	if debugTSV != nil {
		if err := debugTSV.Flush(); err != nil {
			return res, err
		}
		res.debug = debugBuf.Bytes()
	}
	res.seq = strings.ReplaceAll(polished.String(), pileup.Deletion, "")
	if len(p.Bases) > 0 {
		res.meanDepth = totalDepth / float64(len(p.Bases))
	}
	return res, nil
}

func writeDebugRow(w *tsv.Writer, name string, pos int, b *pileup.Base, c pileup.Consensus) error {
	w.WriteString(name)
	w.WriteUint32(uint32(pos))
	w.WriteByte(b.Original())
	w.WriteString(strconv.FormatFloat(b.Depth(), 'f', 1, 64))
	w.WriteUint32(uint32(c.InvalidThreshold))
	w.WriteUint32(uint32(c.ValidThreshold))
	w.WriteString(b.CountString())
	w.WriteString(c.Status.String())
	w.WriteString(c.Seq)
	return w.EndLine()
}

// writeDebug writes the per-position decision table, one section per
// reference in assembly order.
func writeDebug(ctx context.Context, path string, results []seqResult) (err error) {
	var out file.File
	if out, err = file.Create(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := out.Writer(ctx)
	if _, err = io.WriteString(w, "name\tpos\tbase\tdepth\tinvalid\tvalid\tpileup\tstatus\tnew_base\n"); err != nil {
		return
	}
	for _, res := range results {
		if _, err = w.Write(res.debug); err != nil {
			return
		}
	}
	log.Printf("per-base debugging info written to %s", path)
	return
}
