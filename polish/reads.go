package polish

import (
	"bufio"
	"context"
	"errors"
	"fmt"

	"github.com/grailbio/base/compress"
	baseerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/polish/align"
	"github.com/grailbio/polish/pileup"
)

var (
	// ErrMissingReadSequence means no alignment in a read's group carried
	// the read sequence, so "*" records cannot be filled in.
	ErrMissingReadSequence = errors.New("no alignment carries the read sequence")
	// ErrUnknownReference means an alignment names a reference sequence
	// that is not in the loaded assembly.
	ErrUnknownReference = errors.New("reference in SAM but not in assembly")
)

const scanBufSize = 64 * 1024 * 1024

// samStats summarizes one SAM file's contribution to the pileups.
type samStats struct {
	alignments int // mapped alignments seen
	reads      int // read groups processed
	used       int // alignments that passed the good-alignment criteria
}

// addToPileups streams one SAM file into the pileups. Alignments for a
// read must be contiguous in the file: grouping is by read-name change,
// not a sort, so a read name that reappears later forms a separate group
// and its evidence is fragmented. This matches aligner output in practice
// and avoids holding the file in memory.
func addToPileups(ctx context.Context, path string, pileups map[string]*pileup.Pileup, opts Opts) (stats samStats, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	reader, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()

	var group []*align.Record
	flush := func() error {
		if len(group) == 0 {
			return nil
		}
		used, e := processRead(group, pileups, opts)
		if e != nil {
			return e
		}
		stats.used += used
		stats.reads++
		group = group[:0]
		return nil
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(nil, scanBufSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if len(line) == 0 || line[0] == '@' {
			continue
		}
		rec, e := align.Parse(line)
		if e != nil {
			err = baseerrors.E(e, fmt.Sprintf("%s (line %d)", path, lineNum))
			return
		}
		if !rec.Mapped() {
			continue
		}
		stats.alignments++
		if len(group) > 0 && group[0].Name != rec.Name {
			if err = flush(); err != nil {
				return
			}
		}
		group = append(group, rec)
	}
	if err = scanner.Err(); err != nil {
		err = baseerrors.E(err, path)
		return
	}
	if err = flush(); err != nil {
		return
	}
	if stats.alignments == 0 {
		err = fmt.Errorf("no alignments in %s", path)
	}
	return
}

// processRead applies one read group's evidence to the pileups and returns
// the number of alignments used.
func processRead(group []*align.Record, pileups map[string]*pileup.Pileup, opts Opts) (int, error) {
	if opts.Careful && len(group) > 1 {
		// Careful mode refuses to split a read's evidence across loci.
		return 0, nil
	}
	seq, forward, err := donorSeq(group)
	if err != nil {
		return 0, err
	}

	var good []*align.Record
	for _, a := range group {
		if a.EndToEnd() && a.Mismatches <= opts.MaxErrors && a.PassQC {
			good = append(good, a)
		}
	}
	if len(good) == 0 {
		// A read with no acceptable placement contributes nothing.
		return 0, nil
	}
	weight := 1.0 / float64(len(good))

	for _, a := range good {
		if a.Seq == "*" {
			a.SetSeq(seq, forward)
		}
	}
	for _, a := range good {
		p, ok := pileups[a.RefName]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownReference, a.RefName)
		}
		if err := p.AddAlignment(a, weight); err != nil {
			return 0, err
		}
	}
	return len(good), nil
}

// donorSeq finds an alignment in the group that carries the read sequence
// and returns it with its strand, for filling in "*" siblings.
func donorSeq(group []*align.Record) (string, bool, error) {
	for _, a := range group {
		if a.Seq != "*" {
			return a.Seq, a.Forward(), nil
		}
	}
	return "", false, fmt.Errorf("%w: read %s", ErrMissingReadSequence, group[0].Name)
}
