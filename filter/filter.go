package filter

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/polish/align"
	"github.com/grailbio/polish/util"
)

const (
	mate1Suffix = "_1"
	mate2Suffix = "_2"

	scanBufSize = 64 * 1024 * 1024
)

// Opts configures a concordance-filter run.
type Opts struct {
	In1, In2   string // input SAM paths, one per mate
	Out1, Out2 string // output SAM paths

	Orientation Orientation
	Low, High   float64 // calibration percentiles
}

// DefaultOpts holds the default filter settings.
var DefaultOpts = Opts{
	Orientation: Auto,
	Low:         0.1,
	High:        99.9,
}

func (o *Opts) validate() error {
	paths := map[string]bool{}
	for _, p := range []string{o.In1, o.In2, o.Out1, o.Out2} {
		if paths[p] {
			return fmt.Errorf("in1, in2, out1 and out2 must all have unique values")
		}
		paths[p] = true
	}
	if o.Low <= 0 || o.Low >= 50 {
		return fmt.Errorf("low percentile must be greater than 0 and less than 50")
	}
	if o.High <= 50 || o.High >= 100 {
		return fmt.Errorf("high percentile must be greater than 50 and less than 100")
	}
	return nil
}

// Filter runs the whole concordance-filter path: load both mates'
// alignments, calibrate orientation and insert size thresholds, and
// rewrite both SAM files with a FailTag appended to discordant
// multi-mapped alignments.
func Filter(ctx context.Context, opts Opts) error {
	start := time.Now()
	if err := opts.validate(); err != nil {
		return err
	}
	alignments, before, err := LoadAlignments(ctx, opts.In1, opts.In2)
	if err != nil {
		return err
	}
	thresholds, err := EstimateThresholds(alignments, opts.Orientation, opts.Low, opts.High)
	if err != nil {
		return err
	}
	after := 0
	for _, f := range []struct {
		in, out string
		mateNum int
	}{{opts.In1, opts.Out1, 1}, {opts.In2, opts.Out2, 2}} {
		pass, err := filterFile(ctx, f.in, f.out, alignments, thresholds, f.mateNum)
		if err != nil {
			return err
		}
		after += pass
	}
	log.Printf("alignments before filtering: %d", before)
	log.Printf("alignments after filtering: %d", after)
	log.Printf("filter time: %s", util.FormatDuration(time.Since(start)))
	return nil
}

// LoadAlignments reads the mapped alignments of both SAM files into a
// read-name-keyed map. Names get a "_1"/"_2" mate suffix so the two files'
// reads never collide. The total alignment count is returned alongside.
func LoadAlignments(ctx context.Context, in1, in2 string) (map[string][]*align.Record, int, error) {
	alignments := make(map[string][]*align.Record)
	total := 0
	for _, in := range []struct {
		path, suffix string
	}{{in1, mate1Suffix}, {in2, mate2Suffix}} {
		n, reads, err := loadOne(ctx, in.path, in.suffix, alignments)
		if err != nil {
			return nil, 0, err
		}
		log.Printf("%s: %d alignments from %d reads", in.path, n, reads)
		total += n
	}
	return alignments, total, nil
}

func loadOne(ctx context.Context, path, suffix string, alignments map[string][]*align.Record) (nAlign, nReads int, err error) {
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

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(nil, scanBufSize)
	lineNum := 0
	readNames := make(map[string]bool)
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if len(line) == 0 || line[0] == '@' {
			continue
		}
		rec, e := align.ParseLite(line)
		if e != nil {
			err = errors.E(e, fmt.Sprintf("%s (line %d)", path, lineNum))
			return
		}
		if !rec.Mapped() {
			continue
		}
		rec.Name += suffix
		readNames[rec.Name] = true
		alignments[rec.Name] = append(alignments[rec.Name], rec)
		nAlign++
	}
	if e := scanner.Err(); e != nil {
		err = errors.E(e, path)
		return
	}
	nReads = len(readNames)
	return
}

// filterFile re-emits one SAM file, appending align.FailTag to discordant
// records. Header and unmapped lines are copied through untouched.
func filterFile(ctx context.Context, inPath, outPath string, alignments map[string][]*align.Record, thresholds Thresholds, mateNum int) (nPass int, err error) {
	var in file.File
	if in, err = file.Open(ctx, inPath); err != nil {
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
	var out file.File
	if out, err = file.Create(ctx, outPath); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := bufio.NewWriter(out.Writer(ctx))

	thisSuffix, pairSuffix := mate1Suffix, mate2Suffix
	if mateNum == 2 {
		thisSuffix, pairSuffix = mate2Suffix, mate1Suffix
	}

	nFail := 0
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(nil, scanBufSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		emit := line
		if len(line) > 0 && line[0] != '@' {
			rec, e := align.ParseLite(line)
			if e != nil {
				err = errors.E(e, fmt.Sprintf("%s (line %d)", inPath, lineNum))
				return
			}
			if rec.Mapped() {
				this := alignments[rec.Name+thisSuffix]
				pair := alignments[rec.Name+pairSuffix]
				if pass(rec, this, pair, thresholds) {
					nPass++
				} else {
					emit = line + "\t" + align.FailTag
					nFail++
				}
			}
		}
		if _, err = w.WriteString(emit); err != nil {
			return
		}
		if err = w.WriteByte('\n'); err != nil {
			return
		}
	}
	if err = scanner.Err(); err != nil {
		err = errors.E(err, inPath)
		return
	}
	if err = w.Flush(); err != nil {
		return
	}
	log.Printf("%s: %d pass, %d fail", inPath, nPass, nFail)
	return
}

// pass applies the concordance rule to one mapped alignment:
//   - no pair alignments: pass (no paired evidence to judge by);
//   - the read's only placement: pass (never discard a unique placement);
//   - otherwise pass iff some pair alignment forms a concordant pair.
func pass(a *align.Record, this, pair []*align.Record, thresholds Thresholds) bool {
	if len(pair) == 0 {
		return true
	}
	if len(this) == 1 {
		return true
	}
	for _, p := range pair {
		if thresholds.Concordant(a, p) {
			return true
		}
	}
	return false
}
