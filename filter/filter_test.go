package filter

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/polish/align"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestPass(t *testing.T) {
	thresholds := Thresholds{Low: 300, High: 400, Orientation: ForwardReverse}
	a := alignAt(t, "m", 0, 1000)
	good := alignAt(t, "m", 16, 1200) // insert 350
	bad := alignAt(t, "m", 16, 90000) // way out of range

	// No pair alignments at all: pass.
	expect.True(t, pass(a, []*align.Record{a, alignAt(t, "m", 0, 5000)}, nil, thresholds))
	// Unique placement: pass regardless of the pair.
	expect.True(t, pass(a, []*align.Record{a}, []*align.Record{bad}, thresholds))
	// Multi-mapped: pass only with a concordant pair alignment.
	expect.True(t, pass(a, []*align.Record{a, a}, []*align.Record{bad, good}, thresholds))
	expect.False(t, pass(a, []*align.Record{a, a}, []*align.Record{bad}, thresholds))
}

func samLine(name string, flags, pos int) string {
	return fmt.Sprintf("%s\t%d\tx\t%d\t60\t150M\t*\t0\t0\tACTG\tKKKK\tNM:i:0", name, flags, pos)
}

func TestFilter(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()

	// Five unique fr pairs (inserts 350..390) calibrate the thresholds. The
	// read "m" is multi-mapped in file 1: one placement is concordant with
	// its mate, the other is not.
	lines1 := []string{"@HD\tVN:1.6"}
	lines2 := []string{"@HD\tVN:1.6"}
	for i, pos2 := range []int{1200, 2210, 3220, 4230, 5240} {
		name := fmt.Sprintf("r%d", i)
		lines1 = append(lines1, samLine(name, 0, (i+1)*1000))
		lines2 = append(lines2, samLine(name, 16, pos2))
	}
	lines1 = append(lines1, samLine("m", 0, 10000), samLine("m", 0, 50000))
	lines2 = append(lines2, samLine("m", 16, 10200))
	lines1 = append(lines1, "u\t4\t*\t0\t0\t*\t*\t0\t0\tACGT\tKKKK")

	opts := DefaultOpts
	opts.In1 = filepath.Join(tmpDir, "in1.sam")
	opts.In2 = filepath.Join(tmpDir, "in2.sam")
	opts.Out1 = filepath.Join(tmpDir, "out1.sam")
	opts.Out2 = filepath.Join(tmpDir, "out2.sam")
	assert.NoError(t, ioutil.WriteFile(opts.In1, []byte(strings.Join(lines1, "\n")+"\n"), 0600))
	assert.NoError(t, ioutil.WriteFile(opts.In2, []byte(strings.Join(lines2, "\n")+"\n"), 0600))

	assert.NoError(t, Filter(ctx, opts))

	got1, err := ioutil.ReadFile(opts.Out1)
	assert.NoError(t, err)
	want1 := lines1
	// Only m's discordant placement gets flagged; everything else is
	// byte-identical, headers and unmapped lines included.
	want1[7] = samLine("m", 0, 50000) + "\t" + align.FailTag
	expect.EQ(t, string(got1), strings.Join(want1, "\n")+"\n")

	got2, err := ioutil.ReadFile(opts.Out2)
	assert.NoError(t, err)
	expect.EQ(t, string(got2), strings.Join(lines2, "\n")+"\n")
}

func TestOptsValidate(t *testing.T) {
	opts := DefaultOpts
	opts.In1, opts.In2 = "a.sam", "b.sam"
	opts.Out1, opts.Out2 = "c.sam", "d.sam"
	expect.NoError(t, opts.validate())

	bad := opts
	bad.Out2 = bad.Out1
	expect.HasSubstr(t, bad.validate().Error(), "unique")

	bad = opts
	bad.Low = 50
	expect.HasSubstr(t, bad.validate().Error(), "low percentile")

	bad = opts
	bad.High = 100
	expect.HasSubstr(t, bad.validate().Error(), "high percentile")
}
