package align

import (
	"errors"
	"fmt"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func expandString(c string) string {
	cigar, err := parseCigar(c)
	if err != nil {
		return "<err>"
	}
	out := ""
	for _, co := range cigar {
		for i := 0; i < co.Len(); i++ {
			out += co.Type().String()
		}
	}
	return out
}

func TestParseCigar(t *testing.T) {
	expect.EQ(t, expandString("10M"), "MMMMMMMMMM")
	expect.EQ(t, expandString("3M1I7M"), "MMMIMMMMMMM")
	expect.EQ(t, expandString("5M2D4M"), "MMMMMDDMMMM")
	expect.EQ(t, expandString("5=2X3="), "=====XX===")
	expect.EQ(t, expandString("*"), "")
}

func TestParseCigarBad(t *testing.T) {
	for _, c := range []string{
		"10Q",      // unknown operator
		"10MM1I7M", // doubled operator
		"100M5",    // trailing digits
		"M",        // missing length
		"",
	} {
		_, err := parseCigar(c)
		if err == nil {
			t.Errorf("parseCigar(%q): expected error", c)
			continue
		}
		expect.True(t, errors.Is(err, ErrInvalidCigar), "parseCigar(%q): %v", c, err)
	}
}

func mustParse(t *testing.T, line string) *Record {
	t.Helper()
	r, err := Parse(line)
	assert.NoError(t, err)
	return r
}

func samLine(flags int, pos int, cigar, seq string) string {
	return fmt.Sprintf("r_1\t%d\tref\t%d\t60\t%s\t*\t0\t0\t%s\tKKKK\tNM:i:0", flags, pos, cigar, seq)
}

func TestRefEnd(t *testing.T) {
	for _, tc := range []struct {
		cigar string
		end   int
	}{
		{"4M", 1003},
		{"2=1X1=", 1003},
		{"2M1I1M", 1002},
		{"2M1D1M", 1003},
	} {
		r := mustParse(t, samLine(0, 1000, tc.cigar, "ACTG"))
		expect.EQ(t, r.RefStart, 999, tc.cigar)
		expect.EQ(t, r.RefEnd(), tc.end, tc.cigar)
	}
}

func TestEndToEnd(t *testing.T) {
	expect.True(t, mustParse(t, samLine(0, 1, "4M", "ACTG")).EndToEnd())
	expect.True(t, mustParse(t, samLine(0, 1, "1X2M1=", "ACTG")).EndToEnd())
	expect.False(t, mustParse(t, samLine(0, 1, "1S3M", "ACTG")).EndToEnd())
	expect.False(t, mustParse(t, samLine(0, 1, "3M1S", "ACTG")).EndToEnd())
	expect.False(t, mustParse(t, samLine(4, 1, "*", "ACTG")).EndToEnd())
}

// rawReadBases runs the CIGAR walk without the homopolymer trim so the
// mapping logic can be checked in isolation.
func rawReadBases(t *testing.T, cigar, seq string) []Range {
	t.Helper()
	r := mustParse(t, samLine(0, 1, cigar, seq))
	i := 0
	var ranges []Range
	for _, co := range r.Cigar {
		for k := 0; k < co.Len(); k++ {
			switch co.Type().String() {
			case "M", "=", "X":
				ranges = append(ranges, Range{i, i + 1})
				i++
			case "I":
				ranges[len(ranges)-1].End = i + 1
				i++
			case "D":
				ranges = append(ranges, Range{i, i})
			}
		}
	}
	return ranges
}

func TestReadBasesPerRefBase(t *testing.T) {
	// GTCA ends with a lone A, so the trim drops exactly two entries: the
	// homopolymer run of length one plus one more.
	r := mustParse(t, samLine(0, 1, "4M", "GTCA"))
	got, err := r.ReadBasesPerRefBase()
	assert.NoError(t, err)
	expect.EQ(t, got, []Range{{0, 1}, {1, 2}})

	// Insertion folds into the preceding position's range.
	r = mustParse(t, samLine(0, 1, "2M1I2M", "GTCAG"))
	got, err = r.ReadBasesPerRefBase()
	assert.NoError(t, err)
	expect.EQ(t, got, []Range{{0, 1}, {1, 3}})

	// Deletion yields an empty range.
	r = mustParse(t, samLine(0, 1, "2M1D2M", "GTCA"))
	got, err = r.ReadBasesPerRefBase()
	assert.NoError(t, err)
	expect.EQ(t, got, []Range{{0, 1}, {1, 2}, {2, 2}})
}

func TestReadBasesSeqMismatch(t *testing.T) {
	r := mustParse(t, samLine(0, 1, "3M", "ACTG"))
	_, err := r.ReadBasesPerRefBase()
	expect.True(t, errors.Is(err, ErrCigarSeqMismatch), "got %v", err)
}

func TestReadBasesUnexpectedOp(t *testing.T) {
	r := mustParse(t, samLine(0, 1, "1S3M", "ACTG"))
	_, err := r.ReadBasesPerRefBase()
	expect.True(t, errors.Is(err, ErrUnexpectedCigarOp), "got %v", err)
}

func TestTrimHomopolymer(t *testing.T) {
	// Trailing AAA run: the run plus one more entry goes, 4 removed total.
	ranges := rawReadBases(t, "7M", "GTCGAAA")
	expect.EQ(t, trimHomopolymer(ranges, "GTCGAAA"), []Range{{0, 1}, {1, 2}, {2, 3}})

	// Run longer than the alignment: everything goes.
	ranges = rawReadBases(t, "3M", "AAA")
	expect.EQ(t, len(trimHomopolymer(ranges, "AAA")), 0)

	// No run: just the final base plus one more.
	ranges = rawReadBases(t, "4M", "GTCA")
	expect.EQ(t, trimHomopolymer(ranges, "GTCA"), []Range{{0, 1}, {1, 2}})
}
