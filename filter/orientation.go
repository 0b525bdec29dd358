// Package filter implements the paired-end concordance filter: it infers
// the read set's correct pair orientation and insert size range from
// unambiguous pairs, then flags multi-mapped alignments that are not part
// of a concordant pair so the polisher ignores them.
package filter

import (
	"fmt"

	"github.com/grailbio/polish/align"
)

// Orientation is the forward/reverse geometry of a read pair on the
// reference. Auto means "infer from the data".
type Orientation int

const (
	// ReverseReverse is mate 1 and mate 2 both reverse (reading left to
	// right from mate 1's side).
	ReverseReverse Orientation = iota
	// ReverseForward is outward-pointing mates.
	ReverseForward
	// ForwardReverse is inward-pointing mates, the usual Illumina
	// paired-end geometry.
	ForwardReverse
	// ForwardForward is both mates on the same strand.
	ForwardForward
	// Auto defers orientation choice to the calibration pass.
	Auto
)

var orientationNames = [...]string{"rr", "rf", "fr", "ff", "auto"}

// orientations lists the concrete orientations, in the order they are
// reported during calibration.
var orientations = [...]Orientation{ForwardReverse, ReverseForward, ForwardForward, ReverseReverse}

func (o Orientation) String() string {
	if o < 0 || int(o) >= len(orientationNames) {
		return fmt.Sprintf("Orientation(%d)", int(o))
	}
	return orientationNames[o]
}

// ParseOrientation parses the command-line form of an Orientation (ff, fr,
// rf, rr or auto).
func ParseOrientation(s string) (Orientation, error) {
	for i, name := range orientationNames {
		if s == name {
			return Orientation(i), nil
		}
	}
	return Auto, fmt.Errorf("invalid orientation %q (want ff, fr, rf, rr or auto)", s)
}

// anchor is the position the sequencer read outward from: the leftmost
// reference position for a forward alignment, the rightmost for a reverse
// one.
func anchor(r *align.Record) int {
	if r.Forward() {
		return r.RefStart
	}
	return r.RefEnd()
}

// PairOrientation classifies the geometry of two alignments of a read
// pair. The alignment with the strictly smaller anchor is the left one (b
// wins ties). When a is the left alignment the orientation is named by
// (a's strand, b's strand); when b is, both strands are flipped so the
// name still reads from a's side. For example, two forward alignments are
// ff when a is left and rr when b is.
func PairOrientation(a, b *align.Record) Orientation {
	aFwd, bFwd := a.Forward(), b.Forward()
	if anchor(a) >= anchor(b) {
		aFwd, bFwd = !aFwd, !bFwd
	}
	switch {
	case aFwd && bFwd:
		return ForwardForward
	case aFwd:
		return ForwardReverse
	case bFwd:
		return ReverseForward
	default:
		return ReverseReverse
	}
}

// InsertSize is the outer envelope of the two alignments' reference
// footprints. Taking the envelope rather than the gap handles nested and
// overlapping pairs without special cases.
func InsertSize(a, b *align.Record) int {
	lo, hi := a.RefStart, a.RefEnd()
	for _, pos := range [2]int{b.RefStart, b.RefEnd()} {
		if pos < lo {
			lo = pos
		}
		if pos > hi {
			hi = pos
		}
	}
	return hi - lo
}
