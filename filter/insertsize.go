package filter

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/polish/align"
)

var (
	// ErrAmbiguousOrientation means auto-detection found no unique
	// majority orientation among the calibration pairs.
	ErrAmbiguousOrientation = errors.New("could not automatically determine read pair orientation")
	// ErrNoCalibrationPairs means no single-locus read pairs were
	// available to calibrate the insert size thresholds.
	ErrNoCalibrationPairs = errors.New("no read pairs available to determine insert size thresholds")
)

// Thresholds is the calibration result used to judge pair concordance.
type Thresholds struct {
	Low, High   int
	Orientation Orientation
}

// Concordant reports whether two alignments form a good pair: same
// reference, insert size within the calibrated range, and the correct
// orientation.
func (t Thresholds) Concordant(a, b *align.Record) bool {
	if a.RefName != b.RefName {
		return false
	}
	ins := InsertSize(a, b)
	return t.Low <= ins && ins <= t.High && PairOrientation(a, b) == t.Orientation
}

// EstimateThresholds infers pair geometry from the unambiguous subset of
// the read set: pairs where each mate has exactly one alignment, both on
// the same reference. Their insert sizes are bucketed by orientation; the
// chosen bucket (the explicit orientation, or the unique majority under
// Auto) then yields low/high thresholds by nearest-rank percentile.
//
// The alignments map is keyed by read name with a "_1"/"_2" mate suffix,
// as built by LoadAlignments.
func EstimateThresholds(alignments map[string][]*align.Record, orientation Orientation, lowPercentile, highPercentile float64) (Thresholds, error) {
	var sizes [4][]int
	for name, mate1 := range alignments {
		if !strings.HasSuffix(name, mate1Suffix) || len(mate1) != 1 {
			continue
		}
		mate2 := alignments[strings.TrimSuffix(name, mate1Suffix)+mate2Suffix]
		if len(mate2) != 1 || mate1[0].RefName != mate2[0].RefName {
			continue
		}
		o := PairOrientation(mate1[0], mate2[0])
		sizes[o] = append(sizes[o], InsertSize(mate1[0], mate2[0]))
	}
	for _, o := range orientations {
		log.Printf("%s: %d pairs", o, len(sizes[o]))
	}

	chosen := orientation
	if orientation == Auto {
		var err error
		if chosen, err = autoOrientation(&sizes); err != nil {
			return Thresholds{}, err
		}
		log.Printf("automatically determined correct orientation: %s", chosen)
	} else {
		log.Printf("user-specified correct orientation: %s", chosen)
	}

	bucket := sizes[chosen]
	if len(bucket) == 0 {
		return Thresholds{}, ErrNoCalibrationPairs
	}
	sort.Ints(bucket)
	t := Thresholds{
		Low:         percentile(bucket, lowPercentile),
		High:        percentile(bucket, highPercentile),
		Orientation: chosen,
	}
	log.Printf("insert size thresholds: low %d (%g%%), high %d (%g%%)", t.Low, lowPercentile, t.High, highPercentile)
	return t, nil
}

// autoOrientation picks the orientation with the strictly largest pair
// count. A tie means the data cannot be trusted to calibrate the filter.
func autoOrientation(sizes *[4][]int) (Orientation, error) {
	maxCount := 0
	for _, o := range orientations {
		if len(sizes[o]) > maxCount {
			maxCount = len(sizes[o])
		}
	}
	best := Auto
	for _, o := range orientations {
		if len(sizes[o]) == maxCount {
			if best != Auto {
				return Auto, ErrAmbiguousOrientation
			}
			best = o
		}
	}
	return best, nil
}

// percentile implements the nearest-rank method over an ascending list:
// the value with 1-indexed rank ceil(p/100*n), clamped to [1, n].
func percentile(sorted []int, p float64) int {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
