package align

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/grailbio/hts/sam"
)

var (
	// ErrInvalidCigar means a CIGAR string could not be decoded as a
	// sequence of length+operator runs.
	ErrInvalidCigar = errors.New("invalid CIGAR string")
	// ErrUnexpectedCigarOp means a CIGAR operator other than M/=/X/I/D was
	// found while deriving the read base mapping. Only end-to-end
	// alignments reach that stage, so clipping and skip operators are a
	// caller bug or aligner incompatibility.
	ErrUnexpectedCigarOp = errors.New("unexpected CIGAR operation")
	// ErrCigarSeqMismatch means the CIGAR consumed a different number of
	// read bases than the read sequence contains.
	ErrCigarSeqMismatch = errors.New("CIGAR does not match read sequence")
)

var cigarOpTypes = map[byte]sam.CigarOpType{
	'M': sam.CigarMatch,
	'I': sam.CigarInsertion,
	'D': sam.CigarDeletion,
	'N': sam.CigarSkipped,
	'S': sam.CigarSoftClipped,
	'H': sam.CigarHardClipped,
	'P': sam.CigarPadded,
	'=': sam.CigarEqual,
	'X': sam.CigarMismatch,
}

// parseCigar decodes a text CIGAR into hts ops. Unlike sam.ParseCigar it is
// strict: every byte must belong to a digit run followed by a known
// operator, so truncated strings ("100M5"), doubled operators ("10MM") and
// unknown operators are rejected rather than silently mis-parsed. "*" maps
// to an empty Cigar.
func parseCigar(s string) (sam.Cigar, error) {
	if s == "*" {
		return nil, nil
	}
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidCigar)
	}
	var cigar sam.Cigar
	for i := 0; i < len(s); {
		j := i
		for j < len(s) && '0' <= s[j] && s[j] <= '9' {
			j++
		}
		if j == i || j == len(s) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCigar, s)
		}
		n, err := strconv.Atoi(s[i:j])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCigar, s)
		}
		op, ok := cigarOpTypes[s[j]]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCigar, s)
		}
		cigar = append(cigar, sam.NewCigarOp(op, n))
		i = j + 1
	}
	return cigar, nil
}

// RefEnd returns the position one past the last reference base covered by
// the alignment. Only reference-consuming operators (M, D, N, =, X) count.
func (r *Record) RefEnd() int {
	end := r.RefStart
	for _, co := range r.Cigar {
		end += co.Len() * co.Type().Consumes().Reference
	}
	return end
}

// EndToEnd reports whether the alignment both starts and ends with an
// aligned base (M/=/X), i.e. has no clipping at either end.
func (r *Record) EndToEnd() bool {
	if len(r.Cigar) == 0 {
		return false
	}
	return isMatchOp(r.Cigar[0].Type()) && isMatchOp(r.Cigar[len(r.Cigar)-1].Type())
}

func isMatchOp(t sam.CigarOpType) bool {
	return t == sam.CigarMatch || t == sam.CigarEqual || t == sam.CigarMismatch
}

// Range is a half-open index range into a read sequence. Start == End marks
// a deletion (no read base at the reference position).
type Range struct {
	Start, End int
}

// ReadBasesPerRefBase returns one Range per reference position spanned by
// the alignment, starting at RefStart. Matches map to single bases,
// insertions are folded into the preceding reference position's range, and
// deletions produce empty ranges. The trailing homopolymer correction is
// applied before returning, so the result may be shorter than the
// alignment's reference footprint, or empty.
func (r *Record) ReadBasesPerRefBase() ([]Range, error) {
	i := 0
	ranges := make([]Range, 0, len(r.Seq))
	for _, co := range r.Cigar {
		n := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for k := 0; k < n; k++ {
				ranges = append(ranges, Range{i, i + 1})
				i++
			}
		case sam.CigarInsertion:
			if len(ranges) == 0 {
				return nil, fmt.Errorf("%w for read %s: insertion before first aligned base", ErrUnexpectedCigarOp, r.Name)
			}
			for k := 0; k < n; k++ {
				ranges[len(ranges)-1].End = i + 1
				i++
			}
		case sam.CigarDeletion:
			for k := 0; k < n; k++ {
				ranges = append(ranges, Range{i, i})
			}
		default:
			return nil, fmt.Errorf("%w for read %s: %v", ErrUnexpectedCigarOp, r.Name, r.Cigar)
		}
	}
	if i != len(r.Seq) {
		return nil, fmt.Errorf("%w for read %s", ErrCigarSeqMismatch, r.Name)
	}
	return trimHomopolymer(ranges, r.Seq), nil
}

// trimHomopolymer drops the trailing run of ranges whose addressed read
// substring equals the final one, plus one more range. Reads ending inside
// a homopolymer can align cleanly one repeat unit short or long of the true
// boundary, so the vote at the boundary position cannot be trusted.
func trimHomopolymer(ranges []Range, seq string) []Range {
	if len(ranges) == 0 {
		return ranges
	}
	last := ranges[len(ranges)-1]
	lastBase := seq[last.Start:last.End]
	for len(ranges) > 0 {
		r := ranges[len(ranges)-1]
		if seq[r.Start:r.End] != lastBase {
			break
		}
		ranges = ranges[:len(ranges)-1]
	}
	if len(ranges) > 0 {
		ranges = ranges[:len(ranges)-1]
	}
	return ranges
}
