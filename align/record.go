// Package align parses text-format SAM alignment records and derives the
// per-reference-position read base mapping used by the pileup engine.
//
// Records are parsed from single SAM lines rather than through a full
// BAM/PAM reader because the polishing workflow both consumes and re-emits
// the aligner's text output verbatim (the concordance filter must copy
// passing lines through byte-identical).
package align

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/polish/seqio"
)

// FailTag is the auxiliary field appended to alignments rejected by the
// concordance filter. Records carrying it are excluded from polishing.
const FailTag = "ZP:Z:fail"

// Record is one alignment of one read against the assembly. All fields are
// fixed at parse time except Seq, which may be filled in later from a
// sibling alignment of the same read (SetSeq) when the aligner emitted the
// "*" placeholder.
type Record struct {
	Name     string
	RefName  string
	RefStart int // 0-based
	Cigar    sam.Cigar
	Seq      string // uppercase; "*" if omitted by the aligner

	// Mismatches is the edit distance reported by the aligner (NM tag).
	Mismatches int
	// PassQC is false iff the record carries FailTag from a previous
	// filtering pass.
	PassQC bool

	flags int
}

// Parse parses a full SAM line, including the fields needed for polishing.
// Mapped records must carry an NM tag.
func Parse(line string) (*Record, error) {
	r, fields, err := parseCommon(line)
	if err != nil {
		return nil, err
	}
	r.Seq = strings.ToUpper(fields[9])

	r.Mismatches = -1
	for _, f := range fields[11:] {
		if strings.HasPrefix(f, "NM:i:") {
			nm, err := strconv.Atoi(f[5:])
			if err != nil || nm < 0 {
				return nil, fmt.Errorf("malformed NM tag %q for read %s", f, r.Name)
			}
			r.Mismatches = nm
		}
		if strings.EqualFold(f, FailTag) {
			r.PassQC = false
		}
	}
	if r.Mismatches < 0 {
		if r.Mapped() {
			return nil, fmt.Errorf("missing NM tag for read %s", r.Name)
		}
		r.Mismatches = 0
	}
	return r, nil
}

// ParseLite parses only the positional fields used by the concordance
// filter. It does not retain the read sequence and does not require an NM
// tag, so it is safe on SAM output from aligners that omit either.
func ParseLite(line string) (*Record, error) {
	r, _, err := parseCommon(line)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func parseCommon(line string) (*Record, []string, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 11 {
		return nil, nil, fmt.Errorf("too few columns")
	}
	flags, err := strconv.Atoi(fields[1])
	if err != nil || flags < 0 {
		return nil, nil, fmt.Errorf("malformed FLAG field %q", fields[1])
	}
	pos, err := strconv.Atoi(fields[3])
	if err != nil || pos < 0 {
		return nil, nil, fmt.Errorf("malformed POS field %q", fields[3])
	}
	if pos > 0 {
		pos-- // SAM positions are 1-based
	}
	cigar, err := parseCigar(fields[5])
	if err != nil {
		return nil, nil, fmt.Errorf("%w for read %s", err, fields[0])
	}
	return &Record{
		Name:     fields[0],
		RefName:  fields[2],
		RefStart: pos,
		Cigar:    cigar,
		PassQC:   true,
		flags:    flags,
	}, fields, nil
}

// Mapped reports whether the read is aligned (SAM flag 0x4 unset).
func (r *Record) Mapped() bool { return r.flags&0x4 == 0 }

// Forward reports whether the alignment is on the forward strand (SAM flag
// 0x10 unset).
func (r *Record) Forward() bool { return r.flags&0x10 == 0 }

// Secondary reports whether the aligner marked this a secondary alignment
// (SAM flag 0x100). Secondary records carry the same evidence weight as
// primary ones here; multi-mapping is handled by depth normalization.
func (r *Record) Secondary() bool { return r.flags&0x100 != 0 }

// SetSeq fills in a "*" record's sequence from a sibling alignment of the
// same read, reverse-complementing when the strands differ. forward is the
// strand of the donor alignment.
func (r *Record) SetSeq(seq string, forward bool) {
	if r.Forward() == forward {
		r.Seq = seq
	} else {
		r.Seq = seqio.ReverseComplement(seq)
	}
}

func (r *Record) String() string {
	strand := "+"
	if !r.Forward() {
		strand = "-"
	}
	return fmt.Sprintf("%s:%s%s:%d-%d", r.Name, r.RefName, strand, r.RefStart, r.RefEnd())
}
