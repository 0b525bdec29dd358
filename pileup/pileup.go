// Copyright 2026 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pileup accumulates weighted per-base votes from read alignments
// and resolves each reference position to a consensus sequence.
//
// Depth here is not a raw read count: a read aligned to k accepted loci
// contributes weight 1/k at each, so repeats don't let one read vote with
// more than one read's worth of evidence.
package pileup

import (
	"fmt"
	"sort"
	"strings"

	"github.com/grailbio/polish/align"
)

// Deletion is the vote cast at a reference position the read spans but has
// no base for. Positions resolved to Deletion are dropped from the final
// sequence.
const Deletion = "-"

// Base accumulates the evidence for one reference position.
//
// A, C, G and T are by far the most common votes, so they get integer
// fast paths; everything else (the deletion marker, multi-base insertion
// strings, ambiguity codes) lands in a lazily allocated map.
type Base struct {
	original byte
	depth    float64

	countA, countC, countG, countT int
	counts                         map[string]int
}

// Original returns the reference base this position held before polishing.
func (b *Base) Original() byte { return b.original }

// Depth returns the accumulated weighted depth at this position.
func (b *Base) Depth() float64 { return b.depth }

// Add records one alignment's vote for seq at this position.
func (b *Base) Add(seq string, weight float64) {
	switch seq {
	case "A":
		b.countA++
	case "C":
		b.countC++
	case "G":
		b.countG++
	case "T":
		b.countT++
	default:
		if b.counts == nil {
			b.counts = make(map[string]int)
		}
		b.counts[seq]++
	}
	b.depth += weight
}

// CountString renders the observed votes as a sorted "Ax99,Cx1" style
// summary for the debug output.
func (b *Base) CountString() string {
	var parts []string
	for _, c := range []struct {
		seq   string
		count int
	}{{"A", b.countA}, {"C", b.countC}, {"G", b.countG}, {"T", b.countT}} {
		if c.count > 0 {
			parts = append(parts, fmt.Sprintf("%sx%d", c.seq, c.count))
		}
	}
	for seq, count := range b.counts {
		parts = append(parts, fmt.Sprintf("%sx%d", seq, count))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// Pileup holds one Base per position of a reference sequence. It is sized
// once from the reference and never resized.
type Pileup struct {
	Bases []Base
}

// New creates an empty Pileup over the given reference sequence.
func New(seq string) *Pileup {
	bases := make([]Base, len(seq))
	for i := range bases {
		bases[i].original = seq[i]
	}
	return &Pileup{Bases: bases}
}

// AddAlignment walks one alignment's reference-to-read base map and inserts
// its weighted votes, starting at the alignment's reference start. Empty
// ranges vote Deletion.
func (p *Pileup) AddAlignment(r *align.Record, weight float64) error {
	ranges, err := r.ReadBasesPerRefBase()
	if err != nil {
		return err
	}
	if r.RefStart+len(ranges) > len(p.Bases) {
		return fmt.Errorf("alignment %s extends past the end of reference %s (%d bp)", r.Name, r.RefName, len(p.Bases))
	}
	pos := r.RefStart
	for _, rg := range ranges {
		if rg.Start == rg.End {
			p.Bases[pos].Add(Deletion, weight)
		} else {
			p.Bases[pos].Add(r.Seq[rg.Start:rg.End], weight)
		}
		pos++
	}
	return nil
}
