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

package pileup

import "math"

// Status classifies the consensus decision at one position.
type Status int

const (
	// DepthTooLow: not enough weighted depth to call anything.
	DepthTooLow Status = iota
	// NoValidOptions: no vote reached the valid threshold.
	NoValidOptions
	// MultipleValidOptions: more than one vote reached the valid
	// threshold.
	MultipleValidOptions
	// TooClose: one valid vote, but a runner-up sits between the two
	// thresholds.
	TooClose
	// OriginalBaseKept: one clear valid vote matching the original base.
	OriginalBaseKept
	// Changed: one clear valid vote differing from the original base.
	Changed
)

var statusNames = [...]string{"low_depth", "none", "multiple", "too_close", "kept", "changed"}

func (s Status) String() string { return statusNames[s] }

// Consensus is the decision for one position. Only Changed adopts a new
// sequence; every other status keeps the original base.
type Consensus struct {
	Seq    string // the resolved sequence, possibly Deletion or multi-base
	Status Status

	// Thresholds actually used, for the debug output.
	ValidThreshold, InvalidThreshold int
}

// Resolve applies the dual-threshold decision rule:
//
//	validThreshold   = max(minDepth, roundHalfToEven(depth*fractionValid))
//	invalidThreshold = roundHalfToEven(depth*fractionInvalid)
//
// A vote with count >= validThreshold is valid; one with
// invalidThreshold <= count < validThreshold is intermediate. The position
// changes only when there is exactly one valid vote, no intermediate
// votes, and the depth itself clears minDepth.
func (b *Base) Resolve(minDepth int, fractionValid, fractionInvalid float64) Consensus {
	validThreshold := roundHalfToEven(b.depth * fractionValid)
	if validThreshold < minDepth {
		validThreshold = minDepth
	}
	invalidThreshold := roundHalfToEven(b.depth * fractionInvalid)

	var valid, intermediate []string
	classify := func(seq string, count int) {
		if count >= validThreshold {
			valid = append(valid, seq)
		} else if count >= invalidThreshold {
			intermediate = append(intermediate, seq)
		}
	}
	classify("A", b.countA)
	classify("C", b.countC)
	classify("G", b.countG)
	classify("T", b.countT)
	for seq, count := range b.counts {
		classify(seq, count)
	}

	c := Consensus{
		Seq:              string(b.original),
		Status:           OriginalBaseKept,
		ValidThreshold:   validThreshold,
		InvalidThreshold: invalidThreshold,
	}
	switch {
	case b.depth < float64(minDepth):
		c.Status = DepthTooLow
	case len(valid) == 1:
		if len(intermediate) > 0 {
			c.Status = TooClose
		} else {
			c.Seq = valid[0]
			if c.Seq != string(b.original) {
				c.Status = Changed
			}
		}
	case len(valid) == 0:
		c.Status = NoValidOptions
	default:
		c.Status = MultipleValidOptions
	}
	return c
}

// roundHalfToEven does banker's rounding: round half to even at the
// integer boundary, matching the statistical convention the thresholds
// were tuned with.
func roundHalfToEven(x float64) int {
	return int(math.RoundToEven(x))
}
