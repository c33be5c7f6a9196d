/*
NAME
  manifest.go

DESCRIPTION
  manifest.go implements the read-only MPD object model a conformance run
  walks: MPD -> Period -> AdaptationSet -> Representation -> Segment, with
  byte ranges and times normalized to a 90kHz presentation clock at load
  time.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package manifest provides a read-only DASH MPD object model loaded from
// XML, and the one structural invariant the core checks on every
// representation's segment list.
package manifest

import (
	"encoding/xml"
	"io"

	"github.com/pkg/errors"
)

// ClockRate is the presentation clock every time value in the in-memory
// model is normalized to, matching the 90kHz clock the TS/PES layer uses.
const ClockRate = 90000

// OptionalBool is the tri-state {unset, bool, integer} flag the
// segmentAlignment/subsegmentAlignment attributes carry. The integer case
// (an alignment group number) folds to true: any non-zero alignment group
// counts as aligned for every consumer in this codebase.
type OptionalBool struct {
	HasValue bool
	Value    bool
}

// ByteRange is an inclusive [Start, End] byte range within a file, as used
// by the DASH @mediaRange/@indexRange attributes.
type ByteRange struct {
	Start, End int64
}

// MPD is the root of a parsed manifest.
type MPD struct {
	Periods []*Period
}

// Period is an ordered, duration-bearing container of adaptation sets.
type Period struct {
	Duration        int64 // 90kHz clock
	AdaptationSets []*AdaptationSet
}

// AdaptationSet groups representations that are switchable at a segment
// boundary.
type AdaptationSet struct {
	Profile              string
	MimeType              string
	AudioPID              uint16
	VideoPID              uint16
	BitstreamSwitching    OptionalBool
	SegmentAlignment      OptionalBool
	SubsegmentAlignment   OptionalBool
	Representations       []*Representation
}

// Representation is one encoded rendition within an adaptation set.
type Representation struct {
	ID                      string
	Bandwidth               uint64
	PresentationTimeOffset  int64 // 90kHz clock
	Timescale               uint32
	StartWithSAP            int // 0-6
	Initialization          *FileRef
	Index                   *FileRef
	BitstreamSwitchingFile  *FileRef
	Segments                []*Segment
}

// FileRef names a file and an optional byte range within it.
type FileRef struct {
	Path  string
	Range *ByteRange
}

// Segment is one media segment of a representation.
type Segment struct {
	Media      FileRef
	Start      int64 // 90kHz clock
	Duration   int64 // 90kHz clock
	Index      *FileRef
}

// End returns Start+Duration, the presentation time the next segment, if
// contiguous, is expected to start at.
func (s *Segment) End() int64 { return s.Start + s.Duration }

// CheckOrdering reports the index of the first segment whose end does not
// equal the next segment's start, or -1 if every segment in the
// representation is contiguous with the next. This is a conformance check,
// not a parse-time check: a manifest that fails it still loads.
func (r *Representation) CheckOrdering() int {
	for i := 0; i+1 < len(r.Segments); i++ {
		if r.Segments[i].End() != r.Segments[i+1].Start {
			return i
		}
	}
	return -1
}

// Load parses an MPD document from r. Times expressed in the XML as
// ISO 8601 durations are converted to the 90kHz clock at parse time; all
// other model invariants (segment ordering, non-negative times) are left to
// the caller to check via CheckOrdering, so that a malformed manifest still
// loads and can be reported as a conformance failure rather than a parse
// error.
func Load(r io.Reader) (*MPD, error) {
	var doc mpdXML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "manifest: decoding MPD XML")
	}
	return doc.toModel()
}
