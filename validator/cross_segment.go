/*
NAME
  cross_segment.go

DESCRIPTION
  cross_segment.go implements the cross-segment conformance checker: the
  timing/gap matrices across a representation's own segments and across
  sibling representations, plus the mp2t-simple profile's
  cross-representation PID/version identity checks.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package validator

import "github.com/ausocean/utils/logging"

// DeclaredSegment is the manifest-declared timing a RepresentationReport's
// segment is checked against.
type DeclaredSegment struct {
	StartTime int64
	EndTime   int64
}

// RepresentationReport bundles one representation's segment validation
// results for cross-segment checking.
type RepresentationReport struct {
	ID        string
	IsVideo   bool
	Declared  []DeclaredSegment
	Segments  []*SegmentResult
}

// CrossSegmentResult is the output of ValidateCrossSegment.
type CrossSegmentResult struct {
	Status *Status
}

// ValidateCrossSegment runs the timing/gap/identity matrices over one
// adaptation set's representation reports. simpleProfile enables the mp2t-simple
// profile's additional cross-representation PID/version identity checks.
func ValidateCrossSegment(reps []*RepresentationReport, simpleProfile bool, log logging.Logger) *CrossSegmentResult {
	st := NewStatus()

	for _, rep := range reps {
		checkTimingMatrix(st, rep)
	}

	checkGapMatrix(st, reps)

	if simpleProfile {
		checkIdentity(st, reps)
	}

	if log != nil && !st.OK {
		log.Warning("cross-segment validation reported failures", "count", len(st.Failures))
	}
	return &CrossSegmentResult{Status: st}
}

// checkTimingMatrix compares each segment's actual PTS range against its
// declared [start,end) manifest timing. A video representation's timing
// delta is a conformance failure; other representations' deltas are
// advisories only.
func checkTimingMatrix(st *Status, rep *RepresentationReport) {
	n := len(rep.Segments)
	if len(rep.Declared) < n {
		n = len(rep.Declared)
	}
	for i := 0; i < n; i++ {
		seg := rep.Segments[i]
		decl := rep.Declared[i]
		if !seg.SawPTS {
			continue
		}
		startDelta := int64(seg.EarliestPTS) - decl.StartTime
		endDelta := int64(seg.LatestPTS) - decl.EndTime
		if startDelta == 0 && endDelta == 0 {
			continue
		}
		msg := "cross-segment: actual PTS range does not match declared segment timing"
		if rep.IsVideo {
			st.Fail(msg, 0, int64(i))
		} else {
			st.Advise(msg, 0, int64(i))
		}
	}
}

// checkGapMatrix compares consecutive segments' actual PTS ranges within
// each representation and flags an overlap (a segment whose earliest PTS
// precedes the previous segment's latest PTS) as an advisory. A gap
// between segments is not flagged, and segments of different
// representations are not compared with each other.
func checkGapMatrix(st *Status, reps []*RepresentationReport) {
	for _, rep := range reps {
		for i := 1; i < len(rep.Segments); i++ {
			prev, cur := rep.Segments[i-1], rep.Segments[i]
			if !prev.SawPTS || !cur.SawPTS {
				continue
			}
			if cur.EarliestPTS < prev.LatestPTS {
				st.Advise("cross-segment: segment PTS range overlaps the previous segment's", 0, int64(i))
			}
		}
	}
}

// checkIdentity enforces the mp2t-simple profile's requirement that every
// representation in an adaptation set share the same video/audio/PCR PID
// and the same PMT program number and version.
func checkIdentity(st *Status, reps []*RepresentationReport) {
	var ref *PMTInfo
	for _, rep := range reps {
		for _, seg := range rep.Segments {
			if seg.PMT == nil {
				continue
			}
			if ref == nil {
				ref = seg.PMT
				continue
			}
			if seg.PMT.VideoPID != ref.VideoPID || seg.PMT.AudioPID != ref.AudioPID ||
				seg.PMT.PCRPID != ref.PCRPID {
				st.Fail("cross-segment: representation PIDs are not identical across the adaptation set (mp2t-simple requires it)", seg.PMT.VideoPID, 0)
			}
			if seg.PMT.ProgramNumber != ref.ProgramNumber || seg.PMT.Version != ref.Version {
				st.Fail("cross-segment: PMT program number/version differ across representations (mp2t-simple requires identical PMTs)", seg.PMT.VideoPID, 0)
			}
		}
	}
}
