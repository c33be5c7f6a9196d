/*
NAME
  index.go

DESCRIPTION
  index.go implements the index-segment validator: parses a styp/sidx/
  ssix/pcrb box stream into a per-segment list of Subsegment descriptors,
  grounded on tslib's segment_validator.c validate_index_segment and
  analyze_sidx_references.

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

import (
	"github.com/ausocean/utils/logging"

	"github.com/ausocean/tsconform/bmff"
)

// brandSingle and brandMulti are the styp compatible brands distinguishing
// a single-segment index from a per-representation index, per ISO/IEC
// 23009-1 Annex I.
const (
	brandSingle = "sisx"
	brandMulti  = "risx"
	brandSsix   = "ssss"
)

// IndexSegmentValidator is the result of validating one index file.
type IndexSegmentValidator struct {
	Status             *Status
	SegmentSubsegments [][]Subsegment
}

// DeclaredDuration is the caller-supplied per-segment duration the master
// sidx of a multi-segment index is checked against.
type DeclaredDuration struct {
	Duration uint64
}

// ValidateIndexSegment runs a two-pass walk over data, a fully-read index
// file, checking it against the owning representation's
// declared segment durations and the adaptation set's video PID. declared
// may be nil when validating a single-segment (sisx) index, which carries
// no master sidx to check.
func ValidateIndexSegment(data []byte, declared []DeclaredDuration, videoPID uint16, log logging.Logger) *IndexSegmentValidator {
	st := NewStatus()
	v := &IndexSegmentValidator{Status: st}

	boxes, err := bmff.ReadBoxes(data)
	if err != nil {
		st.Fail("index segment: failed to parse box stream: "+err.Error(), videoPID, 0)
		return v
	}
	if len(boxes) == 0 || boxes[0].Styp == nil {
		st.Fail("index segment: first box is not styp", videoPID, 0)
		return v
	}

	isMulti := hasBrand(boxes[0].Styp, brandMulti)
	isSingle := hasBrand(boxes[0].Styp, brandSingle)
	if !isMulti && !isSingle {
		st.Fail("index segment: styp carries neither sisx nor risx brand", videoPID, boxes[0].Header.Pos)
	}
	checkSsix := hasBrand(boxes[0].Styp, brandSsix)

	idx := 1
	var master *bmff.SidxBox
	if isMulti {
		if idx >= len(boxes) || boxes[idx].Sidx == nil {
			st.Fail("index segment: second box is not sidx for representation index", videoPID, 0)
			return v
		}
		master = boxes[idx].Sidx
		if master.ReferenceID != uint32(videoPID) {
			st.Fail("index segment: master sidx reference_id does not match adaptation set video PID", videoPID, boxes[idx].Header.Pos)
		}
		if len(master.References) != len(declared) {
			st.Fail("index segment: master sidx reference_count does not match segment count", videoPID, boxes[idx].Header.Pos)
		}
		for i, ref := range master.References {
			if ref.ReferenceType != 1 {
				st.Fail("index segment: master sidx reference is not nested (reference_type != 1)", videoPID, boxes[idx].Header.Pos)
			}
			if i < len(declared) && uint64(ref.SubsegmentDuration) != declared[i].Duration {
				st.Advise("index segment: master sidx subsegment_duration does not match declared segment duration", videoPID, boxes[idx].Header.Pos)
			}
		}
		idx++
	}

	numNested := 0
	lastWasSsix := false

	for ; idx < len(boxes); idx++ {
		b := boxes[idx]
		switch {
		case b.Sidx != nil:
			if numNested > 0 {
				numNested--
			}
			if b.Sidx.ReferenceID != uint32(videoPID) {
				st.Fail("index segment: sidx reference_id does not match video PID", videoPID, b.Header.Pos)
			}
			nested, mixed := analyzeReferences(b.Sidx)
			numNested += nested
			if mixed {
				st.Advise("index segment: sidx mixes media and nested references (Simple profile requires uniform reference_type)", videoPID, b.Header.Pos)
			}
			lastWasSsix = false
		case b.Ssix != nil:
			if !checkSsix {
				st.Advise("index segment: ssix present without ssss brand in styp", videoPID, b.Header.Pos)
			}
			if lastWasSsix {
				st.Fail("index segment: more than one ssix follows a sidx", videoPID, b.Header.Pos)
			}
			lastWasSsix = true
		case b.Pcrb != nil:
		}
	}

	subsegs, err := buildSubsegments(boxes, isMulti, videoPID)
	if err != nil {
		st.Fail("index segment: "+err.Error(), videoPID, 0)
		return v
	}
	v.SegmentSubsegments = subsegs

	if numNested != 0 {
		st.Fail("index segment: dangling nested sidx references at end of box stream", videoPID, 0)
	}

	if log != nil && !st.OK {
		log.Warning("index segment validation reported failures", "count", len(st.Failures))
	}
	return v
}

func hasBrand(s *bmff.StypBox, brand string) bool {
	want := fourCC(brand)
	if s.MajorBrand == want {
		return true
	}
	for _, b := range s.CompatibleBrands {
		if b == want {
			return true
		}
	}
	return false
}

func fourCC(s string) uint32 {
	return uint32(s[0])<<24 | uint32(s[1])<<16 | uint32(s[2])<<8 | uint32(s[3])
}

// analyzeReferences counts nested references in sidx and reports whether
// its reference list mixes media (type 0) and nested (type 1) references,
// grounded on tslib's analyze_sidx_references.
func analyzeReferences(sidx *bmff.SidxBox) (nested int, mixed bool) {
	var sawMedia, sawNested bool
	for _, ref := range sidx.References {
		if ref.ReferenceType == 1 {
			nested++
			sawNested = true
		} else {
			sawMedia = true
		}
	}
	return nested, sawMedia && sawNested
}

// buildSubsegments is the second pass: walk the boxes again, this time
// tracking a byte cursor and start time per segment and emitting one
// Subsegment per media reference, with ssix offsets resolved against the
// immediately preceding sidx's reference list.
//
// The byte cursor is reset, not accumulated, each time a sidx opens a new
// top-level segment (numNested == 0 on entry): representation-index byte
// offsets are anchored per segment. It is only accumulated with a sidx's
// own first_offset when that sidx is itself being visited as a previously
// counted nested reference (numNested > 0 on entry) — a nested reference's
// first_offset is applied once, when the nested box is reached, not when
// the reference to it is first seen in its parent's reference list.
// Grounded on tslib's segment_validator.c's second box-stream walk.
func buildSubsegments(boxes []bmff.Box, isMulti bool, videoPID uint16) ([][]Subsegment, error) {
	var segments [][]Subsegment
	var cur []Subsegment
	var byteCursor uint64
	var lastStartTime uint64
	var lastDuration uint64
	numNested := 0

	idx := 1 // skip styp
	if isMulti {
		idx = 2 // also skip the master sidx, handled by the caller already
	}

	for ; idx < len(boxes); idx++ {
		b := boxes[idx]
		if b.Sidx == nil {
			continue
		}
		sidx := b.Sidx
		if numNested > 0 {
			numNested--
			byteCursor += sidx.FirstOffset
		} else {
			if cur != nil {
				segments = append(segments, cur)
			}
			cur = nil
			lastStartTime = sidx.EarliestPresentationTime
			lastDuration = 0
			byteCursor = sidx.FirstOffset
		}

		for _, ref := range sidx.References {
			if ref.ReferenceType == 1 {
				numNested++
				continue
			}
			subStart := lastStartTime + lastDuration + uint64(ref.SAPDeltaTime)
			sub := Subsegment{
				ReferenceID:   uint16(sidx.ReferenceID),
				StartTime:     subStart,
				StartByte:     byteCursor,
				EndByte:       byteCursor + uint64(ref.ReferencedSize),
				StartsWithSAP: ref.StartsWithSAP,
				SAPType:       ref.SAPType,
			}
			cur = append(cur, sub)
			byteCursor += uint64(ref.ReferencedSize)
			lastStartTime = subStart
			lastDuration = uint64(ref.SubsegmentDuration)
		}
	}
	if cur != nil {
		segments = append(segments, cur)
	}

	// Resolve ssix offsets against whichever sidx most recently opened a
	// subsegment group.
	segPos := 0
	for i := 0; i < len(boxes); i++ {
		if boxes[i].Ssix == nil {
			continue
		}
		if segPos >= len(segments) {
			continue
		}
		segSubs := segments[segPos]
		if len(boxes[i].Ssix.Subsegments) != len(segSubs) {
			continue
		}
		for j, sub := range boxes[i].Ssix.Subsegments {
			cursor := segSubs[j].StartByte
			var offsets []uint64
			for _, rg := range sub.Ranges {
				cursor += uint64(rg.RangeSize)
				offsets = append(offsets, cursor)
			}
			segSubs[j].SsixOffsets = offsets
		}
		segPos++
	}

	return segments, nil
}
