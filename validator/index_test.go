package validator

import "testing"

func u32(v uint32) []byte { return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)} }
func u16(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }

func box(typ string, body []byte) []byte {
	size := uint32(8 + len(body))
	out := append(u32(size), []byte(typ)...)
	return append(out, body...)
}

// stypSingle builds a styp box carrying the single-segment-index brand.
func stypSingle() []byte {
	body := append(append([]byte("sisx"), u32(0)...), []byte("sisx")...)
	return box("styp", body)
}

// sidxOneMedia builds a version-0 sidx box with one media (non-nested)
// reference for referenceID on a track with the given subsegment size and
// duration.
func sidxOneMedia(referenceID uint32, size, duration uint32, sap bool, sapType uint8) []byte {
	var body []byte
	body = append(body, 0x00, 0x00, 0x00, 0x00) // version 0, flags 0
	body = append(body, u32(referenceID)...)
	body = append(body, u32(90000)...) // timescale
	body = append(body, u32(0)...)     // earliest_presentation_time
	body = append(body, u32(0)...)     // first_offset
	body = append(body, u16(0)...)     // reserved
	body = append(body, u16(1)...)     // reference_count
	body = append(body, u32(0<<31|size)...)
	body = append(body, u32(duration)...)
	var sapBit uint32
	if sap {
		sapBit = 1
	}
	body = append(body, u32(sapBit<<31|uint32(sapType)<<28)...)
	return box("sidx", body)
}

func TestValidateIndexSegmentSingle(t *testing.T) {
	data := append(append([]byte(nil), stypSingle()...), sidxOneMedia(0x100, 500000, 90000, true, 1)...)

	v := ValidateIndexSegment(data, nil, 0x100, nil)
	if !v.Status.OK {
		t.Fatalf("ValidateIndexSegment() failures = %+v", v.Status.Failures)
	}
	if len(v.SegmentSubsegments) != 1 || len(v.SegmentSubsegments[0]) != 1 {
		t.Fatalf("got %+v, want one segment with one subsegment", v.SegmentSubsegments)
	}
	sub := v.SegmentSubsegments[0][0]
	if sub.EndByte != 500000 || !sub.StartsWithSAP || sub.SAPType != 1 {
		t.Fatalf("unexpected subsegment: %+v", sub)
	}
}

func TestValidateIndexSegmentWrongReferenceID(t *testing.T) {
	data := append(append([]byte(nil), stypSingle()...), sidxOneMedia(0x200, 500000, 90000, true, 1)...)

	v := ValidateIndexSegment(data, nil, 0x100, nil)
	if v.Status.OK {
		t.Fatal("expected a reference_id mismatch to fail validation")
	}
}

func TestValidateIndexSegmentMissingStyp(t *testing.T) {
	data := sidxOneMedia(0x100, 500000, 90000, true, 1)

	v := ValidateIndexSegment(data, nil, 0x100, nil)
	if v.Status.OK {
		t.Fatal("expected a missing leading styp box to fail validation")
	}
}

// stypMulti builds a styp box carrying the representation-index (risx) brand.
func stypMulti() []byte {
	body := append(append([]byte("risx"), u32(0)...), []byte("risx")...)
	return box("styp", body)
}

// sidxMediaAt builds a version-0 sidx box with one media reference at
// firstOffset, letting a test control the per-segment byte cursor directly.
func sidxMediaAt(referenceID uint32, firstOffset, size, duration uint32, sap bool, sapType uint8) []byte {
	var body []byte
	body = append(body, 0x00, 0x00, 0x00, 0x00) // version 0, flags 0
	body = append(body, u32(referenceID)...)
	body = append(body, u32(90000)...) // timescale
	body = append(body, u32(0)...)     // earliest_presentation_time
	body = append(body, u32(firstOffset)...)
	body = append(body, u16(0)...) // reserved
	body = append(body, u16(1)...) // reference_count
	body = append(body, u32(0<<31|size)...)
	body = append(body, u32(duration)...)
	var sapBit uint32
	if sap {
		sapBit = 1
	}
	body = append(body, u32(sapBit<<31|uint32(sapType)<<28)...)
	return box("sidx", body)
}

// sidxNestedOne builds a version-0 sidx box whose sole reference is a nested
// (reference_type=1) reference to the sidx box that immediately follows it
// in the box stream.
func sidxNestedOne(referenceID uint32, firstOffset, nestedSize, duration uint32) []byte {
	var body []byte
	body = append(body, 0x00, 0x00, 0x00, 0x00)
	body = append(body, u32(referenceID)...)
	body = append(body, u32(90000)...)
	body = append(body, u32(0)...)
	body = append(body, u32(firstOffset)...)
	body = append(body, u16(0)...)
	body = append(body, u16(1)...)
	body = append(body, u32(1<<31|nestedSize)...) // reference_type=1 (nested)
	body = append(body, u32(duration)...)
	body = append(body, u32(0)...) // starts_with_SAP=0, SAP_type=0, SAP_delta_time=0
	return box("sidx", body)
}

// sidxMaster builds the version-0 master sidx of a representation index,
// with one nested reference per per-segment sidx that follows.
func sidxMaster(referenceID uint32, durations []uint32) []byte {
	var body []byte
	body = append(body, 0x00, 0x00, 0x00, 0x00)
	body = append(body, u32(referenceID)...)
	body = append(body, u32(90000)...)
	body = append(body, u32(0)...)
	body = append(body, u32(0)...) // first_offset
	body = append(body, u16(0)...)
	body = append(body, u16(uint16(len(durations)))...)
	for _, d := range durations {
		body = append(body, u32(1<<31|0)...) // reference_type=1, referenced_size unused here
		body = append(body, u32(d)...)
		body = append(body, u32(0)...)
	}
	return box("sidx", body)
}

// TestValidateIndexSegmentMultiSegment builds a representation index (risx)
// with a master sidx followed by three per-segment sidx boxes: two flat
// (media-only) segments and a third whose only reference is itself nested
// one level into a media-bearing sidx. This exercises both buildSubsegments
// branches: byteCursor reset to FirstOffset at each new top-level segment
// (numNested == 0 on entry), and byteCursor accumulated with a box's own
// FirstOffset only once, when that box is itself reached as a previously
// counted nested reference (numNested > 0 on entry).
func TestValidateIndexSegmentMultiSegment(t *testing.T) {
	const videoPID = 0x100

	var data []byte
	data = append(data, stypMulti()...)
	data = append(data, sidxMaster(videoPID, []uint32{9000, 9000, 9000})...)
	data = append(data, sidxMediaAt(videoPID, 1000, 500, 9000, true, 1)...)
	data = append(data, sidxMediaAt(videoPID, 2000, 700, 9000, true, 1)...)
	data = append(data, sidxNestedOne(videoPID, 5000, 0, 9000)...)
	data = append(data, sidxMediaAt(videoPID, 300, 400, 9000, true, 1)...)

	declared := []DeclaredDuration{{Duration: 9000}, {Duration: 9000}, {Duration: 9000}}
	v := ValidateIndexSegment(data, declared, videoPID, nil)
	if !v.Status.OK {
		t.Fatalf("ValidateIndexSegment() failures = %+v", v.Status.Failures)
	}
	if len(v.SegmentSubsegments) != 3 {
		t.Fatalf("got %d segments, want 3: %+v", len(v.SegmentSubsegments), v.SegmentSubsegments)
	}

	seg0 := v.SegmentSubsegments[0]
	if len(seg0) != 1 || seg0[0].StartByte != 1000 || seg0[0].EndByte != 1500 {
		t.Fatalf("segment 0 = %+v, want one subsegment [1000,1500)", seg0)
	}

	seg1 := v.SegmentSubsegments[1]
	if len(seg1) != 1 || seg1[0].StartByte != 2000 || seg1[0].EndByte != 2700 {
		t.Fatalf("segment 1 = %+v, want one subsegment [2000,2700), not carried over from segment 0's byte cursor", seg1)
	}

	seg2 := v.SegmentSubsegments[2]
	if len(seg2) != 1 || seg2[0].StartByte != 5300 || seg2[0].EndByte != 5700 {
		t.Fatalf("segment 2 = %+v, want one subsegment [5300,5700): the nested sidx's own first_offset (300) "+
			"applied once, on top of segment 2's opening first_offset (5000), not the parent's reference", seg2)
	}
}
