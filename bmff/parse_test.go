package bmff

import (
	"testing"
)

func u32b(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func u16b(v uint16) []byte {
	return []byte{byte(v >> 8), byte(v)}
}

// buildBox wraps a body with a standard 32-bit-size box header.
func buildBox(typ BoxType, body []byte) []byte {
	size := uint32(8 + len(body))
	out := append(u32b(size), typ[:]...)
	return append(out, body...)
}

func TestDecodeStyp(t *testing.T) {
	body := append(append([]byte("sisx"), u32b(0)...), []byte("sisxssss")...)
	data := buildBox(TypeStyp, body)

	boxes, err := ReadBoxes(data)
	if err != nil {
		t.Fatalf("ReadBoxes() error = %v", err)
	}
	if len(boxes) != 1 || boxes[0].Styp == nil {
		t.Fatalf("expected one styp box, got %+v", boxes)
	}
	if len(boxes[0].Styp.CompatibleBrands) != 2 {
		t.Fatalf("got %d compatible brands, want 2", len(boxes[0].Styp.CompatibleBrands))
	}
}

// TestDecodeSidxAligned builds a version-0 sidx box with a single aligned
// reference.
func TestDecodeSidxAligned(t *testing.T) {
	var body []byte
	body = append(body, 0x00, 0x00, 0x00, 0x00) // version 0, flags 0
	body = append(body, u32b(1)...)             // reference_id
	body = append(body, u32b(90000)...)         // timescale
	body = append(body, u32b(0)...)             // earliest_presentation_time
	body = append(body, u32b(0)...)              // first_offset
	body = append(body, u16b(0)...)              // reserved
	body = append(body, u16b(1)...)              // reference_count
	body = append(body, u32b(0<<31|500000)...)   // reference_type=0, referenced_size
	body = append(body, u32b(90000)...)          // subsegment_duration
	body = append(body, u32b(uint32(1)<<31|uint32(1)<<28|0)...) // SAP

	data := buildBox(TypeSidx, body)
	boxes, err := ReadBoxes(data)
	if err != nil {
		t.Fatalf("ReadBoxes() error = %v", err)
	}
	sidx := boxes[0].Sidx
	if sidx == nil {
		t.Fatal("expected sidx box")
	}
	if len(sidx.References) != 1 {
		t.Fatalf("got %d references, want 1", len(sidx.References))
	}
	ref := sidx.References[0]
	if ref.ReferencedSize != 500000 || !ref.StartsWithSAP || ref.SAPType != 1 {
		t.Fatalf("unexpected reference: %+v", ref)
	}
}

// TestDecodePcrb48Bit builds a standalone pcrb box and checks the
// 48-bit entry layout decodes to the expected 42-bit PCR.
func TestDecodePcrb48Bit(t *testing.T) {
	var body []byte
	body = append(body, u32b(1)...) // subsegment_count
	// Raw 48-bit entry: PCR value 27000000 (42-bit), shifted left 6.
	raw := uint64(27000000) << 6
	body = append(body, byte(raw>>40), byte(raw>>32), byte(raw>>24), byte(raw>>16), byte(raw>>8), byte(raw))

	data := buildBox(TypePcrb, body)
	boxes, err := ReadBoxes(data)
	if err != nil {
		t.Fatalf("ReadBoxes() error = %v", err)
	}
	pcrb := boxes[0].Pcrb
	if pcrb == nil || len(pcrb.PCRs) != 1 {
		t.Fatalf("expected one pcrb entry, got %+v", pcrb)
	}
	if pcrb.PCRs[0] != 27000000 {
		t.Fatalf("PCRs[0] = %d, want 27000000", pcrb.PCRs[0])
	}
}

func TestDecodeEmsg(t *testing.T) {
	var body []byte
	body = append(body, 0x01, 0x00, 0x00, 0x00) // version 1
	body = append(body, []byte("urn:test\x00")...)
	body = append(body, []byte("1\x00")...)
	body = append(body, u32b(1000)...) // timescale
	body = append(body, u32b(0)...)    // presentation_time_delta
	body = append(body, u32b(5000)...) // event_duration
	body = append(body, u32b(7)...)    // id
	body = append(body, []byte("payload")...)

	data := buildBox(TypeEmsg, body)
	boxes, err := ReadBoxes(data)
	if err != nil {
		t.Fatalf("ReadBoxes() error = %v", err)
	}
	emsg := boxes[0].Emsg
	if emsg == nil {
		t.Fatal("expected emsg box")
	}
	if emsg.SchemeIDURI != "urn:test" || emsg.Value != "1" {
		t.Fatalf("unexpected strings: %+v", emsg)
	}
	if string(emsg.MessageData) != "payload" {
		t.Fatalf("MessageData = %q, want payload", emsg.MessageData)
	}
}
