/*
NAME
  parse.go

DESCRIPTION
  parse.go implements the box-dispatch loop and per-type decoders for
  styp/sidx/ssix/pcrb/emsg, grounded byte-for-byte on tslib's isobmff.c.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package bmff

import (
	"github.com/pkg/errors"

	"github.com/ausocean/tsconform/bitreader"
)

// Errors returned by ReadBoxes and the per-type decoders.
var (
	ErrShortBox       = errors.New("bmff: buffer too short for box header")
	ErrBadFullBox     = errors.New("bmff: box too short to hold version/flags")
	ErrBadPcrbSize    = errors.New("bmff: pcrb box size is not a multiple of the expected entry size")
)

// ReadBoxes decodes every top-level box in data, in order. An unrecognized
// box type is skipped (its Header is still reported, with every Box.*
// pointer nil) and parsing continues; no warning is emitted for it.
func ReadBoxes(data []byte) ([]Box, error) {
	var boxes []Box
	pos := int64(0)
	for pos < int64(len(data)) {
		b, consumed, err := readBox(data[pos:], pos)
		if err != nil {
			return boxes, err
		}
		boxes = append(boxes, b)
		pos += consumed
	}
	return boxes, nil
}

func readBox(data []byte, pos int64) (Box, int64, error) {
	if len(data) < 8 {
		return Box{}, 0, ErrShortBox
	}
	r := bitreader.New(data)
	size := uint64(r.ReadU32())
	typ := BoxType{}
	copy(typ[:], r.ReadBytes(4))

	headerLen := int64(8)
	if size == 1 {
		if len(data) < 16 {
			return Box{}, 0, ErrShortBox
		}
		size = r.ReadU64()
		headerLen = 16
	}
	if size < uint64(headerLen) || int64(size) > int64(len(data)) {
		return Box{}, 0, errors.Wrapf(ErrShortBox, "box %s declares size %d, only %d bytes available", typ, size, len(data))
	}

	hdr := Header{Size: int64(size), Type: typ, Pos: pos}
	body := data[headerLen:size]

	box := Box{Header: hdr}
	var err error
	switch typ {
	case TypeStyp:
		box.Styp, err = decodeStyp(body)
	case TypeSidx:
		box.Sidx, err = decodeSidx(body)
	case TypeSsix:
		box.Ssix, err = decodeSsix(body)
	case TypePcrb:
		box.Pcrb, err = decodePcrb(body)
	case TypeEmsg:
		box.Emsg, err = decodeEmsg(body)
	}
	if err != nil {
		return box, int64(size), err
	}
	return box, int64(size), nil
}

// readFullBoxHeader reads version+flags, grounded on tslib's parse_full_box
// ("box_size >= 4" check then 1-byte version + 24-bit flags).
func readFullBoxHeader(r *bitreader.Reader) (FullBoxHeader, error) {
	if r.BytesLeft() < 4 {
		return FullBoxHeader{}, ErrBadFullBox
	}
	return FullBoxHeader{
		Version: r.ReadU8(),
		Flags:   r.ReadU24(),
	}, nil
}

func decodeStyp(body []byte) (*StypBox, error) {
	r := bitreader.New(body)
	s := &StypBox{
		MajorBrand:   r.ReadU32(),
		MinorVersion: r.ReadU32(),
	}
	for r.BytesLeft() >= 4 {
		s.CompatibleBrands = append(s.CompatibleBrands, r.ReadU32())
	}
	return s, r.Err()
}

// decodeSidx decodes a segment index box, grounded on tslib's parse_sidx.
func decodeSidx(body []byte) (*SidxBox, error) {
	r := bitreader.New(body)
	fbh, err := readFullBoxHeader(r)
	if err != nil {
		return nil, err
	}
	s := &SidxBox{FullBoxHeader: fbh}
	s.ReferenceID = r.ReadU32()
	s.Timescale = r.ReadU32()
	if fbh.Version == 0 {
		s.EarliestPresentationTime = uint64(r.ReadU32())
		s.FirstOffset = uint64(r.ReadU32())
	} else {
		s.EarliestPresentationTime = r.ReadU64()
		s.FirstOffset = r.ReadU64()
	}
	r.ReadU16() // reserved
	refCount := r.ReadU16()
	for i := uint16(0); i < refCount; i++ {
		tmp := r.ReadU32()
		ref := SidxReference{
			ReferenceType:  uint8(tmp >> 31),
			ReferencedSize: tmp & 0x7fffffff,
		}
		ref.SubsegmentDuration = r.ReadU32()
		tmp2 := r.ReadU32()
		ref.StartsWithSAP = tmp2>>31 != 0
		ref.SAPType = uint8((tmp2 >> 28) & 0x7)
		ref.SAPDeltaTime = tmp2 & 0x0fffffff
		s.References = append(s.References, ref)
	}
	return s, r.Err()
}

// decodeSsix decodes a subsegment index box, grounded on tslib's parse_ssix.
func decodeSsix(body []byte) (*SsixBox, error) {
	r := bitreader.New(body)
	fbh, err := readFullBoxHeader(r)
	if err != nil {
		return nil, err
	}
	s := &SsixBox{FullBoxHeader: fbh}
	subsegCount := r.ReadU32()
	for i := uint32(0); i < subsegCount; i++ {
		rangeCount := r.ReadU32()
		sub := SsixSubsegment{}
		for j := uint32(0); j < rangeCount; j++ {
			sub.Ranges = append(sub.Ranges, SsixRange{
				Level:     r.ReadU8(),
				RangeSize: r.ReadU24(),
			})
		}
		s.Subsegments = append(s.Subsegments, sub)
	}
	return s, r.Err()
}

// decodePcrb decodes a PCR companion box, grounded on tslib's parse_pcrb.
// Each entry is a 48-bit raw value; the true 42-bit PCR occupies its top 42
// bits (the low 6 bits are reserved padding).
func decodePcrb(body []byte) (*PcrbBox, error) {
	r := bitreader.New(body)
	count := r.ReadU32()

	const entrySize48 = 6
	const entrySize64 = 8
	switch {
	case int(count)*entrySize48 == len(body)-4:
		// Correctly-encoded 48-bit entries.
	case int(count)*entrySize64 == len(body)-4:
		// Some encoders write 64-bit entries instead of the spec's 48-bit
		// entries; tolerate it by reading 8 bytes per entry.
		p := &PcrbBox{}
		for i := uint32(0); i < count; i++ {
			raw := r.ReadU64()
			p.PCRs = append(p.PCRs, raw>>6)
		}
		return p, r.Err()
	default:
		return nil, errors.Wrapf(ErrBadPcrbSize, "subsegment_count %d, body %d bytes", count, len(body))
	}

	p := &PcrbBox{}
	for i := uint32(0); i < count; i++ {
		raw := uint64(r.ReadU32())<<16 | uint64(r.ReadU16())
		p.PCRs = append(p.PCRs, raw>>6)
	}
	return p, r.Err()
}

// decodeEmsg decodes an event message box, grounded on tslib's parse_emsg.
// message_data_size is computed as whatever bytes remain in the box after
// the two NUL-terminated strings and the four fixed 32-bit fields, rather
// than replicating tslib's "box_size - 17" arithmetic, which is one byte
// short of the 16 bytes those four fields actually occupy.
func decodeEmsg(body []byte) (*EmsgBox, error) {
	r := bitreader.New(body)
	fbh, err := readFullBoxHeader(r)
	if err != nil {
		return nil, err
	}
	e := &EmsgBox{FullBoxHeader: fbh}
	e.SchemeIDURI = r.ReadCString()
	e.Value = r.ReadCString()
	e.Timescale = r.ReadU32()
	e.PresentationTimeDelta = r.ReadU32()
	e.EventDuration = r.ReadU32()
	e.ID = r.ReadU32()
	if r.Err() != nil {
		return nil, r.Err()
	}
	e.MessageData = r.ReadBytes(r.BytesLeft())
	return e, r.Err()
}
