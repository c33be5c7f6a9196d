/*
NAME
  box.go

DESCRIPTION
  box.go defines the ISO BMFF box tree this validator needs: the segment
  type brand box (styp), the segment/subsegment index boxes (sidx, ssix),
  the PCR companion box (pcrb), and the DASH event message box (emsg).

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package bmff implements a reader for the subset of ISO/IEC 14496-12 box
// types a DASH MPEG-2 TS conformance validator needs.
package bmff

// BoxType is a 4-byte box type identifier, styled after the tetsuo-isobmff
// codec registry's BoxType.
type BoxType [4]byte

func (t BoxType) String() string { return string(t[:]) }

// Box types this package decodes.
var (
	TypeStyp = BoxType{'s', 't', 'y', 'p'}
	TypeSidx = BoxType{'s', 'i', 'd', 'x'}
	TypeSsix = BoxType{'s', 's', 'i', 'x'}
	TypePcrb = BoxType{'p', 'c', 'r', 'b'}
	TypeEmsg = BoxType{'e', 'm', 's', 'g'}
)

// Header is the common 8-or-16-byte box header: a 32-bit (or 64-bit,
// extended) size, followed by a 4-byte type.
type Header struct {
	Size int64 // total box size, header included
	Type BoxType
	Pos  int64 // byte position of the box's first header byte
}

// FullBoxHeader is the version/flags pair every FullBox-derived box type
// here (sidx, ssix, emsg) carries immediately after its Header.
type FullBoxHeader struct {
	Version byte
	Flags   uint32 // 24-bit field, right-aligned
}

// Box is a tagged union over the box types this package understands. It
// never recurses: styp/sidx/ssix/pcrb/emsg are all leaf boxes for this
// validator's purposes.
type Box struct {
	Header Header

	Styp *StypBox
	Sidx *SidxBox
	Ssix *SsixBox
	Pcrb *PcrbBox
	Emsg *EmsgBox
}

// StypBox is the segment type box (ISO/IEC 14496-12 8.16.2), used by DASH to
// carry the risX/sisX/ssss brand that identifies a segment's role.
type StypBox struct {
	MajorBrand       uint32
	MinorVersion     uint32
	CompatibleBrands []uint32
}

// SidxReference is one reference entry of a SidxBox.
type SidxReference struct {
	ReferenceType      uint8 // 0 = media reference, 1 = index reference
	ReferencedSize     uint32
	SubsegmentDuration uint32
	StartsWithSAP      bool
	SAPType            uint8
	SAPDeltaTime        uint32
}

// SidxBox is the segment index box (ISO/IEC 14496-12 8.16.3).
type SidxBox struct {
	FullBoxHeader
	ReferenceID              uint32
	Timescale                uint32
	EarliestPresentationTime uint64
	FirstOffset              uint64
	References               []SidxReference
}

// SsixSubsegment is one subsegment's range list within a SsixBox.
type SsixSubsegment struct {
	Ranges []SsixRange
}

// SsixRange is one (level, range_size) pair of a subsegment.
type SsixRange struct {
	Level     uint8
	RangeSize uint32 // 24-bit field
}

// SsixBox is the subsegment index box (ISO/IEC 14496-12 8.16.4).
type SsixBox struct {
	FullBoxHeader
	Subsegments []SsixSubsegment
}

// PcrbBox is the MPEG-2 TS PCR companion box defined by DASH-IF/ISO/IEC
// 23009-1 Annex, carrying one 42-bit PCR value per subsegment referenced by
// the preceding sidx box.
type PcrbBox struct {
	PCRs []uint64
}

// EmsgBox is the DASH event message box (ISO/IEC 23009-1 5.10.3.3).
type EmsgBox struct {
	FullBoxHeader
	SchemeIDURI            string
	Value                  string
	Timescale              uint32
	PresentationTimeDelta  uint32
	EventDuration          uint32
	ID                     uint32
	MessageData            []byte
}
