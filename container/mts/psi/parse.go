/*
NAME
  parse.go

DESCRIPTION
  parse.go provides a reader for PAT, PMT and CAT sections, the inverse of
  the existing Bytes() encoders in psi.go, with CRC-32 verification.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package psi

import (
	"hash/crc32"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/ausocean/tsconform/bitreader"
)

// Table IDs recognised by ParseSection.
const (
	TableIDPAT = 0x00
	TableIDCAT = 0x01
	TableIDPMT = 0x02
)

// CADescriptorTag is the descriptor tag for a conditional access
// descriptor, found in a PMT program-info loop or a CAT descriptor loop.
const CADescriptorTag = 9

// Errors returned by ParseSection and friends.
var (
	ErrShortSection     = errors.New("psi: buffer too short for section header")
	ErrBadSyntaxInd     = errors.New("psi: section_syntax_indicator must be 1")
	ErrCRCMismatch      = errors.New("psi: CRC-32 mismatch")
	ErrWrongTable       = errors.New("psi: unexpected table_id for requested section type")
	ErrMultiSectionUnsupported = errors.New("psi: multi-section tables are not supported, decoding section 0 only")
)

// CAInfo is the decoding of a ca_descriptor (tag 9), per ISO/IEC 13818-1
// 2.6.16.
type CAInfo struct {
	CASystemID uint16
	CAPID      uint16
	Private    []byte
}

// CAT is the specific data of a Conditional Access Table section. Semantic
// interpretation of its descriptors is deferred to the CA subsystem; this
// parser only exposes the raw descriptor list plus any decoded CAInfo.
type CAT struct {
	Descriptors []Descriptor
	CAs         []CAInfo
}

// Section is the result of parsing one PSI section: the common header plus
// whichever specific-data payload matches TableID.
type Section struct {
	TableID         byte
	SyntaxIndicator bool
	PrivateBit      bool
	SectionLength   uint16
	TableIDExt      uint16
	Version         byte
	CurrentNext     bool
	SectionNumber   byte
	LastSection     byte
	CRC             uint32

	PAT *PATData
	PMT *PMTData
	CAT *CAT
}

// PATData is the decoded specific data of a PAT section: the list of
// program_number -> program_map_PID associations.
type PATData struct {
	Programs []ProgramAssociation
}

// ProgramAssociation is one entry of a parsed PAT.
type ProgramAssociation struct {
	ProgramNumber uint16
	ProgramMapPID uint16
}

// PMTData is the decoded specific data of a PMT section.
type PMTData struct {
	PCRPID      uint16
	Descriptors []Descriptor
	CAs         []CAInfo
	Streams     []StreamInfo
}

// StreamInfo is one elementary stream entry of a parsed PMT.
type StreamInfo struct {
	StreamType  byte
	PID         uint16
	Descriptors []Descriptor
}

// ParseSection parses a PSI section starting at the pointer_field byte of b
// (i.e. b[0] is the pointer_field, as delivered directly from a TS payload
// with PUSI=1). It recomputes and checks the MPEG-2 CRC-32 over the section
// header and body, per ISO/IEC 13818-1 2.4.4.
//
// Multi-section tables (last_section_number != 0) are accepted syntactically
// but only section 0 is decoded; in that case ErrMultiSectionUnsupported is
// returned alongside a non-nil Section for section 0.
func ParseSection(b []byte) (*Section, error) {
	if len(b) < 1 {
		return nil, ErrShortSection
	}
	pointer := int(b[0])
	body := b[1+pointer:]
	if len(body) < 8 {
		return nil, ErrShortSection
	}

	s := &Section{
		TableID:         body[0],
		SyntaxIndicator: body[1]&0x80 != 0,
		PrivateBit:      body[1]&0x40 != 0,
		SectionLength:   uint16(body[1]&0x0f)<<8 | uint16(body[2]),
	}
	if !s.SyntaxIndicator {
		return nil, ErrBadSyntaxInd
	}

	// section bytes run from table_id through the section_length-declared
	// body, which includes the trailing CRC_32.
	total := 3 + int(s.SectionLength)
	if len(body) < total {
		return nil, ErrShortSection
	}
	section := body[:total]

	gotCRC := crc32_Update(0xffffffff, crc32_MakeTable(bits.Reverse32(crc32.IEEE)), section[:len(section)-4])
	wantCRC := uint32(section[len(section)-4])<<24 | uint32(section[len(section)-3])<<16 |
		uint32(section[len(section)-2])<<8 | uint32(section[len(section)-1])
	if gotCRC != wantCRC {
		return nil, errors.Wrapf(ErrCRCMismatch, "computed %#x, section says %#x", gotCRC, wantCRC)
	}
	s.CRC = wantCRC

	s.TableIDExt = uint16(section[3])<<8 | uint16(section[4])
	s.Version = (section[5] >> 1) & 0x1f
	s.CurrentNext = section[5]&0x01 != 0
	s.SectionNumber = section[6]
	s.LastSection = section[7]

	var multiErr error
	if s.LastSection != 0 {
		multiErr = ErrMultiSectionUnsupported
	}

	payload := section[8 : len(section)-4]
	switch s.TableID {
	case TableIDPAT:
		s.PAT = parsePATData(payload)
	case TableIDPMT:
		pmt, err := parsePMTData(payload)
		if err != nil {
			return s, err
		}
		s.PMT = pmt
	case TableIDCAT:
		descs, err := parseDescriptors(payload)
		if err != nil {
			return s, err
		}
		s.CAT = &CAT{Descriptors: descs, CAs: caDescriptors(descs)}
	}

	return s, multiErr
}

// ParsePAT parses b as a PAT section and returns its program list.
func ParsePAT(b []byte) (*Section, error) {
	s, err := ParseSection(b)
	if err != nil && s == nil {
		return nil, err
	}
	if s.TableID != TableIDPAT {
		return s, ErrWrongTable
	}
	return s, err
}

// ParsePMT parses b as a PMT section.
func ParsePMT(b []byte) (*Section, error) {
	s, err := ParseSection(b)
	if err != nil && s == nil {
		return nil, err
	}
	if s.TableID != TableIDPMT {
		return s, ErrWrongTable
	}
	return s, err
}

// ParseCAT parses b as a CAT section.
func ParseCAT(b []byte) (*Section, error) {
	s, err := ParseSection(b)
	if err != nil && s == nil {
		return nil, err
	}
	if s.TableID != TableIDCAT {
		return s, ErrWrongTable
	}
	return s, err
}

func parsePATData(payload []byte) *PATData {
	pat := &PATData{}
	for i := 0; i+4 <= len(payload); i += 4 {
		pat.Programs = append(pat.Programs, ProgramAssociation{
			ProgramNumber: uint16(payload[i])<<8 | uint16(payload[i+1]),
			ProgramMapPID: uint16(payload[i+2]&0x1f)<<8 | uint16(payload[i+3]),
		})
	}
	return pat
}

func parsePMTData(payload []byte) (*PMTData, error) {
	if len(payload) < 4 {
		return nil, ErrShortSection
	}
	pmt := &PMTData{
		PCRPID: uint16(payload[0]&0x1f)<<8 | uint16(payload[1]),
	}
	progInfoLen := int(uint16(payload[2]&0x0f)<<8 | uint16(payload[3]))
	off := 4
	if off+progInfoLen > len(payload) {
		return nil, ErrShortSection
	}
	descs, err := parseDescriptors(payload[off : off+progInfoLen])
	if err != nil {
		return nil, err
	}
	pmt.Descriptors = descs
	pmt.CAs = caDescriptors(descs)
	off += progInfoLen

	for off+5 <= len(payload) {
		si := StreamInfo{
			StreamType: payload[off],
			PID:        uint16(payload[off+1]&0x1f)<<8 | uint16(payload[off+2]),
		}
		esInfoLen := int(uint16(payload[off+3]&0x0f)<<8 | uint16(payload[off+4]))
		off += 5
		if off+esInfoLen > len(payload) {
			return nil, ErrShortSection
		}
		esDescs, err := parseDescriptors(payload[off : off+esInfoLen])
		if err != nil {
			return nil, err
		}
		si.Descriptors = esDescs
		off += esInfoLen
		pmt.Streams = append(pmt.Streams, si)
	}
	return pmt, nil
}

// parseDescriptors walks a nested byte budget of a descriptor loop.
func parseDescriptors(b []byte) ([]Descriptor, error) {
	r := bitreader.New(b)
	var out []Descriptor
	for r.BytesLeft() >= 2 {
		tag := r.ReadU8()
		length := r.ReadU8()
		data := r.ReadBytes(int(length))
		if r.Err() != nil {
			return nil, errors.Wrap(r.Err(), "psi: truncated descriptor")
		}
		out = append(out, Descriptor{Tag: tag, Len: length, Data: data})
	}
	return out, nil
}

// caDescriptors decodes every ca_descriptor (tag 9) in descs into a CAInfo,
// per ISO/IEC 13818-1 2.6.16.
func caDescriptors(descs []Descriptor) []CAInfo {
	var out []CAInfo
	for _, d := range descs {
		if d.Tag != CADescriptorTag || len(d.Data) < 4 {
			continue
		}
		out = append(out, CAInfo{
			CASystemID: uint16(d.Data[0])<<8 | uint16(d.Data[1]),
			CAPID:      uint16(d.Data[2]&0x1f)<<8 | uint16(d.Data[3]),
			Private:    d.Data[4:],
		})
	}
	return out
}

// Equal reports whether two parsed sections are equal for the purposes of
// deciding whether a new section supersedes the current one: table_id,
// version, and canonical field tuples coincide.
func (s *Section) Equal(o *Section) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.TableID != o.TableID || s.Version != o.Version {
		return false
	}
	switch s.TableID {
	case TableIDPAT:
		return patEqual(s.PAT, o.PAT)
	case TableIDPMT:
		return pmtEqual(s.PMT, o.PMT)
	case TableIDCAT:
		return descriptorsEqual(s.CAT.Descriptors, o.CAT.Descriptors)
	}
	return true
}

func patEqual(a, b *PATData) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Programs) != len(b.Programs) {
		return false
	}
	for i := range a.Programs {
		if a.Programs[i] != b.Programs[i] {
			return false
		}
	}
	return true
}

func pmtEqual(a, b *PMTData) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.PCRPID != b.PCRPID || len(a.Streams) != len(b.Streams) {
		return false
	}
	if !descriptorsEqual(a.Descriptors, b.Descriptors) {
		return false
	}
	for i := range a.Streams {
		if a.Streams[i].StreamType != b.Streams[i].StreamType || a.Streams[i].PID != b.Streams[i].PID {
			return false
		}
		if !descriptorsEqual(a.Streams[i].Descriptors, b.Streams[i].Descriptors) {
			return false
		}
	}
	return true
}

func descriptorsEqual(a, b []Descriptor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Tag != b[i].Tag || len(a[i].Data) != len(b[i].Data) {
			return false
		}
		for j := range a[i].Data {
			if a[i].Data[j] != b[i].Data[j] {
				return false
			}
		}
	}
	return true
}
