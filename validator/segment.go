/*
NAME
  segment.go

DESCRIPTION
  segment.go implements the TS/PES-level segment validator: it walks a
  media segment's TS packets, tracking PAT/PMT state, PCR,
  random-access points and PES timing, and cross-checks them against the
  Subsegment list the index validator produced.

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

	mts "github.com/ausocean/tsconform/container/mts"
	"github.com/ausocean/tsconform/container/mts/pes"
	"github.com/ausocean/tsconform/container/mts/psi"
	"github.com/ausocean/tsconform/codec/h264"
	"github.com/ausocean/tsconform/demux"
)

// Stream types recognised by onPMT, per ISO/IEC 13818-1 Table 2-34.
// streamTypeMetadata (0x15) carries PES-packaged ISO BMFF metadata, used
// in-band for DASH emsg event messages per ISO/IEC 23009-1 5.10.3.3.
const (
	streamTypeH264     = 0x1b
	streamTypeADTS     = 0x0f
	streamTypeMetadata = 0x15
)

// NAL unit types classified as SAP-bearing access unit boundaries.
const (
	nalIDR    = 5
	nalNonIDR = 1
)

// PMTInfo is the subset of a PMT the segment validator tracks, copied out
// once per new PMT version, grounded on segment_validator.c's copy_pmt_info.
type PMTInfo struct {
	ProgramNumber uint16
	Version       byte
	PCRPID        uint16
	VideoPID      uint16
	AudioPID      uint16
	EmsgPID       uint16
}

// Alignment carries the adaptation set's three alignment flags
// (bitstreamSwitching, segmentAlignment, subsegmentAlignment) into
// ValidateSegment, resolved from the manifest's tri-state OptionalBool down
// to the plain bools this package gates its checks on.
type Alignment struct {
	BitstreamSwitching  bool
	SegmentAlignment    bool
	SubsegmentAlignment bool
}

// SegmentResult is the output of ValidateSegment.
type SegmentResult struct {
	Status *Status

	// EarliestPTS/LatestPTS record the smallest and largest PTS seen across
	// the segment's video and audio PES packets, used by the cross-segment
	// timing matrix.
	EarliestPTS    uint64
	LatestPTS      uint64
	SawPTS         bool
	PMT            *PMTInfo
	InitSegment    bool
	Subsegments    []Subsegment
}

// segmentValidator is the per-run state for ValidateSegment.
type segmentValidator struct {
	st      *Status
	log     logging.Logger
	profile string
	init    bool // true when validating an initialization segment template
	subsegs []Subsegment
	align   Alignment

	pmt                   *PMTInfo
	pmtInstalled          bool
	patSeen               bool
	sawFirstPUSIOnVideo   bool
	sawPCRBeforeFirstPUSI bool
	lastPCR               uint64
	sawPCR                bool
	earliestPTS           uint64
	latestPTS             uint64
	sawPTS                bool
	sawFirstVideoPES      bool
	sawFirstAudioPES      bool

	curSubIdx int // index into subsegs of the subsegment presently being scanned for random-access matching
}

// ValidateSegment runs the per-packet/per-PES validation over data, a
// fully-read media segment. subsegs is the Subsegment list the index
// validator produced for this segment (nil for a segment validated without
// an accompanying index); initSegment marks data as an initialization
// segment template, which relaxes the PCR/PTS/DTS requirements that apply
// once that template has been installed. align carries the owning
// adaptation set's bitstreamSwitching/segmentAlignment/subsegmentAlignment
// flags. template, when non-nil, is the PMTInfo a prior call against this
// representation's initialization segment produced; installing it up front
// means a PAT/PMT appearing in a media segment is flagged as the
// conformance failure it is, rather than silently re-establishing the
// processing template.
func ValidateSegment(data []byte, subsegs []Subsegment, profile string, initSegment bool, align Alignment, template *PMTInfo, log logging.Logger) *SegmentResult {
	sv := &segmentValidator{
		st:      NewStatus(),
		log:     log,
		profile: profile,
		init:    initSegment,
		subsegs: subsegs,
		align:   align,
	}
	if !initSegment && template != nil {
		sv.pmt = template
		sv.pmtInstalled = true
	}

	d := demux.New()
	d.OnPAT(sv.onPAT)
	d.OnPMT(sv.onPMT)

	videoAsm := demux.NewPESAssembler(func(p *pes.Packet, pos, endPos int64) { sv.validateVideoPES(p, pos, endPos) })
	audioAsm := demux.NewPESAssembler(func(p *pes.Packet, pos, endPos int64) { sv.validateAudioPES(p, pos, endPos) })
	emsgAsm := demux.NewPESAssembler(func(p *pes.Packet, pos, endPos int64) { sv.validateEmsgPES(p, pos) })

	var pos int64
	for off := 0; off+mts.PacketSize <= len(data); off += mts.PacketSize {
		pkt, err := mts.ParsePacket(data[off:off+mts.PacketSize], pos)
		if err != nil {
			sv.st.Fail("segment: failed to parse TS packet: "+err.Error(), 0, pos)
			pos += mts.PacketSize
			continue
		}
		sv.validatePacket(pkt)

		if sv.pmt != nil && pkt.PID != 0 {
			switch pkt.PID {
			case sv.pmt.VideoPID:
				if err := videoAsm.WritePacket(pkt); err != nil {
					sv.st.Fail("segment: video PES parse failure: "+err.Error(), pkt.PID, pkt.Pos)
				}
			case sv.pmt.AudioPID:
				if err := audioAsm.WritePacket(pkt); err != nil {
					sv.st.Fail("segment: audio PES parse failure: "+err.Error(), pkt.PID, pkt.Pos)
				}
			case sv.pmt.EmsgPID:
				if err := emsgAsm.WritePacket(pkt); err != nil {
					sv.st.Fail("segment: emsg PES parse failure: "+err.Error(), pkt.PID, pkt.Pos)
				}
			}
		}

		if err := d.WritePacket(pkt); err != nil {
			sv.st.Fail("segment: demux failure: "+err.Error(), pkt.PID, pkt.Pos)
		}
		pos += mts.PacketSize
	}
	videoAsm.Flush()
	audioAsm.Flush()
	emsgAsm.Flush()

	if sv.init && sv.sawPCR {
		sv.st.Fail("segment: initialization segment carries a PCR", sv.pcrPID(), 0)
	}
	if sv.init && sv.sawPTS {
		sv.st.Fail("segment: initialization segment carries PES timestamps", sv.pcrPID(), 0)
	}

	for i := range sv.subsegs {
		if sv.subsegs[i].StartsWithSAP && !sv.subsegs[i].SawRandomAccess {
			sv.st.Fail("segment: subsegment declares starts_with_SAP but no random-access point was observed at its start byte", 0, int64(sv.subsegs[i].StartByte))
		}
	}

	if log != nil && !sv.st.OK {
		log.Warning("segment validation reported failures", "count", len(sv.st.Failures))
	}

	return &SegmentResult{
		Status:      sv.st,
		EarliestPTS: sv.earliestPTS,
		LatestPTS:   sv.latestPTS,
		SawPTS:      sv.sawPTS,
		PMT:         sv.pmt,
		InitSegment: sv.init,
		Subsegments: sv.subsegs,
	}
}

func (sv *segmentValidator) pcrPID() uint16 {
	if sv.pmt != nil {
		return sv.pmt.PCRPID
	}
	return 0
}

func (sv *segmentValidator) onPAT(pat *psi.Section) {
	sv.patSeen = true
	if sv.pmtInstalled {
		if sv.init {
			return
		}
		sv.st.Fail("segment: PAT present in a media segment whose PMT was already installed from the initialization segment", mts.PatPid, 0)
		return
	}
	if pat.PAT == nil {
		return
	}
	if len(pat.PAT.Programs) != 1 {
		sv.st.Fail("segment: PAT does not declare exactly one program", mts.PatPid, 0)
	}
}

// onPMT installs the tracked PMTInfo. Once a processing template's PMT has
// installed (either this segment's own initialization-segment PMT, or one
// threaded in from a prior initialization-segment run), a subsequent PMT is
// itself a conformance failure: templates are installed once, and a media
// segment may not legally carry its own PAT/PMT.
func (sv *segmentValidator) onPMT(pid uint16, pmt *psi.Section) {
	if sv.pmtInstalled {
		if sv.init {
			sv.st.Fail("segment: PMT appears more than once in an initialization segment", pid, 0)
		} else {
			sv.st.Fail("segment: PMT appears in a media segment whose PMT was already installed from the initialization segment", pid, 0)
		}
		return
	}
	if pmt.PMT == nil {
		return
	}
	info := &PMTInfo{
		ProgramNumber: pmt.TableIDExt,
		Version:       pmt.Version,
		PCRPID:        pmt.PMT.PCRPID,
	}
	for _, s := range pmt.PMT.Streams {
		switch s.StreamType {
		case streamTypeH264:
			info.VideoPID = s.PID
		case streamTypeADTS:
			info.AudioPID = s.PID
		case streamTypeMetadata:
			info.EmsgPID = s.PID
		}
	}
	sv.pmt = info
	sv.pmtInstalled = true
}

// validatePacket applies the per-TS-packet checks that do not
// require PES reassembly: PAT/PMT-after-template failures (handled in
// onPAT/onPMT), PCR bookkeeping, PUSI-on-first-payload-packet, and
// random-access-point cross-checks against the Subsegment list.
func (sv *segmentValidator) validatePacket(p mts.Packet) {
	if sv.pmt != nil && p.PID == sv.pmt.PCRPID && p.PCRF {
		if !sv.sawFirstPUSIOnVideo {
			sv.sawPCRBeforeFirstPUSI = true
		}
		sv.lastPCR = p.PCR
		sv.sawPCR = true
	}

	if sv.pmt != nil && p.PID == sv.pmt.VideoPID && p.AFC&mts.HasPayload != 0 {
		if !sv.sawFirstPUSIOnVideo {
			if (sv.profile == "mp2t-main" || sv.profile == "mp2t-simple") && !p.PUSI {
				sv.st.Fail("segment: first video TS packet does not carry PUSI=1", p.PID, p.Pos)
			}
			if p.PUSI {
				sv.sawFirstPUSIOnVideo = true
				if sv.align.BitstreamSwitching && !sv.sawPCRBeforeFirstPUSI {
					sv.st.Fail("segment: PCR must be present before the first byte of media data in a bitstream-switching representation", p.PID, p.Pos)
				}
			}
		}
	}

	sv.matchRandomAccess(p)
}

// matchRandomAccess cross-checks a TS packet's sync-byte position against
// any Subsegment boundary the index validator recorded, verifying that the
// declared StartByte lands exactly on a packet boundary and, when it does,
// that the packet's RAI/PCR line up with the declared SAP.
func (sv *segmentValidator) matchRandomAccess(p mts.Packet) {
	for sv.curSubIdx < len(sv.subsegs) && p.Pos > int64(sv.subsegs[sv.curSubIdx].StartByte) {
		// Packets sit at multiples of the packet size, so a misaligned
		// StartByte is only ever passed, never met.
		if sv.subsegs[sv.curSubIdx].StartByte%mts.PacketSize != 0 {
			sv.st.Fail("segment: sidx/ssix byte offset does not align to a TS packet boundary", p.PID, int64(sv.subsegs[sv.curSubIdx].StartByte))
		}
		sv.curSubIdx++
	}
	if sv.curSubIdx >= len(sv.subsegs) {
		return
	}
	sub := &sv.subsegs[sv.curSubIdx]
	if p.Pos != int64(sub.StartByte) {
		return
	}
	if int64(sub.StartByte)%mts.PacketSize != 0 {
		sv.st.Fail("segment: sidx/ssix byte offset does not align to a TS packet boundary", p.PID, p.Pos)
		return
	}
	if sub.StartsWithSAP {
		if !p.RAI {
			sv.st.Fail("segment: subsegment declared starts_with_SAP but its first TS packet lacks the random_access_indicator", p.PID, p.Pos)
		}
		sub.SawRandomAccess = true
	}
}

// validateVideoPES applies the per-PES checks to a
// reassembled video PES packet: PTS bookkeeping, SAP classification
// against the NAL unit type, the no-PTS-in-init-segment rule (enforced by
// the caller after the whole segment has been walked), and the
// subsegmentAlignment boundary-spanning check.
func (sv *segmentValidator) validateVideoPES(p *pes.Packet, pos, endPos int64) {
	first := !sv.sawFirstVideoPES
	sv.sawFirstVideoPES = true

	sv.checkSubsegmentSpan(pos, endPos, videoPIDOf(sv))

	if p.PDI == 0 {
		if !sv.init {
			if first && sv.align.SegmentAlignment {
				sv.st.Fail("segment: first video PES packet carries no PTS in a segment-aligned representation", videoPIDOf(sv), pos)
			} else if !first {
				sv.st.Fail("segment: video PES packet carries no PTS", videoPIDOf(sv), pos)
			}
		}
		return
	}
	sv.recordPTS(p.PTS)

	sapType, err := classifyAU(p.Data)
	if err != nil {
		sv.st.Advise("segment: could not classify access unit type: "+err.Error(), videoPIDOf(sv), pos)
		return
	}
	if sv.curSubIdx < len(sv.subsegs) {
		sub := &sv.subsegs[sv.curSubIdx]
		if sub.StartsWithSAP && sub.SAPType != 0 && sapType != int(sub.SAPType) {
			sv.st.Advise("segment: access unit SAP type does not match the subsegment's declared SAP type", videoPIDOf(sv), pos)
		}
	}
}

// checkSubsegmentSpan fails when a reassembled PES packet's TS packets
// cross a subsegment boundary while subsegmentAlignment is in force,
// grounded on segment_validator.c's validate_pes_packet subsegment_alignment
// branch: a subsegment shall contain only complete PES packets.
func (sv *segmentValidator) checkSubsegmentSpan(pos, endPos int64, pid uint16) {
	if !sv.align.SubsegmentAlignment {
		return
	}
	for i := range sv.subsegs {
		end := int64(sv.subsegs[i].EndByte)
		if pos < end && endPos > end {
			sv.st.Fail("segment: TS packet spans a subsegment boundary declared by the index segment", pid, pos)
			return
		}
	}
}

// validateEmsgPES decodes a DASH event message box from a reassembled PES
// packet on the metadata PID, grounded on segment_validator.c's
// validate_emsg_pes_packet/validate_emsg_msg. A PES packet on this PID
// that does not carry a well-formed emsg box is a conformance failure.
func (sv *segmentValidator) validateEmsgPES(p *pes.Packet, pos int64) {
	emsg, err := demux.DecodeEmsg(p)
	if err != nil {
		sv.st.Fail("segment: emsg PES payload is not a valid event message box: "+err.Error(), sv.pmt.EmsgPID, pos)
		return
	}
	if emsg.Timescale == 0 {
		sv.st.Fail("segment: emsg timescale is zero", sv.pmt.EmsgPID, pos)
	}
}

// validateAudioPES walks an ADTS audio PES's frame list, failing on any
// zero-length frame, grounded on segment_validator.c's ADTS frame-length
// walk of validate_pes_packet.
func (sv *segmentValidator) validateAudioPES(p *pes.Packet, pos, endPos int64) {
	first := !sv.sawFirstAudioPES
	sv.sawFirstAudioPES = true

	sv.checkSubsegmentSpan(pos, endPos, audioPIDOf(sv))

	if p.PDI == 0 {
		if !sv.init {
			if first && sv.align.SegmentAlignment {
				sv.st.Fail("segment: first audio PES packet carries no PTS in a segment-aligned representation", audioPIDOf(sv), pos)
			} else if !first {
				sv.st.Fail("segment: audio PES packet carries no PTS", audioPIDOf(sv), pos)
			}
		}
		return
	}
	sv.recordPTS(p.PTS)

	off := 0
	for off+7 <= len(p.Data) {
		if p.Data[off] != 0xff || p.Data[off+1]&0xf0 != 0xf0 {
			sv.st.Fail("segment: ADTS syncword not found at expected frame offset", audioPIDOf(sv), pos)
			return
		}
		frameLen := int(p.Data[off+3]&0x03)<<11 | int(p.Data[off+4])<<3 | int(p.Data[off+5])>>5
		if frameLen == 0 {
			sv.st.Fail("segment: ADTS frame_length is zero", audioPIDOf(sv), pos)
			return
		}
		off += frameLen
	}
}

func (sv *segmentValidator) recordPTS(pts uint64) {
	if !sv.sawPTS {
		sv.earliestPTS, sv.latestPTS = pts, pts
		sv.sawPTS = true
		return
	}
	if pts < sv.earliestPTS {
		sv.earliestPTS = pts
	}
	if pts > sv.latestPTS {
		sv.latestPTS = pts
	}
}

func videoPIDOf(sv *segmentValidator) uint16 {
	if sv.pmt != nil {
		return sv.pmt.VideoPID
	}
	return 0
}

func audioPIDOf(sv *segmentValidator) uint16 {
	if sv.pmt != nil {
		return sv.pmt.AudioPID
	}
	return 0
}

// classifyAU returns the SAP type (1 for an IDR access unit, 2 for a
// non-IDR one) implied by an H.264 access unit's leading NAL unit.
func classifyAU(data []byte) (int, error) {
	nalType, err := h264.NALType(data)
	if err != nil {
		return 0, err
	}
	switch nalType {
	case nalIDR:
		return 1, nil
	case nalNonIDR:
		return 2, nil
	default:
		return 0, nil
	}
}
