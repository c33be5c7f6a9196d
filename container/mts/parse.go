/*
NAME
  parse.go

DESCRIPTION
  parse.go provides a reader for MPEG-2 TS packets, the inverse of the
  existing (*Packet).Bytes encoder in mpegts.go.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import "github.com/pkg/errors"

// SyncByte is the fixed first octet of every TS packet.
const SyncByte = 0x47

// Errors returned by ParsePacket.
var (
	ErrNotPacketSize  = errors.New("mts: buffer is not exactly PacketSize bytes")
	ErrBadSyncByte    = errors.New("mts: missing 0x47 sync byte")
	ErrShortAdaptation = errors.New("mts: adaptation_field_length exceeds packet")
	ErrBadStuffing    = errors.New("mts: stuffing byte in adaptation field is not 0xff")
)

// ParsePacket decodes one 188-byte TS packet from b, the inverse of
// (*Packet).Bytes. pos is the byte position of b[0] within the enclosing
// stream and is recorded on the returned Packet's Pos field.
//
// Adaptation field stuffing bytes (the bytes following any optional fields,
// up to the declared adaptation_field_length) must all equal 0xff; any other
// value is a parse failure, per ISO/IEC 13818-1 2.4.3.4.
func ParsePacket(b []byte, pos int64) (Packet, error) {
	var p Packet
	if len(b) != PacketSize {
		return p, ErrNotPacketSize
	}
	if b[0] != SyncByte {
		return p, ErrBadSyncByte
	}
	p.Pos = pos

	p.TEI = b[1]&0x80 != 0
	p.PUSI = b[1]&0x40 != 0
	p.Priority = b[1]&0x20 != 0
	p.PID = uint16(b[1]&0x1f)<<8 | uint16(b[2])
	p.TSC = (b[3] >> 6) & 0x3
	p.AFC = (b[3] >> 4) & 0x3
	p.CC = b[3] & 0xf

	off := 4
	if p.AFC&0x2 != 0 {
		if off >= len(b) {
			return p, ErrShortAdaptation
		}
		afLen := int(b[off])
		off++
		afEnd := off + afLen
		if afEnd > len(b) {
			return p, ErrShortAdaptation
		}
		if afLen > 0 {
			flags := b[off]
			p.DI = flags&0x80 != 0
			p.RAI = flags&0x40 != 0
			p.ESPI = flags&0x20 != 0
			p.PCRF = flags&0x10 != 0
			p.OPCRF = flags&0x08 != 0
			p.SPF = flags&0x04 != 0
			p.TPDF = flags&0x02 != 0
			p.AFEF = flags&0x01 != 0
			fo := off + 1

			if p.PCRF {
				if fo+6 > afEnd {
					return p, ErrShortAdaptation
				}
				// (*Packet).Bytes packs only the 33-bit PCR base into the
				// top bits of this 48-bit field and always writes the
				// extension/reserved bits as zero; decode the inverse of
				// that packing so parse(serialize(p)) == p.
				var raw uint64
				for i := 0; i < 6; i++ {
					raw = raw<<8 | uint64(b[fo+i])
				}
				p.PCR = raw >> 15
				fo += 6
			}
			if p.OPCRF {
				if fo+6 > afEnd {
					return p, ErrShortAdaptation
				}
				var raw uint64
				for i := 0; i < 6; i++ {
					raw = raw<<8 | uint64(b[fo+i])
				}
				p.OPCR = raw >> 15
				fo += 6
			}
			if p.SPF {
				if fo >= afEnd {
					return p, ErrShortAdaptation
				}
				p.SC = b[fo]
				fo++
			}
			if p.TPDF {
				if fo >= afEnd {
					return p, ErrShortAdaptation
				}
				p.TPDL = b[fo]
				fo++
				if fo+int(p.TPDL) > afEnd {
					return p, ErrShortAdaptation
				}
				p.TPD = b[fo : fo+int(p.TPDL)]
				fo += int(p.TPDL)
			}
			if p.AFEF {
				if fo >= afEnd {
					return p, ErrShortAdaptation
				}
				extLen := int(b[fo])
				if fo+1+extLen > afEnd {
					return p, ErrShortAdaptation
				}
				p.Ext = b[fo : fo+1+extLen]
				fo += 1 + extLen
			}

			for i := fo; i < afEnd; i++ {
				if b[i] != 0xff {
					return p, ErrBadStuffing
				}
			}
		}
		off = afEnd
	}

	if p.AFC&0x1 != 0 {
		p.Payload = b[off:]
	}
	return p, nil
}
