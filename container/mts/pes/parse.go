/*
NAME
  parse.go

DESCRIPTION
  parse.go provides a reader for PES packets, the inverse of the existing
  Bytes() encoder in pes.go.

AUTHOR
  Saxon A. Nelson-Milton <saxon.milton@gmail.com>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pes

import (
	"github.com/pkg/errors"
)

// PES start code prefix, as it appears in octets 0-2 of every PES packet.
const startCodePrefix = 0x000001

// PTS/DTS indicator values carried in the PDI field.
const (
	pdiNone    = 0x0
	pdiForbid  = 0x1
	pdiPTSOnly = 0x2
	pdiPTSDTS  = 0x3
)

// Errors returned by Parse.
var (
	ErrShortPacket  = errors.New("pes: buffer too short for packet header")
	ErrBadStartCode = errors.New("pes: missing 0x000001 start code prefix")
)

// Parse decodes a PES packet from b, the inverse of (*Packet).Bytes. PayloadPos
// records the byte position, within the stream b was taken from, of the first
// byte of the payload; the caller supplies streamPos as the position of b[0].
func Parse(b []byte, streamPos int64) (*Packet, error) {
	if len(b) < 9 {
		return nil, ErrShortPacket
	}
	if uint32(b[0])<<16|uint32(b[1])<<8|uint32(b[2]) != startCodePrefix {
		return nil, ErrBadStartCode
	}

	p := &Packet{
		StreamID: b[3],
		Length:   uint16(b[4])<<8 | uint16(b[5]),
	}

	// Some stream IDs (program_stream_map, padding_stream, private_stream_2,
	// ECM, EMM, program_stream_directory, DSMCC, ITU-T Rec. H.222.1 type E)
	// carry no optional header; their payload begins immediately at octet 6.
	if noOptionalHeader(p.StreamID) {
		p.Data = b[6:]
		return p, nil
	}

	if len(b) < 9 {
		return nil, ErrShortPacket
	}
	flags1 := b[6]
	flags2 := b[7]
	p.SC = (flags1 >> 4) & 0x3
	p.Priority = flags1&0x08 != 0
	p.DAI = flags1&0x04 != 0
	p.Copyright = flags1&0x02 != 0
	p.Original = flags1&0x01 != 0

	p.PDI = (flags2 >> 6) & 0x3
	p.ESCRF = flags2&0x20 != 0
	p.ESRF = flags2&0x10 != 0
	p.DSMTMF = flags2&0x08 != 0
	p.ACIF = flags2&0x04 != 0
	p.CRCF = flags2&0x02 != 0
	p.EF = flags2&0x01 != 0

	p.HeaderLength = b[8]
	headerStart := 9
	headerEnd := headerStart + int(p.HeaderLength)
	if len(b) < headerEnd {
		return nil, ErrShortPacket
	}
	opt := b[headerStart:headerEnd]
	off := 0

	switch p.PDI {
	case pdiPTSOnly:
		if len(opt) < off+5 {
			return nil, ErrShortPacket
		}
		p.PTS = extractTimestamp(opt[off : off+5])
		off += 5
	case pdiPTSDTS:
		if len(opt) < off+10 {
			return nil, ErrShortPacket
		}
		p.PTS = extractTimestamp(opt[off : off+5])
		off += 5
		p.DTS = extractTimestamp(opt[off : off+5])
		off += 5
	}

	if p.ESCRF {
		if len(opt) < off+6 {
			return nil, ErrShortPacket
		}
		p.ESCR = extractESCR(opt[off : off+6])
		off += 6
	}
	if p.ESRF {
		if len(opt) < off+3 {
			return nil, ErrShortPacket
		}
		p.ESR = (uint32(opt[off])&0xfe)<<21 | uint32(opt[off+1])<<14 | (uint32(opt[off+2])&0xfe)<<6 | uint32(opt[off+2]&0x1)
		off += 3
	}

	// Stuffing bytes fill any remainder of the optional header not consumed
	// by the flagged fields above (0xff padding).
	if off < len(opt) {
		p.Stuff = opt[off:]
	}

	payloadStart := headerEnd
	p.PayloadPos = streamPos + int64(payloadStart)

	if p.Length == 0 {
		// packet_length == 0 is only legal for unbounded video streams; the
		// payload runs to the end of the buffer we were given.
		if payloadStart < len(b) {
			p.Data = b[payloadStart:]
		}
		return p, nil
	}

	payloadEnd := 6 + int(p.Length)
	if payloadEnd > len(b) {
		payloadEnd = len(b)
	}
	if payloadStart < payloadEnd {
		p.Data = b[payloadStart:payloadEnd]
	}
	return p, nil
}

// noOptionalHeader reports whether a PES stream ID carries no optional
// header fields (ISO/IEC 13818-1 Table 2-21).
func noOptionalHeader(streamID byte) bool {
	switch streamID {
	case 0xbc, // program_stream_map
		0xbe, // padding_stream
		0xbf, // private_stream_2
		0xf0, // ECM
		0xf1, // EMM
		0xff, // program_stream_directory
		0xf2, // DSMCC_stream
		0xf8: // ITU-T Rec. H.222.1 type E
		return true
	}
	return false
}

// extractTimestamp decodes a 33-bit 90kHz PTS/DTS from its canonical 5-byte
// [marker-nibble|3 bits|1|15 bits|1|15 bits|1] layout.
func extractTimestamp(d []byte) uint64 {
	return uint64(d[0]>>1&0x07)<<30 |
		uint64(d[1])<<22 |
		uint64(d[2]>>1&0x7f)<<15 |
		uint64(d[3])<<7 |
		uint64(d[4]>>1&0x7f)
}

// extractESCR decodes a 42-bit elementary stream clock reference (33-bit base
// + 9-bit extension) from its 6-byte packed layout.
func extractESCR(d []byte) uint64 {
	base := uint64(d[0]>>3&0x07)<<30 |
		uint64(d[0]&0x03)<<28 | uint64(d[1])<<20 |
		uint64(d[2]>>3&0x1f)<<15 |
		uint64(d[2]&0x03)<<13 | uint64(d[3])<<5 | uint64(d[4]>>3&0x1f)
	ext := uint64(d[4]&0x03)<<7 | uint64(d[5]>>1&0x7f)
	return base*300 + ext
}
