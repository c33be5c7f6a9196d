/*
NAME
  pes_assembler.go

DESCRIPTION
  pes_assembler.go reassembles PES packets from a PID's TS packet stream:
  payload bytes are queued from one PUSI to the next, then flushed and
  parsed as a single PES packet, grounded on tslib's pes_demux.c
  queue-then-flush-on-PUSI state machine.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package demux

import (
	mts "github.com/ausocean/tsconform/container/mts"
	"github.com/ausocean/tsconform/container/mts/pes"
)

// PESHandler is called with each fully reassembled PES packet on a PID, the
// byte position (within the enclosing segment) of the TS packet that began
// it, and the byte position one past the last TS packet that contributed to
// it.
type PESHandler func(p *pes.Packet, startPos, endPos int64)

// PESAssembler buffers TS payload bytes for a single PID from one PUSI to
// the next, flushing a parsed PES packet to its handler on each boundary.
// One PESAssembler is needed per elementary stream PID, matching tslib's
// per-PID pes_demux_t instances.
type PESAssembler struct {
	handler  PESHandler
	buf      []byte
	startPos int64
	lastPos  int64
	started  bool
}

// NewPESAssembler returns a PESAssembler that reports completed packets to h.
func NewPESAssembler(h PESHandler) *PESAssembler {
	return &PESAssembler{handler: h}
}

// WritePacket feeds one TS packet belonging to this assembler's PID.
// Returns an error only if a queued PES buffer fails to parse; malformed
// PES payload is not itself a fatal condition for the caller, which may
// choose to continue demuxing.
func (a *PESAssembler) WritePacket(p mts.Packet) error {
	if p.PUSI {
		if err := a.flush(); err != nil {
			return err
		}
		a.buf = append(a.buf[:0], p.Payload...)
		a.startPos = p.Pos
		a.started = true
	} else if a.started {
		a.buf = append(a.buf, p.Payload...)
	}
	a.lastPos = p.Pos
	// A continuation packet arriving before any PUSI is dropped, matching
	// pes_demux.c's behavior of waiting for the first start-of-unit.
	return nil
}

// Flush forces out any buffered PES packet, e.g. at end of stream.
func (a *PESAssembler) Flush() error { return a.flush() }

func (a *PESAssembler) flush() error {
	if !a.started || len(a.buf) == 0 {
		return nil
	}
	pkt, err := pes.Parse(a.buf, a.startPos)
	endPos := a.lastPos + mts.PacketSize
	a.buf = nil
	a.started = false
	if err != nil {
		return err
	}
	if a.handler != nil {
		a.handler(pkt, a.startPos, endPos)
	}
	return nil
}
