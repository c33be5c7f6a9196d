/*
NAME
  demux.go

DESCRIPTION
  demux.go implements an incremental MPEG-2 TS demultiplexer: it accumulates
  PAT/PMT sections across packets and dispatches PES-bearing packets to
  registered per-PID handlers, replacing a whole-buffer PAT/PMT scan with a
  per-packet state machine suited to streaming validation.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package demux implements an MPEG-2 TS demultiplexer over the new
// container/mts.ParsePacket/container/mts/psi.ParseSection readers, plus a
// PES reassembler and a DASH emsg handler built on top of it.
package demux

import (
	"github.com/pkg/errors"

	mts "github.com/ausocean/tsconform/container/mts"
	"github.com/ausocean/tsconform/container/mts/psi"
)

const patPID = 0x0000

// PATHandler is called whenever a new (by version) PAT section is parsed.
type PATHandler func(pat *psi.Section)

// PMTHandler is called whenever a new (by version) PMT section on pmtPID is
// parsed.
type PMTHandler func(pmtPID uint16, pmt *psi.Section)

// PacketHandler is called for every TS packet on a registered PID, after the
// PAT/PMT bookkeeping for that packet has been applied.
type PacketHandler func(p mts.Packet)

// Demux accumulates PAT/PMT PSI sections and dispatches packets, PID by PID,
// to registered handlers. It holds no goroutines or shared state beyond a
// single run's construction, per the concurrency model: one Demux per
// segment validation run.
type Demux struct {
	onPAT PATHandler
	onPMT PMTHandler

	packetHandlers map[uint16]PacketHandler

	lastPAT    *psi.Section
	pmtPIDs    map[uint16]bool
	lastPMT    map[uint16]*psi.Section
	sectionBuf map[uint16][]byte // accumulates a PUSI-started section across packets
}

// New returns an empty Demux.
func New() *Demux {
	return &Demux{
		packetHandlers: make(map[uint16]PacketHandler),
		pmtPIDs:        make(map[uint16]bool),
		lastPMT:        make(map[uint16]*psi.Section),
		sectionBuf:     make(map[uint16][]byte),
	}
}

// OnPAT registers the callback invoked on each new-version PAT.
func (d *Demux) OnPAT(h PATHandler) { d.onPAT = h }

// OnPMT registers the callback invoked on each new-version PMT.
func (d *Demux) OnPMT(h PMTHandler) { d.onPMT = h }

// Handle registers h to be called for every packet on pid, after PSI
// bookkeeping. Registering a handler for the PAT PID is an error; use OnPAT
// instead. A handler on a PMT PID is accepted and is called after that
// packet's PMT bookkeeping; PMT sections themselves are reported via OnPMT.
func (d *Demux) Handle(pid uint16, h PacketHandler) error {
	if pid == patPID {
		return errors.New("demux: cannot register a packet handler for the PAT PID; use OnPAT")
	}
	d.packetHandlers[pid] = h
	return nil
}

// WritePacket feeds one TS packet through the demux: PSI accumulation first,
// then dispatch to any registered packet handler for p.PID.
func (d *Demux) WritePacket(p mts.Packet) error {
	if p.PID == patPID {
		return d.writePSI(p, d.sectionBuf, patPID, func(sec *psi.Section) {
			if d.lastPAT == nil || !d.lastPAT.Equal(sec) {
				d.lastPAT = sec
				d.registerPMTPIDs(sec)
				if d.onPAT != nil {
					d.onPAT(sec)
				}
			}
		})
	}
	if d.pmtPIDs[p.PID] {
		pid := p.PID
		if err := d.writePSI(p, d.sectionBuf, pid, func(sec *psi.Section) {
			if prev := d.lastPMT[pid]; prev == nil || !prev.Equal(sec) {
				d.lastPMT[pid] = sec
				if d.onPMT != nil {
					d.onPMT(pid, sec)
				}
			}
		}); err != nil {
			return err
		}
	}
	if h, ok := d.packetHandlers[p.PID]; ok {
		h(p)
	}
	return nil
}

// writePSI accumulates a PUSI-delimited PSI section for pid and, once
// complete, parses and reports it through onComplete.
func (d *Demux) writePSI(p mts.Packet, buf map[uint16][]byte, pid uint16, onComplete func(*psi.Section)) error {
	if p.PUSI {
		buf[pid] = append([]byte(nil), p.Payload...)
	} else if buf[pid] != nil {
		buf[pid] = append(buf[pid], p.Payload...)
	} else {
		// No section in progress for this PID; ignore stray continuation
		// packets, matching a demuxer that simply waits for the next PUSI.
		return nil
	}

	sec, err := psi.ParseSection(buf[pid])
	if err != nil {
		if errors.Is(err, psi.ErrMultiSectionUnsupported) && sec != nil {
			onComplete(sec)
			return nil
		}
		if errors.Cause(err) == psi.ErrShortSection {
			// Section is still incomplete; wait for more packets.
			return nil
		}
		return errors.Wrap(err, "demux: parsing PSI section")
	}
	onComplete(sec)
	return nil
}

func (d *Demux) registerPMTPIDs(pat *psi.Section) {
	if pat.PAT == nil {
		return
	}
	for _, prog := range pat.PAT.Programs {
		if prog.ProgramNumber == 0 {
			continue // reserved for the network PID, not a program.
		}
		d.pmtPIDs[prog.ProgramMapPID] = true
	}
}
