/*
NAME
  ecm.go

DESCRIPTION
  ecm.go decodes a Common Encryption (CENC) ECM buffer, the metadata a PMT's
  ca_descriptor (tag 9) references for encrypted content. Grounded
  byte-for-byte on tslib's cets_ecm.c/.h.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package cets decodes the Common Encryption ECM (Encrypted Content
// Metadata) buffer format carried in a PMT's ca_descriptor for encrypted
// representations.
package cets

import "github.com/ausocean/tsconform/bitreader"

// KeyIDSize is the fixed size, in bytes, of every key_id and next_key_id
// field.
const KeyIDSize = 16

// AccessUnit describes one access unit's encryption parameters within a
// state.
type AccessUnit struct {
	KeyIDFlag      bool
	KeyID          [KeyIDSize]byte // only meaningful if KeyIDFlag
	ByteOffsetSize uint8           // 0-15
	ByteOffset     []byte          // ByteOffsetSize bytes
	IV             []byte          // IVSize bytes
}

// State describes one transport_scrambling_control grouping of access
// units.
type State struct {
	TransportScramblingControl uint8
	AccessUnits                []AccessUnit
}

// ECM is a fully decoded CETS ECM buffer.
type ECM struct {
	NextKeyIDFlag bool
	IVSize        uint8
	DefaultKeyID  [KeyIDSize]byte
	States        []State
	CountdownSec  uint8 // only meaningful if NextKeyIDFlag
	NextKeyID     [KeyIDSize]byte
}

// Decode parses b as a CETS ECM buffer. The first 6 bits (num_states,
// next_key_id_flag, 3 reserved bits) are NOT byte-aligned with what
// follows: iv_size's 8 bits begin 6 bits into the buffer, per the upstream
// note that this layout, while unusual, is the format actually produced.
func Decode(b []byte) (*ECM, error) {
	r := bitreader.New(b)
	numStates := r.ReadBits(2)
	e := &ECM{}
	e.NextKeyIDFlag = r.ReadBit() != 0
	r.SkipBits(3) // reserved

	e.IVSize = r.ReadU8()
	copy(e.DefaultKeyID[:], r.ReadBytes(KeyIDSize))

	for i := uint64(0); i < numStates; i++ {
		st := State{
			TransportScramblingControl: uint8(r.ReadBits(2)),
		}
		numAU := r.ReadBits(6)
		for j := uint64(0); j < numAU; j++ {
			au := AccessUnit{}
			au.KeyIDFlag = r.ReadBit() != 0
			r.SkipBits(3) // reserved
			au.ByteOffsetSize = uint8(r.ReadBits(4))
			if au.KeyIDFlag {
				copy(au.KeyID[:], r.ReadBytes(KeyIDSize))
			}
			au.ByteOffset = r.ReadBytes(int(au.ByteOffsetSize))
			au.IV = r.ReadBytes(int(e.IVSize))
			st.AccessUnits = append(st.AccessUnits, au)
		}
		e.States = append(e.States, st)
	}

	if e.NextKeyIDFlag {
		e.CountdownSec = uint8(r.ReadBits(4))
		r.SkipBits(4) // reserved
		copy(e.NextKeyID[:], r.ReadBytes(KeyIDSize))
	}

	if err := r.Err(); err != nil {
		return nil, err
	}
	return e, nil
}
