/*
NAME
  mpegts_test.go

DESCRIPTION
  mpegts_test.go contains testing for functionality found in mpegts.go and
  parse.go.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import (
	"bytes"
	"testing"
)

func TestBytes(t *testing.T) {
	const payloadLen, payloadChar, stuffingChar = 120, 0x11, 0xff
	const stuffingLen = PacketSize - payloadLen - 12

	tests := []struct {
		packet         Packet
		expectedHeader []byte
	}{
		{
			packet: Packet{
				PUSI: true,
				PID:  1,
				RAI:  true,
				CC:   4,
				AFC:  HasPayload | HasAdaptationField,
				PCRF: true,
				PCR:  1,
			},
			expectedHeader: []byte{
				0x47,                               // Sync byte.
				0x40,                               // TEI=0, PUSI=1, TP=0, PID=00000.
				0x01,                               // PID(Cont)=00000001.
				0x34,                               // TSC=00, AFC=11(adaptation followed by payload), CC=0100(4).
				byte(7 + stuffingLen),              // AFL=.
				0x50,                               // DI=0,RAI=1,ESPI=0,PCRF=1,OPCRF=0,SPF=0,TPDF=0, AFEF=0.
				0x00, 0x00, 0x00, 0x00, 0x80, 0x00, // PCR.
			},
		},
	}

	for testNum, test := range tests {
		payload := make([]byte, 0, payloadLen)
		for i := 0; i < payloadLen; i++ {
			payload = append(payload, payloadChar)
		}

		test.packet.FillPayload(payload)

		expected := make([]byte, len(test.expectedHeader), PacketSize)
		copy(expected, test.expectedHeader)

		for i := 0; i < stuffingLen; i++ {
			expected = append(expected, stuffingChar)
		}

		expected = append(expected, payload...)

		got := test.packet.Bytes(nil)
		if !bytes.Equal(got, expected) {
			t.Errorf("did not get expected result for test: %v.\n Got: %v\n Want: %v\n", testNum, got, expected)
		}
	}
}

// TestParsePacketRoundTrip checks that ParsePacket correctly inverts
// (*Packet).Bytes for a packet with an adaptation field carrying a PCR.
func TestParsePacketRoundTrip(t *testing.T) {
	want := Packet{
		PUSI: true,
		PID:  0x101,
		RAI:  true,
		CC:   7,
		AFC:  HasPayload | HasAdaptationField,
		PCRF: true,
		PCR:  12345,
	}
	want.FillPayload(bytes.Repeat([]byte{0xab}, 100))

	b := want.Bytes(nil)
	if len(b) != PacketSize {
		t.Fatalf("Bytes() produced %d bytes, want %d", len(b), PacketSize)
	}

	got, err := ParsePacket(b, 42)
	if err != nil {
		t.Fatalf("ParsePacket() error = %v", err)
	}

	if got.PUSI != want.PUSI || got.PID != want.PID || got.RAI != want.RAI ||
		got.CC != want.CC || got.PCRF != want.PCRF || got.PCR != want.PCR {
		t.Errorf("ParsePacket() = %+v, want fields matching %+v", got, want)
	}
	if !bytes.Equal(got.Payload, want.Payload) {
		t.Errorf("ParsePacket() payload = %v, want %v", got.Payload, want.Payload)
	}
	if got.Pos != 42 {
		t.Errorf("ParsePacket() Pos = %d, want 42", got.Pos)
	}
}

func TestParsePacketRejectsBadSyncByte(t *testing.T) {
	b := make([]byte, PacketSize)
	if _, err := ParsePacket(b, 0); err != ErrBadSyncByte {
		t.Errorf("ParsePacket() error = %v, want %v", err, ErrBadSyncByte)
	}
}

func TestParsePacketRejectsWrongLength(t *testing.T) {
	if _, err := ParsePacket(make([]byte, PacketSize-1), 0); err != ErrNotPacketSize {
		t.Errorf("ParsePacket() error = %v, want %v", err, ErrNotPacketSize)
	}
}
