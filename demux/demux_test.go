package demux

import (
	"testing"

	mts "github.com/ausocean/tsconform/container/mts"
	"github.com/ausocean/tsconform/container/mts/pes"
	"github.com/ausocean/tsconform/container/mts/psi"
)

// tsPacket wraps payload in a single 188-byte TS packet on pid, PUSI set.
func tsPacket(t *testing.T, pid uint16, payload []byte, pos int64) mts.Packet {
	t.Helper()
	enc := mts.Packet{PUSI: true, PID: pid, AFC: 0x1, Payload: payload}
	b := enc.Bytes(nil)
	p, err := mts.ParsePacket(b, pos)
	if err != nil {
		t.Fatalf("ParsePacket() error = %v", err)
	}
	return p
}

func TestDemuxPATThenPMT(t *testing.T) {
	pat := psi.NewPATPSI()
	pat.SyntaxSection.SpecificData.(*psi.PAT).ProgramMapPID = 0x1000

	pmt := psi.NewPMTPSI().Bytes()

	// pad to fit a single TS packet payload (184 bytes max).
	padTo184 := func(b []byte) []byte {
		out := append([]byte(nil), b...)
		for len(out) < 184 {
			out = append(out, 0xff)
		}
		return out
	}

	d := New()
	var gotPAT, gotPMT bool
	d.OnPAT(func(sec *psi.Section) { gotPAT = true })
	d.OnPMT(func(pid uint16, sec *psi.Section) { gotPMT = true })

	if err := d.WritePacket(tsPacket(t, 0x0000, padTo184(pat.Bytes()), 0)); err != nil {
		t.Fatalf("WritePacket(PAT) error = %v", err)
	}
	if !gotPAT {
		t.Fatal("expected OnPAT to fire")
	}
	if err := d.WritePacket(tsPacket(t, 0x1000, padTo184(pmt), 188)); err != nil {
		t.Fatalf("WritePacket(PMT) error = %v", err)
	}
	if !gotPMT {
		t.Fatal("expected OnPMT to fire")
	}
}

func TestPESAssembler(t *testing.T) {
	encoded := (&pes.Packet{StreamID: 0xe0, PDI: 0x0}).Bytes(nil)

	var gotStreamID byte
	var calls int
	a := NewPESAssembler(func(p *pes.Packet, pos, endPos int64) {
		calls++
		gotStreamID = p.StreamID
	})

	payload := encoded
	if len(payload) > 184 {
		payload = payload[:184]
	}
	if err := a.WritePacket(tsPacket(t, 0x100, payload, 0)); err != nil {
		t.Fatalf("WritePacket() error = %v", err)
	}
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
	if gotStreamID != 0xe0 {
		t.Fatalf("StreamID = %#x, want 0xe0", gotStreamID)
	}
}
