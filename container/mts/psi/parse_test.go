package psi

import (
	"testing"
)

func TestParsePATStandard(t *testing.T) {
	b := AddCRC(append([]byte(nil), StandardPatBytes...))
	sec, err := ParsePAT(b)
	if err != nil {
		t.Fatalf("ParsePAT() error = %v", err)
	}
	if sec.TableID != TableIDPAT {
		t.Fatalf("TableID = %#x, want %#x", sec.TableID, TableIDPAT)
	}
	if len(sec.PAT.Programs) != 1 {
		t.Fatalf("got %d programs, want 1", len(sec.PAT.Programs))
	}
	prog := sec.PAT.Programs[0]
	if prog.ProgramNumber != 1 || prog.ProgramMapPID != 0x1000 {
		t.Fatalf("unexpected program association: %+v", prog)
	}
}

func TestParsePMTStandard(t *testing.T) {
	b := AddCRC(append([]byte(nil), StandardPmtBytes...))
	sec, err := ParsePMT(b)
	if err != nil {
		t.Fatalf("ParsePMT() error = %v", err)
	}
	if sec.PMT.PCRPID != 0x0100 {
		t.Fatalf("PCRPID = %#x, want 0x0100", sec.PMT.PCRPID)
	}
	if len(sec.PMT.Streams) != 1 || sec.PMT.Streams[0].StreamType != 0x1b {
		t.Fatalf("unexpected streams: %+v", sec.PMT.Streams)
	}
}

func TestParseSectionBadCRC(t *testing.T) {
	b := AddCRC(append([]byte(nil), StandardPatBytes...))
	b[len(b)-1] ^= 0xff // corrupt the CRC
	if _, err := ParsePAT(b); err == nil {
		t.Fatal("expected CRC mismatch error")
	}
}

func TestParseSectionWrongTable(t *testing.T) {
	b := AddCRC(append([]byte(nil), StandardPatBytes...))
	if _, err := ParsePMT(b); err != ErrWrongTable {
		t.Fatalf("ParsePMT() on a PAT section error = %v, want ErrWrongTable", err)
	}
}
