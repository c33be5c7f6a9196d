package orchestrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	mts "github.com/ausocean/tsconform/container/mts"
	"github.com/ausocean/tsconform/container/mts/pes"
	"github.com/ausocean/tsconform/container/mts/psi"
	"github.com/ausocean/tsconform/manifest"
)

func padTo184(b []byte) []byte {
	out := append([]byte(nil), b...)
	for len(out) < 184 {
		out = append(out, 0xff)
	}
	return out
}

func buildSegmentFile(t *testing.T) []byte {
	t.Helper()
	pat := psi.NewPATPSI()
	pat.SyntaxSection.SpecificData.(*psi.PAT).ProgramMapPID = 0x1000

	pmt := psi.NewPMTPSI()
	pmtData := pmt.SyntaxSection.SpecificData.(*psi.PMT)
	pmtData.ProgramClockPID = 0x100
	pmtData.StreamSpecificData.StreamType = 0x1b
	pmtData.StreamSpecificData.PID = 0x100

	nal := []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0xaa, 0xbb}
	videoPES := (&pes.Packet{StreamID: 0xe0, PDI: 0x2, PTS: 0, HeaderLength: 5, Data: nal}).Bytes(nil)

	pktBytes := func(pid uint16, payload []byte) []byte {
		p := mts.Packet{PUSI: true, PID: pid, AFC: mts.HasPayload, Payload: payload}
		return p.Bytes(nil)
	}

	var out []byte
	out = append(out, pktBytes(0x0000, padTo184(pat.Bytes()))...)
	out = append(out, pktBytes(0x1000, padTo184(pmt.Bytes()))...)
	out = append(out, pktBytes(0x100, videoPES)...)
	return out
}

const sampleMPD = `<?xml version="1.0"?>
<MPD>
  <Period duration="PT2S">
    <AdaptationSet profiles="urn:mpeg:dash:profile:mp2t-main:2011" mimeType="video/mp2t"
        videoPID="256" segmentAlignment="true">
      <Representation id="v0" bandwidth="500000" timescale="90000" startWithSAP="1">
        <SegmentList>
          <SegmentURL media="seg1.ts" presentationStart="0" presentationDuration="0"/>
        </SegmentList>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

func TestRunValidatesRepresentations(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "seg1.ts"), buildSegmentFile(t), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	mpd, err := manifest.Load(strings.NewReader(sampleMPD))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	report := Run(mpd, Options{BaseDir: dir, Profile: ProfileMp2tMain, Concurrency: 2})
	if !report.OK {
		for _, ar := range report.AdaptationReports {
			for _, rv := range ar.Representations {
				for _, seg := range rv.Segments {
					t.Logf("failures: %+v", seg.Status.Failures)
				}
			}
		}
		t.Fatal("expected the manifest's single representation to pass validation")
	}
}

func TestRunReportsMissingSegmentFile(t *testing.T) {
	dir := t.TempDir()
	mpd, err := manifest.Load(strings.NewReader(sampleMPD))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	report := Run(mpd, Options{BaseDir: dir, Profile: ProfileMp2tMain})
	if report.OK {
		t.Fatal("expected a missing segment file to fail the run")
	}
}
