package manifest

import (
	"strings"
	"testing"
)

const sampleMPD = `<?xml version="1.0"?>
<MPD>
  <Period duration="PT4S">
    <AdaptationSet profiles="urn:mpeg:dash:profile:mp2t-main:2011" mimeType="video/mp2t"
        videoPID="256" segmentAlignment="true">
      <Representation id="v0" bandwidth="500000" timescale="90000" startWithSAP="1">
        <SegmentList>
          <Initialization sourceURL="init.ts"/>
          <SegmentURL media="seg1.ts" mediaRange="0-187999" presentationStart="0" presentationDuration="180000"/>
          <SegmentURL media="seg2.ts" mediaRange="0-187999" presentationStart="180000" presentationDuration="180000"/>
        </SegmentList>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

func TestLoad(t *testing.T) {
	mpd, err := Load(strings.NewReader(sampleMPD))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(mpd.Periods) != 1 {
		t.Fatalf("got %d periods, want 1", len(mpd.Periods))
	}
	p := mpd.Periods[0]
	if p.Duration != 4*ClockRate {
		t.Fatalf("Period.Duration = %d, want %d", p.Duration, 4*ClockRate)
	}
	as := p.AdaptationSets[0]
	if !as.SegmentAlignment.HasValue || !as.SegmentAlignment.Value {
		t.Fatalf("SegmentAlignment = %+v, want {true true}", as.SegmentAlignment)
	}
	if as.VideoPID != 256 {
		t.Fatalf("VideoPID = %d, want 256", as.VideoPID)
	}
	r := as.Representations[0]
	if len(r.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(r.Segments))
	}
	if idx := r.CheckOrdering(); idx != -1 {
		t.Fatalf("CheckOrdering() = %d, want -1 (aligned)", idx)
	}
}

func TestCheckOrderingDetectsGap(t *testing.T) {
	r := &Representation{
		Segments: []*Segment{
			{Start: 0, Duration: 180000},
			{Start: 200000, Duration: 180000}, // gap: 180000 != 200000
		},
	}
	if idx := r.CheckOrdering(); idx != 0 {
		t.Fatalf("CheckOrdering() = %d, want 0", idx)
	}
}
