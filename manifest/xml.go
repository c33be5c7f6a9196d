/*
NAME
  xml.go

DESCRIPTION
  xml.go defines the XML-shaped intermediate structs Load decodes an MPD
  document into, and converts them into the manifest package's public,
  90kHz-normalized object model.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package manifest

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type mpdXML struct {
	XMLName xml.Name     `xml:"MPD"`
	Periods []periodXML  `xml:"Period"`
}

type periodXML struct {
	Duration       string            `xml:"duration,attr"`
	AdaptationSets []adaptationSetXML `xml:"AdaptationSet"`
}

type adaptationSetXML struct {
	Profiles            string               `xml:"profiles,attr"`
	MimeType            string               `xml:"mimeType,attr"`
	AudioPID            string               `xml:"audioPID,attr"`
	VideoPID            string               `xml:"videoPID,attr"`
	BitstreamSwitching  string               `xml:"bitstreamSwitching,attr"`
	SegmentAlignment    string               `xml:"segmentAlignment,attr"`
	SubsegmentAlignment string               `xml:"subsegmentAlignment,attr"`
	Representations     []representationXML  `xml:"Representation"`
}

type representationXML struct {
	ID                     string          `xml:"id,attr"`
	Bandwidth              uint64          `xml:"bandwidth,attr"`
	PresentationTimeOffset string          `xml:"presentationTimeOffset,attr"`
	Timescale              uint32          `xml:"timescale,attr"`
	StartWithSAP           int             `xml:"startWithSAP,attr"`
	Initialization         *fileRefXML     `xml:"SegmentList>Initialization"`
	BitstreamSwitchingFile *fileRefXML     `xml:"SegmentList>BitstreamSwitching"`
	SegmentList            []segmentURLXML `xml:"SegmentList>SegmentURL"`
}

type fileRefXML struct {
	SourceURL string `xml:"sourceURL,attr"`
	Range     string `xml:"range,attr"`
}

type segmentURLXML struct {
	Media       string `xml:"media,attr"`
	MediaRange  string `xml:"mediaRange,attr"`
	Index       string `xml:"index,attr"`
	IndexRange  string `xml:"indexRange,attr"`
	// Duration/start are not a standard SegmentURL attribute pair in DASH
	// (they belong to SegmentTimeline), but this validator's manifests
	// carry them directly on each SegmentURL, keeping each segment's
	// declared timing flat rather than requiring a SegmentTimeline walk.
	Start    string `xml:"presentationStart,attr"`
	Duration string `xml:"presentationDuration,attr"`
}

func (d mpdXML) toModel() (*MPD, error) {
	m := &MPD{}
	for _, pxml := range d.Periods {
		p := &Period{}
		if pxml.Duration != "" {
			dur, err := parseISODuration(pxml.Duration)
			if err != nil {
				return nil, errors.Wrapf(err, "manifest: Period@duration %q", pxml.Duration)
			}
			p.Duration = dur
		}
		for _, asxml := range pxml.AdaptationSets {
			as, err := asxml.toModel()
			if err != nil {
				return nil, err
			}
			p.AdaptationSets = append(p.AdaptationSets, as)
		}
		m.Periods = append(m.Periods, p)
	}
	return m, nil
}

func (a adaptationSetXML) toModel() (*AdaptationSet, error) {
	as := &AdaptationSet{
		Profile:  a.Profiles,
		MimeType: a.MimeType,
	}
	if a.AudioPID != "" {
		v, err := strconv.ParseUint(a.AudioPID, 10, 16)
		if err != nil {
			return nil, errors.Wrap(err, "manifest: AdaptationSet@audioPID")
		}
		as.AudioPID = uint16(v)
	}
	if a.VideoPID != "" {
		v, err := strconv.ParseUint(a.VideoPID, 10, 16)
		if err != nil {
			return nil, errors.Wrap(err, "manifest: AdaptationSet@videoPID")
		}
		as.VideoPID = uint16(v)
	}
	as.BitstreamSwitching = parseOptionalBool(a.BitstreamSwitching)
	as.SegmentAlignment = parseOptionalBool(a.SegmentAlignment)
	as.SubsegmentAlignment = parseOptionalBool(a.SubsegmentAlignment)

	for _, rxml := range a.Representations {
		r, err := rxml.toModel()
		if err != nil {
			return nil, err
		}
		as.Representations = append(as.Representations, r)
	}
	return as, nil
}

func (rx representationXML) toModel() (*Representation, error) {
	r := &Representation{
		ID:           rx.ID,
		Bandwidth:    rx.Bandwidth,
		Timescale:    rx.Timescale,
		StartWithSAP: rx.StartWithSAP,
	}
	if rx.PresentationTimeOffset != "" {
		v, err := strconv.ParseInt(rx.PresentationTimeOffset, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "manifest: Representation@presentationTimeOffset")
		}
		r.PresentationTimeOffset = scaleToClock(v, rx.Timescale)
	}
	if rx.Initialization != nil {
		r.Initialization = rx.Initialization.toModel()
	}
	if rx.BitstreamSwitchingFile != nil {
		r.BitstreamSwitchingFile = rx.BitstreamSwitchingFile.toModel()
	}
	for _, sxml := range rx.SegmentList {
		seg, err := sxml.toModel(rx.Timescale)
		if err != nil {
			return nil, err
		}
		r.Segments = append(r.Segments, seg)
	}
	return r, nil
}

func (f *fileRefXML) toModel() *FileRef {
	ref := &FileRef{Path: f.SourceURL}
	if br, ok := parseByteRange(f.Range); ok {
		ref.Range = &br
	}
	return ref
}

func (s segmentURLXML) toModel(timescale uint32) (*Segment, error) {
	seg := &Segment{Media: FileRef{Path: s.Media}}
	if br, ok := parseByteRange(s.MediaRange); ok {
		seg.Media.Range = &br
	}
	if s.Index != "" {
		idx := &FileRef{Path: s.Index}
		if br, ok := parseByteRange(s.IndexRange); ok {
			idx.Range = &br
		}
		seg.Index = idx
	}
	if s.Start != "" {
		v, err := strconv.ParseInt(s.Start, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "manifest: SegmentURL@presentationStart")
		}
		seg.Start = scaleToClock(v, timescale)
	}
	if s.Duration != "" {
		v, err := strconv.ParseInt(s.Duration, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "manifest: SegmentURL@presentationDuration")
		}
		seg.Duration = scaleToClock(v, timescale)
	}
	return seg, nil
}

// scaleToClock converts a value expressed in a representation's own
// @timescale units to the 90kHz presentation clock every in-memory time is
// normalized to.
func scaleToClock(v int64, timescale uint32) int64 {
	if timescale == 0 {
		return v
	}
	return v * ClockRate / int64(timescale)
}

func parseByteRange(s string) (ByteRange, bool) {
	if s == "" {
		return ByteRange{}, false
	}
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return ByteRange{}, false
	}
	start, err1 := strconv.ParseInt(parts[0], 10, 64)
	end, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return ByteRange{}, false
	}
	return ByteRange{Start: start, End: end}, true
}

func parseOptionalBool(s string) OptionalBool {
	switch s {
	case "":
		return OptionalBool{}
	case "true":
		return OptionalBool{HasValue: true, Value: true}
	case "false":
		return OptionalBool{HasValue: true, Value: false}
	default:
		// An integer alignment-group value; any non-zero group counts as
		// aligned, and "0" is treated as not aligned.
		v, err := strconv.Atoi(s)
		if err != nil {
			return OptionalBool{}
		}
		return OptionalBool{HasValue: true, Value: v != 0}
	}
}

// parseISODuration parses an ISO 8601 duration (PnDTnHnMnS, all fields
// optional) into 90kHz clock ticks. Only the day, hour, minute and second
// components are read; year and month components are ignored.
func parseISODuration(s string) (int64, error) {
	if !strings.HasPrefix(s, "P") {
		return 0, errors.Errorf("not an ISO 8601 duration: %q", s)
	}
	s = s[1:]
	var days, hours, mins float64
	var secs float64
	datePart, timePart, hasTime := strings.Cut(s, "T")
	_ = hasTime

	if n, err := scanDurationComponent(datePart, 'D'); err == nil {
		days = n
	}
	if timePart != "" {
		if n, err := scanDurationComponent(timePart, 'H'); err == nil {
			hours = n
		}
		if n, err := scanDurationComponent(timePart, 'M'); err == nil {
			mins = n
		}
		if n, err := scanDurationComponent(timePart, 'S'); err == nil {
			secs = n
		}
	}
	total := days*86400 + hours*3600 + mins*60 + secs
	return int64(total * ClockRate), nil
}

// scanDurationComponent extracts the numeric value preceding unit in s, if
// present, e.g. scanDurationComponent("1.5S", 'S') == 1.5.
func scanDurationComponent(s string, unit byte) (float64, error) {
	idx := strings.IndexByte(s, unit)
	if idx < 0 {
		return 0, errors.New("component not present")
	}
	start := idx
	for start > 0 && (s[start-1] == '.' || (s[start-1] >= '0' && s[start-1] <= '9')) {
		start--
	}
	return strconv.ParseFloat(s[start:idx], 64)
}
