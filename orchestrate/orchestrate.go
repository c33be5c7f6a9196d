/*
NAME
  orchestrate.go

DESCRIPTION
  orchestrate.go walks a loaded manifest and drives the index, segment and
  cross-segment validators across every adaptation set and representation,
  aggregating the results into a single pass/fail report. There is no
  single original_source/ C function this corresponds to: the original's
  ts_validate_mult_segment.c main() inlines this loop directly; this
  package only exists because a Go module separates "what validates a
  segment" from "what decides which segments to validate, in what order".

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package orchestrate drives the validator package across a manifest's
// representations, with bounded concurrency across representations within
// one adaptation set.
package orchestrate

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/tsconform/manifest"
	"github.com/ausocean/tsconform/validator"
)

// Profile names recognised by Run: the three supported conformance
// profiles.
const (
	ProfileFull       = "full"
	ProfileMp2tMain   = "mp2t-main"
	ProfileMp2tSimple = "mp2t-simple"
)

// Options configures one validation run.
type Options struct {
	// BaseDir is the directory FileRef.Path values are resolved relative
	// to; typically the directory the manifest file itself lives in.
	BaseDir string
	Profile string
	// Concurrency bounds the number of representations validated at once
	// within a single adaptation set; 0 or less means runtime.GOMAXPROCS(0).
	Concurrency int
	Log         logging.Logger
}

// Report is the aggregated result of validating every representation in
// every adaptation set of one manifest.
type Report struct {
	OK                bool
	AdaptationReports []*AdaptationReport
}

// AdaptationReport is one adaptation set's representation reports plus its
// cross-segment result.
type AdaptationReport struct {
	Representations []*RepresentationValidation
	CrossSegment    *validator.CrossSegmentResult
}

// RepresentationValidation bundles one representation's index and segment
// validation results.
type RepresentationValidation struct {
	ID       string
	Index    *validator.IndexSegmentValidator
	Init     *validator.SegmentResult
	Segments []*validator.SegmentResult
	Report   *validator.RepresentationReport
	// Ordering is non-nil and not OK when the representation's declared
	// segments do not tile contiguously; see manifest.Representation.CheckOrdering.
	Ordering *validator.Status
}

// Run validates every representation named in mpd and returns the
// aggregated report. A read failure for any one file is recorded as a
// representation-level failure rather than aborting the whole run, so a
// single missing segment does not hide failures elsewhere in the
// manifest.
func Run(mpd *manifest.MPD, opts Options) *Report {
	rep := &Report{OK: true}

	for _, period := range mpd.Periods {
		for _, as := range period.AdaptationSets {
			ar := runAdaptationSet(as, opts)
			rep.AdaptationReports = append(rep.AdaptationReports, ar)
			if ar.CrossSegment != nil && !ar.CrossSegment.Status.OK {
				rep.OK = false
			}
			for _, rv := range ar.Representations {
				if rv.Index != nil && !rv.Index.Status.OK {
					rep.OK = false
				}
				if rv.Init != nil && !rv.Init.Status.OK {
					rep.OK = false
				}
				if rv.Ordering != nil && !rv.Ordering.OK {
					rep.OK = false
				}
				for _, seg := range rv.Segments {
					if !seg.Status.OK {
						rep.OK = false
					}
				}
			}
		}
	}
	return rep
}

func runAdaptationSet(as *manifest.AdaptationSet, opts Options) *AdaptationReport {
	ar := &AdaptationReport{}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	results := make([]*RepresentationValidation, len(as.Representations))
	var wg sync.WaitGroup
	for i, r := range as.Representations {
		i, r := i, r
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = runRepresentation(as, r, opts)
		}()
	}
	wg.Wait()

	ar.Representations = results

	var reports []*validator.RepresentationReport
	for _, rv := range results {
		if rv != nil {
			reports = append(reports, rv.Report)
		}
	}
	ar.CrossSegment = validator.ValidateCrossSegment(reports, opts.Profile == ProfileMp2tSimple, opts.Log)

	return ar
}

func runRepresentation(as *manifest.AdaptationSet, r *manifest.Representation, opts Options) *RepresentationValidation {
	rv := &RepresentationValidation{ID: r.ID}
	report := &validator.RepresentationReport{
		ID:      r.ID,
		IsVideo: as.VideoPID != 0,
	}

	ordering := validator.NewStatus()
	if i := r.CheckOrdering(); i != -1 {
		ordering.Fail("orchestrate: representation segments do not tile contiguously", 0, int64(i))
	}
	rv.Ordering = ordering

	align := validator.Alignment{
		BitstreamSwitching:  as.BitstreamSwitching.HasValue && as.BitstreamSwitching.Value,
		SegmentAlignment:    as.SegmentAlignment.HasValue && as.SegmentAlignment.Value,
		SubsegmentAlignment: as.SubsegmentAlignment.HasValue && as.SubsegmentAlignment.Value,
	}

	if r.Index != nil {
		data, err := readFileRef(opts.BaseDir, r.Index)
		if err != nil {
			rv.Index = &validator.IndexSegmentValidator{Status: failStatus(err)}
		} else {
			declared := make([]validator.DeclaredDuration, len(r.Segments))
			for i, seg := range r.Segments {
				declared[i] = validator.DeclaredDuration{Duration: uint64(seg.Duration)}
			}
			rv.Index = validator.ValidateIndexSegment(data, declared, as.VideoPID, opts.Log)
		}
	}

	var subsegsPerSegment [][]validator.Subsegment
	if rv.Index != nil {
		subsegsPerSegment = rv.Index.SegmentSubsegments
	}

	var template *validator.PMTInfo
	if r.Initialization != nil {
		data, err := readFileRef(opts.BaseDir, r.Initialization)
		if err != nil {
			rv.Init = &validator.SegmentResult{Status: failStatus(err)}
		} else {
			rv.Init = validator.ValidateSegment(data, nil, opts.Profile, true, align, nil, opts.Log)
			template = rv.Init.PMT
		}
	}

	for i, seg := range r.Segments {
		data, err := readFileRef(opts.BaseDir, &seg.Media)
		var subsegs []validator.Subsegment
		if i < len(subsegsPerSegment) {
			subsegs = subsegsPerSegment[i]
		}
		var res *validator.SegmentResult
		if err != nil {
			res = &validator.SegmentResult{Status: failStatus(err)}
		} else {
			res = validator.ValidateSegment(data, subsegs, opts.Profile, false, align, template, opts.Log)
		}
		rv.Segments = append(rv.Segments, res)
		report.Declared = append(report.Declared, validator.DeclaredSegment{StartTime: seg.Start, EndTime: seg.End()})
		report.Segments = append(report.Segments, res)
	}

	rv.Report = report
	return rv
}

func readFileRef(baseDir string, f *manifest.FileRef) ([]byte, error) {
	path := filepath.Join(baseDir, f.Path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if f.Range != nil {
		start, end := f.Range.Start, f.Range.End
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
		if start < 0 || start > end {
			return nil, os.ErrInvalid
		}
		data = data[start : end+1]
	}
	return data, nil
}

func failStatus(err error) *validator.Status {
	st := validator.NewStatus()
	st.Fail("orchestrate: "+err.Error(), 0, 0)
	return st
}
