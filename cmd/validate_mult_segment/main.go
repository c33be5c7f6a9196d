/*
NAME
  main.go

DESCRIPTION
  validate_mult_segment validates every representation of a DASH MPD
  manifest against the requested conformance profile, walking index,
  segment and cross-segment checks across the whole adaptation set.
  Grounded on ts_validate_mult_segment.c's flag grammar and on
  cmd/rv/main.go's flag/logging/lumberjack wiring style.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package main implements validate_mult_segment, a CLI that checks every
// representation of a DASH manifest for MPEG-2 TS conformance.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/tsconform/manifest"
	"github.com/ausocean/tsconform/orchestrate"
)

// Logging configuration, matching cmd/rv's on-disk rotation settings.
const (
	logPath      = "validate_mult_segment.log"
	logMaxSize   = 100 // MB
	logMaxBackup = 5
	logMaxAge    = 28 // days
)

func main() {
	dash := flag.String("dash", "", "conformance profile: \"main\", \"simple\", or \"\" for full")
	verbose := flag.Bool("v", false, "verbose logging")
	concurrency := flag.Int("concurrency", 4, "maximum representations validated concurrently per adaptation set")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [options] MPD_file\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	mpdPath := flag.Arg(0)

	verbosity := logging.Info
	if *verbose {
		verbosity = logging.Debug
	}
	fileLog := &lumberjack.Logger{Filename: logPath, MaxSize: logMaxSize, MaxBackups: logMaxBackup, MaxAge: logMaxAge}
	log := logging.New(verbosity, io.MultiWriter(fileLog, os.Stderr), true)

	profile := orchestrate.ProfileFull
	switch *dash {
	case "main":
		profile = orchestrate.ProfileMp2tMain
	case "simple":
		profile = orchestrate.ProfileMp2tSimple
	}

	f, err := os.Open(mpdPath)
	if err != nil {
		log.Error("could not open MPD file", "error", err.Error())
		os.Exit(1)
	}
	defer f.Close()

	mpd, err := manifest.Load(f)
	if err != nil {
		log.Error("could not parse MPD", "error", err.Error())
		os.Exit(1)
	}

	report := orchestrate.Run(mpd, orchestrate.Options{
		BaseDir:     filepath.Dir(mpdPath),
		Profile:     profile,
		Concurrency: *concurrency,
		Log:         log,
	})

	printReport(report)

	if !report.OK {
		os.Exit(1)
	}
}

func printReport(r *orchestrate.Report) {
	for i, ar := range r.AdaptationReports {
		fmt.Printf("adaptation set %d:\n", i)
		for _, rv := range ar.Representations {
			status := "PASS"
			if rv.Index != nil && !rv.Index.Status.OK {
				status = "FAIL"
			}
			if rv.Init != nil && !rv.Init.Status.OK {
				status = "FAIL"
			}
			if rv.Ordering != nil && !rv.Ordering.OK {
				status = "FAIL"
			}
			for _, seg := range rv.Segments {
				if !seg.Status.OK {
					status = "FAIL"
				}
			}
			fmt.Printf("  representation %s: %s\n", rv.ID, status)
			if rv.Index != nil {
				for _, f := range rv.Index.Status.Failures {
					fmt.Printf("    index: %s\n", f.Message)
				}
			}
			if rv.Init != nil {
				for _, f := range rv.Init.Status.Failures {
					fmt.Printf("    initialization: %s\n", f.Message)
				}
			}
			if rv.Ordering != nil {
				for _, f := range rv.Ordering.Failures {
					fmt.Printf("    manifest: %s\n", f.Message)
				}
			}
			for si, seg := range rv.Segments {
				for _, f := range seg.Status.Failures {
					fmt.Printf("    segment %d: %s\n", si, f.Message)
				}
			}
		}
		if ar.CrossSegment != nil {
			for _, f := range ar.CrossSegment.Status.Failures {
				fmt.Printf("  cross-segment: %s\n", f.Message)
			}
		}
	}
}
