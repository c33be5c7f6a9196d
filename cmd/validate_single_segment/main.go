/*
NAME
  main.go

DESCRIPTION
  validate_single_segment validates one MPEG-2 TS media segment file
  against the requested conformance profile, independent of any manifest.
  Flags: -dash (main or simple; empty selects the full profile),
  -byte-range start-end, -v (debug instead of info logging) and -init.
  There are no one-letter -d or -b forms, and -v takes no level. Wired in
  cmd/rv/main.go's flag/logging style.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package main implements validate_single_segment, a CLI that checks one
// standalone MPEG-2 TS segment file for conformance without a manifest.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/tsconform/validator"
)

func main() {
	dash := flag.String("dash", "", "conformance profile: \"main\", \"simple\", or \"\" for full")
	byteRange := flag.String("byte-range", "", "start-end byte range to validate within the input file")
	verbose := flag.Bool("v", false, "verbose logging")
	initSegment := flag.Bool("init", false, "treat the input as an initialization segment")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [options] <input bitstream>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	path := flag.Arg(0)

	verbosity := logging.Info
	if *verbose {
		verbosity = logging.Debug
	}
	log := logging.New(verbosity, os.Stderr, true)

	profile := "full"
	switch *dash {
	case "main":
		profile = "mp2t-main"
	case "simple":
		profile = "mp2t-simple"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Error("could not read input file", "error", err.Error())
		os.Exit(1)
	}

	if *byteRange != "" {
		start, end, err := parseByteRange(*byteRange)
		if err != nil {
			log.Error("invalid byte range", "error", err.Error())
			os.Exit(1)
		}
		if end >= len(data) {
			end = len(data) - 1
		}
		if start < 0 || start > end {
			log.Error("byte range out of bounds")
			os.Exit(1)
		}
		data = data[start : end+1]
	}

	res := validator.ValidateSegment(data, nil, profile, *initSegment, validator.Alignment{}, nil, log)

	if res.Status.OK {
		fmt.Println("PASS")
		return
	}
	fmt.Println("FAIL")
	for _, f := range res.Status.Failures {
		fmt.Printf("  %s\n", f.Message)
	}
	for _, a := range res.Status.Advisories {
		fmt.Printf("  advisory: %s\n", a.Message)
	}
	os.Exit(1)
}

// parseByteRange parses a "start-end" byte range, matching
// ts_validate_single_segment.c's --byte-range argument.
func parseByteRange(s string) (start, end int, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected start-end, got %q", s)
	}
	start, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}
