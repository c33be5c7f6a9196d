/*
NAME
  types.go

DESCRIPTION
  types.go defines the shared result types the index, segment and
  cross-segment validators produce and consume: the derived subsegment
  descriptor and the per-run status/error-kind bookkeeping.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package validator implements the index-segment validator, the
// TS/PES-level segment validator, and the cross-segment conformance
// checker.
package validator

// Subsegment is the descriptor the index validator produces and the
// segment validator consumes.
type Subsegment struct {
	ReferenceID   uint16
	StartTime     uint64
	StartByte     uint64
	EndByte       uint64
	StartsWithSAP bool
	SAPType       uint8
	SsixOffsets   []uint64

	// Runtime bookkeeping, filled in during segment validation.
	SawRandomAccess  bool
	TSCount          int
	PESCount         int
	SsixOffsetIndex  int
}

// ContentComponent classifies a PMT elementary stream by its role.
type ContentComponent int

const (
	ContentUnknown ContentComponent = iota
	ContentVideo
	ContentAudio
)

// Status is the three-kind error model this validator reports: parse errors
// (plain Go errors, returned up the call stack, not modeled here), conformance
// failures (fatal to the overall pass/fail verdict) and advisories
// (informational/warning only).
type Status struct {
	OK         bool
	Failures   []Finding
	Advisories []Finding
}

// Finding is one conformance failure or advisory, with enough context to
// log and to aggregate into a report.
type Finding struct {
	Message string
	PID     uint16
	Pos     int64
}

// NewStatus returns a Status with OK true; the first call to Fail flips it.
func NewStatus() *Status { return &Status{OK: true} }

// Fail records a conformance failure and flips OK to false. The validator
// continues after the first failure so a run reports as many failures as
// possible.
func (s *Status) Fail(msg string, pid uint16, pos int64) {
	s.OK = false
	s.Failures = append(s.Failures, Finding{Message: msg, PID: pid, Pos: pos})
}

// Advise records a non-fatal advisory; it never flips OK.
func (s *Status) Advise(msg string, pid uint16, pos int64) {
	s.Advisories = append(s.Advisories, Finding{Message: msg, PID: pid, Pos: pos})
}
