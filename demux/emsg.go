/*
NAME
  emsg.go

DESCRIPTION
  emsg.go decodes a DASH event message box from a reassembled PES packet's
  payload, grounded on tslib's segment_validator.c
  validate_emsg_pes_packet/validate_emsg_msg.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package demux

import (
	"github.com/pkg/errors"

	"github.com/ausocean/tsconform/bmff"
	"github.com/ausocean/tsconform/container/mts/pes"
)

// ErrNotEmsg is returned by DecodeEmsg when a PES packet's payload does not
// begin with an emsg box.
var ErrNotEmsg = errors.New("demux: PES payload is not an emsg box")

// DecodeEmsg parses p.Data as a single ISO BMFF emsg box. A PID carrying
// emsg packets carries exactly one box per PES packet, per ISO/IEC
// 23009-1 5.10.3.3.
func DecodeEmsg(p *pes.Packet) (*bmff.EmsgBox, error) {
	boxes, err := bmff.ReadBoxes(p.Data)
	if err != nil {
		return nil, errors.Wrap(err, "demux: decoding emsg box")
	}
	if len(boxes) == 0 || boxes[0].Emsg == nil {
		return nil, ErrNotEmsg
	}
	return boxes[0].Emsg, nil
}
