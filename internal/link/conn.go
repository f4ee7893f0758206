// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

package link

import (
	"errors"
	"io"
	"net"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/katzenbus/frame"
	"github.com/katzenpost/katzenbus/internal/instrument"
)

// readFrames reads full frames off nc until the connection dies, decrypting
// and validating each one and handing survivors to deliver.  Per-frame
// failures never terminate the loop; only transport errors do.
func readFrames(nc net.Conn, addrID string, codec *frame.Codec, log *logging.Logger, deliver func(*Message) bool) {
	buf := make([]byte, frame.FrameSize)
	for {
		if _, err := io.ReadFull(nc, buf); err != nil {
			// A clean EOF on a frame boundary is the peer going away;
			// anything else, including a partial frame, is logged and
			// treated the same way.
			if err != io.EOF {
				log.Debugf("read failure: %v", err)
			}
			return
		}

		raw := make([]byte, frame.FrameSize)
		copy(raw, buf)

		sender, payload, err := codec.Decrypt(raw)
		if err != nil {
			instrument.FrameDropped(dropReason(err))
			log.Debugf("dropping frame: %v", err)
			continue
		}

		m := &Message{
			Sender:   sender,
			FromAddr: addrID,
			Payload:  payload,
			Raw:      raw,
		}
		if !deliver(m) {
			return
		}
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, frame.ErrAuthFailed):
		return "auth"
	case errors.Is(err, frame.ErrExpired):
		return "expired"
	case errors.Is(err, frame.ErrReplay):
		return "replay"
	case errors.Is(err, frame.ErrCounterGap):
		return "counter_gap"
	case errors.Is(err, frame.ErrLoopback):
		return "loopback"
	case errors.Is(err, frame.ErrPadding):
		return "padding"
	default:
		return "other"
	}
}
