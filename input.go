// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

package katzenbus

import (
	"github.com/katzenpost/katzenbus/frame"
	"github.com/katzenpost/katzenbus/internal/instrument"
)

// inputWorker chunks local input into frames and broadcasts them over every
// link.  On EOF it broadcasts the empty end-of-turn frame, so any peer
// arbiter holding our identity releases the floor, and signals completion.
func (b *Bus) inputWorker() {
	defer close(b.inputDoneCh)

	sentinel := -1
	if b.cfg.Server.SentinelByte != nil {
		sentinel = *b.cfg.Server.SentinelByte
	}

	buf := make([]byte, frame.ChunkLength)
	for {
		n, err := b.in.Read(buf)
		if n > 0 {
			if !b.broadcast(buf[:n]) {
				return
			}
			// An interactive producer can yield the speaker floor without
			// closing its input by ending a chunk with the sentinel.
			if sentinel >= 0 && int(buf[n-1]) == sentinel {
				if !b.broadcast(nil) {
					return
				}
			}
		}
		if err != nil {
			b.log.Debugf("input closed: %v", err)
			b.broadcast(nil)
			return
		}
	}
}

// broadcast seals payload and sends it over every link with no exclusion.
func (b *Bus) broadcast(payload []byte) bool {
	raw, err := b.codec.Encrypt(payload)
	if err != nil {
		// Only programmer error (oversized payload) or an exhausted entropy
		// source can land here; neither is recoverable.
		b.fatalErrCh <- err
		return false
	}
	for _, l := range b.links {
		l.Send(raw, "")
	}
	instrument.FrameSent()
	return true
}
