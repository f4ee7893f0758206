// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

package frame

import (
	"crypto/rand"
	"encoding/hex"
	"io"
)

// SenderID is the opaque per-process identity carried in every frame.
type SenderID [SenderIDLength]byte

// String returns a hex representation suitable for log lines.
func (id SenderID) String() string {
	return hex.EncodeToString(id[:])
}

// NewSenderID generates a fresh random sender identity.
func NewSenderID() (SenderID, error) {
	var id SenderID
	_, err := io.ReadFull(rand.Reader, id[:])
	return id, err
}

// senderState is the anti-replay state kept per remote sender.  An entry
// only exists once a clock and counter have been observed, so no "unset"
// marker is needed; the local self state lives in the Codec instead.
type senderState struct {
	clk uint64
	ctr uint32
}
