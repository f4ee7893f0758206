// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

// Package link implements the bus links: the accepting endpoint and the
// dialing endpoints.  A link reads exactly FrameSize bytes at a time from
// each of its connections, decrypts and validates every frame, and posts the
// survivors on its inbound channel.  Sends go to every live connection of
// the link, optionally excluding the connection a frame arrived on.
package link

import (
	"github.com/katzenpost/katzenbus/frame"
)

// Message is one validated inbound frame.
type Message struct {
	// Sender is the authenticated sender identity.
	Sender frame.SenderID

	// FromAddr is the remote address of the connection the frame arrived
	// on, used as the rebroadcast exclusion token.
	FromAddr string

	// Payload is the decrypted payload.  Empty is the end-of-turn signal.
	Payload []byte

	// Raw is the ciphertext frame exactly as received, for rebroadcast.
	Raw []byte
}

// Link is the uniform contract shared by the accepting and dialing
// endpoints.
type Link interface {
	// Send writes raw to every live connection whose remote address is not
	// excludeAddr.  Broken connections are dropped, the rest proceed.
	Send(raw []byte, excludeAddr string)

	// IncomingCh returns the channel validated inbound frames are posted
	// on.
	IncomingCh() <-chan *Message

	// Halt tears the link down.
	Halt()
}
