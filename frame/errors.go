// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

package frame

import "errors"

var (
	// ErrPayloadTooLarge is the error returned when a payload exceeds
	// MaxPayloadLength.  Callers chunk input below the limit, so hitting
	// this is a programming error and fatal.
	ErrPayloadTooLarge = errors.New("frame: payload exceeds maximum")

	// ErrFrameSize is the error returned when a wire record is not exactly
	// FrameSize bytes.
	ErrFrameSize = errors.New("frame: invalid frame size")

	// ErrAuthFailed is the error returned when the AEAD open fails.
	ErrAuthFailed = errors.New("frame: message authentication failed")

	// ErrPadding is the error returned when a decrypted record carries no
	// padding marker or is too short to hold a header.
	ErrPadding = errors.New("frame: malformed padding")

	// ErrExpired is the error returned when a frame's timestamp falls
	// outside the freshness window.
	ErrExpired = errors.New("frame: timestamp outside freshness window")

	// ErrReplay is the error returned when a frame's timestamp does not
	// strictly advance the sender's clock.
	ErrReplay = errors.New("frame: replayed or reordered frame")

	// ErrCounterGap is the error returned when a frame's counter is not the
	// successor of the sender's last counter.
	ErrCounterGap = errors.New("frame: counter discontinuity")

	// ErrLoopback is the error returned when a frame claims the local
	// sender identity.
	ErrLoopback = errors.New("frame: frame echoes local sender identity")

	errShortKey = errors.New("frame: PSK must be 32 bytes")
)
