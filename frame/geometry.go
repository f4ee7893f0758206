// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

// Package frame implements the fixed-size encrypted record layer of the bus:
// geometry, marker padding, the AEAD codec and the per-sender anti-replay
// state machine.
package frame

import (
	"bytes"
	"time"

	"github.com/katzenpost/chacha20poly1305"
)

const (
	// FrameSize is the size of every record on the wire.  Each connection
	// carries a sequence of frames of exactly this many bytes and nothing
	// else.
	FrameSize = 1400

	// KeyLength is the length of the pre-shared key.
	KeyLength = chacha20poly1305.KeySize

	// NonceLength is the length of the per-frame nonce prepended to the
	// ciphertext.
	NonceLength = chacha20poly1305.NonceSize

	// TagLength is the length of the AEAD authenticator.
	TagLength = chacha20poly1305.Overhead

	// SenderIDLength is the length of a sender identity.
	SenderIDLength = 12

	// CounterLength is the length of the per-sender frame counter.
	CounterLength = 4

	// TimestampLength is the length of the wall-clock timestamp.
	TimestampLength = 8

	// HeaderLength is the length of the plaintext record header,
	// sender id | counter | timestamp.
	HeaderLength = SenderIDLength + CounterLength + TimestampLength

	// PaddedLength is the size of the padded plaintext record, ie the AEAD
	// plaintext.
	PaddedLength = FrameSize - NonceLength - TagLength

	// MaxPayloadLength is the largest payload that fits in a single frame
	// after the padding marker and the record header.
	MaxPayloadLength = PaddedLength - 1 - HeaderLength

	// ChunkLength is the size at which local input is chunked into frames,
	// kept strictly below MaxPayloadLength.
	ChunkLength = MaxPayloadLength - 1

	// FreshnessWindow bounds how far a frame's timestamp may deviate from
	// the receiver's clock in either direction.
	FreshnessWindow = 10 * time.Second

	paddingMarker = 0x01
)

// pad returns record left-padded with 0x00 and a single 0x01 marker up to
// PaddedLength bytes.
func pad(record []byte) ([]byte, error) {
	if len(record) > PaddedLength-1 {
		return nil, ErrPayloadTooLarge
	}
	padded := make([]byte, PaddedLength)
	padded[PaddedLength-len(record)-1] = paddingMarker
	copy(padded[PaddedLength-len(record):], record)
	return padded, nil
}

// unpad strips the leading zero run and marker, returning the record.
func unpad(padded []byte) ([]byte, error) {
	i := bytes.IndexByte(padded, paddingMarker)
	if i < 0 {
		return nil, ErrPadding
	}
	return padded[i+1:], nil
}
