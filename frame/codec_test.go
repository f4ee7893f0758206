// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

package frame

import (
	"crypto/rand"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/katzenbus/log"
)

func newTestCodec(t *testing.T, key []byte) *Codec {
	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	id, err := NewSenderID()
	require.NoError(t, err)
	c, err := NewCodec(key, id, logBackend.GetLogger("codec"))
	require.NoError(t, err)
	return c
}

func newTestPair(t *testing.T) (*Codec, *Codec) {
	key := make([]byte, KeyLength)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return newTestCodec(t, key), newTestCodec(t, key)
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	a, b := newTestPair(t)

	raw, err := a.Encrypt([]byte("hello"))
	require.NoError(err)
	require.Len(raw, FrameSize)

	sender, payload, err := b.Decrypt(raw)
	require.NoError(err)
	require.Equal(a.SenderID(), sender)
	require.Equal([]byte("hello"), payload)
}

func TestCodecEmptyPayload(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	a, b := newTestPair(t)

	raw, err := a.Encrypt(nil)
	require.NoError(err)
	require.Len(raw, FrameSize)

	sender, payload, err := b.Decrypt(raw)
	require.NoError(err)
	require.Equal(a.SenderID(), sender)
	require.Empty(payload)
}

func TestCodecMaxPayload(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	a, b := newTestPair(t)

	_, err := a.Encrypt(make([]byte, MaxPayloadLength+1))
	require.ErrorIs(err, ErrPayloadTooLarge)

	raw, err := a.Encrypt(make([]byte, MaxPayloadLength))
	require.NoError(err)
	_, payload, err := b.Decrypt(raw)
	require.NoError(err)
	require.Len(payload, MaxPayloadLength)
}

func TestCodecFrameSize(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	_, b := newTestPair(t)

	_, _, err := b.Decrypt(make([]byte, FrameSize-1))
	require.ErrorIs(err, ErrFrameSize)
}

func TestCodecTamper(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	a, b := newTestPair(t)

	raw, err := a.Encrypt([]byte("payload"))
	require.NoError(err)

	evil := make([]byte, FrameSize)
	copy(evil, raw)
	evil[512] ^= 0x40
	_, _, err = b.Decrypt(evil)
	require.ErrorIs(err, ErrAuthFailed)

	// The failed open must not have advanced any state.
	sender, payload, err := b.Decrypt(raw)
	require.NoError(err)
	require.Equal(a.SenderID(), sender)
	require.Equal([]byte("payload"), payload)
}

func TestCodecReplay(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	a, b := newTestPair(t)

	raw, err := a.Encrypt([]byte("once"))
	require.NoError(err)

	_, _, err = b.Decrypt(raw)
	require.NoError(err)
	_, _, err = b.Decrypt(raw)
	require.ErrorIs(err, ErrReplay)
}

func TestCodecCounterGap(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	a, b := newTestPair(t)

	f1, err := a.Encrypt([]byte("one"))
	require.NoError(err)
	f2, err := a.Encrypt([]byte("two"))
	require.NoError(err)
	f3, err := a.Encrypt([]byte("three"))
	require.NoError(err)

	_, _, err = b.Decrypt(f1)
	require.NoError(err)

	// Out of order: the gap is rejected without advancing state, so the
	// in-order frame still decrypts.
	_, _, err = b.Decrypt(f3)
	require.ErrorIs(err, ErrCounterGap)
	_, _, err = b.Decrypt(f2)
	require.NoError(err)
	_, _, err = b.Decrypt(f3)
	require.NoError(err)
}

func TestCodecExpired(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	a, b := newTestPair(t)

	now := uint64(time.Now().UnixNano())
	a.nowFn = func() uint64 { return now - uint64((FreshnessWindow + time.Second).Nanoseconds()) }
	b.nowFn = func() uint64 { return now }

	raw, err := a.Encrypt([]byte("stale"))
	require.NoError(err)
	_, _, err = b.Decrypt(raw)
	require.ErrorIs(err, ErrExpired)
}

func TestCodecLoopback(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	a, _ := newTestPair(t)

	raw, err := a.Encrypt([]byte("echo"))
	require.NoError(err)
	_, _, err = a.Decrypt(raw)
	require.ErrorIs(err, ErrLoopback)
}

func TestCodecCounterWrap(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	a, b := newTestPair(t)
	a.selfCtr = math.MaxUint32

	f1, err := a.Encrypt([]byte("last"))
	require.NoError(err)
	f2, err := a.Encrypt([]byte("wrapped"))
	require.NoError(err)

	_, _, err = b.Decrypt(f1)
	require.NoError(err)
	_, _, err = b.Decrypt(f2)
	require.NoError(err)
}

func TestCodecUnknownSenderCounter(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	a, b := newTestPair(t)
	a.selfCtr = 7

	// First contact installs whatever counter the sender is at.
	raw, err := a.Encrypt([]byte("late join"))
	require.NoError(err)
	_, _, err = b.Decrypt(raw)
	require.NoError(err)
}

func TestCodecClockMonotone(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	a, b := newTestPair(t)

	// A frozen clock still yields strictly increasing timestamps, so the
	// receiver accepts consecutive frames.
	now := uint64(time.Now().UnixNano())
	a.nowFn = func() uint64 { return now }

	for i := 0; i < 3; i++ {
		raw, err := a.Encrypt([]byte("tick"))
		require.NoError(err)
		_, _, err = b.Decrypt(raw)
		require.NoError(err, "frame %d", i)
	}
}

func TestCodecKeyLength(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(err)
	id, err := NewSenderID()
	require.NoError(err)
	_, err = NewCodec(make([]byte, KeyLength-1), id, logBackend.GetLogger("codec"))
	require.Error(err)
}
