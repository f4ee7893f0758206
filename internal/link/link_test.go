// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

package link

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/katzenbus/frame"
	"github.com/katzenpost/katzenbus/log"
)

func newTestCodec(t *testing.T, key []byte) *frame.Codec {
	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	id, err := frame.NewSenderID()
	require.NoError(t, err)
	c, err := frame.NewCodec(key, id, logBackend.GetLogger("codec"))
	require.NoError(t, err)
	return c
}

func recvMessage(t *testing.T, ch <-chan *Message) *Message {
	select {
	case m := <-ch:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestLinkEcho(t *testing.T) {
	require := require.New(t)

	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(err)

	key := make([]byte, frame.KeyLength)
	_, err = rand.Read(key)
	require.NoError(err)
	codecA := newTestCodec(t, key)
	codecB := newTestCodec(t, key)

	l, err := NewListener(0, "tcp://127.0.0.1:0", 8, codecA, logBackend)
	require.NoError(err)
	defer l.Halt()

	o, err := NewOutgoing(0, "tcp://"+l.Addr().String(), 8, codecB, logBackend)
	require.NoError(err)
	defer o.Halt()

	// Dialer to listener.
	raw, err := codecB.Encrypt([]byte("hello"))
	require.NoError(err)
	o.Send(raw, "")

	m := recvMessage(t, l.IncomingCh())
	require.Equal(codecB.SenderID(), m.Sender)
	require.Equal([]byte("hello"), m.Payload)
	require.Equal(raw, m.Raw)
	require.NotEmpty(m.FromAddr)

	// Listener to dialer.
	raw, err = codecA.Encrypt([]byte("world"))
	require.NoError(err)
	l.Send(raw, "")

	m = recvMessage(t, o.IncomingCh())
	require.Equal(codecA.SenderID(), m.Sender)
	require.Equal([]byte("world"), m.Payload)
}

func TestLinkSendExclusion(t *testing.T) {
	require := require.New(t)

	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(err)

	key := make([]byte, frame.KeyLength)
	_, err = rand.Read(key)
	require.NoError(err)
	codecA := newTestCodec(t, key)
	codecB := newTestCodec(t, key)

	l, err := NewListener(0, "tcp://127.0.0.1:0", 8, codecA, logBackend)
	require.NoError(err)
	defer l.Halt()

	o, err := NewOutgoing(0, "tcp://"+l.Addr().String(), 8, codecB, logBackend)
	require.NoError(err)
	defer o.Halt()

	// Learn the peer's exclusion token from a first frame.
	raw, err := codecB.Encrypt([]byte("hello"))
	require.NoError(err)
	o.Send(raw, "")
	m := recvMessage(t, l.IncomingCh())

	// A send excluding that connection must not reach it.
	raw, err = codecA.Encrypt([]byte("not for you"))
	require.NoError(err)
	l.Send(raw, m.FromAddr)

	select {
	case m := <-o.IncomingCh():
		t.Fatalf("excluded connection received %q", m.Payload)
	case <-time.After(250 * time.Millisecond):
	}
}

func TestLinkDropsBadFrames(t *testing.T) {
	require := require.New(t)

	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(err)

	key := make([]byte, frame.KeyLength)
	_, err = rand.Read(key)
	require.NoError(err)
	codecA := newTestCodec(t, key)
	codecB := newTestCodec(t, key)

	l, err := NewListener(0, "tcp://127.0.0.1:0", 8, codecA, logBackend)
	require.NoError(err)
	defer l.Halt()

	o, err := NewOutgoing(0, "tcp://"+l.Addr().String(), 8, codecB, logBackend)
	require.NoError(err)
	defer o.Halt()

	// A tampered frame is dropped without killing the connection; the
	// following good frame still arrives.
	raw, err := codecB.Encrypt([]byte("good"))
	require.NoError(err)
	evil := make([]byte, frame.FrameSize)
	copy(evil, raw)
	evil[100] ^= 0x01
	o.Send(evil, "")
	o.Send(raw, "")

	m := recvMessage(t, l.IncomingCh())
	require.Equal([]byte("good"), m.Payload)
}
