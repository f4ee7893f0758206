// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

package link

import (
	"context"
	"fmt"
	"net"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/katzenbus/log"
	"github.com/katzenpost/katzenpost/core/worker"

	"github.com/katzenpost/katzenbus/frame"
	"github.com/katzenpost/katzenbus/internal/instrument"
	"github.com/katzenpost/katzenbus/internal/transport"
)

// Outgoing is a dialing link holding exactly one outbound connection.  It
// dials once at construction time; if the connection later dies the link
// stays down.
type Outgoing struct {
	sync.Mutex
	worker.Worker

	codec *frame.Codec
	log   *logging.Logger

	nc   net.Conn // nil once the connection has died.
	addr string

	incomingCh chan *Message
	closeCh    chan interface{}
}

// NewOutgoing dials addr and starts the frame reader.
func NewOutgoing(id int, addr string, queueDepth int, codec *frame.Codec, logBackend *log.Backend) (*Outgoing, error) {
	o := &Outgoing{
		codec:      codec,
		log:        logBackend.GetLogger(fmt.Sprintf("outgoing:%d", id)),
		incomingCh: make(chan *Message, queueDepth),
		closeCh:    make(chan interface{}),
	}

	nc, err := transport.Dial(context.Background(), addr)
	if err != nil {
		return nil, fmt.Errorf("link: failed to connect to '%v': %v", addr, err)
	}
	o.log.Noticef("Connected to: %v", nc.RemoteAddr())
	o.nc = nc
	o.addr = nc.RemoteAddr().String()

	o.Go(o.connWorker)
	return o, nil
}

// Halt closes the connection and waits for the reader to unwind.
func (o *Outgoing) Halt() {
	close(o.closeCh)
	o.Lock()
	if o.nc != nil {
		o.nc.Close()
	}
	o.Unlock()
	o.Worker.Halt()
}

// IncomingCh returns the inbound frame channel.
func (o *Outgoing) IncomingCh() <-chan *Message {
	return o.incomingCh
}

func (o *Outgoing) connWorker() {
	o.Lock()
	nc := o.nc
	o.Unlock()

	defer func() {
		nc.Close()
		o.Lock()
		o.nc = nil
		o.Unlock()
		o.log.Debugf("Connection closed.")
	}()

	readFrames(nc, o.addr, o.codec, o.log, func(m *Message) bool {
		select {
		case o.incomingCh <- m:
			return true
		case <-o.closeCh:
			return false
		}
	})
}

// Send writes raw to the outbound connection unless its remote address
// equals excludeAddr or the connection is gone.
func (o *Outgoing) Send(raw []byte, excludeAddr string) {
	o.Lock()
	defer o.Unlock()

	if o.nc == nil || o.addr == excludeAddr {
		return
	}
	if _, err := o.nc.Write(raw); err != nil {
		o.log.Debugf("send to %v failed: %v", o.addr, err)
		instrument.ConnectionDropped()
		o.nc.Close()
		o.nc = nil
	}
}
