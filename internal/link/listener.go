// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

package link

import (
	"container/list"
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

// Listener is the accepting link.  It owns zero or more accepted
// connections; its connection set is the set of currently live peers.
type Listener struct {
	sync.Mutex
	worker.Worker

	codec *frame.Codec
	log   *logging.Logger

	l     net.Listener
	conns *list.List

	incomingCh chan *Message
	closeAllCh chan interface{}
	closeAllWg sync.WaitGroup
}

type listenerConn struct {
	nc   net.Conn
	addr string
	e    *list.Element
}

// NewListener binds addr and starts accepting connections.
func NewListener(id int, addr string, queueDepth int, codec *frame.Codec, logBackend *log.Backend) (*Listener, error) {
	l := &Listener{
		codec:      codec,
		log:        logBackend.GetLogger(fmt.Sprintf("listener:%d", id)),
		conns:      list.New(),
		incomingCh: make(chan *Message, queueDepth),
		closeAllCh: make(chan interface{}),
	}

	var err error
	l.l, err = transport.Listen(addr)
	if err != nil {
		return nil, err
	}

	l.Go(l.worker)
	return l, nil
}

// Halt stops accepting, closes every accepted connection and waits for the
// readers to unwind.
func (l *Listener) Halt() {
	l.l.Close()
	l.Worker.Halt()

	close(l.closeAllCh)
	l.Lock()
	for e := l.conns.Front(); e != nil; e = e.Next() {
		e.Value.(*listenerConn).nc.Close()
	}
	l.Unlock()
	l.closeAllWg.Wait()
}

// Addr returns the bound listener address.
func (l *Listener) Addr() net.Addr {
	return l.l.Addr()
}

// IncomingCh returns the inbound frame channel.
func (l *Listener) IncomingCh() <-chan *Message {
	return l.incomingCh
}

func (l *Listener) worker() {
	addr := l.l.Addr()
	l.log.Noticef("Listening on: %v", addr)
	defer func() {
		l.log.Noticef("Stopping listening on: %v", addr)
		l.l.Close() // Usually redundant, but harmless.
	}()
	for {
		select {
		case <-l.HaltCh():
			return
		default:
		}
		conn, err := l.l.Accept()
		if err != nil {
			if e, ok := err.(net.Error); ok && e.Temporary() {
				continue
			}
			return
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetKeepAlive(true)
		}

		l.log.Debugf("Accepted new connection: %v", conn.RemoteAddr())
		l.onNewConn(conn)
	}

	// NOTREACHED
}

func (l *Listener) onNewConn(nc net.Conn) {
	c := &listenerConn{nc: nc, addr: nc.RemoteAddr().String()}

	l.closeAllWg.Add(1)
	l.Lock()
	defer func() {
		l.Unlock()
		go l.connWorker(c)
	}()
	c.e = l.conns.PushFront(c)
}

func (l *Listener) connWorker(c *listenerConn) {
	defer func() {
		c.nc.Close()
		l.onClosedConn(c)
		l.closeAllWg.Done()
	}()

	log := l.log
	readFrames(c.nc, c.addr, l.codec, log, func(m *Message) bool {
		select {
		case l.incomingCh <- m:
			return true
		case <-l.closeAllCh:
			return false
		}
	})
}

func (l *Listener) onClosedConn(c *listenerConn) {
	l.Lock()
	defer l.Unlock()
	l.conns.Remove(c.e)
}

// Send writes raw to every live connection except the one whose remote
// address equals excludeAddr.  Writes are serialized under the link lock so
// frames are never interleaved on a connection.
func (l *Listener) Send(raw []byte, excludeAddr string) {
	l.Lock()
	defer l.Unlock()

	var next *list.Element
	for e := l.conns.Front(); e != nil; e = next {
		next = e.Next()
		c := e.Value.(*listenerConn)
		if c.addr == excludeAddr {
			continue
		}
		if _, err := c.nc.Write(raw); err != nil {
			// The dead peer is dropped; everyone else still gets the frame.
			l.log.Debugf("send to %v failed: %v", c.addr, err)
			instrument.ConnectionDropped()
			c.nc.Close()
			l.conns.Remove(e)
		}
	}
}
