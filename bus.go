// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

// Package katzenbus implements the bus daemon: a peer-to-peer relay that
// encrypts local input under a pre-shared key, broadcasts it to every
// connected peer, relays peer ciphertext onward, and arbitrates which remote
// speaker owns local stdout.
package katzenbus

import (
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/katzenpost/core/worker"

	"github.com/katzenpost/katzenbus/config"
	"github.com/katzenpost/katzenbus/frame"
	"github.com/katzenpost/katzenbus/internal/instrument"
	"github.com/katzenpost/katzenbus/internal/link"
	"github.com/katzenpost/katzenbus/internal/router"
	"github.com/katzenpost/katzenbus/log"
)

// Bus is a katzenbus daemon instance.
type Bus struct {
	worker.Worker

	cfg *config.Config

	logBackend *log.Backend
	log        *logging.Logger

	codec    *frame.Codec
	listener *link.Listener
	outgoing []*link.Outgoing
	links    []link.Link
	router   *router.Router

	in  io.Reader
	out io.Writer

	fatalErrCh  chan error
	inputDoneCh chan interface{}
	haltedCh    chan interface{}
	haltOnce    sync.Once
}

func (b *Bus) initLogging() error {
	var err error
	b.logBackend, err = log.New(b.cfg.Logging.File, b.cfg.Logging.Level, b.cfg.Logging.Disable)
	if err == nil {
		b.log = b.logBackend.GetLogger("bus")
	}
	return err
}

// RotateLog rotates the log file if logging to a file is enabled.
func (b *Bus) RotateLog() {
	if err := b.logBackend.Rotate(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate log file: %v\n", err)
	}
}

// Shutdown cleanly shuts down a given Bus instance.
func (b *Bus) Shutdown() {
	b.haltOnce.Do(func() { b.halt() })
}

// Wait waits till the Bus is terminated for any reason.
func (b *Bus) Wait() {
	<-b.haltedCh
}

func (b *Bus) halt() {
	b.log.Notice("Starting graceful shutdown.")

	// Stop intake first so nothing new enters the router, then unwind the
	// router consumers and the send-only drains.
	if b.listener != nil {
		b.listener.Halt()
	}
	for _, o := range b.outgoing {
		o.Halt()
	}
	if b.router != nil {
		b.router.Halt()
	}
	b.Halt()

	close(b.haltedCh)
	b.log.Notice("Shutdown complete.")
}

// New returns a new Bus instance parameterized with the specified
// configuration.
func New(cfg *config.Config) (*Bus, error) {
	b := &Bus{
		cfg:         cfg,
		in:          os.Stdin,
		out:         os.Stdout,
		fatalErrCh:  make(chan error),
		inputDoneCh: make(chan interface{}),
		haltedCh:    make(chan interface{}),
	}
	if err := b.initLogging(); err != nil {
		return nil, err
	}

	b.log.Notice("katzenbus starting up")

	psk, err := cfg.LoadPSK()
	if err != nil {
		return nil, err
	}
	id, err := frame.NewSenderID()
	if err != nil {
		return nil, err
	}
	b.codec, err = frame.NewCodec(psk, id, b.logBackend.GetLogger("codec"))
	if err != nil {
		return nil, err
	}

	instrument.Init(cfg.Server.MetricsAddress)

	// Bring up the links.
	isOk := false
	defer func() {
		if !isOk {
			for _, o := range b.outgoing {
				o.Halt()
			}
			if b.listener != nil {
				b.listener.Halt()
			}
		}
	}()
	if cfg.Server.ListenAddress != "" {
		b.listener, err = link.NewListener(0, cfg.Server.ListenAddress, cfg.Debug.SendQueue, b.codec, b.logBackend)
		if err != nil {
			return nil, err
		}
		b.links = append(b.links, b.listener)
	}
	for i, addr := range cfg.Server.RemoteAddresses {
		o, err := link.NewOutgoing(i, addr, cfg.Debug.SendQueue, b.codec, b.logBackend)
		if err != nil {
			return nil, err
		}
		b.outgoing = append(b.outgoing, o)
		b.links = append(b.links, o)
	}

	// Wire the inbound side.  With WaitInput disabled the router never
	// starts; inbound frames still pass registry validation in the link
	// readers but are discarded here.
	if cfg.WaitInput() {
		casters := make([]router.Broadcaster, 0, len(b.links))
		for _, l := range b.links {
			casters = append(casters, l)
		}
		b.router = router.New(b.out, casters, b.logBackend)
		for _, l := range b.links {
			b.router.ConsumeFrom(l.IncomingCh())
		}
	} else {
		for _, l := range b.links {
			ch := l.IncomingCh()
			b.Go(func() {
				for {
					select {
					case <-b.HaltCh():
						return
					case <-ch:
					}
				}
			})
		}
	}

	// The input pump is daemonic: a blocking stdin read cannot be
	// interrupted, so it is not joined on halt and ends with the process.
	go b.inputWorker()

	go func() {
		select {
		case err := <-b.fatalErrCh:
			b.log.Errorf("Shutting down due to error: %v", err)
			b.Shutdown()
		case <-b.inputDoneCh:
			b.Shutdown()
		case <-b.haltedCh:
		}
	}()

	b.log.Noticef("katzenbus is online, sender id: %v", id)
	isOk = true
	return b, nil
}
