// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

// Package router implements the fan-in side of the bus: speaker arbitration
// on the local output, the per-sender backlog of deferred speakers, and the
// verbatim rebroadcast of every received ciphertext to every other link.
package router

import (
	"io"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/katzenbus/log"
	"github.com/katzenpost/katzenpost/core/worker"

	"github.com/katzenpost/katzenbus/frame"
	"github.com/katzenpost/katzenbus/internal/instrument"
	"github.com/katzenpost/katzenbus/internal/link"
)

// Broadcaster is the send half of a link, as seen by the router.
type Broadcaster interface {
	Send(raw []byte, excludeAddr string)
}

// Router arbitrates the local output between concurrent senders and relays
// ciphertext between links.  At most one sender holds the output at a time;
// frames from everyone else queue in per-sender backlogs, in arrival order,
// until the current speaker yields with an empty frame.
type Router struct {
	worker.Worker
	sync.Mutex

	log *logging.Logger
	out io.Writer

	links []Broadcaster

	current    frame.SenderID
	hasCurrent bool

	// backlog holds the deferred payload queues, with order tracking the
	// insertion order of the sender keys for successor election.
	backlog map[frame.SenderID][][]byte
	order   []frame.SenderID
}

// New constructs a Router that writes plaintext to out and rebroadcasts
// ciphertext over links.
func New(out io.Writer, links []Broadcaster, logBackend *log.Backend) *Router {
	return &Router{
		log:     logBackend.GetLogger("router"),
		out:     out,
		links:   links,
		backlog: make(map[frame.SenderID][][]byte),
	}
}

// ConsumeFrom spawns a worker draining ch into Route.  One consumer runs per
// link so a slow link cannot reorder another link's frames.
func (r *Router) ConsumeFrom(ch <-chan *link.Message) {
	r.Go(func() {
		for {
			select {
			case <-r.HaltCh():
				return
			case m := <-ch:
				r.Route(m)
			}
		}
	})
}

// Route applies the arbitration rules to one inbound frame and rebroadcasts
// its ciphertext.  The state transition and the rebroadcast happen under one
// lock so every peer observes the same frame order for a given transit path.
func (r *Router) Route(m *link.Message) {
	r.Lock()
	defer r.Unlock()

	if !r.hasCurrent {
		r.current = m.Sender
		r.hasCurrent = true
	}

	if r.current == m.Sender {
		if len(m.Payload) > 0 {
			r.write(m.Payload)
		} else {
			r.endOfTurn()
		}
	} else {
		r.enqueue(m.Sender, m.Payload)
	}

	for _, l := range r.links {
		l.Send(m.Raw, m.FromAddr)
	}
	instrument.FrameRelayed()
}

// endOfTurn hands the output to the next deferred speaker, if any, draining
// everything it queued while it waited.
func (r *Router) endOfTurn() {
	if len(r.order) == 0 {
		r.hasCurrent = false
		return
	}

	next := r.order[0]
	r.order = r.order[1:]
	queue := r.backlog[next]
	delete(r.backlog, next)

	lastEmpty := false
	for _, p := range queue {
		if len(p) > 0 {
			r.write(p)
		}
		lastEmpty = len(p) == 0
	}
	if lastEmpty {
		// The deferred speaker already yielded too.
		r.hasCurrent = false
	} else {
		r.current = next
	}
}

func (r *Router) enqueue(sender frame.SenderID, payload []byte) {
	if _, ok := r.backlog[sender]; !ok {
		r.order = append(r.order, sender)
	}
	r.backlog[sender] = append(r.backlog[sender], payload)
}

func (r *Router) write(p []byte) {
	if _, err := r.out.Write(p); err != nil {
		r.log.Errorf("output write failed: %v", err)
	}
}
