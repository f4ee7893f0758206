// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

// Package instrument exposes the bus metrics.
package instrument

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registerOnce sync.Once

var (
	framesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "katzenbus_frames_sent_total",
			Help: "Number of frames encrypted from local input",
		},
	)
	framesRelayed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "katzenbus_frames_relayed_total",
			Help: "Number of inbound frames routed and rebroadcast",
		},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "katzenbus_frames_dropped_total",
			Help: "Number of inbound frames dropped, by reason",
		},
		[]string{"reason"},
	)
	replays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "katzenbus_replays_total",
			Help: "Number of replayed or reordered frames rejected",
		},
	)
	connectionsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "katzenbus_connections_dropped_total",
			Help: "Number of peer connections dropped on send failure",
		},
	)
)

// Init registers the metrics and, if addr is non empty, exposes them over
// HTTP at /metrics.
func Init(addr string) {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesSent)
		prometheus.MustRegister(framesRelayed)
		prometheus.MustRegister(framesDropped)
		prometheus.MustRegister(replays)
		prometheus.MustRegister(connectionsDropped)
	})

	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	go http.ListenAndServe(addr, nil)
}

// FrameSent increments the counter for locally originated frames.
func FrameSent() {
	framesSent.Inc()
}

// FrameRelayed increments the counter for routed inbound frames.
func FrameRelayed() {
	framesRelayed.Inc()
}

// FrameDropped increments the drop counter for the given reason.
func FrameDropped(reason string) {
	framesDropped.With(prometheus.Labels{"reason": reason}).Inc()
	if reason == "replay" {
		replays.Inc()
	}
}

// ConnectionDropped increments the counter for dropped peer connections.
func ConnectionDropped() {
	connectionsDropped.Inc()
}
