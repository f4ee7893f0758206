// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

// Package log provides the bus logging backend on top of the core logging
// package.  The one local rule is the destination: stdout carries bus
// payload and must never receive a log line, so when no log file is
// configured the backend writes to stderr instead of the core default.
package log

import (
	klog "github.com/katzenpost/katzenpost/core/log"
)

// Backend is a log backend.
type Backend = klog.Backend

// New initializes a logging backend.  With f empty the log goes to stderr.
func New(f string, level string, disable bool) (*Backend, error) {
	if f == "" && !disable {
		f = "/dev/stderr"
	}
	return klog.New(f, level, disable)
}
