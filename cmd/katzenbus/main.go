// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/katzenpost/katzenbus"
	"github.com/katzenpost/katzenbus/config"
)

type addrList []string

func (a *addrList) String() string {
	return strings.Join(*a, ",")
}

func (a *addrList) Set(v string) error {
	*a = append(*a, v)
	return nil
}

func main() {
	var remoteAddrs addrList

	cfgFile := flag.String("f", "", "Path to the config file.")
	serverAddr := flag.String("server-addr", "", "Address to bind and listen on.")
	flag.Var(&remoteAddrs, "remote-server-addr", "Peer address to dial, may be repeated.")
	pskFile := flag.String("psk", "", "Path to the PSK file.")
	waitInput := flag.Bool("wait-input", true, "Deliver peer traffic to stdout.")
	noWaitInput := flag.Bool("no-wait-input", false, "Transmit only, do not start the router.")
	sentinelByte := flag.Int("sentinel-byte", -1, "Byte value (0..255) that flushes an end-of-turn frame.")
	metricsAddr := flag.String("metrics-addr", "", "Address to bind the metrics endpoint to.")
	logFile := flag.String("log-file", "", "Log file, defaults to stderr.")
	logLevel := flag.String("log-level", "NOTICE", "Log level.")
	genPSK := flag.Bool("g", false, "Generate a fresh PSK file and exit immediately.")
	flag.Parse()

	if *genPSK {
		if *pskFile == "" {
			fmt.Fprintln(os.Stderr, "A PSK file path is required to generate a key.")
			os.Exit(-1)
		}
		if err := config.GeneratePSK(*pskFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate PSK: %v\n", err)
			os.Exit(-1)
		}
		os.Exit(0)
	}

	var cfg *config.Config
	var err error
	if *cfgFile != "" {
		cfg, err = config.LoadFile(*cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config file '%v': %v\n", *cfgFile, err)
			os.Exit(-1)
		}
	} else {
		cfg = &config.Config{
			Server:  &config.Server{},
			Logging: &config.Logging{},
		}
	}

	// Flags given on the command line override the file.
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	if setFlags["server-addr"] {
		cfg.Server.ListenAddress = *serverAddr
	}
	if setFlags["remote-server-addr"] {
		cfg.Server.RemoteAddresses = remoteAddrs
	}
	if setFlags["psk"] {
		cfg.Server.PSKFile = *pskFile
	}
	if setFlags["wait-input"] {
		cfg.Server.WaitInput = waitInput
	}
	if *noWaitInput {
		v := false
		cfg.Server.WaitInput = &v
	}
	if setFlags["sentinel-byte"] {
		cfg.Server.SentinelByte = sentinelByte
	}
	if setFlags["metrics-addr"] {
		cfg.Server.MetricsAddress = *metricsAddr
	}
	if cfg.Logging == nil {
		cfg.Logging = &config.Logging{}
	}
	if setFlags["log-file"] {
		cfg.Logging.File = *logFile
	}
	if setFlags["log-level"] {
		cfg.Logging.Level = *logLevel
	}

	if err = cfg.FixupAndValidate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(-1)
	}

	// Setup the signal handling.
	haltCh := make(chan os.Signal, 1)
	signal.Notify(haltCh, os.Interrupt, syscall.SIGTERM)

	rotateCh := make(chan os.Signal, 1)
	signal.Notify(rotateCh, syscall.SIGHUP)

	// Start up the bus.
	bus, err := katzenbus.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to spawn bus instance: %v\n", err)
		os.Exit(-1)
	}
	defer bus.Shutdown()

	// Halt gracefully on SIGINT/SIGTERM.
	go func() {
		<-haltCh
		bus.Shutdown()
	}()

	// Rotate logs upon SIGHUP.
	go func() {
		for range rotateCh {
			bus.RotateLog()
		}
	}()

	// Wait for the bus to explode or be terminated.
	bus.Wait()
}
