// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

// Package config provides the katzenbus daemon configuration.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/katzenpost/katzenpost/core/utils"

	"github.com/katzenpost/katzenbus/frame"
)

const (
	defaultLogLevel  = "NOTICE"
	defaultSendQueue = 64
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Server is the bus endpoint configuration.
type Server struct {
	// ListenAddress is the optional address to bind and accept peer
	// connections on, eg "tcp://127.0.0.1:3219" or "quic://[::1]:3219".
	ListenAddress string

	// RemoteAddresses are the peer addresses to dial at startup.
	RemoteAddresses []string

	// PSKFile is the path to the hex encoded 32 byte pre-shared key.
	PSKFile string

	// WaitInput starts the router/arbiter so that peer traffic is delivered
	// to stdout.  When false the daemon only transmits local input.
	// Defaults to true.
	WaitInput *bool

	// SentinelByte, when set (0..255), makes the input path emit an
	// end-of-turn frame whenever a chunk ends with this byte value.
	SentinelByte *int

	// MetricsAddress is the optional address/port to bind the prometheus
	// metrics endpoint to.
	MetricsAddress string
}

func (sCfg *Server) validate() error {
	if sCfg.ListenAddress == "" && len(sCfg.RemoteAddresses) == 0 {
		return errors.New("config: Server: no ListenAddress and no RemoteAddresses")
	}
	if sCfg.ListenAddress != "" {
		a, err := normalizeAddress(sCfg.ListenAddress)
		if err != nil {
			return fmt.Errorf("config: Server: ListenAddress '%v' is invalid: %v", sCfg.ListenAddress, err)
		}
		sCfg.ListenAddress = a
	}
	for i, v := range sCfg.RemoteAddresses {
		a, err := normalizeAddress(v)
		if err != nil {
			return fmt.Errorf("config: Server: RemoteAddress '%v' is invalid: %v", v, err)
		}
		sCfg.RemoteAddresses[i] = a
	}
	if sCfg.PSKFile == "" {
		return errors.New("config: Server: PSKFile is not set")
	}
	if sCfg.SentinelByte != nil {
		if s := *sCfg.SentinelByte; s < 0 || s > 255 {
			return fmt.Errorf("config: Server: SentinelByte %d out of range 0..255", s)
		}
	}
	if sCfg.MetricsAddress != "" {
		if err := utils.EnsureAddrIPPort(sCfg.MetricsAddress); err != nil {
			return fmt.Errorf("config: Server: MetricsAddress '%v' is invalid: %v", sCfg.MetricsAddress, err)
		}
	}
	return nil
}

// normalizeAddress accepts either a URL with a tcp or quic scheme, or a bare
// host:port which is taken to be tcp.
func normalizeAddress(a string) (string, error) {
	if !strings.Contains(a, "://") {
		a = "tcp://" + a
	}
	u, err := url.Parse(a)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "tcp", "tcp4", "tcp6", "quic":
	default:
		return "", fmt.Errorf("unsupported scheme '%v'", u.Scheme)
	}
	if u.Port() == "" {
		return "", errors.New("must contain port")
	}
	return u.String(), nil
}

// Debug is the debug configuration.
type Debug struct {
	// SendQueue is the per-link inbound frame queue depth.
	SendQueue int
}

func (dCfg *Debug) applyDefaults() {
	if dCfg.SendQueue <= 0 {
		dCfg.SendQueue = defaultSendQueue
	}
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted logs go to stderr.  Stdout is
	// never used, it carries bus payload.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl
	return nil
}

// Config is the top level katzenbus configuration.
type Config struct {
	Server  *Server
	Debug   *Debug
	Logging *Logging
}

// WaitInput returns the effective wait-input setting.
func (cfg *Config) WaitInput() bool {
	return cfg.Server.WaitInput == nil || *cfg.Server.WaitInput
}

// FixupAndValidate applies defaults and validates the configuration.
func (cfg *Config) FixupAndValidate() error {
	if cfg.Server == nil {
		return errors.New("config: No Server block was present")
	}
	if cfg.Debug == nil {
		cfg.Debug = &Debug{}
	}
	if cfg.Logging == nil {
		cfg.Logging = &defaultLogging
	}

	if err := cfg.Server.validate(); err != nil {
		return err
	}
	cfg.Debug.applyDefaults()
	return cfg.Logging.validate()
}

// LoadPSK reads and decodes the pre-shared key named by PSKFile.
func (cfg *Config) LoadPSK() ([]byte, error) {
	b, err := os.ReadFile(cfg.Server.PSKFile)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read PSK file: %v", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("config: malformed PSK file '%v': %v", cfg.Server.PSKFile, err)
	}
	if len(key) != frame.KeyLength {
		return nil, fmt.Errorf("config: PSK is %d bytes, expected %d", len(key), frame.KeyLength)
	}
	return key, nil
}

// GeneratePSK writes a fresh random PSK to path, hex encoded.
func GeneratePSK(path string) error {
	key := make([]byte, frame.KeyLength)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0600)
}

// Load parses and validates the provided buffer b as a config body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
