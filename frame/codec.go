// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

package frame

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/katzenpost/chacha20poly1305"
	"gopkg.in/op/go-logging.v1"
)

// Codec seals and opens bus frames under the shared PSK.  It owns the local
// sender state (written only by Encrypt) and the per-sender registry of
// remote states (written only by Decrypt).  All state transitions are
// serialized under a single mutex so that clock monotonicity and counter
// advancement are atomic with the seal/open that produced them.
type Codec struct {
	sync.Mutex

	aead cipher.AEAD
	id   SenderID
	log  *logging.Logger

	// Local sender state.  Decrypt never touches these; frames claiming the
	// local identity are rejected before any state access.
	selfClk    uint64
	selfClkSet bool
	selfCtr    uint32

	// Remote sender registry, keyed by sender identity.  Entries are
	// installed on first successful decrypt and never evicted.
	senders map[SenderID]*senderState

	nowFn func() uint64
}

// NewCodec constructs a Codec from a 32 byte PSK and the local identity.
func NewCodec(key []byte, id SenderID, log *logging.Logger) (*Codec, error) {
	if len(key) != KeyLength {
		return nil, errShortKey
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &Codec{
		aead:    aead,
		id:      id,
		log:     log,
		senders: make(map[SenderID]*senderState),
		nowFn:   func() uint64 { return uint64(time.Now().UnixNano()) },
	}, nil
}

// SenderID returns the local sender identity.
func (c *Codec) SenderID() SenderID {
	return c.id
}

// Encrypt seals payload into a wire frame.  The empty payload is valid and
// is the end-of-turn signal.
func (c *Codec) Encrypt(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLength {
		return nil, ErrPayloadTooLarge
	}

	c.Lock()
	clk := c.nowFn()
	if c.selfClkSet && clk <= c.selfClk {
		clk = c.selfClk + 1
	}
	c.selfClk = clk
	c.selfClkSet = true
	ctr := c.selfCtr
	c.selfCtr++ // Wraps mod 2^32.
	c.Unlock()

	record := make([]byte, HeaderLength+len(payload))
	copy(record[:SenderIDLength], c.id[:])
	binary.BigEndian.PutUint32(record[SenderIDLength:], ctr)
	binary.BigEndian.PutUint64(record[SenderIDLength+CounterLength:], clk)
	copy(record[HeaderLength:], payload)

	padded, err := pad(record)
	if err != nil {
		return nil, err
	}

	out := make([]byte, NonceLength, FrameSize)
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, err
	}
	return c.aead.Seal(out, out[:NonceLength], padded, nil), nil
}

// Decrypt opens a wire frame and runs the freshness, ordering and replay
// checks against the sender's registry entry.  On success the entry is
// advanced and the sender identity and payload are returned.  All failures
// leave the registry untouched.
func (c *Codec) Decrypt(raw []byte) (SenderID, []byte, error) {
	var sender SenderID

	if len(raw) != FrameSize {
		return sender, nil, ErrFrameSize
	}

	padded, err := c.aead.Open(nil, raw[:NonceLength], raw[NonceLength:], nil)
	if err != nil {
		return sender, nil, ErrAuthFailed
	}
	record, err := unpad(padded)
	if err != nil {
		return sender, nil, err
	}
	if len(record) < HeaderLength {
		return sender, nil, ErrPadding
	}

	copy(sender[:], record[:SenderIDLength])
	ctr := binary.BigEndian.Uint32(record[SenderIDLength:])
	clk := binary.BigEndian.Uint64(record[SenderIDLength+CounterLength:])
	payload := record[HeaderLength:]

	if sender == c.id {
		// A frame we sent came back around the mesh, or a peer is forging
		// our identity.  Either way it must not alias the local state.
		return sender, nil, ErrLoopback
	}

	c.Lock()
	defer c.Unlock()

	now := c.nowFn()
	var skew uint64
	if now > clk {
		skew = now - clk
	} else {
		skew = clk - now
	}
	if skew > uint64(FreshnessWindow.Nanoseconds()) {
		return sender, nil, ErrExpired
	}

	if s, ok := c.senders[sender]; ok {
		if clk <= s.clk {
			return sender, nil, ErrReplay
		}
		if ctr != s.ctr+1 { // Wraps mod 2^32.
			c.log.Warningf("sender %v: counter discontinuity: got %d, want %d", sender, ctr, s.ctr+1)
			return sender, nil, ErrCounterGap
		}
		s.clk = clk
		s.ctr = ctr
	} else {
		// First contact: accept whatever counter the sender is at, so that
		// joining an in-progress session works.
		c.senders[sender] = &senderState{clk: clk, ctr: ctr}
	}

	return sender, payload, nil
}
