// SPDX-FileCopyrightText: © 2026 Katzenpost dev team
// SPDX-License-Identifier: AGPL-3.0-only

// Package transport resolves bus link addresses into byte streams.  A link
// address is a URL with a tcp or quic scheme; either way the link layer gets
// a net.Conn carrying an ordered stream of frames, and a net.Listener
// producing such conns.  A QUIC connection carries exactly one stream for
// the lifetime of the peering, mirroring what a TCP connection provides.
package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math/big"
	"net"
	"net/url"
	"time"

	"github.com/quic-go/quic-go"
)

// alpnBus is the ALPN token both sides assert.  The bus makes no attempt to
// blend in: every frame is a fixed 1400 bytes, which is already a signature.
const alpnBus = "katzenbus"

// Listen binds addr and returns a listener whose accepted conns are frame
// streams.
func Listen(addr string) (net.Listener, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "tcp", "tcp4", "tcp6":
		return net.Listen(u.Scheme, u.Host)
	case "quic":
		tlsConf, err := serverTLSConfig()
		if err != nil {
			return nil, err
		}
		ql, err := quic.ListenAddr(u.Host, tlsConf, nil)
		if err != nil {
			return nil, err
		}
		return &streamListener{ql: ql}, nil
	default:
		return nil, fmt.Errorf("transport: unsupported scheme '%v'", u.Scheme)
	}
}

// Dial connects to addr and returns the frame stream.
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "tcp", "tcp4", "tcp6":
		d := new(net.Dialer)
		return d.DialContext(ctx, u.Scheme, u.Host)
	case "quic":
		// The listener's certificate is self-signed and ignored; frame
		// authenticity comes from the PSK layer, not the TLS PKI.
		tlsConf := &tls.Config{
			InsecureSkipVerify: true,
			NextProtos:         []string{alpnBus},
		}
		qc, err := quic.DialAddr(ctx, u.Host, tlsConf, nil)
		if err != nil {
			return nil, err
		}
		stream, err := qc.OpenStreamSync(ctx)
		if err != nil {
			qc.CloseWithError(0, "")
			return nil, err
		}
		return &streamConn{Stream: stream, qc: qc}, nil
	default:
		return nil, fmt.Errorf("transport: unsupported scheme '%v'", u.Scheme)
	}
}

// streamConn presents the peering's single QUIC stream as a net.Conn.  The
// embedded stream supplies Read, Write, Close and the deadlines; only the
// addresses live on the connection.
type streamConn struct {
	*quic.Stream
	qc *quic.Conn
}

func (c *streamConn) LocalAddr() net.Addr {
	return c.qc.LocalAddr()
}

func (c *streamConn) RemoteAddr() net.Addr {
	return c.qc.RemoteAddr()
}

// streamListener accepts QUIC connections and hands back their single
// stream as a net.Conn.
type streamListener struct {
	ql *quic.Listener
}

func (l *streamListener) Accept() (net.Conn, error) {
	ctx := context.Background()
	qc, err := l.ql.Accept(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := qc.AcceptStream(ctx)
	if err != nil {
		qc.CloseWithError(0, "")
		return nil, err
	}
	return &streamConn{Stream: stream, qc: qc}, nil
}

func (l *streamListener) Addr() net.Addr {
	return l.ql.Addr()
}

func (l *streamListener) Close() error {
	return l.ql.Close()
}

// serverTLSConfig mints a throwaway self-signed certificate for the QUIC
// handshake.  Peers do not verify it, so its lifetime only has to cover the
// process.
func serverTLSConfig() (*tls.Config, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    now,
		NotAfter:     now.Add(365 * 24 * time.Hour),
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, pub, priv)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{certDER},
			PrivateKey:  priv,
		}},
		NextProtos: []string{alpnBus},
	}, nil
}
