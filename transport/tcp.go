// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Compile-time interface checks.
var (
	_ Listener = (*TCPListener)(nil)
	_ Dialer   = (*TCPDialer)(nil)
)

// TCPListener accepts overlay links over TCP. Overlay nodes run on
// cluster hosts with direct reachability, so plain TCP is the only
// transport.
type TCPListener struct {
	listener net.Listener
	logger   *slog.Logger

	handlers sync.WaitGroup
}

// NewTCPListener listens on address (e.g., ":0" for a random port, or
// "10.0.0.12:7100").
func NewTCPListener(address string, logger *slog.Logger) (*TCPListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TCPListener{listener: listener, logger: logger}, nil
}

// Serve accepts links until ctx is cancelled or Close is called.
func (l *TCPListener) Serve(ctx context.Context, handler ConnHandler) error {
	go func() {
		<-ctx.Done()
		l.listener.Close()
	}()

	var acceptErr error
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				l.logger.Warn("accept timed out, retrying", "address", l.Address(), "error", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			acceptErr = fmt.Errorf("accepting on %s: %w", l.Address(), err)
			break
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			// Packets are small and latency matters more than
			// throughput; Stream.Flush is the batching point.
			tcpConn.SetNoDelay(true)
			tcpConn.SetKeepAlive(true)
			tcpConn.SetKeepAlivePeriod(30 * time.Second)
		}

		l.handlers.Add(1)
		go func() {
			defer l.handlers.Done()
			handler(ctx, conn)
		}()
	}

	l.handlers.Wait()
	return acceptErr
}

// Address returns the listen address in "host:port" form.
func (l *TCPListener) Address() string {
	return l.listener.Addr().String()
}

// Port returns the listen port.
func (l *TCPListener) Port() int {
	if address, ok := l.listener.Addr().(*net.TCPAddr); ok {
		return address.Port
	}
	return 0
}

// Close stops accepting. Handlers already running are not interrupted;
// they end when their links close.
func (l *TCPListener) Close() error {
	return l.listener.Close()
}

// TCPDialer opens TCP links to parent nodes.
type TCPDialer struct {
	// Timeout bounds connection establishment. Zero means only the
	// context deadline applies.
	Timeout time.Duration
}

// DialContext opens a TCP connection to address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	conn, err := (&net.Dialer{Timeout: d.Timeout, KeepAlive: 30 * time.Second}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	return conn, nil
}
