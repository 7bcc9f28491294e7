// Package orchestrator binds a Transport, the wire codec, and the session
// state machine into a single-session event loop: read bytes -> frame ->
// decode -> feed the machine; outbound messages: stamp header -> encode ->
// append to store -> write.
package orchestrator

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"time"
)

// Transport is a bidirectional byte stream, abstracting over the actual
// network connection so the orchestrator never depends on *net.Conn
// directly. TLS, if used, is applied transparently by whatever constructs
// the Transport.
type Transport interface {
	io.Reader
	io.Writer
	Close() error
}

// DialOptions configures an outbound TCP (optionally TLS, optionally
// proxy-tunneled) connection to a FIX counterparty.
type DialOptions struct {
	Host string
	Port int
	TLS  bool

	// Proxy, if non-nil, tunnels the connection through a SOCKS5 or HTTP
	// CONNECT proxy before the FIX handshake begins.
	Proxy *ProxyOptions

	DialTimeout time.Duration
}

// ProxyOptions configures the optional proxy hop. SOCKS5 is attempted
// first; on failure the dialer falls back to HTTP CONNECT, matching the
// counterparty gateway this was modeled on.
type ProxyOptions struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Dial establishes a Transport to opts.Host:opts.Port, via opts.Proxy if
// set, upgrading to TLS if opts.TLS is set.
func Dial(ctx context.Context, opts DialOptions) (Transport, error) {
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var conn net.Conn
	var err error
	if opts.Proxy != nil {
		conn, err = dialViaProxy(opts, timeout)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", opts.Host, opts.Port))
	}
	if err != nil {
		return nil, fmt.Errorf("orchestrator: dialing %s:%d: %w", opts.Host, opts.Port, err)
	}

	if opts.TLS {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: opts.Host})
		tlsConn.SetDeadline(time.Now().Add(timeout))
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("orchestrator: TLS handshake with %s: %w", opts.Host, err)
		}
		tlsConn.SetDeadline(time.Time{})
		conn = tlsConn
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(30 * time.Second)
	}

	return conn, nil
}

func dialViaProxy(opts DialOptions, timeout time.Duration) (net.Conn, error) {
	proxyAddr := fmt.Sprintf("%s:%d", opts.Proxy.Host, opts.Proxy.Port)
	targetAddr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)

	conn, err := net.DialTimeout("tcp", proxyAddr, timeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to proxy %s: %w", proxyAddr, err)
	}

	if tunneled, err := attemptSocks5(conn, opts); err == nil {
		return tunneled, nil
	}
	conn.Close()

	conn, err = net.DialTimeout("tcp", proxyAddr, timeout)
	if err != nil {
		return nil, fmt.Errorf("reconnecting to proxy %s: %w", proxyAddr, err)
	}
	return dialViaHTTPConnect(conn, targetAddr, opts, timeout)
}

func dialViaHTTPConnect(conn net.Conn, targetAddr string, opts DialOptions, timeout time.Duration) (net.Conn, error) {
	auth := base64.StdEncoding.EncodeToString([]byte(opts.Proxy.Username + ":" + opts.Proxy.Password))
	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\nProxy-Authorization: Basic %s\r\n\r\n",
		targetAddr, targetAddr, auth)

	conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write([]byte(req)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending CONNECT request: %w", err)
	}

	resp := make([]byte, 1024)
	n, err := conn.Read(resp)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading proxy response: %w", err)
	}
	if n < 12 || string(resp[9:12]) != "200" {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT rejected: %s", resp[:n])
	}

	conn.SetDeadline(time.Time{})
	return conn, nil
}

// attemptSocks5 performs a SOCKS5 handshake with username/password auth
// (RFC 1929), tunneling to opts.Host:opts.Port.
func attemptSocks5(conn net.Conn, opts DialOptions) (net.Conn, error) {
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetDeadline(time.Time{})

	if _, err := conn.Write([]byte{0x05, 0x01, 0x02}); err != nil {
		return nil, fmt.Errorf("socks5 greeting: %w", err)
	}
	selection := make([]byte, 2)
	if _, err := io.ReadFull(conn, selection); err != nil {
		return nil, fmt.Errorf("socks5 method selection: %w", err)
	}
	if selection[0] != 0x05 || selection[1] != 0x02 {
		return nil, fmt.Errorf("socks5 auth method not supported: %v", selection)
	}

	user, pass := opts.Proxy.Username, opts.Proxy.Password
	authReq := append([]byte{0x01, byte(len(user))}, user...)
	authReq = append(authReq, byte(len(pass)))
	authReq = append(authReq, pass...)
	if _, err := conn.Write(authReq); err != nil {
		return nil, fmt.Errorf("socks5 auth: %w", err)
	}
	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		return nil, fmt.Errorf("socks5 auth response: %w", err)
	}
	if authResp[1] != 0x00 {
		return nil, fmt.Errorf("socks5 auth rejected: status %d", authResp[1])
	}

	ip := net.ParseIP(opts.Host).To4()
	if ip == nil {
		return nil, fmt.Errorf("socks5 requires an IPv4 target address, got %q", opts.Host)
	}
	connectReq := []byte{0x05, 0x01, 0x00, 0x01}
	connectReq = append(connectReq, ip...)
	connectReq = append(connectReq, byte(opts.Port>>8), byte(opts.Port&0xff))
	if _, err := conn.Write(connectReq); err != nil {
		return nil, fmt.Errorf("socks5 connect request: %w", err)
	}
	connectResp := make([]byte, 10)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		return nil, fmt.Errorf("socks5 connect response: %w", err)
	}
	if connectResp[1] != 0x00 {
		return nil, fmt.Errorf("socks5 connect rejected: status %d", connectResp[1])
	}
	return conn, nil
}
