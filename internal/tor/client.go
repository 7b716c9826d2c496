package tor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// checkProxyTimeout bounds the SOCKS5 greeting probe.
const checkProxyTimeout = 2 * time.Second

const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthNoAccept = 0xFF
)

// Proxy routes connections through a SOCKS5 proxy.
type Proxy struct {
	address string
	dialer  proxy.Dialer
}

// NewProxy validates address and builds a SOCKS5 dialer for it. It does not
// contact the proxy; call Check for that.
func NewProxy(address string) (*Proxy, error) {
	if !isValidProxyAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, address)
	}

	dialer, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	return &Proxy{address: address, dialer: dialer}, nil
}

func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// Address returns the proxy address.
func (p *Proxy) Address() string {
	return p.address
}

// Check performs the SOCKS5 method negotiation and reports whether the proxy
// accepts unauthenticated clients.
func (p *Proxy) Check(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if resp[0] != socks5Version || resp[1] == socks5AuthNoAccept || resp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

// DialContext dials address through the proxy.
func (p *Proxy) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := p.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := p.dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Transport returns an HTTP transport that dials through the proxy.
// Connection pool sizes are kept small since each connection may ride a
// Tor circuit.
func (p *Proxy) Transport() *http.Transport {
	return &http.Transport{
		DialContext:         p.DialContext,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 15 * time.Second,
	}
}
