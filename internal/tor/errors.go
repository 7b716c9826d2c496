package tor

import "errors"

// Proxy errors.
var (
	// ErrProxyNotSOCKS5 is returned when the proxy answers but does not speak SOCKS5
	// or insists on authentication.
	ErrProxyNotSOCKS5 = errors.New("proxy is not an unauthenticated SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when no TCP connection to the proxy can be made.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")

	// ErrProxyTimeout is returned when the proxy does not answer in time.
	ErrProxyTimeout = errors.New("timeout connecting to proxy")

	// ErrInvalidProxyAddress is returned when the address is not host:port.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrDaemonNotRunning is returned when the embedded daemon has not been started.
	ErrDaemonNotRunning = errors.New("embedded Tor daemon is not running")
)

// ProxyStatus is the result of probing a proxy.
type ProxyStatus int

const (
	// ProxyStatusOK means the proxy completed the SOCKS5 greeting.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType means the peer answered with something else.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect means the TCP connection failed.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout means the probe ran out of time.
	ProxyStatusTimeout
)

// String returns a human-readable description of the status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not SOCKS5)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the sentinel error for the status, or nil if OK.
func (s ProxyStatus) Error() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyNotSOCKS5
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
