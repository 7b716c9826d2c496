package tor

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultStartupTimeout bounds Tor bootstrap.
const DefaultStartupTimeout = 3 * time.Minute

// EmbeddedTor manages a Tor daemon launched through tornago. Bootstrap takes
// one to three minutes while the daemon fetches directory information and
// builds circuits.
type EmbeddedTor struct {
	process        *tornago.TorProcess
	socksAddr      string
	controlAddr    string
	startupTimeout time.Duration
}

// EmbeddedTorOption configures an EmbeddedTor instance.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
// Non-positive values are ignored.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		if timeout > 0 {
			e.startupTimeout = timeout
		}
	}
}

// NewEmbeddedTor creates a manager. Call Start to launch the daemon.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{startupTimeout: DefaultStartupTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the daemon on OS-assigned ports and waits for bootstrap.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	select {
	case <-ctx.Done():
		_ = process.Stop() //nolint:errcheck // best effort cleanup
		return ctx.Err()
	default:
	}

	e.process = process
	e.socksAddr = process.SocksAddr()
	e.controlAddr = process.ControlAddr()
	return nil
}

// Stop shuts the daemon down. It is safe to call on an unstarted instance
// and more than once.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	e.socksAddr = ""
	e.controlAddr = ""
	return err
}

// SocksAddr returns the SOCKS5 address, or "" when not running.
func (e *EmbeddedTor) SocksAddr() string {
	return e.socksAddr
}

// ControlAddr returns the control port address, or "" when not running.
func (e *EmbeddedTor) ControlAddr() string {
	return e.controlAddr
}

// IsRunning reports whether the daemon is up.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// Proxy returns a SOCKS5 proxy bound to the running daemon.
func (e *EmbeddedTor) Proxy() (*Proxy, error) {
	if !e.IsRunning() {
		return nil, ErrDaemonNotRunning
	}
	return NewProxy(e.socksAddr)
}
