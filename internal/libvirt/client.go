package libvirt

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
)

const (
	// DefaultSocketPath is the qemu:///system daemon socket.
	DefaultSocketPath = "/var/run/libvirt/libvirt-sock"

	defaultDialTimeout = 5 * time.Second
)

// Client wraps a go-libvirt connection. One Client maps to one daemon
// connection; callers share it across operations and Close it once.
type Client struct {
	libvirt *libvirt.Libvirt
}

// Connect dials the local libvirt daemon over its Unix socket. An empty
// socketPath selects DefaultSocketPath, a zero timeout selects
// defaultDialTimeout. The returned Client must be closed.
func Connect(socketPath string, timeout time.Duration) (*Client, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if timeout == 0 {
		timeout = defaultDialTimeout
	}

	dialer := dialers.NewLocal(
		dialers.WithSocket(socketPath),
		dialers.WithLocalTimeout(timeout),
	)

	l := libvirt.NewWithDialer(dialer)
	if err := l.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt at %s: %w", socketPath, err)
	}

	return &Client{libvirt: l}, nil
}

// ConnectWithContext is Connect with cancellation. The dial itself is
// bounded by timeout; the context lets callers abandon the wait early.
func ConnectWithContext(ctx context.Context, socketPath string, timeout time.Duration) (*Client, error) {
	type result struct {
		client *Client
		err    error
	}
	ch := make(chan result, 1)

	go func() {
		c, err := Connect(socketPath, timeout)
		ch <- result{client: c, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-ch:
		return res.client, res.err
	}
}

// Close disconnects from the daemon. Safe to call more than once.
func (c *Client) Close() error {
	if c.libvirt == nil {
		return nil
	}

	if err := c.libvirt.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}

	return nil
}

// Libvirt exposes the underlying go-libvirt client for packages that
// define their own consumer-side interfaces over it.
func (c *Client) Libvirt() *libvirt.Libvirt {
	return c.libvirt
}

// Ping checks the connection is alive with a cheap library call.
func (c *Client) Ping() error {
	if c.libvirt == nil {
		return fmt.Errorf("client not connected")
	}

	if _, err := c.libvirt.ConnectGetLibVersion(); err != nil {
		return fmt.Errorf("libvirt connection is dead: %w", err)
	}

	return nil
}

// Version returns the daemon's library version as "major.minor.patch".
func (c *Client) Version() (string, error) {
	v, err := c.libvirt.ConnectGetLibVersion()
	if err != nil {
		return "", fmt.Errorf("failed to get libvirt version: %w", err)
	}
	// Encoded as major*1,000,000 + minor*1,000 + patch.
	return fmt.Sprintf("%d.%d.%d", v/1000000, (v%1000000)/1000, v%1000), nil
}

// Hostname returns the hypervisor host's name.
func (c *Client) Hostname() (string, error) {
	hostname, err := c.libvirt.ConnectGetHostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	return hostname, nil
}

// URI returns the connection URI as the daemon reports it.
func (c *Client) URI() (string, error) {
	uri, err := c.libvirt.ConnectGetUri()
	if err != nil {
		return "", fmt.Errorf("failed to get connection URI: %w", err)
	}
	return uri, nil
}
