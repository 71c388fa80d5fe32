package env

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHConfig describes how to reach a guest over SSH.
type SSHConfig struct {
	// Address is the host:port endpoint (e.g., "10.250.250.10:22").
	Address string

	// User is the account to authenticate as.
	User string

	// PrivateKeyPath is the path to the private key on the local host.
	PrivateKeyPath string

	// Timeout bounds a single connection attempt. Zero means 10 seconds.
	Timeout time.Duration
}

// SSH executes instructions in a guest over an SSH connection. Each Run
// opens a fresh session on the shared connection; the script is delivered
// on stdin so arbitrary multi-line bodies work without quoting games.
type SSH struct {
	client *ssh.Client
	addr   string
}

// DialSSH establishes an SSH connection to the guest.
func DialSSH(cfg SSHConfig) (*SSH, error) {
	keyData, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	clientConfig := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// The guest is ephemeral and its host key is generated at first
		// boot, so there is nothing to pin against.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	client, err := ssh.Dial("tcp", cfg.Address, clientConfig)
	if err != nil {
		return nil, &UnavailableError{Endpoint: cfg.Address, Err: err}
	}

	return &SSH{client: client, addr: cfg.Address}, nil
}

// WaitForSSH dials the guest repeatedly until it answers or ctx expires.
// Used right after domain boot, when sshd may take a while to come up.
func WaitForSSH(ctx context.Context, cfg SSHConfig, interval time.Duration) (*SSH, error) {
	if interval == 0 {
		interval = 2 * time.Second
	}

	var lastErr error
	for {
		conn, err := DialSSH(cfg)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, &UnavailableError{
				Endpoint: cfg.Address,
				Err:      fmt.Errorf("gave up waiting for SSH: %w (last attempt: %v)", ctx.Err(), lastErr),
			}
		case <-time.After(interval):
		}
	}
}

// Close tears down the underlying connection.
func (s *SSH) Close() error {
	return s.client.Close()
}

// Endpoint returns the address this environment is connected to.
func (s *SSH) Endpoint() string {
	return s.addr
}

// Run executes the instruction in a new session. The script body travels
// on the session's stdin into "sh -s"; Elevated instructions wrap the
// shell in "sudo -n", which requires the guest user to hold passwordless
// sudo (cloud-init sets this up).
func (s *SSH) Run(ctx context.Context, spec RunSpec) (int, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return 0, &UnavailableError{Endpoint: s.addr, Err: fmt.Errorf("failed to open session: %w", err)}
	}
	defer session.Close()

	script := spec.Script
	if spec.Dir != "" {
		// Working directory is part of the script so it applies under
		// sudo as well.
		script = fmt.Sprintf("cd %s || exit 1\n%s", shellQuote(spec.Dir), script)
	}

	cmd := "sh -s"
	if len(spec.Args) > 0 {
		quoted := make([]string, len(spec.Args))
		for i, a := range spec.Args {
			quoted[i] = shellQuote(a)
		}
		cmd = fmt.Sprintf("sh -s -- %s", strings.Join(quoted, " "))
	}
	if spec.Privilege == Elevated {
		cmd = "sudo -n " + cmd
	}

	session.Stdin = strings.NewReader(script)
	session.Stdout = spec.Stdout
	session.Stderr = spec.Stderr

	if err := session.Start(cmd); err != nil {
		return 0, &UnavailableError{Endpoint: s.addr, Err: fmt.Errorf("failed to start instruction: %w", err)}
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		// Best effort; sshd ignores signals on some platforms, closing
		// the session tears the channel down regardless.
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-done
		return 0, &UnavailableError{Endpoint: s.addr, Err: ctx.Err()}
	case err := <-done:
		if err == nil {
			return 0, nil
		}

		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitStatus(), nil
		}
		return 0, &UnavailableError{Endpoint: s.addr, Err: err}
	}
}

// shellQuote wraps s in single quotes, escaping embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
