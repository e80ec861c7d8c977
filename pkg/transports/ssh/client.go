package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Client implements Runner over a single SSH connection.
type Client struct {
	config *Config

	mu        sync.Mutex
	sshClient *ssh.Client
}

// NewClient creates an unconnected client.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ssh config: %w", err)
	}
	return &Client{config: config}, nil
}

// Connect establishes the SSH connection. Reconnects if an existing
// connection has gone dead.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sshClient != nil {
		if err := c.probeLocked(); err == nil {
			return nil
		}
		log.Warn().Str("host", c.config.Host).Msg("existing connection is dead, reconnecting")
		_ = c.sshClient.Close()
		c.sshClient = nil
	}

	clientConfig, err := c.config.buildClientConfig()
	if err != nil {
		return &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	address := c.config.Address()
	log.Debug().Str("address", address).Msg("establishing SSH connection")

	connCh := make(chan *ssh.Client, 1)
	errCh := make(chan error, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errCh <- err
			return
		}
		connCh <- client
	}()

	select {
	case <-ctx.Done():
		return &TransportError{Op: "connect", Err: ctx.Err()}
	case err := <-errCh:
		return &TransportError{Op: "connect", Err: err}
	case client := <-connCh:
		c.sshClient = client
		log.Info().Str("address", address).Msg("SSH connection established")
		return nil
	}
}

// Close releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sshClient == nil {
		return nil
	}
	err := c.sshClient.Close()
	c.sshClient = nil
	if err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// Probe verifies the target is reachable and accepting commands.
func (c *Client) Probe(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probeLocked()
}

// probeLocked runs `true` over a fresh session. Caller holds the lock.
func (c *Client) probeLocked() error {
	session, err := c.sshClient.NewSession()
	if err != nil {
		return &TransportError{Op: "probe", Err: err}
	}
	defer session.Close()

	if err := session.Run("true"); err != nil {
		return &TransportError{Op: "probe", Err: err}
	}
	return nil
}

// Run executes a command on the target.
func (c *Client) Run(ctx context.Context, cmd string) (string, string, error) {
	return c.execute(ctx, cmd, false)
}

// RunSudo executes a command with NOPASSWD sudo.
func (c *Client) RunSudo(ctx context.Context, cmd string) (string, string, error) {
	return c.execute(ctx, cmd, true)
}

// execute runs one command over a fresh session, bounded by the command
// timeout and the context.
func (c *Client) execute(ctx context.Context, cmd string, useSudo bool) (string, string, error) {
	start := time.Now()

	if err := c.Connect(ctx); err != nil {
		return "", "", err
	}

	c.mu.Lock()
	session, err := c.sshClient.NewSession()
	c.mu.Unlock()
	if err != nil {
		return "", "", &TransportError{Op: "execute", Err: fmt.Errorf("create session: %w", err)}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	finalCmd := cmd
	if useSudo {
		finalCmd = "sudo " + cmd
	}

	log.Debug().Str("command", cmd).Bool("sudo", useSudo).Msg("executing command")

	ctx, cancel := context.WithTimeout(ctx, c.config.CommandTimeout)
	defer cancel()

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- session.Run(finalCmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		execErr = ctx.Err()
	case execErr = <-doneCh:
	}

	stdout := strings.TrimSpace(stdoutBuf.String())
	stderr := strings.TrimSpace(stderrBuf.String())

	log.Debug().
		Str("command", cmd).
		Dur("duration", time.Since(start)).
		Err(execErr).
		Msg("command completed")

	if execErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(execErr, &exitErr) {
			return stdout, stderr, &TransportError{
				Op:  "execute",
				Err: fmt.Errorf("command exited with code %d: %s", exitErr.ExitStatus(), stderr),
			}
		}
		return stdout, stderr, &TransportError{Op: "execute", Err: execErr}
	}

	return stdout, stderr, nil
}
