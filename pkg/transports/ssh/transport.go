// Package ssh provides the SSH transport used to run commands on the
// deployed target and to move snapshot artifacts to and from it.
package ssh

import (
	"context"
	"fmt"
)

// Runner is the narrow remote-operations contract the orchestration core
// depends on. Test doubles implement the same interface.
type Runner interface {
	// Connect establishes the SSH connection.
	Connect(ctx context.Context) error

	// Close releases the connection.
	Close() error

	// Probe is a lightweight connectivity check: it runs `true` on the
	// target and reports any failure without touching anything else.
	Probe(ctx context.Context) error

	// Run executes a command on the target, returning stdout and stderr.
	// A non-zero exit is an error carrying the exit code and stderr.
	Run(ctx context.Context, cmd string) (stdout string, stderr string, err error)

	// RunSudo executes a command with NOPASSWD sudo.
	RunSudo(ctx context.Context, cmd string) (stdout string, stderr string, err error)

	// Upload copies a local file to the target via SFTP.
	Upload(ctx context.Context, localPath, remotePath string, mode uint32) error

	// Download copies a remote file to the local machine via SFTP.
	Download(ctx context.Context, remotePath, localPath string) error
}

// TransportError wraps a transport failure with the operation that caused
// it.
type TransportError struct {
	// Op is the transport operation (connect, execute, upload, download).
	Op string

	// Err is the underlying cause.
	Err error

	// IsAuthError marks authentication or host-key failures, which need a
	// different operator remediation than plain connectivity failures.
	IsAuthError bool
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("ssh %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
