package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// sftpSession opens an SFTP client over the established connection.
func (c *Client) sftpSession(ctx context.Context) (*sftp.Client, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := sftp.NewClient(c.sshClient)
	if err != nil {
		return nil, &TransportError{Op: "sftp-init", Err: err}
	}
	return client, nil
}

// Upload copies a local file to the target via SFTP.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string, mode uint32) error {
	start := time.Now()

	localFile, err := os.Open(localPath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("open local file: %w", err)}
	}
	defer localFile.Close()

	client, err := c.sftpSession(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.MkdirAll(filepath.Dir(remotePath)); err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("create remote directory: %w", err)}
	}

	remoteFile, err := client.Create(remotePath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("create remote file: %w", err)}
	}
	defer remoteFile.Close()

	written, err := copyWithContext(ctx, remoteFile, localFile)
	if err != nil {
		return &TransportError{Op: "upload", Err: err}
	}

	if mode > 0 {
		if err := client.Chmod(remotePath, os.FileMode(mode)); err != nil {
			log.Warn().Err(err).Str("remote", remotePath).Msg("failed to set file mode")
		}
	}

	log.Info().
		Str("local", localPath).
		Str("remote", remotePath).
		Int64("bytes", written).
		Dur("duration", time.Since(start)).
		Msg("file uploaded")

	return nil
}

// Download copies a remote file to the local machine via SFTP.
func (c *Client) Download(ctx context.Context, remotePath, localPath string) error {
	start := time.Now()

	client, err := c.sftpSession(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	remoteFile, err := client.Open(remotePath)
	if err != nil {
		return &TransportError{Op: "download", Err: fmt.Errorf("open remote file: %w", err)}
	}
	defer remoteFile.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return &TransportError{Op: "download", Err: fmt.Errorf("create local directory: %w", err)}
	}

	localFile, err := os.Create(localPath)
	if err != nil {
		return &TransportError{Op: "download", Err: fmt.Errorf("create local file: %w", err)}
	}
	defer localFile.Close()

	written, err := copyWithContext(ctx, localFile, remoteFile)
	if err != nil {
		return &TransportError{Op: "download", Err: err}
	}

	log.Info().
		Str("remote", remotePath).
		Str("local", localPath).
		Int64("bytes", written).
		Dur("duration", time.Since(start)).
		Msg("file downloaded")

	return nil
}

// copyWithContext copies src to dst, checking for cancellation between
// chunks.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				return written, nil
			}
			return written, err
		}
	}
}
