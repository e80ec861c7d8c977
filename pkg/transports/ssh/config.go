package ssh

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config holds the SSH connection settings for the deployment target.
type Config struct {
	// Host is the target hostname or IP address.
	Host string

	// Port is the SSH port (default 22).
	Port int

	// User is the SSH username.
	User string

	// PrivateKeyPath is the key used to authenticate. Key auth is the only
	// supported method: deployment targets are provisioned with the
	// operator's key and never use passwords.
	PrivateKeyPath string

	// KnownHostsPath enables strict host key verification when set. Empty
	// accepts any host key, which is the normal mode for freshly
	// provisioned hosts whose keys are not yet known.
	KnownHostsPath string

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration

	// CommandTimeout is the default bound for a single remote command.
	CommandTimeout time.Duration
}

// DefaultConfig returns a Config with working defaults for host and user.
func DefaultConfig(host, user, keyPath string) *Config {
	return &Config{
		Host:           host,
		Port:           22,
		User:           user,
		PrivateKeyPath: keyPath,
		ConnectTimeout: 30 * time.Second,
		CommandTimeout: 5 * time.Minute,
	}
}

// Validate checks the configuration before any connection attempt.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.PrivateKeyPath == "" {
		return fmt.Errorf("private key path is required")
	}
	if _, err := os.Stat(c.PrivateKeyPath); err != nil {
		return fmt.Errorf("private key not readable: %w", err)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive")
	}
	return nil
}

// Address returns the host:port dial address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// buildClientConfig creates the ssh.ClientConfig from the settings.
func (c *Config) buildClientConfig() (*ssh.ClientConfig, error) {
	keyBytes, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	var hostKeyCallback ssh.HostKeyCallback
	if c.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
	} else {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectTimeout,
	}, nil
}
