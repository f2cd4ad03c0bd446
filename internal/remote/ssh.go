// Package remote collects host metrics and files from the game server host over SSH.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"mc-dashboard-backend/config"
)

// Shell runs commands on an open remote session.
type Shell interface {
	Run(cmd string) (string, error)
	Close() error
}

// Connector opens a Shell.
type Connector interface {
	Connect(ctx context.Context) (Shell, error)
}

// SSHConnector dials the configured host with private key authentication.
type SSHConnector struct {
	addr           string
	user           string
	keyPath        string
	knownHostsPath string
	timeout        time.Duration
}

// NewSSHConnector creates a connector for the configured endpoint.
func NewSSHConnector(cfg config.SSHConfig) *SSHConnector {
	return &SSHConnector{
		addr:           net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		user:           cfg.User,
		keyPath:        cfg.KeyPath,
		knownHostsPath: cfg.KnownHostsPath,
		timeout:        cfg.Timeout,
	}
}

// Connect dials and authenticates. The returned Shell must be closed.
func (c *SSHConnector) Connect(ctx context.Context) (Shell, error) {
	clientCfg, err := c.clientConfig()
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: c.timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", c.addr, err)
	}
	shell := &sshShell{conn: netConn, timeout: c.timeout}
	shell.extendDeadline()

	conn, chans, reqs, err := ssh.NewClientConn(netConn, c.addr, clientCfg)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", c.addr, err)
	}
	shell.client = ssh.NewClient(conn, chans, reqs)
	return shell, nil
}

func (c *SSHConnector) clientConfig() (*ssh.ClientConfig, error) {
	keyBytes, err := os.ReadFile(expandHome(c.keyPath))
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if c.knownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(expandHome(c.knownHostsPath))
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            c.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.timeout,
	}, nil
}

type sshShell struct {
	client  *ssh.Client
	conn    net.Conn
	timeout time.Duration
}

// extendDeadline bounds the next handshake or command by the timeout.
func (s *sshShell) extendDeadline() {
	if s.timeout > 0 {
		_ = s.conn.SetDeadline(time.Now().Add(s.timeout))
	}
}

func (s *sshShell) Run(cmd string) (string, error) {
	s.extendDeadline()
	session, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if err := session.Run(cmd); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return stdout.String(), fmt.Errorf("%q: %w: %s", cmd, err, msg)
		}
		return stdout.String(), fmt.Errorf("%q: %w", cmd, err)
	}
	return stdout.String(), nil
}

func (s *sshShell) Close() error {
	return s.client.Close()
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
