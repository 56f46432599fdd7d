// Package sftpclient owns the remote-endpoint session: connect, list,
// download, upload, disconnect. Every network operation runs under the
// injected retry policy; after exhaustion the final error propagates to
// the caller, which treats it as run-fatal.
package sftpclient

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/creadable/ingestor/pkg/config"
	"github.com/creadable/ingestor/pkg/ingesterrors"
	"github.com/creadable/ingestor/pkg/metrics"
	"github.com/creadable/ingestor/pkg/retry"
)

// Session is the subset of an SFTP session the client uses. The production
// implementation wraps an ssh transport with an sftp subsystem; tests
// substitute a fake.
type Session interface {
	ReadDir(path string) ([]os.FileInfo, error)
	Open(path string) (io.ReadCloser, error)
	Create(path string) (io.WriteCloser, error)
	Close() error
}

// Dialer establishes a new session against the remote endpoint.
type Dialer func(cfg config.SFTPConfig) (Session, error)

// Client manages the remote file-transfer session. It moves between
// disconnected and connected states; all operations besides Disconnect
// require a connected session.
type Client struct {
	cfg     config.SFTPConfig
	dial    Dialer
	policy  *retry.Policy
	logger  *zap.Logger
	session Session
}

// New creates a client for the configured endpoint. The retry policy wraps
// connect, list, download and upload; these are the only operations subject
// to external-network nondeterminism.
func New(cfg config.SFTPConfig, policy *retry.Policy, logger *zap.Logger) *Client {
	return &Client{
		cfg:    cfg,
		dial:   dialSFTP,
		policy: policy,
		logger: logger,
	}
}

// NewWithDialer creates a client with a custom dialer. Used by tests.
func NewWithDialer(cfg config.SFTPConfig, dial Dialer, policy *retry.Policy, logger *zap.Logger) *Client {
	client := New(cfg, policy, logger)
	client.dial = dial
	return client
}

// Connect establishes the session. Calling Connect on an already-connected
// client reconnects: the old session is released first.
func (c *Client) Connect(ctx context.Context) error {
	return c.policy.ExecuteIf(ctx, func() error {
		metrics.RetryAttempts.WithLabelValues("connect").Inc()
		if c.session != nil {
			_ = c.session.Close()
			c.session = nil
		}

		session, err := c.dial(c.cfg)
		if err != nil {
			return ingesterrors.Wrap(err, ingesterrors.ErrorTypeConnection, "sftp connect failed").
				WithDetail("host", c.cfg.Host).
				WithDetail("port", c.cfg.Port)
		}

		c.session = session
		c.logger.Info("sftp connected", zap.String("host", c.cfg.Host))
		return nil
	}, ingesterrors.IsRetryable)
}

// List returns the sorted file names visible at the remote folder.
// Directories are excluded.
func (c *Client) List(ctx context.Context) ([]string, error) {
	var names []string
	err := c.policy.ExecuteIf(ctx, func() error {
		metrics.RetryAttempts.WithLabelValues("list").Inc()
		if c.session == nil {
			return ingesterrors.New(ingesterrors.ErrorTypeConnection, "not connected")
		}

		entries, err := c.session.ReadDir(c.cfg.RemoteFolder)
		if err != nil {
			return ingesterrors.Wrap(err, ingesterrors.ErrorTypeConnection, "sftp listing failed").
				WithDetail("folder", c.cfg.RemoteFolder)
		}

		names = names[:0]
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			names = append(names, entry.Name())
		}
		sort.Strings(names)
		return nil
	}, ingesterrors.IsRetryable)
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Download transfers one remote file to local storage.
func (c *Client) Download(ctx context.Context, remoteName, localPath string) error {
	return c.policy.ExecuteIf(ctx, func() error {
		metrics.RetryAttempts.WithLabelValues("download").Inc()
		if c.session == nil {
			return ingesterrors.New(ingesterrors.ErrorTypeConnection, "not connected")
		}

		remote, err := c.session.Open(path.Join(c.cfg.RemoteFolder, remoteName))
		if err != nil {
			return transferErr(err, "failed to open remote file", remoteName)
		}
		defer remote.Close()

		local, err := os.Create(localPath) //nolint:gosec // G304: path derives from config
		if err != nil {
			return localErr(err, "failed to create local file", remoteName)
		}

		if _, err := io.Copy(local, remote); err != nil {
			local.Close()
			os.Remove(localPath)
			return transferErr(err, "download interrupted", remoteName)
		}
		if err := local.Close(); err != nil {
			return localErr(err, "failed to finalize local file", remoteName)
		}

		c.logger.Info("file downloaded",
			zap.String("remote_file", remoteName),
			zap.String("local_path", localPath))
		return nil
	}, ingesterrors.IsRetryable)
}

// Upload transfers one local file to the remote folder, the inverse of
// Download with the same retry and failure contract.
func (c *Client) Upload(ctx context.Context, localPath, remoteName string) error {
	return c.policy.ExecuteIf(ctx, func() error {
		metrics.RetryAttempts.WithLabelValues("upload").Inc()
		if c.session == nil {
			return ingesterrors.New(ingesterrors.ErrorTypeConnection, "not connected")
		}

		local, err := os.Open(localPath) //nolint:gosec // G304: path derives from config
		if err != nil {
			return localErr(err, "failed to open local file", remoteName)
		}
		defer local.Close()

		remote, err := c.session.Create(path.Join(c.cfg.RemoteFolder, remoteName))
		if err != nil {
			return transferErr(err, "failed to create remote file", remoteName)
		}

		if _, err := io.Copy(remote, local); err != nil {
			remote.Close()
			return transferErr(err, "upload interrupted", remoteName)
		}
		if err := remote.Close(); err != nil {
			return transferErr(err, "failed to finalize remote file", remoteName)
		}

		c.logger.Info("file uploaded",
			zap.String("local_path", localPath),
			zap.String("remote_file", remoteName))
		return nil
	}, ingesterrors.IsRetryable)
}

// Disconnect releases the session. Safe to call when already disconnected.
func (c *Client) Disconnect() {
	if c.session == nil {
		return
	}
	if err := c.session.Close(); err != nil {
		c.logger.Warn("sftp close failed", zap.Error(err))
	}
	c.session = nil
	c.logger.Info("sftp disconnected")
}

// Connected reports whether a session is currently held.
func (c *Client) Connected() bool {
	return c.session != nil
}

func transferErr(err error, message, remoteName string) error {
	return ingesterrors.Wrap(err, ingesterrors.ErrorTypeTransfer, message).
		WithDetail("remote_file", remoteName)
}

// localErr classifies local-disk failures. A bad path or full disk is
// deterministic, so these are internal errors and never retried.
func localErr(err error, message, remoteName string) error {
	return ingesterrors.Wrap(err, ingesterrors.ErrorTypeInternal, message).
		WithDetail("remote_file", remoteName)
}

// sshSession adapts an ssh transport with an sftp subsystem to Session.
type sshSession struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

func (s *sshSession) ReadDir(dir string) ([]os.FileInfo, error) {
	return s.sftp.ReadDir(dir)
}

func (s *sshSession) Open(p string) (io.ReadCloser, error) {
	return s.sftp.Open(p)
}

func (s *sshSession) Create(p string) (io.WriteCloser, error) {
	return s.sftp.Create(p)
}

func (s *sshSession) Close() error {
	sftpErr := s.sftp.Close()
	sshErr := s.ssh.Close()
	if sftpErr != nil {
		return sftpErr
	}
	return sshErr
}

// dialSFTP establishes a password-authenticated ssh connection and opens
// the sftp subsystem over it.
func dialSFTP(cfg config.SFTPConfig) (Session, error) {
	sshCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // endpoint is operator-controlled
		Timeout:         10 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	sshClient, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("sftp subsystem: %w", err)
	}

	return &sshSession{ssh: sshClient, sftp: sftpClient}, nil
}
