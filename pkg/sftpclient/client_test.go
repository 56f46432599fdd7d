package sftpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creadable/ingestor/pkg/config"
	"github.com/creadable/ingestor/pkg/ingesterrors"
	"github.com/creadable/ingestor/pkg/metrics"
	"github.com/creadable/ingestor/pkg/retry"
	"github.com/creadable/ingestor/pkg/testutil"
)

type fakeFileInfo struct {
	name string
	dir  bool
}

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return 0 }
func (f fakeFileInfo) Mode() os.FileMode  { return 0 }
func (f fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (f fakeFileInfo) IsDir() bool        { return f.dir }
func (f fakeFileInfo) Sys() any           { return nil }

type fakeSession struct {
	entries     []os.FileInfo
	files       map[string]string // remote path -> content
	uploads     map[string]*bytes.Buffer
	readDirErr  error
	readDirErrs int // fail this many calls before succeeding
	openErrs    int
	opens       int
	closed      bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		files:   make(map[string]string),
		uploads: make(map[string]*bytes.Buffer),
	}
}

func (s *fakeSession) ReadDir(string) ([]os.FileInfo, error) {
	if s.readDirErrs > 0 {
		s.readDirErrs--
		return nil, errors.New("broken pipe")
	}
	if s.readDirErr != nil {
		return nil, s.readDirErr
	}
	return s.entries, nil
}

func (s *fakeSession) Open(path string) (io.ReadCloser, error) {
	s.opens++
	if s.openErrs > 0 {
		s.openErrs--
		return nil, errors.New("connection reset")
	}
	content, ok := s.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader([]byte(content))), nil
}

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

func (s *fakeSession) Create(path string) (io.WriteCloser, error) {
	buf := &bytes.Buffer{}
	s.uploads[path] = buf
	return nopWriteCloser{buf}, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func fastPolicy() *retry.Policy {
	return &retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2.0}
}

func testConfig() config.SFTPConfig {
	return config.SFTPConfig{
		Host:         "sftp.example.com",
		Port:         22,
		Username:     "ingest",
		Password:     "secret",
		RemoteFolder: "exports",
	}
}

func newTestClient(t *testing.T, dial Dialer) *Client {
	return NewWithDialer(testConfig(), dial, fastPolicy(), testutil.TestLogger(t))
}

func TestConnectSucceedsAfterTransientFailures(t *testing.T) {
	// Two failed attempts then success: the run proceeds normally with no
	// fatal error.
	session := newFakeSession()
	attempts := 0
	client := newTestClient(t, func(config.SFTPConfig) (Session, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return session, nil
	})

	require.NoError(t, client.Connect(context.Background()))
	assert.Equal(t, 3, attempts)
	assert.True(t, client.Connected())
}

func TestConnectExhaustsRetries(t *testing.T) {
	attempts := 0
	client := newTestClient(t, func(config.SFTPConfig) (Session, error) {
		attempts++
		return nil, errors.New("connection refused")
	})

	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, ingesterrors.IsType(err, ingesterrors.ErrorTypeConnection))
	assert.False(t, client.Connected())
}

func TestConnectWhenConnectedReconnects(t *testing.T) {
	first := newFakeSession()
	second := newFakeSession()
	sessions := []*fakeSession{first, second}
	dials := 0
	client := newTestClient(t, func(config.SFTPConfig) (Session, error) {
		s := sessions[dials]
		dials++
		return s, nil
	})

	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Connect(context.Background()))

	assert.Equal(t, 2, dials)
	assert.True(t, first.closed)
	assert.False(t, second.closed)
}

func TestListReturnsSortedFileNames(t *testing.T) {
	session := newFakeSession()
	session.entries = []os.FileInfo{
		fakeFileInfo{name: "zeta.csv"},
		fakeFileInfo{name: "alpha.json"},
		fakeFileInfo{name: "archive", dir: true},
	}
	client := newTestClient(t, func(config.SFTPConfig) (Session, error) { return session, nil })

	require.NoError(t, client.Connect(context.Background()))
	names, err := client.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.json", "zeta.csv"}, names)
}

func TestListRetriesTransientFailures(t *testing.T) {
	session := newFakeSession()
	session.readDirErrs = 2
	session.entries = []os.FileInfo{fakeFileInfo{name: "a.csv"}}
	client := newTestClient(t, func(config.SFTPConfig) (Session, error) { return session, nil })

	require.NoError(t, client.Connect(context.Background()))
	names, err := client.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv"}, names)
}

func TestListFailsAfterExhaustion(t *testing.T) {
	session := newFakeSession()
	session.readDirErr = errors.New("session torn down")
	client := newTestClient(t, func(config.SFTPConfig) (Session, error) { return session, nil })

	require.NoError(t, client.Connect(context.Background()))
	_, err := client.List(context.Background())
	require.Error(t, err)
	assert.True(t, ingesterrors.IsType(err, ingesterrors.ErrorTypeConnection))
}

func TestListRequiresConnection(t *testing.T) {
	client := newTestClient(t, func(config.SFTPConfig) (Session, error) { return nil, errors.New("unused") })

	_, err := client.List(context.Background())
	require.Error(t, err)
	assert.True(t, ingesterrors.IsType(err, ingesterrors.ErrorTypeConnection))
}

func TestDownloadWritesLocalFile(t *testing.T) {
	session := newFakeSession()
	session.files["exports/customers.csv"] = "index,customer_id\n1,ABC\n"
	client := newTestClient(t, func(config.SFTPConfig) (Session, error) { return session, nil })

	require.NoError(t, client.Connect(context.Background()))

	localPath := filepath.Join(t.TempDir(), "customers.csv")
	require.NoError(t, client.Download(context.Background(), "customers.csv", localPath))

	data, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, "index,customer_id\n1,ABC\n", string(data))
}

func TestDownloadRetriesTransientFailures(t *testing.T) {
	session := newFakeSession()
	session.openErrs = 2
	session.files["exports/customers.csv"] = "data"
	client := newTestClient(t, func(config.SFTPConfig) (Session, error) { return session, nil })

	require.NoError(t, client.Connect(context.Background()))

	localPath := filepath.Join(t.TempDir(), "customers.csv")
	require.NoError(t, client.Download(context.Background(), "customers.csv", localPath))
}

func TestDownloadLocalDiskFailureIsNotRetried(t *testing.T) {
	// The local path points at a directory, so os.Create fails
	// deterministically. That must not burn retry attempts.
	session := newFakeSession()
	session.files["exports/customers.csv"] = "data"
	client := newTestClient(t, func(config.SFTPConfig) (Session, error) { return session, nil })

	require.NoError(t, client.Connect(context.Background()))

	err := client.Download(context.Background(), "customers.csv", t.TempDir())
	require.Error(t, err)
	assert.True(t, ingesterrors.IsType(err, ingesterrors.ErrorTypeInternal))
	assert.False(t, ingesterrors.IsRetryable(err))
	assert.Equal(t, 1, session.opens)
}

func TestConnectCountsRetryAttempts(t *testing.T) {
	before := promtestutil.ToFloat64(metrics.RetryAttempts.WithLabelValues("connect"))

	attempts := 0
	client := newTestClient(t, func(config.SFTPConfig) (Session, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return newFakeSession(), nil
	})

	require.NoError(t, client.Connect(context.Background()))

	after := promtestutil.ToFloat64(metrics.RetryAttempts.WithLabelValues("connect"))
	assert.Equal(t, float64(3), after-before)
}

func TestDownloadMissingRemoteFile(t *testing.T) {
	session := newFakeSession()
	client := newTestClient(t, func(config.SFTPConfig) (Session, error) { return session, nil })

	require.NoError(t, client.Connect(context.Background()))

	localPath := filepath.Join(t.TempDir(), "missing.csv")
	err := client.Download(context.Background(), "missing.csv", localPath)
	require.Error(t, err)
	assert.True(t, ingesterrors.IsType(err, ingesterrors.ErrorTypeTransfer))
}

func TestUploadWritesRemoteFile(t *testing.T) {
	session := newFakeSession()
	client := newTestClient(t, func(config.SFTPConfig) (Session, error) { return session, nil })

	require.NoError(t, client.Connect(context.Background()))

	localPath := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(localPath, []byte("payload"), 0o644))

	require.NoError(t, client.Upload(context.Background(), localPath, "out.csv"))
	require.Contains(t, session.uploads, "exports/out.csv")
	assert.Equal(t, "payload", session.uploads["exports/out.csv"].String())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	session := newFakeSession()
	client := newTestClient(t, func(config.SFTPConfig) (Session, error) { return session, nil })

	// Safe when never connected.
	client.Disconnect()

	require.NoError(t, client.Connect(context.Background()))
	client.Disconnect()
	assert.True(t, session.closed)
	assert.False(t, client.Connected())

	// Safe when already disconnected.
	client.Disconnect()
}
