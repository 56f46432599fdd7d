// Package pipeline sequences one ingestion run: connect to the remote
// endpoint, enumerate or select remote files, download each, then parse,
// normalize, save and load each downloaded file.
//
// Failure handling follows two tiers. Connection-level failures (connect,
// list, download) are run-fatal: the run aborts, is reported once through
// the alert sink, and no files are processed. Per-file failures (parse,
// transform, save, load) are isolated: the failure is reported and the run
// continues with the next file. Terminal outcomes are explicit result
// values, not error returns.
package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/creadable/ingestor/pkg/alert"
	"github.com/creadable/ingestor/pkg/metrics"
	"github.com/creadable/ingestor/pkg/models"
	"github.com/creadable/ingestor/pkg/parser"
)

// Status is the terminal outcome of one run.
type Status string

const (
	// StatusComplete means every downloaded file loaded successfully.
	StatusComplete Status = "complete"
	// StatusPartial means the run finished but some files were skipped or
	// failed. Partial success is a valid terminal outcome, reported as
	// informational, not as run failure.
	StatusPartial Status = "partial"
	// StatusFailed means the run aborted before processing any file.
	StatusFailed Status = "failed"
)

// FileStatus is the per-file outcome within a run.
type FileStatus string

const (
	// FileLoaded means the file was parsed, normalized and loaded.
	FileLoaded FileStatus = "loaded"
	// FileSkipped means the file's format is not supported.
	FileSkipped FileStatus = "skipped"
	// FileFailed means the file hit a parse, transform, save or load failure.
	FileFailed FileStatus = "failed"
)

// FileResult is the explicit outcome of processing one file.
type FileResult struct {
	Name          string
	Status        FileStatus
	RecordsLoaded int64
	Err           error
}

// Result aggregates one run's outcome.
type Result struct {
	Status Status
	Files  []FileResult
	Err    error // set only for run-fatal failures
}

// RemoteClient is the connection manager the pipeline drives.
type RemoteClient interface {
	Connect(ctx context.Context) error
	List(ctx context.Context) ([]string, error)
	Download(ctx context.Context, remoteName, localPath string) error
	Disconnect()
}

// BatchLoader persists normalized batches.
type BatchLoader interface {
	Load(ctx context.Context, batch *models.Batch) (int64, error)
}

// CopyWriter saves the transformed copy of a batch.
type CopyWriter interface {
	Write(batch *models.Batch, format parser.Format) (string, error)
}

// Transformer normalizes one file's raw records into a batch.
type Transformer interface {
	Transform(records []models.RawRecord, sourceFile string) (*models.Batch, error)
}

// Pipeline orchestrates a single sequential run. One connection, one file
// at a time, one normalize-then-load step at a time.
type Pipeline struct {
	client      RemoteClient
	transformer Transformer
	loader      BatchLoader
	writer      CopyWriter
	sink        alert.Sink
	logger      *zap.Logger
	downloadDir string
}

// New assembles a pipeline. All collaborators are required and injected
// once at construction.
func New(client RemoteClient, transformer Transformer, loader BatchLoader, writer CopyWriter, sink alert.Sink, logger *zap.Logger, downloadDir string) *Pipeline {
	return &Pipeline{
		client:      client,
		transformer: transformer,
		loader:      loader,
		writer:      writer,
		sink:        sink,
		logger:      logger,
		downloadDir: downloadDir,
	}
}

// Run executes one ingestion run. When filename is non-empty the run is
// scoped to that single remote file instead of the full remote listing.
//
// On a listing or download failure after some files were already fetched,
// the fetched files are not processed; the run aborts as a whole.
func (p *Pipeline) Run(ctx context.Context, filename string) *Result {
	p.logger.Info("ingestion started", zap.String("filter", filename))

	if err := os.MkdirAll(p.downloadDir, 0o755); err != nil {
		return p.fatal("download_dir_unavailable", err)
	}

	if err := p.client.Connect(ctx); err != nil {
		return p.fatal("sftp_connect_failed", err)
	}
	defer p.client.Disconnect()

	files := []string{filename}
	if filename == "" {
		var err error
		files, err = p.client.List(ctx)
		if err != nil {
			return p.fatal("sftp_listing_failed", err)
		}
	}

	downloaded := make([]string, 0, len(files))
	for _, name := range files {
		localPath := filepath.Join(p.downloadDir, name)
		if err := p.client.Download(ctx, name, localPath); err != nil {
			return p.fatal("file_download_failed", err, zap.String("file", name))
		}
		downloaded = append(downloaded, name)
	}

	// The remote session is only needed for transfer; release it before
	// the local processing stage.
	p.client.Disconnect()

	result := &Result{Status: StatusComplete}
	for _, name := range downloaded {
		fr := p.processFile(ctx, name)
		result.Files = append(result.Files, fr)
		metrics.FilesProcessed.WithLabelValues(string(fr.Status)).Inc()
		if fr.Status == FileFailed {
			result.Status = StatusPartial
		}
	}

	metrics.RunsCompleted.WithLabelValues(string(result.Status)).Inc()
	p.logger.Info("ingestion completed",
		zap.String("status", string(result.Status)),
		zap.Int("files", len(result.Files)))
	return result
}

// processFile runs parse, transform, save and load for one downloaded file.
// Every failure here is file-fatal only: reported through the sink, and the
// run proceeds to the next file.
func (p *Pipeline) processFile(ctx context.Context, name string) FileResult {
	format := parser.DetectFormat(name)
	if format == parser.FormatUnknown {
		p.logger.Warn("unsupported file skipped", zap.String("file", name))
		return FileResult{Name: name, Status: FileSkipped}
	}

	data, err := os.ReadFile(filepath.Join(p.downloadDir, name)) //nolint:gosec // G304: path derives from config
	if err != nil {
		return p.fileFailed(name, "downloaded_file_unreadable", err)
	}

	records, err := parser.Parse(data, format)
	if err != nil {
		return p.fileFailed(name, "file_parse_error", err)
	}
	p.logger.Info("file parsed", zap.String("file", name), zap.Int("records", len(records)))

	batch, err := p.transformer.Transform(records, name)
	if err != nil {
		return p.fileFailed(name, "transform_failed", err)
	}
	metrics.RecordsDropped.Add(float64(len(records) - batch.Size()))

	if _, err := p.writer.Write(batch, format); err != nil {
		return p.fileFailed(name, "transformed_file_save_failed", err)
	}

	loaded, err := p.loader.Load(ctx, batch)
	if err != nil {
		return p.fileFailed(name, "load_failed", err)
	}
	metrics.RecordsLoaded.Add(float64(loaded))

	return FileResult{Name: name, Status: FileLoaded, RecordsLoaded: loaded}
}

func (p *Pipeline) fileFailed(name, event string, err error) FileResult {
	p.sink.Alert(event, zap.String("file", name), zap.Error(err))
	return FileResult{Name: name, Status: FileFailed, Err: err}
}

func (p *Pipeline) fatal(event string, err error, fields ...zap.Field) *Result {
	p.sink.Alert(event, append(fields, zap.Error(err))...)
	metrics.RunsCompleted.WithLabelValues(string(StatusFailed)).Inc()
	return &Result{Status: StatusFailed, Err: err}
}
