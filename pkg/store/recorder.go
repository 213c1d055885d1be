package store

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/vango-dev/trialstream/pkg/ndarray"
	"github.com/vango-dev/trialstream/pkg/protocol"
)

// Default file names inside the data directory.
const (
	DefaultEventsFile  = "control_events.jsonl"
	DefaultHeadersFile = "array_headers.jsonl"
)

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// DataDir holds the JSONL files. Required.
	DataDir string

	// EventsFile and HeadersFile default to DefaultEventsFile and DefaultHeadersFile.
	EventsFile  string
	HeadersFile string

	// Artifacts stores arrays. Default: a DiskStore rooted at DataDir.
	Artifacts ArtifactStore

	// Mirror, if set, receives a copy of every persisted record.
	Mirror *RedisMirror

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Recorder persists control events, array headers and array artifacts.
// It is safe for concurrent use by many sessions.
type Recorder struct {
	events    *JSONLog
	headers   *JSONLog
	artifacts ArtifactStore
	mirror    *RedisMirror
	dataDir   string
	logger    *slog.Logger
}

// arrayRecord is the mirror payload for a stored artifact.
type arrayRecord struct {
	Name     string `json:"name"`
	Trial    int    `json:"trial"`
	DType    string `json:"dtype"`
	Shape    []int  `json:"shape"`
	Location string `json:"location"`
}

// NewRecorder opens the JSONL files under cfg.DataDir.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.DataDir == "" {
		return nil, errors.New("store: data dir is required")
	}
	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	if cfg.EventsFile == "" {
		cfg.EventsFile = DefaultEventsFile
	}
	if cfg.HeadersFile == "" {
		cfg.HeadersFile = DefaultHeadersFile
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Artifacts == nil {
		disk, err := NewDiskStore(dataDir, cfg.EventsFile, cfg.HeadersFile)
		if err != nil {
			return nil, err
		}
		cfg.Artifacts = disk
	}

	events, err := OpenJSONLog(filepath.Join(dataDir, cfg.EventsFile))
	if err != nil {
		return nil, err
	}
	headers, err := OpenJSONLog(filepath.Join(dataDir, cfg.HeadersFile))
	if err != nil {
		events.Close()
		return nil, err
	}

	return &Recorder{
		events:    events,
		headers:   headers,
		artifacts: cfg.Artifacts,
		mirror:    cfg.Mirror,
		dataDir:   dataDir,
		logger:    cfg.Logger.With("component", "recorder"),
	}, nil
}

// DataDir returns the absolute data directory.
func (r *Recorder) DataDir() string {
	return r.dataDir
}

// RecordEvent appends a control event line.
func (r *Recorder) RecordEvent(ctx context.Context, ev *protocol.Event) error {
	line, err := r.events.Append(ev)
	if err != nil {
		return err
	}
	r.publish(ctx, "event", line)
	return nil
}

// RecordHeader appends an array header line.
func (r *Recorder) RecordHeader(ctx context.Context, h *protocol.ArrayHeader) error {
	line, err := r.headers.Append(h)
	if err != nil {
		return err
	}
	r.publish(ctx, "header", line)
	return nil
}

// RecordArray stores arr as an artifact and returns its location.
func (r *Recorder) RecordArray(ctx context.Context, h *protocol.ArrayHeader, arr *ndarray.Array, receivedAt time.Time) (string, error) {
	loc, err := r.artifacts.Put(ctx, ArtifactKey{Name: h.Name, Trial: h.Trial, ReceivedAt: receivedAt}, arr)
	if err != nil {
		return "", err
	}
	if r.mirror != nil {
		rec := arrayRecord{Name: h.Name, Trial: h.Trial, DType: arr.DType.Descr(), Shape: arr.Shape, Location: loc}
		if line, err := jsonLine(rec); err == nil {
			r.publish(ctx, "array", line)
		}
	}
	return loc, nil
}

func (r *Recorder) publish(ctx context.Context, kind string, line []byte) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.Publish(ctx, kind, line); err != nil {
		r.logger.Warn("mirror publish failed", "kind", kind, "error", err)
	}
}

// Close closes both JSONL files.
func (r *Recorder) Close() error {
	return errors.Join(r.events.Close(), r.headers.Close())
}
