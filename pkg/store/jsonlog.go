package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLog is an append-only file of JSON lines.
type JSONLog struct {
	path string

	mu     sync.Mutex
	f      *os.File
	lines  int64
	closed bool
}

// OpenJSONLog opens path for appending, creating it and its directory.
func OpenJSONLog(path string) (*JSONLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &JSONLog{path: path, f: f}, nil
}

// Path returns the file path.
func (l *JSONLog) Path() string {
	return l.path
}

func jsonLine(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Append encodes v as one line and writes it with a single write call.
// It returns the encoded line without the trailing newline.
func (l *JSONLog) Append(v any) ([]byte, error) {
	line, err := jsonLine(v)
	if err != nil {
		return nil, fmt.Errorf("store: encode %s: %w", filepath.Base(l.path), err)
	}
	buf := make([]byte, len(line)+1)
	copy(buf, line)
	buf[len(line)] = '\n'

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if _, err := l.f.Write(buf); err != nil {
		return nil, fmt.Errorf("store: append %s: %w", filepath.Base(l.path), err)
	}
	l.lines++
	return line, nil
}

// Lines returns the number of lines appended since open.
func (l *JSONLog) Lines() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lines
}

// Sync flushes the file to stable storage.
func (l *JSONLog) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return l.f.Sync()
}

// Close closes the file. Further appends return ErrClosed.
func (l *JSONLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.f.Close()
}
