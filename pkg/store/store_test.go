package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/trialstream/pkg/ndarray"
	"github.com/vango-dev/trialstream/pkg/protocol"
)

var receivedAt = time.Date(2024, 3, 9, 14, 5, 7, 123456000, time.UTC)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"cursor_trace", "cursor_trace"},
		{"eye.left-x", "eye.left-x"},
		{"../etc/passwd", "_etc_passwd"},
		{"a b/c", "a_b_c"},
		{"..", "array"},
		{"", "array"},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := SanitizeName(tc.in); got != tc.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestArtifactPath(t *testing.T) {
	key := ArtifactKey{Name: "cursor_trace", Trial: 3, ReceivedAt: receivedAt}

	if got, want := ArtifactPath(key, 0), "cursor_trace/cursor_trace_trial3_20240309_140507_123456.npy"; got != want {
		t.Errorf("ArtifactPath() = %q, want %q", got, want)
	}
	if got, want := ArtifactPath(key, 2), "cursor_trace/cursor_trace_trial3_20240309_140507_123456_2.npy"; got != want {
		t.Errorf("ArtifactPath(attempt 2) = %q, want %q", got, want)
	}
}

func TestJSONLogConcurrentAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "events.jsonl")
	log, err := OpenJSONLog(path)
	if err != nil {
		t.Fatalf("OpenJSONLog() error = %v", err)
	}

	const writers, perWriter = 8, 50
	payload := strings.Repeat("x", 512)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := log.Append(map[string]any{"w": w, "i": i, "pad": payload}); err != nil {
					t.Errorf("Append() error = %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if got := log.Lines(); got != writers*perWriter {
		t.Errorf("Lines() = %d, want %d", got, writers*perWriter)
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 64*1024)
	n := 0
	for sc.Scan() {
		var obj map[string]any
		if err := json.Unmarshal(sc.Bytes(), &obj); err != nil {
			t.Fatalf("line %d is not JSON: %v", n, err)
		}
		n++
	}
	if n != writers*perWriter {
		t.Errorf("file has %d lines, want %d", n, writers*perWriter)
	}
}

func TestJSONLogClosed(t *testing.T) {
	log, err := OpenJSONLog(filepath.Join(t.TempDir(), "a.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	log.Close()
	if err := log.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := log.Append(1); err != ErrClosed {
		t.Errorf("Append after Close error = %v, want ErrClosed", err)
	}
}

func TestDiskStorePutRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	values := make([]float32, 100)
	for i := range values {
		values[i] = float32(i) * 0.5
	}
	arr, err := ndarray.FromSlice([]int{50, 2}, values)
	if err != nil {
		t.Fatal(err)
	}

	key := ArtifactKey{Name: "cursor_trace", Trial: 3, ReceivedAt: receivedAt}
	path, err := store.Put(context.Background(), key, arr)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if want := filepath.Join(store.Dir(), "cursor_trace", "cursor_trace_trial3_20240309_140507_123456.npy"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ndarray.DecodeNPY(data)
	if err != nil {
		t.Fatalf("DecodeNPY() error = %v", err)
	}
	gotValues, err := ndarray.Values[float32](got)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(got.Shape) != "[50 2]" || gotValues[99] != 49.5 {
		t.Errorf("reloaded shape %v last %v", got.Shape, gotValues[99])
	}
}

func TestDiskStoreCollisionSuffix(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	arr, _ := ndarray.FromSlice([]int{1}, []uint8{7})
	key := ArtifactKey{Name: "x", Trial: 1, ReceivedAt: receivedAt}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		path, err := store.Put(context.Background(), key, arr)
		if err != nil {
			t.Fatalf("Put() #%d error = %v", i, err)
		}
		if seen[path] {
			t.Fatalf("Put() #%d reused %s", i, path)
		}
		seen[path] = true
	}
	if !seen[filepath.Join(store.Dir(), "x", "x_trial1_20240309_140507_123456_2.npy")] {
		t.Errorf("expected _2 suffix among %v", seen)
	}
}

func TestRecorder(t *testing.T) {
	dir := t.TempDir()
	adder := &fakeAdder{}
	rec, err := NewRecorder(RecorderConfig{
		DataDir: dir,
		Mirror:  NewRedisMirror(adder, "", 0),
	})
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	ctx := context.Background()

	ev := protocol.NewEvent("PrepDM", map[string]any{"trial": 1})
	ev.TRecv = 4.5
	if err := rec.RecordEvent(ctx, ev); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}

	arr, _ := ndarray.FromSlice([]int{2}, []int16{1, 2})
	h := protocol.NewArrayHeader("force", 1, arr, nil)
	if err := rec.RecordHeader(ctx, h); err != nil {
		t.Fatalf("RecordHeader() error = %v", err)
	}
	loc, err := rec.RecordArray(ctx, h, arr, receivedAt)
	if err != nil {
		t.Fatalf("RecordArray() error = %v", err)
	}
	if !strings.HasPrefix(loc, filepath.Join(dir, "force")) {
		t.Errorf("location = %q, want under %s", loc, dir)
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	events := readLines(t, filepath.Join(dir, DefaultEventsFile))
	if len(events) != 1 || events[0]["event"] != "PrepDM" || events[0]["t_recv"] != 4.5 {
		t.Errorf("events = %v", events)
	}
	headers := readLines(t, filepath.Join(dir, DefaultHeadersFile))
	if len(headers) != 1 || headers[0]["name"] != "force" || headers[0]["dtype"] != "int16" {
		t.Errorf("headers = %v", headers)
	}

	kinds := adder.kinds()
	if strings.Join(kinds, ",") != "event,header,array" {
		t.Errorf("mirrored kinds = %v", kinds)
	}
}

func TestRecorderArrayNamedLikeRecordLog(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(RecorderConfig{DataDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()
	ctx := context.Background()

	arr, _ := ndarray.FromSlice([]int{3}, []float64{1, 2, 3})
	for _, name := range []string{DefaultEventsFile, DefaultHeadersFile} {
		h := protocol.NewArrayHeader(name, 1, arr, nil)
		loc, err := rec.RecordArray(ctx, h, arr, receivedAt)
		if err != nil {
			t.Fatalf("RecordArray(%q) error = %v", name, err)
		}
		if want := filepath.Join(dir, "_"+name) + string(filepath.Separator); !strings.HasPrefix(loc, want) {
			t.Errorf("location = %q, want under %s", loc, want)
		}
	}

	if err := rec.RecordEvent(ctx, protocol.NewEvent("ITI", nil)); err != nil {
		t.Fatalf("RecordEvent() after colliding arrays error = %v", err)
	}
	if fi, err := os.Stat(filepath.Join(dir, DefaultEventsFile)); err != nil || fi.IsDir() {
		t.Errorf("events log = %v, %v; want a regular file", fi, err)
	}
}

func TestRecorderMirrorFailureIsNotFatal(t *testing.T) {
	rec, err := NewRecorder(RecorderConfig{
		DataDir: t.TempDir(),
		Mirror:  NewRedisMirror(&fakeAdder{err: fmt.Errorf("connection refused")}, "s", 10),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()

	if err := rec.RecordEvent(context.Background(), protocol.NewEvent("ITI", nil)); err != nil {
		t.Errorf("RecordEvent() error = %v, mirror failures must not fail persistence", err)
	}
}

func TestNewRecorderRequiresDataDir(t *testing.T) {
	if _, err := NewRecorder(RecorderConfig{}); err == nil {
		t.Error("NewRecorder() with empty DataDir should fail")
	}
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			t.Fatalf("bad line %q: %v", line, err)
		}
		out = append(out, obj)
	}
	return out
}
