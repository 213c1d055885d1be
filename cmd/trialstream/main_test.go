package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/trialstream/internal/config"
	"github.com/vango-dev/trialstream/pkg/ndarray"
	"github.com/vango-dev/trialstream/pkg/server"
	"github.com/vango-dev/trialstream/pkg/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTaskTimeline(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	steps := taskTimeline(3, rng)

	want := []string{"PrepDM", "StartDM", "DecisionMade", "ITI"}
	if len(steps) != len(want) {
		t.Fatalf("len(steps) = %d, want %d", len(steps), len(want))
	}
	for i, st := range steps {
		if st.Name != want[i] {
			t.Errorf("step %d = %s, want %s", i, st.Name, want[i])
		}
		if st.Payload["trial"] != 3 {
			t.Errorf("%s trial = %v, want 3", st.Name, st.Payload["trial"])
		}
	}

	prep := steps[0].Payload["dur_PrepDM"].(float64)
	if prep < 1 || prep > 1.4 {
		t.Errorf("dur_PrepDM = %v, want within [1, 1.4]", prep)
	}
	if steps[0].Pause != seconds(prep) {
		t.Errorf("PrepDM pause = %v, want %v", steps[0].Pause, seconds(prep))
	}
	if c := steps[2].Payload["choice"].(int); c != 0 && c != 1 {
		t.Errorf("choice = %d", c)
	}
}

func TestCursorTrace(t *testing.T) {
	arr, err := cursorTrace(rand.New(rand.NewPCG(7, 7)))
	if err != nil {
		t.Fatal(err)
	}
	if !arr.DType.Equal(ndarray.Float32) || len(arr.Shape) != 2 || arr.Shape[0] != 50 || arr.Shape[1] != 2 {
		t.Errorf("trace = %s %v", arr.DType, arr.Shape)
	}
	if len(arr.Data) != 400 {
		t.Errorf("len(Data) = %d, want 400", len(arr.Data))
	}
}

func TestInspectFile(t *testing.T) {
	arr, err := ndarray.FromSlice([]int{2, 3}, []int16{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "grip.npy")
	if err := os.WriteFile(path, ndarray.EncodeNPY(arr), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := inspectFile(&out, path, 4); err != nil {
		t.Fatalf("inspectFile() error = %v", err)
	}
	got := out.String()
	for _, want := range []string{"dtype:  int16", "shape:  [2 3]", "bytes:  12", "values: [1 2 3 4 ...]"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestInspectFileErrors(t *testing.T) {
	dir := t.TempDir()
	if err := inspectFile(io.Discard, filepath.Join(dir, "nope.npy"), 4); err == nil {
		t.Error("missing file should fail")
	}
	bad := filepath.Join(dir, "bad.npy")
	os.WriteFile(bad, []byte("not numpy"), 0o644)
	if err := inspectFile(io.Discard, bad, 4); err == nil {
		t.Error("non-npy file should fail")
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := versionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Errorf("version --short = %q", out.String())
	}
}

func TestSendRejectsNonPositiveTrials(t *testing.T) {
	cmd := sendCmd()
	cmd.SetArgs([]string{"--trials", "0"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	if err := cmd.Execute(); err == nil {
		t.Error("--trials 0 should fail")
	}
}

func TestReplayAgainstServer(t *testing.T) {
	dataDir := t.TempDir()
	cfg := config.New()
	cfg.Storage.DataDir = dataDir

	recorder, err := newRecorder(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("newRecorder() error = %v", err)
	}
	defer recorder.Close()

	sc := cfg.ServerConfig()
	sc.HeartbeatInterval = 0
	srv, err := server.New(sc, recorder)
	if err != nil {
		t.Fatal(err)
	}
	srv.SetLogger(quietLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	opts := sendOptions{
		url:    "ws" + strings.TrimPrefix(ts.URL, "http") + sc.Route,
		trials: 2,
		arrays: true,
		fast:   true,
		seed:   42,
		wait:   300 * time.Millisecond,
	}
	res, err := replay(context.Background(), opts, quietLogger())
	if err != nil {
		t.Fatalf("replay() error = %v", err)
	}
	if res.Events != 8 || res.Arrays != 2 {
		t.Errorf("sent %d events, %d arrays; want 8, 2", res.Events, res.Arrays)
	}
	// 8 event acks, plus a header ack and an array ack per trace.
	if res.Acks != 12 || res.Errors != 0 {
		t.Errorf("acks = %d, errors = %d; want 12, 0", res.Acks, res.Errors)
	}

	matches, _ := filepath.Glob(filepath.Join(dataDir, "cursor_trace", "cursor_trace_trial*.npy"))
	if len(matches) != 2 {
		t.Errorf("stored traces = %v, want 2 files", matches)
	}
	data, err := os.ReadFile(filepath.Join(dataDir, store.DefaultEventsFile))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "\n"); n != 8 {
		t.Errorf("control events logged = %d, want 8", n)
	}
}

func TestReplayDialFailure(t *testing.T) {
	opts := sendOptions{url: "ws://127.0.0.1:1/trials", trials: 1, fast: true}
	if _, err := replay(context.Background(), opts, quietLogger()); err == nil {
		t.Error("replay() against a closed port should fail")
	}
}
