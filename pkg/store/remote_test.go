package store

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/redis/go-redis/v9"

	"github.com/vango-dev/trialstream/pkg/ndarray"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	inputs  []*s3.PutObjectInput
	err     error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	if _, ok := f.objects[key]; ok && aws.ToString(in.IfNoneMatch) == "*" {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "exists"}
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[key] = body
	f.inputs = append(f.inputs, in)
	return &s3.PutObjectOutput{}, nil
}

type fakeAdder struct {
	mu   sync.Mutex
	args []*redis.XAddArgs
	err  error
}

func (f *fakeAdder) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.args = append(f.args, a)
	return redis.NewStringResult("1-0", f.err)
}

func (f *fakeAdder) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, a := range f.args {
		out = append(out, a.Values.(map[string]any)["kind"].(string))
	}
	return out
}

func TestS3StorePut(t *testing.T) {
	client := &fakeS3{}
	store := NewS3Store(client, "lab", "/runs/")
	arr, _ := ndarray.FromSlice([]int{2, 2}, []float64{1, 2, 3, 4})
	key := ArtifactKey{Name: "cursor_trace", Trial: 3, ReceivedAt: receivedAt}

	loc, err := store.Put(context.Background(), key, arr)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	want := "s3://lab/runs/cursor_trace/cursor_trace_trial3_20240309_140507_123456.npy"
	if loc != want {
		t.Errorf("location = %q, want %q", loc, want)
	}

	body := client.objects["lab/runs/cursor_trace/cursor_trace_trial3_20240309_140507_123456.npy"]
	got, err := ndarray.DecodeNPY(body)
	if err != nil {
		t.Fatalf("uploaded body is not npy: %v", err)
	}
	if string(got.Data) != string(arr.Data) {
		t.Error("uploaded data differs")
	}
	in := client.inputs[0]
	if in.Metadata["trial"] != "3" || aws.ToInt64(in.ContentLength) != int64(len(body)) {
		t.Errorf("input metadata = %v, length %d", in.Metadata, aws.ToInt64(in.ContentLength))
	}

	loc2, err := store.Put(context.Background(), key, arr)
	if err != nil {
		t.Fatalf("second Put() error = %v", err)
	}
	if !strings.HasSuffix(loc2, "_1.npy") {
		t.Errorf("second location = %q, want collision suffix", loc2)
	}
}

func TestS3StorePutError(t *testing.T) {
	store := NewS3Store(&fakeS3{err: errors.New("access denied")}, "lab", "")
	arr, _ := ndarray.FromSlice([]int{1}, []uint8{1})

	_, err := store.Put(context.Background(), ArtifactKey{Name: "a", Trial: 1, ReceivedAt: receivedAt}, arr)
	if err == nil || !strings.Contains(err.Error(), "s3://lab/a/") {
		t.Errorf("Put() error = %v, want wrapped s3 error", err)
	}
}

func TestRedisMirrorPublish(t *testing.T) {
	adder := &fakeAdder{}
	m := NewRedisMirror(adder, "lab:stream", 1000)

	if err := m.Publish(context.Background(), "event", []byte(`{"event":"PrepDM"}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	a := adder.args[0]
	if a.Stream != "lab:stream" || a.MaxLen != 1000 || !a.Approx {
		t.Errorf("XAddArgs = %+v", a)
	}
	if a.Values.(map[string]any)["data"] != `{"event":"PrepDM"}` {
		t.Errorf("Values = %v", a.Values)
	}

	if NewRedisMirror(adder, "", 0).Stream() != "trialstream:records" {
		t.Error("default stream name not applied")
	}
}
