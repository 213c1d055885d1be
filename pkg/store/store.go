package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vango-dev/trialstream/pkg/ndarray"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("store: closed")

// ErrNameExhausted is returned when no free artifact name could be found.
var ErrNameExhausted = errors.New("store: artifact name collisions exhausted")

// maxCollisions bounds the numeric suffixes tried for one artifact name.
const maxCollisions = 1000

// ArtifactKey identifies an array artifact.
type ArtifactKey struct {
	Name       string
	Trial      int
	ReceivedAt time.Time
}

// ArtifactStore persists reconstructed arrays.
type ArtifactStore interface {
	// Put stores arr under a name derived from key and returns its location.
	// An existing artifact is never overwritten.
	Put(ctx context.Context, key ArtifactKey, arr *ndarray.Array) (string, error)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName makes an array name safe to use as a directory and file name.
func SanitizeName(name string) string {
	s := unsafeName.ReplaceAllString(name, "_")
	s = strings.Trim(s, ".")
	if s == "" {
		return "array"
	}
	return s
}

// ArtifactPath returns the relative path of an artifact. A positive attempt
// adds a collision suffix before the extension.
func ArtifactPath(key ArtifactKey, attempt int) string {
	name := SanitizeName(key.Name)
	t := key.ReceivedAt
	if t.IsZero() {
		t = time.Now()
	}
	base := fmt.Sprintf("%s_trial%d_%s_%06d", name, key.Trial, t.Format("20060102_150405"), t.Nanosecond()/1000)
	if attempt > 0 {
		base += "_" + strconv.Itoa(attempt)
	}
	return name + "/" + base + ".npy"
}
