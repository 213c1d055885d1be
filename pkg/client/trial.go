package client

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/vango-dev/trialstream/pkg/protocol"
)

// RowOptions selects the columns of a trial-table row sent as an event payload.
type RowOptions struct {
	// Include keeps only these columns. Empty keeps all.
	Include []string
	// Exclude drops these columns.
	Exclude []string
	// DropNulls omits columns whose value is null after normalization.
	DropNulls bool
}

// TrialPayload converts one trial-table row into a JSON-safe event payload.
// Values are normalized (NaN becomes null) and a "trial" column holding an
// integral number or numeric string is coerced to int.
func TrialPayload(row map[string]any, opts RowOptions) map[string]any {
	include := toSet(opts.Include)
	exclude := toSet(opts.Exclude)

	payload := make(map[string]any, len(row))
	for col, v := range row {
		if include != nil && !include[col] {
			continue
		}
		if exclude[col] {
			continue
		}
		val := protocol.Normalize(v)
		if val == nil && opts.DropNulls {
			continue
		}
		payload[col] = val
	}

	if t, ok := payload["trial"]; ok && t != nil {
		if n, ok := trialInt(t); ok {
			payload["trial"] = n
		}
	}
	return payload
}

func toSet(keys []string) map[string]bool {
	if len(keys) == 0 {
		return nil
	}
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

func trialInt(v any) (int, bool) {
	switch x := v.(type) {
	case int64:
		return int(x), true
	case uint64:
		if x > math.MaxInt {
			return 0, false
		}
		return int(x), true
	case float64:
		if x != math.Trunc(x) || math.Abs(x) > 1<<53 {
			return 0, false
		}
		return int(x), true
	case json.Number:
		return trialInt(x.String())
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return trialInt(f)
		}
	}
	return 0, false
}
