package protocol

import (
	"encoding/json"
	"math"

	"github.com/vango-dev/trialstream/pkg/ndarray"
)

// requiredHeaderKeys lists the keys an array header must carry, in report order.
var requiredHeaderKeys = []string{"name", "trial", "dtype", "shape"}

// ArrayHeader announces the binary frame that follows it.
type ArrayHeader struct {
	Event string         `json:"event"`
	Proto string         `json:"proto,omitempty"`
	Name  string         `json:"name"`
	Trial int            `json:"trial"`
	DType string         `json:"dtype"`
	Shape []int          `json:"shape"`
	Order string         `json:"order,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	TSend float64        `json:"t_send,omitempty"`
	TRecv float64        `json:"t_recv,omitempty"`

	dtype ndarray.DType
	order ndarray.Order
}

// NewArrayHeader describes arr as a row-major header. Column-major arrays
// must be converted with RowMajor before their bytes are sent.
func NewArrayHeader(name string, trial int, arr *ndarray.Array, meta map[string]any) *ArrayHeader {
	return &ArrayHeader{
		Event: EventArrayHeader,
		Proto: DefaultProto,
		Name:  name,
		Trial: trial,
		DType: arr.DType.String(),
		Shape: append([]int(nil), arr.Shape...),
		Order: string(ndarray.RowMajor),
		Meta:  meta,
		dtype: arr.DType,
		order: ndarray.RowMajor,
	}
}

// Validate checks dtype, shape and order and caches their parsed forms.
func (h *ArrayHeader) Validate() error {
	dt, err := ndarray.ParseDType(h.DType)
	if err != nil {
		return &InvalidHeaderError{Field: "dtype", Err: err}
	}
	if _, err := ndarray.NumElements(h.Shape); err != nil {
		return &InvalidHeaderError{Field: "shape", Err: err}
	}
	order, err := ndarray.ParseOrder(h.Order)
	if err != nil {
		return &InvalidHeaderError{Field: "order", Err: err}
	}
	h.dtype = dt
	h.order = order
	return nil
}

// ElementType returns the parsed dtype. Valid after Validate or DecodeText.
func (h *ArrayHeader) ElementType() ndarray.DType {
	return h.dtype
}

// MemoryOrder returns the parsed order. Valid after Validate or DecodeText.
func (h *ArrayHeader) MemoryOrder() ndarray.Order {
	if h.order == "" {
		return ndarray.RowMajor
	}
	return h.order
}

// ByteLen returns the payload length the header announces.
func (h *ArrayHeader) ByteLen() (int, error) {
	return ndarray.ByteLen(h.dtype, h.Shape)
}

// Array reconstructs the announced array from a binary payload. A payload
// whose length disagrees with shape and dtype yields *ndarray.ShapeError.
func (h *ArrayHeader) Array(data []byte) (*ndarray.Array, error) {
	return ndarray.New(h.dtype, h.Shape, h.MemoryOrder(), data)
}

// EncodeArrayHeader encodes a header as a compact JSON text frame.
func EncodeArrayHeader(h *ArrayHeader) ([]byte, error) {
	if h.Event == "" {
		h.Event = EventArrayHeader
	}
	return json.Marshal(h)
}

// headerFromObject builds a header from a decoded JSON object, reporting
// missing keys before any type problems.
func headerFromObject(obj map[string]any) (*ArrayHeader, error) {
	var missing []string
	for _, k := range requiredHeaderKeys {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingKeysError{Missing: missing}
	}

	h := &ArrayHeader{Event: EventArrayHeader}
	h.Proto, _ = obj[keyProto].(string)
	h.TSend = numberValue(obj[keyTSend])
	h.TRecv = numberValue(obj[keyTRecv])

	var ok bool
	if h.Name, ok = obj["name"].(string); !ok || h.Name == "" {
		return nil, &InvalidHeaderError{Field: "name"}
	}
	trial, ok := integerValue(obj["trial"])
	if !ok {
		return nil, &InvalidHeaderError{Field: "trial"}
	}
	h.Trial = trial
	if h.DType, ok = obj["dtype"].(string); !ok {
		return nil, &InvalidHeaderError{Field: "dtype"}
	}

	dims, ok := obj["shape"].([]any)
	if !ok {
		return nil, &InvalidHeaderError{Field: "shape"}
	}
	h.Shape = make([]int, len(dims))
	for i, d := range dims {
		if h.Shape[i], ok = integerValue(d); !ok {
			return nil, &InvalidHeaderError{Field: "shape"}
		}
	}

	switch order := obj["order"].(type) {
	case nil:
	case string:
		h.Order = order
	default:
		return nil, &InvalidHeaderError{Field: "order"}
	}

	switch meta := obj["meta"].(type) {
	case nil:
	case map[string]any:
		h.Meta = meta
	default:
		return nil, &InvalidHeaderError{Field: "meta"}
	}

	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// integerValue accepts JSON numbers with an integral value, including 3.0.
func integerValue(v any) (int, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		if i < math.MinInt || i > math.MaxInt {
			return 0, false
		}
		return int(i), true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int(f), true
}
