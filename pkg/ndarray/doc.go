// Package ndarray holds dense multidimensional sample arrays as raw bytes
// plus the dtype, shape and memory order needed to interpret them.
//
// Arrays travel over the wire as a bare byte payload; the element type and
// shape arrive separately in an array header. New checks that the two agree:
//
//	dt, _ := ndarray.ParseDType("float32")
//	arr, err := ndarray.New(dt, []int{50, 2}, ndarray.RowMajor, payload)
//	var shapeErr *ndarray.ShapeError
//	if errors.As(err, &shapeErr) {
//	    // payload length does not match 50*2*4 bytes
//	}
//
// # Storage
//
// Accepted arrays are stored as NumPy .npy files (WriteNPY, ReadNPY) so they
// can be loaded directly with numpy.load. The file keeps the original byte
// order and memory order; nothing is transposed on the way to disk.
package ndarray
