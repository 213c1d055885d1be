package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/trialstream/internal/errors"
	"github.com/vango-dev/trialstream/pkg/ndarray"
)

func inspectCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "inspect <file.npy>",
		Short: "Describe a stored array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectFile(cmd.OutOrStdout(), args[0], limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 8, "Number of values to preview")
	return cmd
}

func inspectFile(w io.Writer, path string, limit int) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.New(errors.CodeNPYRead).WithLocation(path).Wrap(err)
	}
	defer f.Close()

	arr, err := ndarray.ReadNPY(f)
	if err != nil {
		return errors.New(errors.CodeNPYRead).WithLocation(path).Wrap(err)
	}

	fmt.Fprintf(w, "%s\n", path)
	fmt.Fprintf(w, "  dtype:  %s (%s)\n", arr.DType.Name(), arr.DType.Descr())
	fmt.Fprintf(w, "  shape:  %v\n", arr.Shape)
	fmt.Fprintf(w, "  order:  %s\n", arr.Order)
	fmt.Fprintf(w, "  bytes:  %d\n", len(arr.Data))

	values, err := preview(arr.RowMajor(), limit)
	if err != nil {
		fmt.Fprintf(w, "  values: (%v)\n", err)
		return nil
	}
	suffix := ""
	if arr.Len() > len(values) {
		suffix = " ..."
	}
	fmt.Fprintf(w, "  values: [%s%s]\n", strings.Join(values, " "), suffix)
	return nil
}

// preview formats the first n elements of a row-major array.
func preview(a *ndarray.Array, n int) ([]string, error) {
	switch a.DType.Kind {
	case ndarray.KindBool:
		v, err := ndarray.Bools(a)
		return head(v, n), err
	case ndarray.KindInt:
		switch a.DType.Size {
		case 1:
			return valuesOf[int8](a, n)
		case 2:
			return valuesOf[int16](a, n)
		case 4:
			return valuesOf[int32](a, n)
		case 8:
			return valuesOf[int64](a, n)
		}
	case ndarray.KindUint:
		switch a.DType.Size {
		case 1:
			return valuesOf[uint8](a, n)
		case 2:
			return valuesOf[uint16](a, n)
		case 4:
			return valuesOf[uint32](a, n)
		case 8:
			return valuesOf[uint64](a, n)
		}
	case ndarray.KindFloat:
		switch a.DType.Size {
		case 4:
			return valuesOf[float32](a, n)
		case 8:
			return valuesOf[float64](a, n)
		}
	}
	return nil, fmt.Errorf("no preview for %s", a.DType.Name())
}

func valuesOf[T ndarray.Number](a *ndarray.Array, n int) ([]string, error) {
	v, err := ndarray.Values[T](a)
	if err != nil {
		return nil, err
	}
	return head(v, n), nil
}

func head[T any](v []T, n int) []string {
	if n >= 0 && len(v) > n {
		v = v[:n]
	}
	out := make([]string, len(v))
	for i, x := range v {
		out[i] = fmt.Sprint(x)
	}
	return out
}
