package ckernel

import (
	"github.com/pkg/errors"

	"github.com/thiremani/ckernel/kernel"
)

// ShapeSource is anything with a runtime shape, outermost dimension first.
type ShapeSource interface {
	Shape() []int
}

// Shape is a literal runtime shape.
type Shape []int

func (s Shape) Shape() []int { return s }

// BindFunc copies the runtime extents of the destination and sources into kd. It must
// run before calling the generated function whenever those extents change.
type BindFunc func(kd *KernelData, dst ShapeSource, src []ShapeSource) error

// noopBind is the binder of kernels without extents. It reads none of its arguments.
func noopBind(*KernelData, ShapeSource, []ShapeSource) error { return nil }

// makeBinder returns the bind routine for desc. Every field is checked before any is
// written, so a failed bind leaves kd as it was.
func makeBinder(desc *kernel.Descriptor) BindFunc {
	l := desc.Layout()
	if !l.HasExtents() {
		return noopBind
	}
	arity := desc.Arity()
	shapes := desc.Shapes

	return func(kd *KernelData, dst ShapeSource, src []ShapeSource) error {
		if kd == nil || kd.Pointer() == nil {
			return errors.Errorf("bind %s: no kernel data", desc.Name)
		}
		if kd.Layout() != l {
			return errors.Errorf("bind %s: kernel data was allocated for another kernel", desc.Name)
		}
		if len(src) != arity {
			return errors.Errorf("bind %s: %d sources, want %d", desc.Name, len(src), arity)
		}

		extents := make([][]int, len(l.Fields))
		for i, f := range l.Fields {
			s, what := dst, "destination"
			if f.Arg < arity {
				s, what = src[f.Arg], "source"
			}
			if s == nil {
				return errors.Errorf("bind %s: %s %d has no shape", desc.Name, what, f.Arg)
			}
			shape := s.Shape()
			if len(shape) < f.Len {
				return errors.Errorf("bind %s: %s %d has rank %d, want at least %d",
					desc.Name, what, f.Arg, len(shape), f.Len)
			}
			// Leading dimensions beyond the kernel's rank belong to the caller's iteration.
			tail := shape[len(shape)-f.Len:]
			for j, d := range shapes[f.Arg] {
				if tail[j] < 0 {
					return errors.Errorf("bind %s: %s %d has negative extent %d in dimension %d",
						desc.Name, what, f.Arg, tail[j], j)
				}
				if fixed, ok := d.(kernel.Fixed); ok && fixed.Extent != tail[j] {
					return errors.Errorf("bind %s: %s %d has extent %d in dimension %d, want %d",
						desc.Name, what, f.Arg, tail[j], j, fixed.Extent)
				}
			}
			extents[i] = tail
		}

		for i, f := range l.Fields {
			copy(kd.Extents(f.Arg), extents[i])
		}
		return nil
	}
}
