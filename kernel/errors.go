package kernel

import "fmt"

// UnsupportedLayoutError reports an Array argument whose memory layout is not C-contiguous.
type UnsupportedLayoutError struct {
	Arg    int
	Layout Contiguity
}

func (e *UnsupportedLayoutError) Error() string {
	return fmt.Sprintf("argument %d: only C contiguous arrays are supported, got %s", e.Arg, e.Layout)
}

// UnsupportedKindError reports a parameter kind outside {Scalar, Pointer, Array}.
type UnsupportedKindError struct {
	Arg  int
	Kind Kind
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("argument %d: unsupported parameter kind %v", e.Arg, e.Kind)
}

// UnsupportedDimensionError reports a dimension spec outside {Fixed, Variable}.
type UnsupportedDimensionError struct {
	Arg int
	Pos int
	Dim Dim
}

func (e *UnsupportedDimensionError) Error() string {
	return fmt.Sprintf("argument %d, dimension %d: unsupported dimension %v", e.Arg, e.Pos, e.Dim)
}

// CompilationError reports a failure of the native verifier, optimizer or JIT.
// Stage names the step that failed ("verify", "target", "optimize", "jit", ...).
type CompilationError struct {
	Kernel string
	Stage  string
	Err    error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compiling kernel %q failed at %s: %v", e.Kernel, e.Stage, e.Err)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}
