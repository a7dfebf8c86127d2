package kernel

import (
	"fmt"
	"strings"

	"github.com/thiremani/ckernel/types"
)

// Contiguity is the memory order of an Array argument.
type Contiguity int

const (
	CContiguous Contiguity = iota
	FContiguous
	Strided
)

func (c Contiguity) String() string {
	switch c {
	case CContiguous:
		return "C"
	case FContiguous:
		return "F"
	case Strided:
		return "strided"
	default:
		return fmt.Sprintf("Contiguity(%d)", int(c))
	}
}

// Kind says how one kernel argument is passed. The set of kinds is closed:
// Scalar, Pointer and Array are the only implementations.
type Kind interface {
	fmt.Stringer
	isKind()
}

// Scalar arguments are loaded from their raw pointer and passed by value.
type Scalar struct{}

// Pointer arguments are passed through as typed pointers.
type Pointer struct{}

// Array arguments are passed as a pointer to an array view {data, extents[rank]}.
type Array struct {
	Layout Contiguity
	Elem   types.Type
}

func (Scalar) isKind()  {}
func (Pointer) isKind() {}
func (Array) isKind()   {}

func (Scalar) String() string  { return "scalar" }
func (Pointer) String() string { return "pointer" }
func (a Array) String() string {
	elem := "?"
	if a.Elem != nil {
		elem = a.Elem.String()
	}
	return fmt.Sprintf("array[%s, %s]", a.Layout, elem)
}

// Dim is one entry of an argument shape. Fixed and Variable are the only implementations.
type Dim interface {
	fmt.Stringer
	isDim()
}

// Fixed is an extent known when the kernel is specialized.
type Fixed struct {
	Extent int
}

// Variable is an extent resolved per call by the bind routine.
type Variable struct {
	Tag string
}

func (Fixed) isDim()    {}
func (Variable) isDim() {}

func (f Fixed) String() string    { return fmt.Sprintf("%d", f.Extent) }
func (v Variable) String() string { return v.Tag }

// Shape is the ordered sequence of dimensions of one argument; its length is the rank.
type Shape []Dim

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		if d == nil {
			parts[i] = "<nil>"
			continue
		}
		parts[i] = d.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// HasVariable reports whether any dimension is resolved at bind time.
func (s Shape) HasVariable() bool {
	for _, d := range s {
		if _, ok := d.(Variable); ok {
			return true
		}
	}
	return false
}
