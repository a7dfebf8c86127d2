package types

import "fmt"

type Kind int

const (
	IntKind Kind = iota
	FloatKind
)

// Type is a native value type that generated code loads, stores and passes to kernels.
type Type interface {
	String() string
	Kind() Kind
	Size() int // bytes
}

// Common concrete types. Int and Float are comparable by value.
var (
	I8  Type = Int{Width: 8}
	I16 Type = Int{Width: 16}
	I32 Type = Int{Width: 32}
	I64 Type = Int{Width: 64}
	F32 Type = Float{Width: 32}
	F64 Type = Float{Width: 64}
)

// Int represents an integer type with a given bit width.
type Int struct {
	Width uint32 // 8, 16, 32, 64
}

func (i Int) String() string {
	return fmt.Sprintf("I%d", i.Width)
}

func (i Int) Kind() Kind {
	return IntKind
}

func (i Int) Size() int {
	return int(i.Width >> 3)
}

// Float represents a floating-point type with a given precision.
type Float struct {
	Width uint32 // 32, 64
}

func (f Float) String() string {
	return fmt.Sprintf("F%d", f.Width)
}

func (f Float) Kind() Kind {
	return FloatKind
}

func (f Float) Size() int {
	return int(f.Width >> 3)
}

// Valid reports whether t is one of the widths generated code can handle.
func Valid(t Type) bool {
	switch typ := t.(type) {
	case Int:
		switch typ.Width {
		case 8, 16, 32, 64:
			return true
		}
	case Float:
		switch typ.Width {
		case 32, 64:
			return true
		}
	}
	return false
}

// Equal performs structural equality on types. A nil type only equals nil.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case IntKind:
		return a.(Int).Width == b.(Int).Width
	case FloatKind:
		return a.(Float).Width == b.(Float).Width
	default:
		panic(fmt.Sprintf("types.Equal: unhandled kind %v", a.Kind()))
	}
}
