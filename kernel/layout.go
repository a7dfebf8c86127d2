package kernel

import (
	"unsafe"

	"github.com/pkg/errors"
)

// HeaderSlots is the number of pointer-sized slots at the start of every kernel-data
// struct: a destructor hook and two slots owned by the runtime that tracks the
// lifetime of the source buffers.
const HeaderSlots = 3

// SlotSize is the size in bytes of one header slot and of one extent.
// Extents are pointer-sized signed integers (Go int).
const SlotSize = int(unsafe.Sizeof(uintptr(0)))

// Field is the extent array reserved for one Array argument that has Variable dimensions.
type Field struct {
	Arg  int // argument index; the destination is the last index
	Len  int // rank of the argument
	Slot int // first slot of the array, counted from the start of the struct
}

// Layout describes the kernel-data struct shared by the compiled code and the bind
// routine: the header followed by one extent array per Field, in argument order.
// A Layout is immutable once built.
type Layout struct {
	Fields  []Field
	fieldOf []int // per argument: index into Fields or -1
	slots   int
}

// BuildLayout walks kinds and shapes in lockstep and reserves an extent array for every
// Array argument with at least one Variable dimension. The result only depends on its
// inputs, so generated code and bind routine always agree on offsets.
func BuildLayout(kinds []Kind, shapes []Shape) (*Layout, error) {
	if len(kinds) != len(shapes) {
		return nil, errors.Errorf("kernel data layout: %d kinds but %d shapes", len(kinds), len(shapes))
	}
	l := &Layout{fieldOf: make([]int, len(kinds))}
	slot := HeaderSlots
	for i, kind := range kinds {
		l.fieldOf[i] = -1
		switch k := kind.(type) {
		case Array:
			if k.Layout != CContiguous {
				return nil, &UnsupportedLayoutError{Arg: i, Layout: k.Layout}
			}
			if err := checkDims(i, shapes[i]); err != nil {
				return nil, err
			}
			if !shapes[i].HasVariable() {
				continue
			}
			l.fieldOf[i] = len(l.Fields)
			l.Fields = append(l.Fields, Field{Arg: i, Len: len(shapes[i]), Slot: slot})
			slot += len(shapes[i])
		case Scalar, Pointer:
			// no storage
		default:
			return nil, &UnsupportedKindError{Arg: i, Kind: kind}
		}
	}
	l.slots = slot
	return l, nil
}

func checkDims(arg int, shape Shape) error {
	for j, d := range shape {
		switch dim := d.(type) {
		case Fixed:
			if dim.Extent < 0 {
				return errors.Errorf("argument %d, dimension %d: negative fixed extent %d", arg, j, dim.Extent)
			}
		case Variable:
		default:
			return &UnsupportedDimensionError{Arg: arg, Pos: j, Dim: d}
		}
	}
	return nil
}

// HasExtents reports whether any argument reserved storage. When false the struct is
// only the header and binding is a no-op.
func (l *Layout) HasExtents() bool {
	return len(l.Fields) > 0
}

// Field returns the extent array reserved for argument arg.
func (l *Layout) Field(arg int) (Field, bool) {
	if arg < 0 || arg >= len(l.fieldOf) || l.fieldOf[arg] < 0 {
		return Field{}, false
	}
	return l.Fields[l.fieldOf[arg]], true
}

// FieldIndex returns the index of arg's extent array in the native struct type.
// Field 0 is the header.
func (l *Layout) FieldIndex(arg int) (int, bool) {
	if _, ok := l.Field(arg); !ok {
		return 0, false
	}
	return 1 + l.fieldOf[arg], true
}

// Offset returns the byte offset of arg's extent array in the host mirror.
func (l *Layout) Offset(arg int) (int, bool) {
	f, ok := l.Field(arg)
	if !ok {
		return 0, false
	}
	return f.Slot * SlotSize, true
}

// HeaderSize is the size in bytes of the fixed header.
func (l *Layout) HeaderSize() int {
	return HeaderSlots * SlotSize
}

// Size is the total size in bytes of one kernel-data struct.
func (l *Layout) Size() int {
	return l.slots * SlotSize
}
