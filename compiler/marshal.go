package compiler

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"tinygo.org/x/go-llvm"

	"github.com/thiremani/ckernel/kernel"
)

// marshalSources loads the raw pointer of every input from the pointer array srcs and
// marshals it according to the input's kind.
func (c *Compiler) marshalSources(srcs llvm.Value) []llvm.Value {
	ptr := c.ptrType()
	args := make([]llvm.Value, c.Desc.Arity())
	for i := range args {
		slot := c.builder.CreateInBoundsGEP(ptr, srcs, []llvm.Value{c.constIntp(i)}, "")
		raw := c.builder.CreateLoad(ptr, slot, fmt.Sprintf("src%d", i))
		args[i] = c.marshalArg(i, raw)
	}
	return args
}

// marshalArg turns the untyped pointer raw of argument arg into what the native kernel
// expects: a loaded value for Scalar, a typed pointer for Pointer and a pointer to a
// populated array view for Array.
func (c *Compiler) marshalArg(arg int, raw llvm.Value) llvm.Value {
	typ := c.Desc.TypeOf(arg)
	typedPtr := llvm.PointerType(c.mapToLLVMType(typ), 0)
	switch k := c.Desc.Kinds[arg].(type) {
	case kernel.Scalar:
		p := c.builder.CreateBitCast(raw, typedPtr, "")
		return c.createLoad(p, typ, fmt.Sprintf("arg%d", arg))
	case kernel.Pointer:
		return c.builder.CreateBitCast(raw, typedPtr, fmt.Sprintf("arg%d", arg))
	case kernel.Array:
		return c.marshalArray(arg, c.builder.CreateBitCast(raw, typedPtr, ""))
	default:
		panic(&kernel.UnsupportedKindError{Arg: arg, Kind: k})
	}
}

// marshalArray fills an array view for data. Fixed extents are constants, Variable
// extents are read from the kernel-data struct at the argument's field.
func (c *Compiler) marshalArray(arg int, data llvm.Value) llvm.Value {
	shape := c.Desc.Shapes[arg]
	viewType := ArrayViewType(c.Context, len(shape))
	view := c.createEntryBlockAlloca(viewType, fmt.Sprintf("arg%d.view", arg))
	c.builder.CreateStore(data, c.builder.CreateStructGEP(viewType, view, 0, ""))

	zero := c.constI32(0)
	for j, d := range shape {
		var extent llvm.Value
		switch dim := d.(type) {
		case kernel.Fixed:
			extent = c.constIntp(dim.Extent)
		case kernel.Variable:
			field, ok := c.Layout.FieldIndex(arg)
			if !ok {
				exceptions.Panicf("argument %d has a variable dimension but no kernel data field", arg)
			}
			src := c.builder.CreateInBoundsGEP(c.kdType, c.extra,
				[]llvm.Value{zero, c.constI32(field), c.constIntp(j)}, "")
			extent = c.builder.CreateLoad(c.intpType(), src, fmt.Sprintf("arg%d.%s", arg, dim.Tag))
		default:
			panic(&kernel.UnsupportedDimensionError{Arg: arg, Pos: j, Dim: d})
		}
		dst := c.builder.CreateInBoundsGEP(viewType, view,
			[]llvm.Value{zero, c.constI32(1), c.constIntp(j)}, "")
		c.builder.CreateStore(extent, dst)
	}
	return view
}
