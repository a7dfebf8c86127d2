package compiler

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"tinygo.org/x/go-llvm"

	"github.com/thiremani/ckernel/kernel"
	"github.com/thiremani/ckernel/types"
)

// Compiler emits one entry point for a kernel descriptor into a private clone of the
// descriptor's template module.
type Compiler struct {
	Context llvm.Context
	Module  llvm.Module
	Desc    *kernel.Descriptor
	Layout  *kernel.Layout
	builder llvm.Builder

	kdType     llvm.Type  // kernel-data struct type
	extra      llvm.Value // kernel-data pointer of the function under construction
	native     llvm.Value
	nativeType llvm.Type
}

func NewCompiler(mod llvm.Module, desc *kernel.Descriptor) (*Compiler, error) {
	native := mod.NamedFunction(desc.Native)
	if native.IsNil() {
		return nil, errors.Errorf("kernel %q: native function %q not found in module", desc.Name, desc.Native)
	}
	ctx := mod.Context()
	return &Compiler{
		Context:    ctx,
		Module:     mod,
		Desc:       desc,
		Layout:     desc.Layout(),
		builder:    ctx.NewBuilder(),
		kdType:     KernelDataType(ctx, desc.Layout()),
		native:     native,
		nativeType: native.GlobalValueType(),
	}, nil
}

func (c *Compiler) Dispose() {
	c.builder.Dispose()
}

// Generate clones the template module of desc and emits the single or strided entry
// point into the clone. It returns the clone and the name of the generated function.
// The template is never modified. On error nothing is left allocated.
func Generate(desc *kernel.Descriptor, strided bool) (llvm.Module, string, error) {
	mod, err := CloneModule(desc.Module)
	if err != nil {
		return llvm.Module{}, "", err
	}
	c, err := NewCompiler(mod, desc)
	if err != nil {
		mod.Dispose()
		return llvm.Module{}, "", err
	}
	defer c.Dispose()

	var name string
	err = exceptions.TryCatch[error](func() {
		if strided {
			name = c.EmitStrided().Name()
		} else {
			name = c.EmitSingle().Name()
		}
	})
	if err != nil {
		mod.Dispose()
		return llvm.Module{}, "", err
	}
	return mod, name, nil
}

func (c *Compiler) ptrType() llvm.Type {
	return llvm.PointerType(c.Context.Int8Type(), 0)
}

// intpType is the pointer-sized integer used for extents, strides and counts.
func (c *Compiler) intpType() llvm.Type {
	return c.Context.IntType(kernel.SlotSize * 8)
}

func (c *Compiler) constIntp(v int) llvm.Value {
	return llvm.ConstInt(c.intpType(), uint64(v), true)
}

func (c *Compiler) constI32(v int) llvm.Value {
	return llvm.ConstInt(c.Context.Int32Type(), uint64(v), false)
}

func (c *Compiler) mapToLLVMType(t types.Type) llvm.Type {
	switch typ := t.(type) {
	case types.Int:
		switch typ.Width {
		case 8:
			return c.Context.Int8Type()
		case 16:
			return c.Context.Int16Type()
		case 32:
			return c.Context.Int32Type()
		case 64:
			return c.Context.Int64Type()
		}
	case types.Float:
		switch typ.Width {
		case 32:
			return c.Context.FloatType()
		case 64:
			return c.Context.DoubleType()
		}
	}
	exceptions.Panicf("unsupported type in mapToLLVMType: %v", t)
	return llvm.Type{}
}

// createStore creates a store instruction aligned for valType.
func (c *Compiler) createStore(val llvm.Value, ptr llvm.Value, valType types.Type) llvm.Value {
	storeInst := c.builder.CreateStore(val, ptr)
	storeInst.SetAlignment(valType.Size())
	return storeInst
}

// createLoad creates a load instruction aligned for elemType.
func (c *Compiler) createLoad(ptr llvm.Value, elemType types.Type, name string) llvm.Value {
	loadInst := c.builder.CreateLoad(c.mapToLLVMType(elemType), ptr, name)
	loadInst.SetAlignment(elemType.Size())
	return loadInst
}

// createEntryBlockAlloca puts the alloca at the top of the entry block so that it is
// allocated once per call, also when requested from inside a loop body.
func (c *Compiler) createEntryBlockAlloca(ty llvm.Type, name string) llvm.Value {
	current := c.builder.GetInsertBlock()
	fn := current.Parent()
	entry := fn.EntryBasicBlock()
	first := entry.FirstInstruction()

	if first.IsNil() {
		c.builder.SetInsertPointAtEnd(entry)
	} else {
		c.builder.SetInsertPointBefore(first)
	}

	alloca := c.builder.CreateAlloca(ty, name)
	c.builder.SetInsertPointAtEnd(current)
	return alloca
}
