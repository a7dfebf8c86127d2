package kernel

import (
	"sync"

	"github.com/pkg/errors"
	"tinygo.org/x/go-llvm"

	"github.com/thiremani/ckernel/types"
)

// Spec is the raw argument contract of a blaze element kernel, as produced by the
// front end. It is turned into a Descriptor by New.
type Spec struct {
	Name       string      // prefix of generated symbol names
	Module     llvm.Module // template module holding the native kernel; never mutated
	Native     string      // symbol of the native kernel in Module
	Kinds      []Kind      // arity+1 entries, the last one describes the result
	Shapes     []Shape     // aligned with Kinds
	ArgTypes   []types.Type
	ReturnType types.Type
}

// Descriptor is a validated kernel contract. It is read-only once built and carries
// the kernel-data layout shared by every specialization and bind call.
type Descriptor struct {
	Name       string
	Module     llvm.Module
	Native     string
	Kinds      []Kind
	Shapes     []Shape
	ArgTypes   []types.Type
	ReturnType types.Type

	layout *Layout
	mu     sync.Mutex
}

// New validates spec and builds its kernel-data layout.
//
// Kind and dimension errors are reported as *UnsupportedKindError, *UnsupportedLayoutError
// and *UnsupportedDimensionError.
func New(spec Spec) (*Descriptor, error) {
	if err := ValidateName(spec.Name); err != nil {
		return nil, err
	}
	if len(spec.Kinds) == 0 {
		return nil, errors.Errorf("kernel %q: no result kind", spec.Name)
	}
	if len(spec.Kinds) != len(spec.Shapes) || len(spec.Kinds) != len(spec.ArgTypes)+1 {
		return nil, errors.Errorf("kernel %q: %d kinds, %d shapes and %d argument types do not line up",
			spec.Name, len(spec.Kinds), len(spec.Shapes), len(spec.ArgTypes))
	}

	d := &Descriptor{
		Name:       spec.Name,
		Module:     spec.Module,
		Native:     spec.Native,
		Kinds:      append([]Kind(nil), spec.Kinds...),
		Shapes:     make([]Shape, len(spec.Shapes)),
		ArgTypes:   append([]types.Type(nil), spec.ArgTypes...),
		ReturnType: spec.ReturnType,
	}
	for i, s := range spec.Shapes {
		d.Shapes[i] = append(Shape(nil), s...)
	}

	layout, err := BuildLayout(d.Kinds, d.Shapes)
	if err != nil {
		return nil, errors.WithMessagef(err, "kernel %q", spec.Name)
	}
	d.layout = layout

	if err := d.checkTypes(); err != nil {
		return nil, err
	}
	if err := d.checkNative(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Descriptor) checkTypes() error {
	for i, kind := range d.Kinds {
		typ := d.TypeOf(i)
		if !types.Valid(typ) {
			return errors.Errorf("kernel %q, argument %d: unsupported native type %v", d.Name, i, typ)
		}
		switch k := kind.(type) {
		case Array:
			if !types.Equal(k.Elem, typ) {
				return errors.Errorf("kernel %q, argument %d: array element type %v does not match argument type %s",
					d.Name, i, k.Elem, typ)
			}
		default:
			if len(d.Shapes[i]) != 0 {
				return errors.Errorf("kernel %q, argument %d: %s argument has shape %s", d.Name, i, kind, d.Shapes[i])
			}
		}
	}
	return nil
}

// checkNative makes sure the native kernel exists and takes one parameter per input,
// plus the destination when the result is not a scalar.
func (d *Descriptor) checkNative() error {
	if d.Module.C == nil {
		return errors.Errorf("kernel %q: no template module", d.Name)
	}
	fn := d.Module.NamedFunction(d.Native)
	if fn.IsNil() {
		return errors.Errorf("kernel %q: native function %q not found in module", d.Name, d.Native)
	}
	fnType := fn.GlobalValueType()
	want := d.Arity()
	_, scalarResult := d.Kinds[d.Arity()].(Scalar)
	if !scalarResult {
		want++
	}
	if got := fnType.ParamTypesCount(); got != want {
		return errors.Errorf("kernel %q: native function %q takes %d parameters, want %d", d.Name, d.Native, got, want)
	}
	isVoid := fnType.ReturnType().TypeKind() == llvm.VoidTypeKind
	if scalarResult == isVoid {
		return errors.Errorf("kernel %q: native function %q return type does not match result kind %s",
			d.Name, d.Native, d.Kinds[d.Arity()])
	}
	return nil
}

// Arity is the number of inputs.
func (d *Descriptor) Arity() int {
	return len(d.Kinds) - 1
}

// TypeOf returns the native type of argument i; i == Arity() is the result.
func (d *Descriptor) TypeOf(i int) types.Type {
	if i == d.Arity() {
		return d.ReturnType
	}
	return d.ArgTypes[i]
}

// Layout returns the kernel-data layout computed when the descriptor was built.
func (d *Descriptor) Layout() *Layout {
	return d.layout
}

// Lock serializes code generation against the template module. LLVM modules and
// contexts are not safe for concurrent use.
func (d *Descriptor) Lock() {
	d.mu.Lock()
}

func (d *Descriptor) Unlock() {
	d.mu.Unlock()
}
