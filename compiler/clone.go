package compiler

import (
	"github.com/pkg/errors"
	"tinygo.org/x/go-llvm"
)

// CloneModule returns a deep copy of tmpl in the same context. tmpl is read only.
func CloneModule(tmpl llvm.Module) (llvm.Module, error) {
	if tmpl.C == nil {
		return llvm.Module{}, errors.New("clone: nil template module")
	}
	buf := llvm.WriteBitcodeToMemoryBuffer(tmpl)
	ctx := tmpl.Context()
	// ParseIR takes ownership of buf.
	mod, err := ctx.ParseIR(buf)
	if err != nil {
		return llvm.Module{}, errors.Wrap(err, "clone: reading back bitcode")
	}
	return mod, nil
}
