package compiler

const (
	SingleSuffix  = "_single_ckernel"
	StridedSuffix = "_strided_ckernel"
)

// SingleName is the symbol of the single-element entry point of kernel.
func SingleName(kernel string) string {
	return kernel + SingleSuffix
}

// StridedName is the symbol of the strided-loop entry point of kernel.
func StridedName(kernel string) string {
	return kernel + StridedSuffix
}
