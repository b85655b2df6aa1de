// Package quant implements the lossy float-to-integer quantization codec for
// embedding vectors.
//
// Each vector is mapped independently through a per-vector affine transform
// into 256 unsigned 8-bit levels. The two transform parameters (Scale and
// ZeroPoint) are stored alongside the levels, so every vector is invertible
// on its own without any collection-wide statistics. This keeps quantization
// parallelizable at the cost of a few bytes of metadata per vector, which is
// negligible for vectors of hundreds of components.
//
// Degenerate inputs (all-zero or constant vectors) are handled by an epsilon
// floor on the scale rather than an error.
package quant
