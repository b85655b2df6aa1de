package quant

import (
	"math"

	"github.com/poiesic/codeindex/core"
)

const (
	// maxLevel is the highest quantization level of the 8-bit codec.
	maxLevel = 255

	// minScale is the epsilon floor substituted for a degenerate scale so
	// that constant vectors never divide by zero.
	minScale = 1e-8

	// transformOverheadBytes is the per-vector cost of the affine transform
	// parameters: Scale and ZeroPoint (two float32) plus Dimensions (int32).
	transformOverheadBytes = 12
)

// Quantize maps each component of vector linearly into 256 levels using an
// affine transform derived from the vector's own minimum and maximum. The
// transform parameters are stored on the result so it is invertible per
// vector. Safe on empty and constant vectors.
func Quantize(vector []float32) *core.QuantizedVector {
	q := &core.QuantizedVector{
		Data:       make([]byte, len(vector)),
		Dimensions: len(vector),
		Scale:      minScale,
	}
	if len(vector) == 0 {
		return q
	}

	minVal, maxVal := vector[0], vector[0]
	for _, v := range vector[1:] {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	scale := (maxVal - minVal) / maxLevel
	if scale < minScale {
		scale = minScale
	}

	for i, v := range vector {
		level := math.Round(float64(v-minVal) / float64(scale))
		if level < 0 {
			level = 0
		}
		if level > maxLevel {
			level = maxLevel
		}
		q.Data[i] = byte(level)
	}

	q.Scale = scale
	q.ZeroPoint = minVal
	return q
}

// Dequantize applies the inverse affine transform. The output length always
// equals q.Dimensions.
func Dequantize(q *core.QuantizedVector) []float32 {
	out := make([]float32, q.Dimensions)
	n := len(q.Data)
	if n > q.Dimensions {
		n = q.Dimensions
	}
	for i := 0; i < n; i++ {
		out[i] = q.ZeroPoint + q.Scale*float32(q.Data[i])
	}
	return out
}

// ErrorStats quantifies the reconstruction error of a quantized vector
// against its original floats.
type ErrorStats struct {
	MeanAbsoluteError      float64
	MaxAbsoluteError       float64
	RootMeanSquareError    float64
	SimilarityPreservation float64 // cosine similarity of original vs round trip
}

// MeasureError compares a vector to its quantized form. SimilarityPreservation
// is the operationally relevant metric: consumers only ever compare
// dequantized vectors to query vectors, so cosine drift is what matters.
func MeasureError(original []float32, q *core.QuantizedVector) ErrorStats {
	restored := Dequantize(q)

	var stats ErrorStats
	n := len(original)
	if len(restored) < n {
		n = len(restored)
	}
	if n == 0 {
		return stats
	}

	var sumAbs, sumSq float64
	for i := 0; i < n; i++ {
		diff := math.Abs(float64(original[i]) - float64(restored[i]))
		sumAbs += diff
		sumSq += diff * diff
		if diff > stats.MaxAbsoluteError {
			stats.MaxAbsoluteError = diff
		}
	}

	stats.MeanAbsoluteError = sumAbs / float64(n)
	stats.RootMeanSquareError = math.Sqrt(sumSq / float64(n))
	stats.SimilarityPreservation = float64(CosineSimilarity(original, restored))
	return stats
}

// EstimateSavings reports the compression ratio of the codec for vectors of
// the given dimensionality, including the per-vector transform overhead.
// Pure arithmetic, used for reporting only.
func EstimateSavings(dimensions, originalBytesPerComponent, quantizedBytesPerComponent int) float64 {
	if dimensions <= 0 || quantizedBytesPerComponent <= 0 {
		return 0
	}
	original := float64(dimensions * originalBytesPerComponent)
	quantized := float64(dimensions*quantizedBytesPerComponent + transformOverheadBytes)
	return original / quantized
}

// NormalizeVector normalizes a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var magnitude float32
	for _, val := range v {
		magnitude += val * val
	}
	magnitude = float32(math.Sqrt(float64(magnitude)))

	// Can't normalize zero vector
	if magnitude == 0 {
		result := make([]float32, len(v))
		return result
	}

	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / magnitude
	}
	return result
}

// CosineSimilarity computes the cosine similarity of two vectors.
// Returns 0 for mismatched lengths or zero-magnitude inputs.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
