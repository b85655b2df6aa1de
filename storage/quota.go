package storage

import "github.com/poiesic/codeindex/core"

// RecordOverheadBytes is the fixed per-record charge covering keys,
// identifiers, timestamps, and chunk metadata. Charged once per record on
// top of the content and vector payload.
const RecordOverheadBytes = 256

// quantizedTransformBytes is the per-vector cost of the affine transform
// parameters stored with a quantized payload.
const quantizedTransformBytes = 12

// RecordCost computes the marginal byte cost a record is charged against the
// project and global quotas. The same function is used at write time and
// when usage is recomputed on store initialization, so the two can never
// drift apart.
func RecordCost(record *core.EmbeddingRecord) int64 {
	cost := int64(len(record.Content)) + RecordOverheadBytes
	cost += int64(4 * len(record.Embedding))
	if record.Quantized != nil {
		cost += int64(len(record.Quantized.Data)) + quantizedTransformBytes
	}
	return cost
}
