// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/codeindex/core"
)

// Persisted values use the MUS binary format. Serializers are hand-maintained
// here; timestamps are stored as microsecond Unix values.

var (
	float32SliceSer = ord.NewSliceSer[float32](raw.Float32)
	byteSliceSer    = ord.NewSliceSer[byte](raw.Byte)
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	v, _, err := varint.Uint64.Unmarshal(data)
	return core.ID(v), err
}

// UsageCounters is the persisted accounting state for one quota scope.
type UsageCounters struct {
	UsedBytes   int64
	RecordCount int64
}

// MarshalUsageCounters serializes usage counters to bytes.
func MarshalUsageCounters(u UsageCounters) []byte {
	buf := make([]byte, varint.Int64.Size(u.UsedBytes)+varint.Int64.Size(u.RecordCount))
	n := varint.Int64.Marshal(u.UsedBytes, buf)
	varint.Int64.Marshal(u.RecordCount, buf[n:])
	return buf
}

// UnmarshalUsageCounters deserializes usage counters from bytes.
func UnmarshalUsageCounters(data []byte) (UsageCounters, error) {
	var u UsageCounters
	used, n, err := varint.Int64.Unmarshal(data)
	if err != nil {
		return u, err
	}
	count, _, err := varint.Int64.Unmarshal(data[n:])
	if err != nil {
		return u, err
	}
	u.UsedBytes = used
	u.RecordCount = count
	return u, nil
}

// MarshalQuotaLimit serializes a project quota limit to bytes.
func MarshalQuotaLimit(limitBytes int64) []byte {
	buf := make([]byte, varint.Int64.Size(limitBytes))
	varint.Int64.Marshal(limitBytes, buf)
	return buf
}

// UnmarshalQuotaLimit deserializes a project quota limit from bytes.
func UnmarshalQuotaLimit(data []byte) (int64, error) {
	v, _, err := varint.Int64.Unmarshal(data)
	return v, err
}

// MarshalEmbeddingRecord serializes an EmbeddingRecord to bytes.
func MarshalEmbeddingRecord(record *core.EmbeddingRecord) []byte {
	buf := make([]byte, sizeEmbeddingRecord(record))
	marshalEmbeddingRecord(record, buf)
	return buf
}

// UnmarshalEmbeddingRecord deserializes an EmbeddingRecord from bytes.
func UnmarshalEmbeddingRecord(data []byte) (*core.EmbeddingRecord, error) {
	record := &core.EmbeddingRecord{}
	n := 0

	id, n1, err := varint.Uint64.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	record.Id = core.ID(id)
	n += n1

	if record.ProjectId, n1, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += n1
	if record.FileId, n1, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += n1
	if record.FilePath, n1, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += n1
	if record.ChunkIndex, n1, err = varint.Int.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += n1
	if record.Content, n1, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += n1
	if record.Embedding, n1, err = float32SliceSer.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += n1

	hasQuantized, n1, err := ord.Bool.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	n += n1
	if hasQuantized {
		q := &core.QuantizedVector{}
		if q.Data, n1, err = byteSliceSer.Unmarshal(data[n:]); err != nil {
			return nil, err
		}
		n += n1
		if q.Scale, n1, err = raw.Float32.Unmarshal(data[n:]); err != nil {
			return nil, err
		}
		n += n1
		if q.ZeroPoint, n1, err = raw.Float32.Unmarshal(data[n:]); err != nil {
			return nil, err
		}
		n += n1
		if q.Dimensions, n1, err = varint.Int.Unmarshal(data[n:]); err != nil {
			return nil, err
		}
		n += n1
		record.Quantized = q
	}

	if record.Metadata.ContentType, n1, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += n1
	if record.Metadata.StartLine, n1, err = varint.Int.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += n1
	if record.Metadata.EndLine, n1, err = varint.Int.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += n1
	if record.Hash, n1, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += n1

	createdAt, n1, err := varint.Int64.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	n += n1
	updatedAt, _, err := varint.Int64.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	record.CreatedAt = time.UnixMicro(createdAt).UTC()
	record.UpdatedAt = time.UnixMicro(updatedAt).UTC()

	return record, nil
}

func marshalEmbeddingRecord(record *core.EmbeddingRecord, buf []byte) {
	n := varint.Uint64.Marshal(uint64(record.Id), buf)
	n += ord.String.Marshal(record.ProjectId, buf[n:])
	n += ord.String.Marshal(record.FileId, buf[n:])
	n += ord.String.Marshal(record.FilePath, buf[n:])
	n += varint.Int.Marshal(record.ChunkIndex, buf[n:])
	n += ord.String.Marshal(record.Content, buf[n:])
	n += float32SliceSer.Marshal(record.Embedding, buf[n:])

	n += ord.Bool.Marshal(record.Quantized != nil, buf[n:])
	if record.Quantized != nil {
		q := record.Quantized
		n += byteSliceSer.Marshal(q.Data, buf[n:])
		n += raw.Float32.Marshal(q.Scale, buf[n:])
		n += raw.Float32.Marshal(q.ZeroPoint, buf[n:])
		n += varint.Int.Marshal(q.Dimensions, buf[n:])
	}

	n += ord.String.Marshal(record.Metadata.ContentType, buf[n:])
	n += varint.Int.Marshal(record.Metadata.StartLine, buf[n:])
	n += varint.Int.Marshal(record.Metadata.EndLine, buf[n:])
	n += ord.String.Marshal(record.Hash, buf[n:])
	n += varint.Int64.Marshal(record.CreatedAt.UnixMicro(), buf[n:])
	varint.Int64.Marshal(record.UpdatedAt.UnixMicro(), buf[n:])
}

func sizeEmbeddingRecord(record *core.EmbeddingRecord) int {
	size := varint.Uint64.Size(uint64(record.Id))
	size += ord.String.Size(record.ProjectId)
	size += ord.String.Size(record.FileId)
	size += ord.String.Size(record.FilePath)
	size += varint.Int.Size(record.ChunkIndex)
	size += ord.String.Size(record.Content)
	size += float32SliceSer.Size(record.Embedding)

	size += ord.Bool.Size(record.Quantized != nil)
	if record.Quantized != nil {
		q := record.Quantized
		size += byteSliceSer.Size(q.Data)
		size += raw.Float32.Size(q.Scale)
		size += raw.Float32.Size(q.ZeroPoint)
		size += varint.Int.Size(q.Dimensions)
	}

	size += ord.String.Size(record.Metadata.ContentType)
	size += varint.Int.Size(record.Metadata.StartLine)
	size += varint.Int.Size(record.Metadata.EndLine)
	size += ord.String.Size(record.Hash)
	size += varint.Int64.Size(record.CreatedAt.UnixMicro())
	size += varint.Int64.Size(record.UpdatedAt.UnixMicro())
	return size
}
