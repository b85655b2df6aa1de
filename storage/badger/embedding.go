package badger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/codeindex/core"
	"github.com/poiesic/codeindex/storage"
)

// Config holds quota configuration for the embedding store.
type Config struct {
	// QuotasEnabled toggles quota enforcement. Usage is tracked either way.
	QuotasEnabled bool

	// GlobalQuotaBytes is the deployment-wide byte ceiling. Projects without
	// an explicit quota inherit this value.
	GlobalQuotaBytes int64
}

// DefaultConfig returns a Config with quotas enabled and a 512 MiB global limit.
func DefaultConfig() *Config {
	return &Config{
		QuotasEnabled:    true,
		GlobalQuotaBytes: 512 << 20,
	}
}

// EmbeddingRepository implements storage.EmbeddingRepository on BadgerDB.
//
// Usage counters live in memory for quota checks and are persisted in the
// same transaction as every row write, so the committed state is always
// self-consistent. On open the counters are recomputed from the persisted
// rows rather than trusted from the stored baseline.
type EmbeddingRepository struct {
	backend *Backend
	config  *Config
	logger  *slog.Logger

	// writeMu serializes the quota check-then-write path. Reads go straight
	// to badger and are never blocked by it.
	writeMu sync.Mutex

	mu     sync.RWMutex // guards usage, global, quotas
	usage  map[string]storage.UsageCounters
	global storage.UsageCounters
	quotas map[string]int64

	closed atomic.Bool
}

var _ storage.EmbeddingRepository = (*EmbeddingRepository)(nil)

// NewEmbeddingRepository opens the repository over an existing backend,
// recomputing usage accounting from the persisted rows.
//
// Returns storage.EmbeddingRepository interface to enforce abstraction.
func NewEmbeddingRepository(backend *Backend, config *Config) (storage.EmbeddingRepository, error) {
	return newEmbeddingRepository(backend, config)
}

func newEmbeddingRepository(backend *Backend, config *Config) (*EmbeddingRepository, error) {
	if config == nil {
		config = DefaultConfig()
	}

	r := &EmbeddingRepository{
		backend: backend,
		config:  config,
		logger:  slog.Default().With("component", "embedding-store"),
		usage:   make(map[string]storage.UsageCounters),
		quotas:  make(map[string]int64),
	}

	if err := r.initialize(); err != nil {
		return nil, err
	}
	return r, nil
}

// initialize recomputes per-project and global usage from the persisted
// records, loads explicit project quotas, and writes the recomputed baseline
// back in a single transaction.
func (r *EmbeddingRepository) initialize() error {
	usage := make(map[string]storage.UsageCounters)
	var global storage.UsageCounters
	quotas := make(map[string]int64)

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeAllRecordsPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var record *core.EmbeddingRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalEmbeddingRecord(val)
				return err
			})
			if err != nil {
				return err
			}

			cost := storage.RecordCost(record)
			counters := usage[record.ProjectId]
			counters.UsedBytes += cost
			counters.RecordCount++
			usage[record.ProjectId] = counters
			global.UsedBytes += cost
			global.RecordCount++
		}

		qopts := badger.DefaultIteratorOptions
		qopts.Prefix = []byte(projectQuotaPrefix + ":")
		qiter := tx.NewIterator(qopts)
		defer qiter.Close()

		for qiter.Rewind(); qiter.Valid(); qiter.Next() {
			key := qiter.Item().Key()
			projectId := string(key[len(projectQuotaPrefix)+1:])
			var limit int64
			err := qiter.Item().Value(func(val []byte) error {
				var err error
				limit, err = storage.UnmarshalQuotaLimit(val)
				return err
			})
			if err != nil {
				return err
			}
			quotas[projectId] = limit
		}
		return nil
	}, false)
	if err != nil {
		return err
	}

	// Persist the recomputed baseline so an external inspection of the
	// store sees counters matching the rows.
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		for projectId, counters := range usage {
			if err := tx.Set(makeUsageKey(projectId), storage.MarshalUsageCounters(counters)); err != nil {
				return err
			}
		}
		if err := tx.Set(makeGlobalUsageKey(), storage.MarshalUsageCounters(global)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.usage = usage
	r.global = global
	r.quotas = quotas
	r.mu.Unlock()

	r.logger.Debug("storage usage recomputed",
		"projects", len(usage), "records", global.RecordCount, "bytes", global.UsedBytes)
	return nil
}

// StoreEmbedding inserts or updates a record under quota control. The quota
// check, the row write, and the usage counter update form one atomic unit;
// a rejected or failed write leaves prior state unchanged.
func (r *EmbeddingRepository) StoreEmbedding(ctx context.Context, record *core.EmbeddingRecord) error {
	if r.closed.Load() {
		return storage.ErrStorageClosed
	}
	if err := core.ValidateEmbeddingRecord(record); err != nil {
		return err
	}
	if record.Id == 0 {
		record.Id = core.EmbeddingID(record.ProjectId, record.FileId, record.ChunkIndex)
	}
	if record.Hash == "" {
		record.Hash = core.HashContent(record.Content)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	key := makeEmbeddingKey(record.ProjectId, record.Id)
	var old *core.EmbeddingRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		old, err = readEmbeddingRecord(tx, key)
		return err
	}, false)
	if err != nil {
		return err
	}

	newCost := storage.RecordCost(record)
	var oldCost int64
	if old != nil {
		oldCost = storage.RecordCost(old)
	}
	delta := newCost - oldCost

	projUsage, globalUsage := r.counters(record.ProjectId)

	// A shrinking update can never push usage past a quota.
	if r.config.QuotasEnabled && delta > 0 {
		limit := r.effectiveQuota(record.ProjectId)
		if projUsage.UsedBytes+delta > limit {
			return &storage.QuotaExceededError{
				Scope:          storage.QuotaScopeProject,
				ProjectId:      record.ProjectId,
				AttemptedBytes: newCost,
				UsedBytes:      projUsage.UsedBytes,
				LimitBytes:     limit,
			}
		}
		if globalUsage.UsedBytes+delta > r.config.GlobalQuotaBytes {
			return &storage.QuotaExceededError{
				Scope:          storage.QuotaScopeGlobal,
				ProjectId:      record.ProjectId,
				AttemptedBytes: newCost,
				UsedBytes:      globalUsage.UsedBytes,
				LimitBytes:     r.config.GlobalQuotaBytes,
			}
		}
	}

	// Persisted timestamps carry microsecond precision; truncating here keeps
	// the in-memory record identical to what a later read returns.
	now := time.Now().UTC().Truncate(time.Microsecond)
	if old == nil {
		record.CreatedAt = now
		record.UpdatedAt = now
	} else {
		record.CreatedAt = old.CreatedAt
		if old.Hash == record.Hash {
			record.UpdatedAt = old.UpdatedAt
		} else {
			record.UpdatedAt = now
		}
	}

	newProj := projUsage
	newGlobal := globalUsage
	newProj.UsedBytes += delta
	newGlobal.UsedBytes += delta
	if old == nil {
		newProj.RecordCount++
		newGlobal.RecordCount++
	}

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(key, storage.MarshalEmbeddingRecord(record)); err != nil {
			return err
		}
		if err := tx.Set(makeUsageKey(record.ProjectId), storage.MarshalUsageCounters(newProj)); err != nil {
			return err
		}
		if err := tx.Set(makeGlobalUsageKey(), storage.MarshalUsageCounters(newGlobal)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.usage[record.ProjectId] = newProj
	r.global = newGlobal
	r.mu.Unlock()
	return nil
}

// GetEmbedding retrieves a single record.
func (r *EmbeddingRepository) GetEmbedding(ctx context.Context, projectId string, id core.ID) (*core.EmbeddingRecord, error) {
	if r.closed.Load() {
		return nil, storage.ErrStorageClosed
	}

	var result *core.EmbeddingRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readEmbeddingRecord(tx, makeEmbeddingKey(projectId, id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetProjectEmbeddings retrieves all records for a project, optionally
// narrowed by filter.
func (r *EmbeddingRepository) GetProjectEmbeddings(ctx context.Context, projectId string, filter *storage.EmbeddingFilter) ([]*core.EmbeddingRecord, error) {
	if r.closed.Load() {
		return nil, storage.ErrStorageClosed
	}

	if err := core.ValidateProjectId(projectId); err != nil {
		return nil, err
	}

	var results []*core.EmbeddingRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeProjectPrefix(projectId)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var record *core.EmbeddingRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalEmbeddingRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if matchesFilter(record, filter) {
				results = append(results, record)
			}
		}
		return nil
	}, false)

	return results, err
}

// DeleteEmbedding removes a record and credits its bytes back to the usage
// counters in the same transaction.
func (r *EmbeddingRepository) DeleteEmbedding(ctx context.Context, projectId string, id core.ID) error {
	if r.closed.Load() {
		return storage.ErrStorageClosed
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	key := makeEmbeddingKey(projectId, id)
	var old *core.EmbeddingRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		old, err = readEmbeddingRecord(tx, key)
		return err
	}, false)
	if err != nil {
		return err
	}
	if old == nil {
		return storage.ErrNotFound
	}

	cost := storage.RecordCost(old)
	projUsage, globalUsage := r.counters(projectId)
	newProj := projUsage
	newGlobal := globalUsage
	newProj.UsedBytes -= cost
	newProj.RecordCount--
	newGlobal.UsedBytes -= cost
	newGlobal.RecordCount--

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(key); err != nil {
			return err
		}
		if err := tx.Set(makeUsageKey(projectId), storage.MarshalUsageCounters(newProj)); err != nil {
			return err
		}
		if err := tx.Set(makeGlobalUsageKey(), storage.MarshalUsageCounters(newGlobal)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.usage[projectId] = newProj
	r.global = newGlobal
	r.mu.Unlock()
	return nil
}

// deleteBatchSize bounds how many rows one delete transaction touches, so a
// bulk delete stays under badger's transaction size limit.
const deleteBatchSize = 256

// DeleteProjectEmbeddings removes every record of a project and credits the
// freed bytes back to the usage counters. Deletes are committed in batches;
// each batch adjusts the counters for exactly the rows it removes, so the
// persisted state stays consistent even if a later batch fails. Returns the
// number of records removed.
func (r *EmbeddingRepository) DeleteProjectEmbeddings(ctx context.Context, projectId string) (int64, error) {
	if r.closed.Load() {
		return 0, storage.ErrStorageClosed
	}
	if err := core.ValidateProjectId(projectId); err != nil {
		return 0, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	var keys [][]byte
	var costs []int64
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeProjectPrefix(projectId)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var record *core.EmbeddingRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalEmbeddingRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			keys = append(keys, iter.Item().KeyCopy(nil))
			costs = append(costs, storage.RecordCost(record))
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}

	projUsage, globalUsage := r.counters(projectId)

	var removed int64
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))

		newProj := projUsage
		newGlobal := globalUsage
		for i := start; i < end; i++ {
			newProj.UsedBytes -= costs[i]
			newProj.RecordCount--
			newGlobal.UsedBytes -= costs[i]
			newGlobal.RecordCount--
		}

		err = r.backend.WithTx(func(tx *badger.Txn) error {
			for i := start; i < end; i++ {
				if err := tx.Delete(keys[i]); err != nil {
					return err
				}
			}
			if err := tx.Set(makeUsageKey(projectId), storage.MarshalUsageCounters(newProj)); err != nil {
				return err
			}
			if err := tx.Set(makeGlobalUsageKey(), storage.MarshalUsageCounters(newGlobal)); err != nil {
				return err
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return removed, err
		}

		projUsage = newProj
		globalUsage = newGlobal
		removed += int64(end - start)

		r.mu.Lock()
		r.usage[projectId] = newProj
		r.global = newGlobal
		r.mu.Unlock()
	}

	return removed, nil
}

// GetProjectStorageUsage reports the latest committed accounting state.
func (r *EmbeddingRepository) GetProjectStorageUsage(ctx context.Context, projectId string) (*core.StorageUsage, error) {
	if r.closed.Load() {
		return nil, storage.ErrStorageClosed
	}

	projUsage, _ := r.counters(projectId)
	limit := r.effectiveQuota(projectId)

	usage := &core.StorageUsage{
		TotalBytes:     projUsage.UsedBytes,
		QuotaBytes:     limit,
		EmbeddingCount: projUsage.RecordCount,
	}
	if limit > 0 {
		usage.UsagePercentage = float64(projUsage.UsedBytes) / float64(limit) * 100
		usage.RemainingBytes = limit - projUsage.UsedBytes
		if usage.RemainingBytes < 0 {
			usage.RemainingBytes = 0
		}
	}
	return usage, nil
}

// SetProjectQuota sets an explicit byte quota for a project. The limit is
// persisted so it survives restarts.
func (r *EmbeddingRepository) SetProjectQuota(ctx context.Context, projectId string, limitBytes int64) error {
	if r.closed.Load() {
		return storage.ErrStorageClosed
	}
	if err := core.ValidateProjectId(projectId); err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeQuotaKey(projectId), storage.MarshalQuotaLimit(limitBytes)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.quotas[projectId] = limitBytes
	r.mu.Unlock()
	return nil
}

// IsQuotasEnabled reports whether quota enforcement is active.
func (r *EmbeddingRepository) IsQuotasEnabled() bool {
	return r.config.QuotasEnabled
}

// GlobalQuota returns the deployment-wide byte limit.
func (r *EmbeddingRepository) GlobalQuota() int64 {
	return r.config.GlobalQuotaBytes
}

// Close marks the repository closed. The backend handle is owned and closed
// by whoever opened it.
func (r *EmbeddingRepository) Close() error {
	r.closed.Store(true)
	return nil
}

// Helper methods

func (r *EmbeddingRepository) counters(projectId string) (storage.UsageCounters, storage.UsageCounters) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usage[projectId], r.global
}

// effectiveQuota returns the explicit project quota, or the global quota
// when none is set.
func (r *EmbeddingRepository) effectiveQuota(projectId string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit, ok := r.quotas[projectId]; ok {
		return limit
	}
	return r.config.GlobalQuotaBytes
}

// readEmbeddingRecord reads a record from the transaction.
// Returns nil without error when the key is absent.
func readEmbeddingRecord(tx *badger.Txn, key []byte) (*core.EmbeddingRecord, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var record *core.EmbeddingRecord
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalEmbeddingRecord(val)
		return unmarshalErr
	})
	return record, err
}

func matchesFilter(record *core.EmbeddingRecord, filter *storage.EmbeddingFilter) bool {
	if filter == nil {
		return true
	}
	if filter.FileId != "" && record.FileId != filter.FileId {
		return false
	}
	if filter.ContentType != "" && record.Metadata.ContentType != filter.ContentType {
		return false
	}
	return true
}
