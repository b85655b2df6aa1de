package badger

import (
	"fmt"

	"github.com/poiesic/codeindex/core"
)

// Key prefixes for different data types
const (
	embeddingRecordPrefix = "embrec"
	projectUsagePrefix    = "embusage"
	projectQuotaPrefix    = "embquota"
	globalUsageKey        = "embusageglobal"
)

// makeEmbeddingKey generates a key for an embedding record.
// Format: prefix:projectId:id
func makeEmbeddingKey(projectId string, id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%s:%d", embeddingRecordPrefix, projectId, id))
}

// makeProjectPrefix generates the scan prefix for all records of a project.
func makeProjectPrefix(projectId string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", embeddingRecordPrefix, projectId))
}

// makeAllRecordsPrefix generates the scan prefix covering every record,
// used when usage is recomputed on open.
func makeAllRecordsPrefix() []byte {
	return []byte(embeddingRecordPrefix + ":")
}

// makeUsageKey generates the key holding a project's usage counters.
func makeUsageKey(projectId string) []byte {
	return []byte(fmt.Sprintf("%s:%s", projectUsagePrefix, projectId))
}

// makeGlobalUsageKey generates the key holding the global usage counters.
func makeGlobalUsageKey() []byte {
	return []byte(globalUsageKey)
}

// makeQuotaKey generates the key holding a project's explicit quota limit.
func makeQuotaKey(projectId string) []byte {
	return []byte(fmt.Sprintf("%s:%s", projectQuotaPrefix, projectId))
}
