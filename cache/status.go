package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"imageresize/database"
	"imageresize/models"
)

const (
	statusKeyPrefix = "image:status:"
	statusTTL       = 10 * time.Minute
)

// StatusCache records the last pipeline status of every image of a run.
type StatusCache struct {
	cache *database.Cache
}

func NewStatusCache(cache *database.Cache) *StatusCache {
	return &StatusCache{cache: cache}
}

func runPrefix(runID string) string {
	return statusKeyPrefix + runID + ":"
}

func statusKey(runID, imageID string) string {
	return runPrefix(runID) + imageID
}

func (sc *StatusCache) Set(ctx context.Context, runID, imageID string, status models.Status) error {
	return sc.cache.Set(ctx, statusKey(runID, imageID), string(status), statusTTL)
}

// Run returns the statuses still cached for runID, keyed by image ID. An
// unknown or expired run yields an empty map.
func (sc *StatusCache) Run(ctx context.Context, runID string) (map[string]models.Status, error) {
	prefix := runPrefix(runID)
	keys, err := sc.cache.Keys(ctx, escapeGlob(prefix)+"*")
	if err != nil {
		return nil, fmt.Errorf("list statuses of run %s: %w", runID, err)
	}

	values, err := sc.cache.Values(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("read statuses of run %s: %w", runID, err)
	}

	statuses := make(map[string]models.Status, len(values))
	for key, value := range values {
		statuses[strings.TrimPrefix(key, prefix)] = models.Status(value)
	}
	return statuses, nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
