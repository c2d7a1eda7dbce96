package research

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
)

// dedupTTL bounds how long the Redis hash index remembers an insight. The
// store remains the source of truth; the index only saves a query.
const dedupTTL = 7 * 24 * time.Hour

// hashIndex is a read-through Redis index from (user, dedup hash) to the
// ready insight's ID. Every failure degrades to the store query.
type hashIndex struct {
	client *redis.Client
}

func dedupKey(userID, hash string) string {
	return "research:dedup:" + userID + ":" + hash
}

func (ix *hashIndex) lookup(ctx context.Context, userID, hash string) string {
	id, err := ix.client.Get(ctx, dedupKey(userID, hash)).Result()
	if err == redis.Nil {
		return ""
	}
	if err != nil {
		logger.Warn("dedup index lookup failed", "error", err.Error())
		return ""
	}
	return id
}

func (ix *hashIndex) record(ctx context.Context, userID, hash, insightID string) {
	if err := ix.client.Set(ctx, dedupKey(userID, hash), insightID, dedupTTL).Err(); err != nil {
		logger.Warn("dedup index record failed", "error", err.Error())
	}
}
