package counter

import (
	"context"
	"math/rand"
	"time"

	"github.com/zoff-tech/event-pipeline/pkg/store"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 20

// bucketLayout formats a wall-clock minute as YYYYMMDDHHMM.
const bucketLayout = "200601021504"

// BucketID returns the counter bucket for t. Buckets are never closed;
// they simply stop receiving increments once the minute has passed.
func BucketID(t time.Time) string {
	return t.Format(bucketLayout)
}

// Totals is the aggregated view of one bucket. ShardsSeen reports how many
// shards held data, a signal for spotting under-fragmentation.
type Totals struct {
	Bucket     string `json:"bucket"`
	Total      int64  `json:"total"`
	ShardsSeen int    `json:"shardsSeen"`
}

// ShardedCounter spreads concurrent increments of one bucket across a fixed
// number of independently-written shards so no single row or document
// becomes a write hotspot. The price is a fan-out read to compute a total.
type ShardedCounter struct {
	repo   store.EventRepository
	shards int
}

func New(repo store.EventRepository, shards int) *ShardedCounter {
	if shards <= 0 {
		shards = DefaultShards
	}
	return &ShardedCounter{repo: repo, shards: shards}
}

// Increment adds 1 to a uniformly random shard of the bucket. The per-shard
// increment is atomic at the store; nothing is read here.
func (c *ShardedCounter) Increment(ctx context.Context, bucketID string) error {
	shard := rand.Intn(c.shards)
	return c.repo.IncrementShard(ctx, bucketID, shard)
}

// Read sums every shard of the bucket. A bucket nobody has written to
// reads as zero.
func (c *ShardedCounter) Read(ctx context.Context, bucketID string) (Totals, error) {
	counts, err := c.repo.BucketShards(ctx, bucketID)
	if err != nil {
		return Totals{}, err
	}

	totals := Totals{Bucket: bucketID, ShardsSeen: len(counts)}
	for _, count := range counts {
		totals.Total += count
	}
	return totals, nil
}
