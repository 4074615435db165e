package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Document number prefixes per entity type.
const (
	SeqPrefixOrder       = "ORD"
	SeqPrefixTransaction = "TXN"
	SeqPrefixShipment    = "SHP"
)

const seqTTL = 24 * time.Hour

// SequenceGenerator produces strictly increasing, human-readable document
// numbers scoped to an entity-type prefix and the calendar day. The counter
// lives in Redis so increments stay atomic under concurrent callers and are
// independent of the surrounding database transaction: a rolled-back order
// burns its number rather than reusing it.
type SequenceGenerator struct {
	client *redis.Client
}

// NewSequenceGenerator constructs the generator.
func NewSequenceGenerator(client *redis.Client) *SequenceGenerator {
	return &SequenceGenerator{client: client}
}

// Next returns the next number for the prefix on the given date, formatted as
// {PREFIX}{yymmdd}{seq} with the sequence zero-padded to four digits.
func (g *SequenceGenerator) Next(ctx context.Context, prefix string, date time.Time) (string, error) {
	if g == nil || g.client == nil {
		return "", fmt.Errorf("sequence: redis client not initialised")
	}
	day := date.Format("060102")
	key := fmt.Sprintf("seq:%s:%s", prefix, day)

	seq, err := g.client.Incr(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("sequence: incr %s: %w", key, err)
	}
	// Refreshing the TTL on every call is harmless; the key only needs to
	// outlive its calendar day.
	if err := g.client.Expire(ctx, key, seqTTL).Err(); err != nil {
		return "", fmt.Errorf("sequence: expire %s: %w", key, err)
	}

	return fmt.Sprintf("%s%s%04d", prefix, day, seq), nil
}
