package retired

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key layout: one set of codes per family plus a JSON entry per
	// code for the audit fields.
	retiredSetKeyPrefix   = "retired:set:"
	retiredEntryKeyPrefix = "retired:code:"
)

// Redis is a shared tombstone index for multi-instance deployments. Entries
// never expire: a retired code stays retired.
type Redis struct {
	client *redis.Client
}

var _ Index = (*Redis)(nil)

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func setKey(family string) string { return retiredSetKeyPrefix + family }

func entryKey(family, code string) string {
	return retiredEntryKeyPrefix + family + ":" + code
}

func (r *Redis) Retire(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal retired entry: %w", err)
	}
	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, setKey(entry.Family), entry.PublicCode)
	pipe.SetNX(ctx, entryKey(entry.Family, entry.PublicCode), payload, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("retire code %s: %w", entry.PublicCode, err)
	}
	return nil
}

func (r *Redis) IsRetired(ctx context.Context, family, code string) (bool, error) {
	retired, err := r.client.SIsMember(ctx, setKey(family), code).Result()
	if err != nil {
		return false, fmt.Errorf("check retired code %s: %w", code, err)
	}
	return retired, nil
}

func (r *Redis) List(ctx context.Context, family string) ([]Entry, error) {
	codes, err := r.client.SMembers(ctx, setKey(family)).Result()
	if err != nil {
		return nil, fmt.Errorf("list retired codes: %w", err)
	}
	entries := make([]Entry, 0, len(codes))
	for _, code := range codes {
		raw, err := r.client.Get(ctx, entryKey(family, code)).Result()
		if err == redis.Nil {
			// Set membership without metadata still counts as retired.
			entries = append(entries, Entry{Family: family, PublicCode: code})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load retired code %s: %w", code, err)
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode retired code %s: %w", code, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
