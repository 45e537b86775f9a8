package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/camfeed/camfeed-server/internal/domain/stream"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrStreamNotFound = errors.New("stream not found")

	streamKeyPrefix = "camfeed:stream:"
	nextIDKey       = "camfeed:stream:next_id"
	streamIDsKey    = "camfeed:streams" // SET of string IDs: {"1", "2", ...}
)

func streamKeyInt(id int64) string  { return streamKeyPrefix + strconv.FormatInt(id, 10) }
func streamKeyStr(id string) string { return streamKeyPrefix + id }

// StreamRepository provides Redis-backed persistence for stream.Config entities.
type StreamRepository struct {
	client *RedisClient
	log    *zap.Logger
}

// newStreamRepository initializes a new StreamRepository instance.
func newStreamRepository(log *zap.Logger, client *RedisClient) *StreamRepository {
	log = log.Named("streams")

	return &StreamRepository{
		log:    log,
		client: client,
	}
}

// GenerateID increments and returns the next unique stream ID.
func (r *StreamRepository) GenerateID(ctx context.Context) (int64, error) {
	id, err := r.client.Incr(ctx, nextIDKey).Result()
	if err != nil {
		return 0, fmt.Errorf("incr: %w", err)
	}
	return id, nil
}

// Upsert persists a stream.Config and adds its ID to the Redis index set.
func (r *StreamRepository) Upsert(ctx context.Context, cfg *stream.Config) error {
	key := streamKeyInt(cfg.ID)

	payload, err := encodeStream(cfg)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, payload, 0)
	pipe.SAdd(ctx, streamIDsKey, strconv.FormatInt(cfg.ID, 10))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// Delete removes a stream by ID.
// Returns ErrStreamNotFound if the stream key was not present in Redis.
// Logs a warning if the stream record and index set are inconsistent.
func (r *StreamRepository) Delete(ctx context.Context, id int64) error {
	key := streamKeyInt(id)
	idStr := strconv.FormatInt(id, 10)

	pipe := r.client.TxPipeline()
	delRes := pipe.Del(ctx, key)
	sremRes := pipe.SRem(ctx, streamIDsKey, idStr)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	delCount := delRes.Val()
	sremCount := sremRes.Val()

	// If both returned 0, nothing existed
	if delCount == 0 && sremCount == 0 {
		return ErrStreamNotFound
	}

	// If they differ, log it — data/index mismatch
	if delCount != sremCount {
		r.log.Warn(
			"stream delete mismatch",
			zap.String("key", key),
			zap.String("id", idStr),
			zap.Int64("del_count", delCount),
			zap.Int64("srem_count", sremCount),
		)
	}

	return nil
}

// HasID returns true if a stream with the given ID exists.
func (r *StreamRepository) HasID(ctx context.Context, id int64) (bool, error) {
	ok, err := r.client.SIsMember(ctx, streamIDsKey, strconv.FormatInt(id, 10)).Result()
	if err != nil {
		return false, fmt.Errorf("ismember: %w", err)
	}
	return ok, nil
}

// GetByID fetches a stream by its ID.
// Returns ErrStreamNotFound if the key does not exist.
func (r *StreamRepository) GetByID(ctx context.Context, id int64) (*stream.Config, error) {
	key := streamKeyInt(id)

	value, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStreamNotFound
		}
		return nil, fmt.Errorf("get: %w", err)
	}

	cfg, err := decodeStream(value)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return cfg, nil
}

// GetByIDs retrieves multiple streams by ID.
func (r *StreamRepository) GetByIDs(ctx context.Context, ids []int64) ([]*stream.Config, error) {
	if len(ids) == 0 {
		return []*stream.Config{}, nil
	}

	keys := streamKeysInt(ids)
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}

	return r.parseMGetResult(keys, vals)
}

// GetAll returns all stream.Configs currently indexed in Redis.
//
// Note: This operation is **not strongly consistent**. It issues two separate
// calls (SMEMBERS, then MGET); streams created or deleted between them may
// produce transient gaps. Callers should treat the result as an eventually
// consistent snapshot, not a transactional view.
func (r *StreamRepository) GetAll(ctx context.Context) ([]*stream.Config, error) {
	ids, err := r.client.SMembers(ctx, streamIDsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("smembers: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := streamKeysStr(ids)
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}

	return r.parseMGetResult(keys, vals)
}

// streamKeysInt builds Redis keys for multiple int64 stream IDs.
func streamKeysInt(ids []int64) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = streamKeyInt(id)
	}
	return keys
}

// streamKeysStr builds Redis keys for multiple string stream IDs.
func streamKeysStr(ids []string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = streamKeyStr(id)
	}
	return keys
}

// encodeStream serializes a stream.Config to JSON.
func encodeStream(cfg *stream.Config) ([]byte, error) {
	return json.Marshal(cfg)
}

// decodeStream deserializes a JSON payload into a stream.Config.
func decodeStream(raw []byte) (*stream.Config, error) {
	var cfg stream.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// parseMGetResult converts Redis MGET results to stream.Config structs.
// Missing keys are logged and skipped; callers should treat them as
// eventual-consistency artifacts, not hard failures.
func (r *StreamRepository) parseMGetResult(keys []string, vals []interface{}) ([]*stream.Config, error) {
	out := make([]*stream.Config, 0, len(vals))

	for i, v := range vals {
		if v == nil {
			r.log.Warn(
				"stream missing during MGET",
				zap.String("key", keys[i]),
				zap.Int("index", i),
			)
			continue
		}

		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("key %s at index %d: unexpected type (got %T, want string)", keys[i], i, v)
		}
		cfg, err := decodeStream([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("key %s at index %d: decode stream: %w", keys[i], i, err)
		}
		out = append(out, cfg)
	}
	return out, nil
}
