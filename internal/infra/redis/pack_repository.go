package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"trivia-room-service/internal/domain"
)

// PackLoader fetches pack content from a backing store (e.g., Postgres).
type PackLoader interface {
	LoadPack(ctx context.Context, packID string) (domain.Pack, error)
}

// PackRepository caches whole packs as JSON in Redis and falls back to a loader on cache miss.
// Packs are stored as: SET trivia:pack:{packID} {json}
type PackRepository struct {
	client *redis.Client
	loader PackLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewPackRepository(client *redis.Client, loader PackLoader, ttl time.Duration) *PackRepository {
	return &PackRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *PackRepository) GetPack(ctx context.Context, packID string) (domain.Pack, error) {
	if pack, ok := r.cached(ctx, packID); ok {
		return pack, nil
	}

	result, err, _ := r.sf.Do(packID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if pack, ok := r.cached(ctx, packID); ok {
			return pack, nil
		}

		pack, err := r.loader.LoadPack(ctx, packID)
		if err != nil {
			return domain.Pack{}, err
		}

		data, err := json.Marshal(pack)
		if err != nil {
			return domain.Pack{}, err
		}
		if err := r.client.Set(ctx, r.key(packID), data, r.ttlWithJitter()).Err(); err != nil {
			log.Error().Err(err).Str("pack_id", packID).Msg("cache pack")
		}
		return pack, nil
	})
	if err != nil {
		return domain.Pack{}, err
	}
	return result.(domain.Pack), nil
}

func (r *PackRepository) cached(ctx context.Context, packID string) (domain.Pack, bool) {
	data, err := r.client.Get(ctx, r.key(packID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Error().Err(err).Str("pack_id", packID).Msg("read cached pack")
		}
		return domain.Pack{}, false
	}
	var pack domain.Pack
	if err := json.Unmarshal(data, &pack); err != nil {
		log.Error().Err(err).Str("pack_id", packID).Msg("decode cached pack")
		return domain.Pack{}, false
	}
	return pack, true
}

func (r *PackRepository) key(packID string) string {
	return "trivia:pack:" + packID
}

func (r *PackRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
