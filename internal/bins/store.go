package bins

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	dErrors "hauler/pkg/domain-errors"
)

// Store provides read access to bin telemetry.
type Store interface {
	GetBin(ctx context.Context, id string) (Bin, error)
	ListBins(ctx context.Context) ([]Bin, error)
}

const (
	binKeyPrefix = "bin:"
	binIndexKey  = "bins:index"
)

// RedisStore reads bin telemetry from Redis, where the ingestion pipeline
// keeps the latest sensor snapshot per bin.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) GetBin(ctx context.Context, id string) (Bin, error) {
	raw, err := s.client.Get(ctx, binKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return Bin{}, dErrors.New(dErrors.CodeNotFound, "bin not found")
	}
	if err != nil {
		return Bin{}, dErrors.Wrap(err, dErrors.CodeDatabase, "loading bin")
	}
	var bin Bin
	if err := json.Unmarshal(raw, &bin); err != nil {
		return Bin{}, dErrors.Wrap(err, dErrors.CodeDatabase, "decoding bin snapshot")
	}
	return bin, nil
}

func (s *RedisStore) ListBins(ctx context.Context) ([]Bin, error) {
	ids, err := s.client.SMembers(ctx, binIndexKey).Result()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDatabase, "listing bins")
	}
	sort.Strings(ids)

	bins := make([]Bin, 0, len(ids))
	for _, id := range ids {
		bin, err := s.GetBin(ctx, id)
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			// Index entry outlived its snapshot; skip it.
			continue
		}
		if err != nil {
			return nil, err
		}
		bins = append(bins, bin)
	}
	return bins, nil
}

// MemoryStore is a seeded in-process Store for dev mode and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	bins map[string]Bin
}

func NewMemoryStore(seed ...Bin) *MemoryStore {
	s := &MemoryStore{bins: make(map[string]Bin, len(seed))}
	for _, b := range seed {
		s.bins[b.ID] = b
	}
	return s
}

func (s *MemoryStore) GetBin(_ context.Context, id string) (Bin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bin, ok := s.bins[id]
	if !ok {
		return Bin{}, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("bin %s not found", id))
	}
	return bin, nil
}

func (s *MemoryStore) ListBins(context.Context) ([]Bin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bins := make([]Bin, 0, len(s.bins))
	for _, b := range s.bins {
		bins = append(bins, b)
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].ID < bins[j].ID })
	return bins, nil
}
