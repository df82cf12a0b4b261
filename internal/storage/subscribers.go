package storage

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// SubscribersKey is the redis set holding chat ids of batch report
// subscribers.
const SubscribersKey = "harvester:subscribers"

// SubscriberStore keeps the chats that receive scheduled batch reports.
type SubscriberStore interface {
	Add(ctx context.Context, chatID int64) (bool, error)
	Remove(ctx context.Context, chatID int64) (bool, error)
	Contains(ctx context.Context, chatID int64) (bool, error)
	List(ctx context.Context) ([]int64, error)
}

// RedisSubscribers stores subscribers in a redis set so they survive
// restarts.
type RedisSubscribers struct {
	client *redis.Client
	key    string
}

// NewRedisSubscribers connects using a redis:// URL.
func NewRedisSubscribers(ctx context.Context, url string) (*RedisSubscribers, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisSubscribers{client: client, key: SubscribersKey}, nil
}

func (s *RedisSubscribers) Add(ctx context.Context, chatID int64) (bool, error) {
	n, err := s.client.SAdd(ctx, s.key, chatID).Result()
	if err != nil {
		return false, fmt.Errorf("add subscriber %d: %w", chatID, err)
	}
	return n > 0, nil
}

func (s *RedisSubscribers) Remove(ctx context.Context, chatID int64) (bool, error) {
	n, err := s.client.SRem(ctx, s.key, chatID).Result()
	if err != nil {
		return false, fmt.Errorf("remove subscriber %d: %w", chatID, err)
	}
	return n > 0, nil
}

func (s *RedisSubscribers) Contains(ctx context.Context, chatID int64) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key, chatID).Result()
	if err != nil {
		return false, fmt.Errorf("check subscriber %d: %w", chatID, err)
	}
	return ok, nil
}

// List returns subscribers sorted by chat id. Members that are not numbers
// are ignored.
func (s *RedisSubscribers) List(ctx context.Context) ([]int64, error) {
	members, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *RedisSubscribers) Close() error {
	return s.client.Close()
}

// MemorySubscribers is used when no redis URL is configured. Subscriptions
// are lost on restart.
type MemorySubscribers struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

func NewMemorySubscribers() *MemorySubscribers {
	return &MemorySubscribers{ids: make(map[int64]struct{})}
}

func (s *MemorySubscribers) Add(_ context.Context, chatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[chatID]; ok {
		return false, nil
	}
	s.ids[chatID] = struct{}{}
	return true, nil
}

func (s *MemorySubscribers) Remove(_ context.Context, chatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[chatID]; !ok {
		return false, nil
	}
	delete(s.ids, chatID)
	return true, nil
}

func (s *MemorySubscribers) Contains(_ context.Context, chatID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[chatID]
	return ok, nil
}

func (s *MemorySubscribers) List(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
