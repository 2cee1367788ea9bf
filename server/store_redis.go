package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"arenasync/entity"
)

// roomTTL 房间哈希在最后一次写入后的过期时间，防止中继崩溃后残留
const roomTTL = time.Hour

// RedisStore 每个房间一个哈希：arena:room:<room>:players，field 为玩家 id，value 为快照 JSON
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 连接并 Ping 一次
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisStore{client: rdb}, nil
}

func roomKey(room string) string {
	return fmt.Sprintf("arena:room:%s:players", room)
}

func (s *RedisStore) Save(ctx context.Context, room string, snap entity.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ID, err)
	}
	key := roomKey(room)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, snap.ID, b)
	pipe.Expire(ctx, key, roomTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save %s/%s: %w", room, snap.ID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, room, id string) error {
	if err := s.client.HDel(ctx, roomKey(room), id).Err(); err != nil {
		return fmt.Errorf("redis delete %s/%s: %w", room, id, err)
	}
	return nil
}

// List 跳过无法解析的条目
func (s *RedisStore) List(ctx context.Context, room string) ([]entity.Snapshot, error) {
	vals, err := s.client.HGetAll(ctx, roomKey(room)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis list %s: %w", room, err)
	}
	out := make([]entity.Snapshot, 0, len(vals))
	for id, v := range vals {
		var snap entity.Snapshot
		if err := json.Unmarshal([]byte(v), &snap); err != nil {
			continue
		}
		snap.ID = id
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
