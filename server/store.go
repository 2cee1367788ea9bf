package server

import (
	"context"
	"sort"
	"sync"

	"arenasync/entity"
)

// PlayerStore 中继玩家快照的持久化，供管理接口与外部系统读取
// 房间协程周期写入；实现必须并发安全
type PlayerStore interface {
	Save(ctx context.Context, room string, snap entity.Snapshot) error
	Delete(ctx context.Context, room, id string) error
	List(ctx context.Context, room string) ([]entity.Snapshot, error)
	Close() error
}

// MemoryStore 默认实现，进程内保存
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]map[string]entity.Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]map[string]entity.Snapshot)}
}

func (s *MemoryStore) Save(_ context.Context, room string, snap entity.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	players, ok := s.rooms[room]
	if !ok {
		players = make(map[string]entity.Snapshot)
		s.rooms[room] = players
	}
	players[snap.ID] = snap
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, room, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms[room], id)
	return nil
}

func (s *MemoryStore) List(_ context.Context, room string) ([]entity.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.Snapshot, 0, len(s.rooms[room]))
	for _, snap := range s.rooms[room] {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
