package server

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RoomManager 管理多个房间的生命周期，由 Server 显式持有
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	cfg   RoomConfig
	store PlayerStore
	now   func() time.Time
	log   *zap.SugaredLogger
}

func NewRoomManager(cfg RoomConfig, store PlayerStore, now func() time.Time, log *zap.SugaredLogger) *RoomManager {
	return &RoomManager{
		rooms: make(map[string]*Room),
		cfg:   cfg,
		store: store,
		now:   now,
		log:   log,
	}
}

// GetOrCreateRoom 获取或创建房间，并确保开始运行
func (m *RoomManager) GetOrCreateRoom(id string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked(id)
}

// Acquire 为新连接获取房间并计数；连接退出时调用 Room.Release
// 计数在管理器锁内完成，空闲回收不会收走刚分配出去的房间
func (m *RoomManager) Acquire(id string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.getOrCreateLocked(id)
	r.conns.Add(1)
	return r
}

func (m *RoomManager) getOrCreateLocked(id string) *Room {
	r, ok := m.rooms[id]
	if !ok {
		r = NewRoom(id, m.cfg, m.store, m.now, m.log)
		r.reap = m.reap
		m.rooms[id] = r
		go r.Run()
		m.log.Infow("room created", "room", id)
	}
	return r
}

// reap 由房间协程在空闲时调用；期间有新连接则拒绝
func (m *RoomManager) reap(r *Room) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[r.ID] != r || r.conns.Load() > 0 {
		return false
	}
	delete(m.rooms, r.ID)
	return true
}

// Room 只查找，不创建
func (m *RoomManager) Room(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// Rooms 按 id 排序
func (m *RoomManager) Rooms() []*Room {
	m.mu.RLock()
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StopAll 停止全部房间并等待其退出
// 等待期间不持锁：房间协程回收空闲时也要获取管理器锁
func (m *RoomManager) StopAll() {
	m.mu.Lock()
	rooms := m.rooms
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()
	for _, r := range rooms {
		r.Stop()
		<-r.Done()
	}
}
