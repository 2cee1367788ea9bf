package broadcast

import (
	"sort"
	"sync"
)

// Handler 接收一帧原始数据；在 Publish 的调用协程中同步执行，不能阻塞也不能回调 Hub
type Handler func(frame []byte)

// Hub 进程内按名称分组的广播频道（同源多窗口的等价物）
// 同一频道的每个订阅者（包括发送者自己）都会按发布顺序收到每条消息
type Hub struct {
	mu       sync.Mutex
	channels map[string]map[uint64]Handler
	nextID   uint64
}

func NewHub() *Hub {
	return &Hub{channels: make(map[string]map[uint64]Handler)}
}

// Subscribe 订阅频道，返回取消订阅函数（可重复调用）
func (h *Hub) Subscribe(channel string, fn Handler) (unsubscribe func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[uint64]Handler)
		h.channels[channel] = subs
	}
	subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.channels[channel]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(h.channels, channel)
				}
			}
		})
	}
}

// Publish 把 frame 投递给频道内全部订阅者，返回投递数量
// 整个投递过程持锁，保证同一频道上并发发布的消息对所有订阅者顺序一致
func (h *Hub) Publish(channel string, frame []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.channels[channel]
	for _, id := range sortedIDs(subs) {
		cp := make([]byte, len(frame))
		copy(cp, frame)
		subs[id](cp)
	}
	return len(subs)
}

// Subscribers 频道当前订阅者数量
func (h *Hub) Subscribers(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels[channel])
}

func sortedIDs(subs map[uint64]Handler) []uint64 {
	ids := make([]uint64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
