package peer

import "arenasync/entity"

// EventKind 封闭的事件枚举
type EventKind uint8

const (
	PeerJoined EventKind = iota
	PeerUpdated
	PeerLeft
	LocalStateUpdated
	LocalStateBroadcast
	LivenessPulse
)

var eventNames = map[EventKind]string{
	PeerJoined:          "peer-joined",
	PeerUpdated:         "peer-updated",
	PeerLeft:            "peer-left",
	LocalStateUpdated:   "local-state-updated",
	LocalStateBroadcast: "local-state-broadcast",
	LivenessPulse:       "liveness-pulse",
}

func (k EventKind) String() string {
	if s, ok := eventNames[k]; ok {
		return s
	}
	return "unknown"
}

// LeaveReason PeerLeft 的原因
type LeaveReason uint8

const (
	LeaveNone     LeaveReason = iota
	LeaveDeparted             // 收到离开通知 / 中继报告移除
	LeaveTimeout              // 不活跃剔除
	LeaveDied                 // 死亡倒计时结束
	LeaveMissing              // 重新连接中继后不在 playersList 中
)

func (r LeaveReason) String() string {
	switch r {
	case LeaveDeparted:
		return "departed"
	case LeaveTimeout:
		return "timeout"
	case LeaveDied:
		return "died"
	case LeaveMissing:
		return "missing"
	}
	return "none"
}

// Event 派发给订阅者的事件；Snapshot 为事件发生时的状态副本
type Event struct {
	Kind     EventKind
	PeerID   string
	Snapshot entity.Snapshot
	State    entity.State // PeerUpdated / LocalState* 时为本次的稀疏更新
	Reason   LeaveReason
}

// Handler 事件处理函数，在派发事件的协程中同步执行
type Handler func(Event)

// HandlerID On 返回的句柄，用于 Off
type HandlerID uint64

type handlerEntry struct {
	id HandlerID
	fn Handler
}

// On 订阅事件，处理函数按注册顺序执行
func (m *Manager) On(kind EventKind, fn Handler) HandlerID {
	m.hmu.Lock()
	defer m.hmu.Unlock()
	m.nextHandler++
	id := m.nextHandler
	m.handlers[kind] = append(m.handlers[kind], handlerEntry{id: id, fn: fn})
	return id
}

// Off 取消订阅，返回是否找到
func (m *Manager) Off(kind EventKind, id HandlerID) bool {
	m.hmu.Lock()
	defer m.hmu.Unlock()
	hs := m.handlers[kind]
	for i, h := range hs {
		if h.id == id {
			m.handlers[kind] = append(hs[:i:i], hs[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Manager) dispatch(evs []Event) {
	for _, ev := range evs {
		m.hmu.RLock()
		hs := m.handlers[ev.Kind]
		m.hmu.RUnlock()
		for _, h := range hs {
			m.call(h, ev)
		}
	}
}

// call 隔离单个处理函数的 panic，不影响后续处理函数与管理器状态
func (m *Manager) call(h handlerEntry, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorw("event handler panicked", "event", ev.Kind.String(), "handler", h.id, "panic", r)
		}
	}()
	h.fn(ev)
}
