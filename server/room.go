package server

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"arenasync/entity"
	"arenasync/protocol"
)

// Room 一个频道的中继状态：连接与玩家的绑定、合并后的玩家快照
// 只由 Run 所在协程修改；其他协程通过 Inbox 投递命令
type Room struct {
	ID    string
	Inbox chan any

	players map[PlayerID]*Player
	bound   map[string]PlayerID // conn id -> player id

	cfg     RoomConfig
	now     func() time.Time
	store   PlayerStore
	metrics *RoomMetrics
	log     *zap.SugaredLogger

	dirty   map[PlayerID]bool // 待写入 store
	removed map[PlayerID]bool // 待从 store 删除

	conns atomic.Int32      // 挂在本房间上的连接数（含尚未 join 的）
	reap  func(*Room) bool // 空闲时向管理器申请注销，返回 true 后 Run 退出

	stopOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
}

// NewRoom 创建房间，初始化数据结构
func NewRoom(id string, cfg RoomConfig, store PlayerStore, now func() time.Time, log *zap.SugaredLogger) *Room {
	return &Room{
		ID:      id,
		Inbox:   make(chan any, 256), // 足够缓冲，避免网络读阻塞
		players: make(map[PlayerID]*Player),
		bound:   make(map[string]PlayerID),
		cfg:     cfg,
		now:     now,
		store:   store,
		metrics: &RoomMetrics{},
		log:     log.With("room", id),
		dirty:   make(map[PlayerID]bool),
		removed: make(map[PlayerID]bool),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// Release 连接退出时调用，与 RoomManager.Acquire 成对
func (r *Room) Release() { r.conns.Add(-1) }

// idle 没有玩家也没有连接
func (r *Room) idle() bool {
	return len(r.players) == 0 && r.conns.Load() == 0
}

// OnInput 入站消息（非阻塞，房间拥塞时丢弃）
func (r *Room) OnInput(in Input) {
	select {
	case r.Inbox <- in:
	default:
		r.metrics.IncInboxFull()
	}
}

// RequestLeave 请求在房间协程中移除连接；离开不能丢，阻塞直到投递或房间停止
func (r *Room) RequestLeave(c Conn) {
	select {
	case r.Inbox <- Leave{Conn: c}:
	case <-r.quit:
	}
}

func (r *Room) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case Input:
		r.handleInput(c.Conn, c.Msg)
	case Leave:
		r.handleLeave(c.Conn)
	case configQuery:
		if c.update != nil {
			r.cfg = *c.update
		}
		c.reply <- r.cfg
	}
}

// handleInput 按消息类型转发；连接只能代表它 join 时声明的玩家
func (r *Room) handleInput(c Conn, msg protocol.Message) {
	r.metrics.IncMessagesIn()
	now := r.now()

	if msg.Type == protocol.TypePlayerJoined {
		r.join(c, msg, now)
		return
	}

	pid, ok := r.bound[c.ID()]
	if !ok || string(pid) != msg.PlayerID {
		r.metrics.IncSpoofed()
		r.log.Debugw("dropping message from unbound or mismatched connection", "conn", c.ID(), "type", msg.Type, "playerId", msg.PlayerID)
		return
	}
	p := r.players[pid]

	switch msg.Type {
	case protocol.TypeStateUpdate:
		p.State.Merge(*msg.State)
		p.LastSeen = now
		r.dirty[pid] = true
		r.broadcast(protocol.RemoteUpdated(string(pid), entity.Snapshot{ID: string(pid), State: *msg.State}), pid)
	case protocol.TypeHeartbeat:
		p.LastSeen = now
	case protocol.TypePlayerLeft:
		delete(r.bound, c.ID())
		r.remove(pid)
		r.metrics.IncLeaves()
		r.log.Infow("player left", "player", pid)
	default:
		// 只应由中继发出的消息类型
		r.metrics.IncMalformed()
	}
}

func (r *Room) join(c Conn, msg protocol.Message, now time.Time) {
	pid := PlayerID(msg.PlayerID)
	if cur, ok := r.bound[c.ID()]; ok && cur != pid {
		r.metrics.IncSpoofed()
		r.log.Warnw("connection tried to join as a second player", "conn", c.ID(), "bound", cur, "playerId", pid)
		return
	}

	p, exists := r.players[pid]
	if exists && p.Conn.ID() != c.ID() {
		// 同一玩家换了连接（重连），旧连接作废但不广播离开
		delete(r.bound, p.Conn.ID())
		p.Conn.Close()
		p.Conn = c
	}
	if !exists {
		p = &Player{ID: pid, Conn: c}
		r.players[pid] = p
		r.metrics.IncJoins()
	}
	r.bound[c.ID()] = pid
	p.State.Merge(entity.State{
		Name:       entity.Ptr(msg.PlayerName),
		Color:      entity.Ptr(msg.Color),
		LastUpdate: entity.Ptr(now.UnixMilli()),
	})
	p.LastSeen = now
	r.dirty[pid] = true
	delete(r.removed, pid)
	r.metrics.SetPlayers(len(r.players))

	others := make([]entity.Snapshot, 0, len(r.players)-1)
	for _, o := range r.sortedPlayers() {
		if o.ID != pid {
			others = append(others, o.Snapshot())
		}
	}
	r.sendTo(c, protocol.PlayersList(others))
	if !exists {
		r.broadcast(protocol.RemoteAdded(string(pid), p.Snapshot()), pid)
		r.log.Infow("player joined", "player", pid, "name", msg.PlayerName, "conn", c.ID())
	}
}

// handleLeave 连接关闭：移除绑定的玩家并通知其他人
func (r *Room) handleLeave(c Conn) {
	pid, ok := r.bound[c.ID()]
	if !ok {
		return
	}
	delete(r.bound, c.ID())
	if p, ok := r.players[pid]; ok && p.Conn.ID() == c.ID() {
		r.remove(pid)
		r.metrics.IncLeaves()
		r.log.Infow("player disconnected", "player", pid)
	}
}

// Sweep 剔除超过不活跃时限的玩家并关闭其连接
func (r *Room) Sweep(now time.Time) {
	start := time.Now()
	for _, p := range r.sortedPlayers() {
		if idle := now.Sub(p.LastSeen); idle > r.cfg.InactivityTimeout {
			delete(r.bound, p.Conn.ID())
			r.remove(p.ID)
			p.Conn.Close()
			r.metrics.IncEvicted()
			r.log.Infow("evicting inactive player", "player", p.ID, "idle", idle.String())
		}
	}
	r.metrics.AddSweep(time.Since(start).Nanoseconds())
}

func (r *Room) remove(pid PlayerID) {
	if _, ok := r.players[pid]; !ok {
		return
	}
	delete(r.players, pid)
	delete(r.dirty, pid)
	r.removed[pid] = true
	r.metrics.SetPlayers(len(r.players))
	r.broadcast(protocol.Removed(string(pid)), pid)
}

// broadcast 编码一次，发给除 except 之外的所有玩家
func (r *Room) broadcast(msg protocol.Message, except PlayerID) {
	b, err := protocol.Encode(msg)
	if err != nil {
		r.log.Errorw("encode broadcast", "type", msg.Type, "err", err)
		return
	}
	for _, p := range r.players {
		if p.ID == except {
			continue
		}
		if p.Conn.Send(b) {
			r.metrics.IncRelayed()
		} else {
			r.metrics.IncSendDropped()
		}
	}
}

func (r *Room) sendTo(c Conn, msg protocol.Message) {
	b, err := protocol.Encode(msg)
	if err != nil {
		r.log.Errorw("encode reply", "type", msg.Type, "err", err)
		return
	}
	if !c.Send(b) {
		r.metrics.IncSendDropped()
	}
}

func (r *Room) sortedPlayers() []*Player {
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
