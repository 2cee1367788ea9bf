package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"arenasync/broadcast"
	"arenasync/config"
	"arenasync/entity"
	"arenasync/logger"
	"arenasync/protocol"
)

var (
	ErrNotInitialized = errors.New("peer manager not initialized")
	ErrClosed         = errors.New("peer manager closed")
)

const (
	AdvanceInterval = 50 * time.Millisecond // Run 的步进间隔，即一个 Tick
	inboxSize       = 1024
)

// State 传输选择状态机
type State uint8

const (
	StateUninitialized State = iota
	StateAttemptingRelay
	StateUsingLocalBroadcast
	StateActive
	StateOffline // 中继重试耗尽且禁用本地回退，或已 Shutdown
)

func (s State) String() string {
	switch s {
	case StateAttemptingRelay:
		return "attempting-relay"
	case StateUsingLocalBroadcast:
		return "using-local-broadcast"
	case StateActive:
		return "active"
	case StateOffline:
		return "offline"
	}
	return "uninitialized"
}

type inboundKind uint8

const (
	inMessage inboundKind = iota
	inDisconnected
	inConnectResult
)

// inbound 传输协程投递到管理器的事件，由 Advance 在持锁状态下统一处理
type inbound struct {
	kind      inboundKind
	gen       uint64
	msg       protocol.Message
	from      string
	err       error
	transport Transport
}

// receiver 绑定某一代传输，过期代的消息在处理时丢弃
type receiver struct {
	m   *Manager
	gen uint64
}

func (r *receiver) Deliver(msg protocol.Message, from string) {
	select {
	case r.m.inbox <- inbound{kind: inMessage, gen: r.gen, msg: msg, from: from}:
	default:
		r.m.log.Warnw("inbox full, dropping message", "type", msg.Type, "from", from)
	}
}

func (r *receiver) Disconnected(err error) {
	r.m.postControl(inbound{kind: inDisconnected, gen: r.gen, err: err})
}

// Option 构造选项
type Option func(*Manager)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(m *Manager) { m.log = l }
}

// WithHub 指定本地广播使用的 Hub；同一 Hub 同一频道上的管理器互相可见
func WithHub(h *broadcast.Hub) Option {
	return func(m *Manager) { m.hub = h }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRelayFactory 替换中继传输的创建方式（测试注入）
func WithRelayFactory(f func() Transport) Option {
	return func(m *Manager) { m.relayFactory = f }
}

// WithID 使用固定身份而不是随机生成
func WithID(id string) Option {
	return func(m *Manager) { m.id = id }
}

// Manager 对等同步管理器：维护本地身份，向对端传播本地状态，并把对端状态镜像为 Remote 实体
//
// 传输协程只向 inbox 投递，所有状态变更在 Advance / Initialize / PublishLocalState 中持锁完成，
// 事件在释放锁之后同步派发。
type Manager struct {
	cfg          config.Peer
	id           string
	color        string
	log          *zap.SugaredLogger
	hub          *broadcast.Hub
	now          func() time.Time
	relayFactory func() Transport

	mu          sync.Mutex
	state       State
	transport   Transport
	kind        TransportKind
	local       *entity.Entity
	peers       *entity.Registry // 只含 Remote 实体
	initialized bool
	closed      bool
	announced   bool // 当前传输上是否已发送 join

	attempts    int
	dialing     bool
	nextAttempt time.Time
	nextPulse   time.Time
	nextSweep   time.Time
	gen         uint64
	lostGen     uint64 // 连接结果到达之前已断开的拨号代

	inbox  chan inbound
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	hmu         sync.RWMutex
	handlers    map[EventKind][]handlerEntry
	nextHandler HandlerID
}

// NewManager 校验配置并选择传输：配置了中继地址则立即开始连接，否则直接使用本地广播
func NewManager(cfg config.Peer, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:      cfg,
		log:      logger.Named("peer"),
		now:      time.Now,
		peers:    entity.NewRegistry(),
		inbox:    make(chan inbound, inboxSize),
		handlers: make(map[EventKind][]handlerEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.id == "" {
		m.id = entity.GenerateUniqueID()
	}
	if m.hub == nil {
		m.hub = broadcast.NewHub()
	}
	m.color = cfg.Color
	if m.color == "" {
		m.color = entity.PickColor(m.id)
	}
	m.log = m.log.With("self", m.id)
	if m.relayFactory == nil {
		m.relayFactory = func() Transport {
			return NewRelayTransport(cfg.TransportEndpoint, cfg.ChannelName, m.log)
		}
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	now := m.now()
	m.nextSweep = now.Add(cfg.SweepInterval)

	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.TransportEndpoint != "" {
		m.state = StateAttemptingRelay
		m.stepRelayLocked(now)
	} else {
		m.useLocalLocked()
	}
	return m, nil
}

func (m *Manager) ID() string { return m.id }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transport 当前使用的传输类型
func (m *Manager) Transport() TransportKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kind
}

// Initialize 注册本地实体、在当前传输上宣告存在、启动心跳，返回本地身份；重复调用直接返回
func (m *Manager) Initialize() (string, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	if m.initialized {
		m.mu.Unlock()
		return m.id, nil
	}
	now := m.now()
	m.local = entity.NewPlayer(m.id, m.cfg.DisplayName, m.color, entity.Local)
	m.local.Touch(now)
	m.initialized = true
	m.nextPulse = now.Add(m.cfg.PulseInterval)
	if m.state == StateUsingLocalBroadcast {
		m.state = StateActive
	}
	if m.transport != nil {
		m.announceLocked()
	}
	m.log.Infow("peer initialized", "name", m.cfg.DisplayName, "state", m.state.String(), "transport", m.kind.String())
	m.mu.Unlock()
	return m.id, nil
}

// PublishLocalState 将 partial 合并进本地实体并发送给所有对端
// 合并立即可见，不等待任何往返；发送失败只记录日志
func (m *Manager) PublishLocalState(partial entity.State) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if !m.initialized {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	now := m.now()
	m.local.ApplyState(partial)
	m.local.Touch(now)

	out := partial
	out.LastUpdate = entity.Ptr(now.UnixMilli())
	evs := []Event{{Kind: LocalStateUpdated, PeerID: m.id, Snapshot: m.local.Snapshot(), State: partial}}
	if m.sendLocked(protocol.StateUpdate(m.id, out)) {
		evs = append(evs, Event{Kind: LocalStateBroadcast, PeerID: m.id, Snapshot: m.local.Snapshot(), State: out})
	}
	m.mu.Unlock()

	m.dispatch(evs)
	return nil
}

// Advance 调度步进：处理已到达的入站消息，推进中继重连、心跳、不活跃剔除与远端实体倒计时
func (m *Manager) Advance(now time.Time) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	var evs []Event
	for n := len(m.inbox); n > 0; n-- {
		evs = m.handleLocked(<-m.inbox, now, evs)
	}

	m.stepRelayLocked(now)

	if m.initialized && !now.Before(m.nextPulse) {
		m.nextPulse = now.Add(m.cfg.PulseInterval)
		m.local.Touch(now)
		m.sendLocked(protocol.Heartbeat(m.id))
		evs = append(evs, Event{Kind: LivenessPulse, PeerID: m.id, Snapshot: m.local.Snapshot()})
	}

	if !now.Before(m.nextSweep) {
		m.nextSweep = now.Add(m.cfg.SweepInterval)
		evs = m.sweepLocked(now, evs)
	}

	for _, e := range m.peers.AdvanceAll(1) {
		evs = append(evs, Event{Kind: PeerLeft, PeerID: e.ID, Snapshot: e.Snapshot(), Reason: LeaveDied})
	}
	m.mu.Unlock()

	m.dispatch(evs)
}

// Run 以固定间隔调用 Advance，直到 ctx 结束或 Shutdown
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(AdvanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Advance(m.now())
		}
	}
}

// Shutdown 停止心跳、尽力发送离开通知并释放传输；可在任意状态重复调用
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.transport != nil {
		if m.announced {
			if err := m.transport.Send(protocol.Leave(m.id)); err != nil {
				m.log.Debugw("leave notice not sent", "err", err)
			}
		}
		_ = m.transport.Close()
		m.transport = nil
	}
	m.kind = TransportNone
	m.state = StateOffline
	m.cancel()
	m.peers.Clear()
	if m.local != nil {
		m.local.Release()
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.log.Infow("peer shut down")
}

// LocalEntity 本地实体副本，未初始化时为 nil
func (m *Manager) LocalEntity() *entity.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.local == nil {
		return nil
	}
	return m.local.Clone()
}

// RemoteEntities 按 id 排序的远端实体副本
func (m *Manager) RemoteEntities() []*entity.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAll(m.peers.All())
}

// AllEntities 本地实体在前，其后为远端实体
func (m *Manager) AllEntities() []*entity.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.Entity, 0, m.peers.Len()+1)
	if m.local != nil {
		out = append(out, m.local.Clone())
	}
	return append(out, cloneAll(m.peers.All())...)
}

func (m *Manager) Entity(id string) (*entity.Entity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.local != nil && id == m.id {
		return m.local.Clone(), true
	}
	e, ok := m.peers.Get(id)
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

func cloneAll(es []*entity.Entity) []*entity.Entity {
	out := make([]*entity.Entity, len(es))
	for i, e := range es {
		out[i] = e.Clone()
	}
	return out
}

// postControl 连接结果与断线通知不能丢，阻塞直到入队或管理器关闭
func (m *Manager) postControl(in inbound) bool {
	select {
	case m.inbox <- in:
		return true
	case <-m.ctx.Done():
		return false
	}
}

// stepRelayLocked 到达重试时间时发起一次异步拨号
func (m *Manager) stepRelayLocked(now time.Time) {
	if m.state != StateAttemptingRelay || m.dialing || now.Before(m.nextAttempt) {
		return
	}
	m.attempts++
	m.dialing = true
	m.gen++
	gen := m.gen
	t := m.relayFactory()
	m.log.Debugw("dialing relay", "endpoint", m.cfg.TransportEndpoint, "attempt", m.attempts)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.DialTimeout)
		defer cancel()
		err := t.Connect(ctx, &receiver{m: m, gen: gen})
		if !m.postControl(inbound{kind: inConnectResult, gen: gen, err: err, transport: t}) && err == nil {
			_ = t.Close()
		}
	}()
}

func (m *Manager) handleLocked(in inbound, now time.Time, evs []Event) []Event {
	if in.gen != m.gen {
		if in.kind == inConnectResult && in.err == nil {
			_ = in.transport.Close()
		}
		return evs
	}
	switch in.kind {
	case inConnectResult:
		m.connectResultLocked(in, now)
	case inDisconnected:
		if m.kind != TransportRelay {
			// 读协程可能早于连接结果报告断线
			m.lostGen = in.gen
			return evs
		}
		m.log.Warnw("relay disconnected", "err", in.err)
		_ = m.transport.Close()
		m.transport = nil
		m.kind = TransportNone
		m.announced = false
		m.state = StateAttemptingRelay
		m.attempts = 0
		m.nextAttempt = now.Add(m.cfg.RelayBackoff)
	case inMessage:
		evs = m.applyLocked(in.msg, in.from, now, evs)
	}
	return evs
}

func (m *Manager) connectResultLocked(in inbound, now time.Time) {
	m.dialing = false
	if m.state != StateAttemptingRelay {
		if in.err == nil {
			_ = in.transport.Close()
		}
		return
	}
	if in.err == nil && m.lostGen == in.gen {
		_ = in.transport.Close()
		in.err = errors.New("connection lost before handshake completed")
	}
	if in.err != nil {
		m.log.Warnw("relay connect failed", "attempt", m.attempts, "max", m.cfg.RelayMaxAttempts, "err", in.err)
		if m.attempts >= m.cfg.RelayMaxAttempts {
			m.fallbackLocked()
			return
		}
		m.nextAttempt = now.Add(m.cfg.RelayBackoff)
		return
	}
	m.transport = in.transport
	m.kind = TransportRelay
	m.state = StateActive
	m.attempts = 0
	m.announced = false
	m.log.Infow("relay connected", "endpoint", m.cfg.TransportEndpoint, "room", m.cfg.ChannelName)
	m.announceLocked()
}

// fallbackLocked 重试耗尽后永久放弃中继
func (m *Manager) fallbackLocked() {
	if !m.cfg.UseLocalFallback {
		m.state = StateOffline
		m.log.Warnw("relay unreachable and local fallback disabled, going offline", "attempts", m.attempts)
		return
	}
	m.log.Infow("relay unreachable, falling back to local broadcast", "attempts", m.attempts, "channel", m.cfg.ChannelName)
	m.useLocalLocked()
}

func (m *Manager) useLocalLocked() {
	m.gen++
	t := NewLocalTransport(m.hub, m.cfg.ChannelName, m.id, m.now, m.log)
	if err := t.Connect(m.ctx, &receiver{m: m, gen: m.gen}); err != nil {
		m.log.Errorw("local broadcast connect failed", "err", err)
		m.state = StateOffline
		return
	}
	m.transport = t
	m.kind = TransportLocal
	m.announced = false
	if m.initialized {
		m.state = StateActive
		m.announceLocked()
		return
	}
	m.state = StateUsingLocalBroadcast
}

// announceLocked 在当前传输上发送 join，已初始化时附带完整状态
func (m *Manager) announceLocked() {
	if m.transport == nil {
		return
	}
	if err := m.transport.Send(protocol.Join(m.id, m.cfg.DisplayName, m.color)); err != nil {
		m.log.Debugw("join announcement not sent", "err", err)
		return
	}
	m.announced = true
	if m.initialized {
		m.sendLocked(protocol.StateUpdate(m.id, m.local.Serialize()))
	}
}

// sendLocked 只在 Active 状态发送，返回是否已交给传输
func (m *Manager) sendLocked(msg protocol.Message) bool {
	if m.state != StateActive || m.transport == nil {
		return false
	}
	if !m.announced && msg.Type != protocol.TypePlayerJoined {
		m.announceLocked()
		if !m.announced {
			return false
		}
	}
	if err := m.transport.Send(msg); err != nil {
		m.log.Debugw("send failed", "type", msg.Type, "transport", m.kind.String(), "err", err)
		return false
	}
	return true
}

// applyLocked 处理单条入站消息；与传输无关
func (m *Manager) applyLocked(msg protocol.Message, from string, now time.Time, evs []Event) []Event {
	if from == m.id || (msg.PlayerID == m.id && msg.Type != protocol.TypePlayersList) {
		return evs
	}
	if from != "" && msg.PlayerID != "" && from != msg.PlayerID {
		m.log.Debugw("dropping message with mismatched sender", "type", msg.Type, "from", from, "playerId", msg.PlayerID)
		return evs
	}

	switch msg.Type {
	case protocol.TypePlayerJoined:
		if e, ok := m.peers.Get(msg.PlayerID); ok {
			e.Touch(now)
			return evs
		}
		e := entity.NewPlayer(msg.PlayerID, msg.PlayerName, msg.Color, entity.Remote)
		e.Touch(now)
		m.peers.Register(e)
		m.log.Infow("peer joined", "peer", e.ID, "name", e.Name)
		evs = append(evs, Event{Kind: PeerJoined, PeerID: e.ID, Snapshot: e.Snapshot()})
		if m.kind == TransportLocal && m.initialized {
			// 让新加入者发现自己
			m.announced = false
			m.announceLocked()
		}

	case protocol.TypeRemotePlayerAdded:
		evs = m.upsertLocked(*msg.PlayerData, now, evs)

	case protocol.TypePlayersList:
		seen := make(map[string]bool, len(msg.Players))
		for _, snap := range msg.Players {
			if snap.ID == m.id {
				continue
			}
			seen[snap.ID] = true
			evs = m.upsertLocked(snap, now, evs)
		}
		if m.kind == TransportRelay {
			for _, e := range m.peers.All() {
				if !seen[e.ID] {
					m.peers.Unregister(e.ID)
					evs = append(evs, Event{Kind: PeerLeft, PeerID: e.ID, Snapshot: e.Snapshot(), Reason: LeaveMissing})
				}
			}
		}

	case protocol.TypeStateUpdate:
		evs = m.updateLocked(msg.PlayerID, *msg.State, now, evs)

	case protocol.TypeRemotePlayerUpdated:
		evs = m.updateLocked(msg.PlayerID, msg.Player.State, now, evs)

	case protocol.TypeHeartbeat:
		if e, ok := m.peers.Get(msg.PlayerID); ok {
			e.Touch(now)
		}

	case protocol.TypePlayerRemoved, protocol.TypePlayerLeft:
		if e, ok := m.peers.Get(msg.PlayerID); ok {
			m.peers.Unregister(e.ID)
			m.log.Infow("peer left", "peer", e.ID, "via", msg.Type)
			evs = append(evs, Event{Kind: PeerLeft, PeerID: e.ID, Snapshot: e.Snapshot(), Reason: LeaveDeparted})
		}
	}
	return evs
}

// upsertLocked 带完整快照的加入：未知 id 创建，已知 id 合并
func (m *Manager) upsertLocked(snap entity.Snapshot, now time.Time, evs []Event) []Event {
	if snap.ID == "" || snap.ID == m.id {
		return evs
	}
	if _, ok := m.peers.Get(snap.ID); ok {
		if snap.State.IsEmpty() {
			return evs
		}
		return m.updateLocked(snap.ID, snap.State, now, evs)
	}
	name := ""
	if snap.Name != nil {
		name = *snap.Name
	}
	color := ""
	if snap.Color != nil {
		color = *snap.Color
	}
	e := entity.NewPlayer(snap.ID, name, color, entity.Remote)
	e.ApplyState(snap.State)
	e.Touch(now)
	m.peers.Register(e)
	m.log.Infow("peer joined", "peer", e.ID, "name", e.Name)
	return append(evs, Event{Kind: PeerJoined, PeerID: e.ID, Snapshot: e.Snapshot()})
}

// updateLocked 已知 id 原子合并；未知 id 丢弃，不凭默认值创建实体
func (m *Manager) updateLocked(id string, s entity.State, now time.Time, evs []Event) []Event {
	e, ok := m.peers.Get(id)
	if !ok {
		m.log.Debugw("dropping state update for unknown peer", "peer", id)
		return evs
	}
	e.ApplyState(s)
	e.Touch(now)
	return append(evs, Event{Kind: PeerUpdated, PeerID: id, Snapshot: e.Snapshot(), State: s})
}

// sweepLocked 剔除超过不活跃时限的远端实体
func (m *Manager) sweepLocked(now time.Time, evs []Event) []Event {
	for _, e := range m.peers.All() {
		if idle := now.Sub(e.UpdatedAt); idle > m.cfg.InactivityTimeout {
			m.peers.Unregister(e.ID)
			m.log.Infow("evicting inactive peer", "peer", e.ID, "idle", idle.String())
			evs = append(evs, Event{Kind: PeerLeft, PeerID: e.ID, Snapshot: e.Snapshot(), Reason: LeaveTimeout})
		}
	}
	return evs
}

func (m *Manager) String() string {
	return fmt.Sprintf("peer(%s %s/%s)", m.id, m.State(), m.Transport())
}
