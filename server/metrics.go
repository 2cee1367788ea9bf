package server

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试）
type RoomMetrics struct {
	Players      int64 // 当前玩家数
	Joins        int64 // 新加入的玩家数
	Leaves       int64 // 主动离开或断线
	Evicted      int64 // 因不活跃被剔除
	MessagesIn   int64 // 进入房间的客户端消息
	Relayed      int64 // 成功入队的转发消息
	SendDropped  int64 // 因发送队列满被丢弃的转发
	Spoofed      int64 // 连接冒用其他玩家身份
	Malformed    int64 // 解析失败或类型不允许
	RateLimited  int64 // 因限流被丢弃
	InboxFull    int64 // 因房间拥塞被丢弃
	SweepCount   int64
	TotalSweepNs int64
}

func (m *RoomMetrics) SetPlayers(n int) { atomic.StoreInt64(&m.Players, int64(n)) }
func (m *RoomMetrics) IncJoins() { atomic.AddInt64(&m.Joins, 1) }
func (m *RoomMetrics) IncLeaves() { atomic.AddInt64(&m.Leaves, 1) }
func (m *RoomMetrics) IncEvicted() { atomic.AddInt64(&m.Evicted, 1) }
func (m *RoomMetrics) IncMessagesIn() { atomic.AddInt64(&m.MessagesIn, 1) }
func (m *RoomMetrics) IncRelayed() { atomic.AddInt64(&m.Relayed, 1) }
func (m *RoomMetrics) IncSendDropped() { atomic.AddInt64(&m.SendDropped, 1) }
func (m *RoomMetrics) IncSpoofed() { atomic.AddInt64(&m.Spoofed, 1) }
func (m *RoomMetrics) IncMalformed() { atomic.AddInt64(&m.Malformed, 1) }
func (m *RoomMetrics) IncRateLimited() { atomic.AddInt64(&m.RateLimited, 1) }
func (m *RoomMetrics) IncInboxFull() { atomic.AddInt64(&m.InboxFull, 1) }
func (m *RoomMetrics) AddSweep(ns int64) {
	atomic.AddInt64(&m.SweepCount, 1)
	atomic.AddInt64(&m.TotalSweepNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	sweeps := atomic.LoadInt64(&m.SweepCount)
	total := atomic.LoadInt64(&m.TotalSweepNs)
	var avgMs float64
	if sweeps > 0 {
		avgMs = float64(total) / float64(sweeps) / 1e6
	}
	return map[string]any{
		"players":      atomic.LoadInt64(&m.Players),
		"joins":        atomic.LoadInt64(&m.Joins),
		"leaves":       atomic.LoadInt64(&m.Leaves),
		"evicted":      atomic.LoadInt64(&m.Evicted),
		"messages_in":  atomic.LoadInt64(&m.MessagesIn),
		"relayed":      atomic.LoadInt64(&m.Relayed),
		"send_dropped": atomic.LoadInt64(&m.SendDropped),
		"spoofed":      atomic.LoadInt64(&m.Spoofed),
		"malformed":    atomic.LoadInt64(&m.Malformed),
		"rate_limited": atomic.LoadInt64(&m.RateLimited),
		"inbox_full":   atomic.LoadInt64(&m.InboxFull),
		"sweep_count":  sweeps,
		"avg_sweep_ms": avgMs,
	}
}

var (
	descPlayers = prometheus.NewDesc("arena_relay_players", "Players currently bound in the room.", []string{"room"}, nil)
	descEvents  = prometheus.NewDesc("arena_relay_events_total", "Relay room events by kind.", []string{"room", "kind"}, nil)
)

// collector 把各房间的原子计数导出为 Prometheus 指标
type collector struct {
	rooms *RoomManager
}

func (c collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descPlayers
	ch <- descEvents
}

func (c collector) Collect(ch chan<- prometheus.Metric) {
	for _, r := range c.rooms.Rooms() {
		m := r.Metrics()
		ch <- prometheus.MustNewConstMetric(descPlayers, prometheus.GaugeValue, float64(atomic.LoadInt64(&m.Players)), r.ID)
		for kind, v := range map[string]*int64{
			"join":         &m.Joins,
			"leave":        &m.Leaves,
			"evict":        &m.Evicted,
			"message_in":   &m.MessagesIn,
			"relayed":      &m.Relayed,
			"send_dropped": &m.SendDropped,
			"spoofed":      &m.Spoofed,
			"malformed":    &m.Malformed,
			"rate_limited": &m.RateLimited,
			"inbox_full":   &m.InboxFull,
		} {
			ch <- prometheus.MustNewConstMetric(descEvents, prometheus.CounterValue, float64(atomic.LoadInt64(v)), r.ID, kind)
		}
	}
}
