package server

import (
	"time"

	"arenasync/entity"
)

// PlayerID 表示玩家唯一标识（由客户端生成，player_<ms>_<suffix>）
type PlayerID string

// Conn 房间可见的连接发送端；ClientConn 与测试替身都实现它
type Conn interface {
	ID() string
	Send(b []byte) bool
	Close()
}

// Player 中继保存的玩家快照：join 时的名字与颜色，之后合并所有 stateUpdate
type Player struct {
	ID       PlayerID
	State    entity.State
	LastSeen time.Time // 服务端收到该玩家最后一条消息的时间，用于不活跃剔除

	Conn Conn
}

func (p *Player) Snapshot() entity.Snapshot {
	s := entity.State{}
	s.Merge(p.State)
	return entity.Snapshot{ID: string(p.ID), State: s}
}
