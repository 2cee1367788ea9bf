package server

import (
	"time"

	"arenasync/protocol"
)

// Input 读协程解码后投递给房间的一条客户端消息，由房间协程解释
type Input struct {
	Conn Conn
	Msg  protocol.Message
}

// Leave 连接关闭，房间移除与之绑定的玩家
type Leave struct {
	Conn Conn
}

// RoomConfig 可热更新的房间参数
type RoomConfig struct {
	SweepInterval     time.Duration
	InactivityTimeout time.Duration
}

type configQuery struct {
	update *RoomConfig // 为 nil 时只读取
	reply  chan RoomConfig
}
