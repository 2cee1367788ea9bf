package peer

import (
	"context"
	"errors"

	"arenasync/protocol"
)

// TransportKind 传输策略
type TransportKind uint8

const (
	TransportNone TransportKind = iota
	TransportRelay
	TransportLocal
)

func (k TransportKind) String() string {
	switch k {
	case TransportRelay:
		return "relay"
	case TransportLocal:
		return "local-broadcast"
	}
	return "none"
}

var (
	ErrTransportClosed = errors.New("transport closed")
	ErrSendQueueFull   = errors.New("send queue full")
)

// Receiver 由管理器实现，传输层把入站消息与断线通知交给它
// Deliver 必须非阻塞；from 为发送者身份（中继消息取 playerId）
type Receiver interface {
	Deliver(msg protocol.Message, from string)
	Disconnected(err error)
}

// Transport 可互换的传输：connect / send / onMessage(Receiver) / close
type Transport interface {
	Kind() TransportKind
	Connect(ctx context.Context, rx Receiver) error
	Send(msg protocol.Message) error
	Close() error
}
