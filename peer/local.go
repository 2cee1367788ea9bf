package peer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"arenasync/broadcast"
	"arenasync/protocol"
)

// LocalTransport 同进程广播频道上的传输；频道内每个订阅者（包括自己）都会收到每条消息
type LocalTransport struct {
	hub     *broadcast.Hub
	channel string
	self    string
	now     func() time.Time
	log     *zap.SugaredLogger

	mu    sync.Mutex
	unsub func()
}

func NewLocalTransport(hub *broadcast.Hub, channel, self string, now func() time.Time, log *zap.SugaredLogger) *LocalTransport {
	return &LocalTransport{hub: hub, channel: channel, self: self, now: now, log: log}
}

func (t *LocalTransport) Kind() TransportKind { return TransportLocal }

func (t *LocalTransport) Connect(_ context.Context, rx Receiver) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.unsub != nil {
		return nil
	}
	t.unsub = t.hub.Subscribe(t.channel, func(frame []byte) {
		env, err := protocol.DecodeEnvelope(frame)
		if err != nil {
			t.log.Debugw("dropping malformed broadcast frame", "channel", t.channel, "err", err)
			return
		}
		rx.Deliver(env.Data, env.FromPlayerID)
	})
	return nil
}

func (t *LocalTransport) Send(msg protocol.Message) error {
	t.mu.Lock()
	connected := t.unsub != nil
	t.mu.Unlock()
	if !connected {
		return ErrTransportClosed
	}
	b, err := protocol.EncodeEnvelope(protocol.Envelope{
		Type:         msg.Type,
		Data:         msg,
		FromPlayerID: t.self,
		Timestamp:    t.now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	t.hub.Publish(t.channel, b)
	return nil
}

func (t *LocalTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.unsub != nil {
		t.unsub()
		t.unsub = nil
	}
	return nil
}
