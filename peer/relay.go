package peer

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"arenasync/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1MB
	sendQueueSize  = 64
)

// RelayTransport 中继服务器的 WebSocket 客户端
type RelayTransport struct {
	endpoint string
	room     string
	dialer   *websocket.Dialer
	log      *zap.SugaredLogger

	conn *websocket.Conn
	rx   Receiver
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// NewRelayTransport endpoint 形如 ws://host:8080/ws，room 作为查询参数附加
func NewRelayTransport(endpoint, room string, log *zap.SugaredLogger) *RelayTransport {
	return &RelayTransport{
		endpoint: endpoint,
		room:     room,
		dialer:   websocket.DefaultDialer,
		log:      log,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
	}
}

func (t *RelayTransport) Kind() TransportKind { return TransportRelay }

// Connect 建立连接并启动读写协程；ctx 只约束拨号过程
func (t *RelayTransport) Connect(ctx context.Context, rx Receiver) error {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return fmt.Errorf("parse relay endpoint: %w", err)
	}
	q := u.Query()
	if q.Get("room") == "" && t.room != "" {
		q.Set("room", t.room)
	}
	u.RawQuery = q.Encode()

	conn, _, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial relay %s: %w", u.Redacted(), err)
	}
	t.conn = conn
	t.rx = rx
	go t.writePump()
	go t.readPump()
	return nil
}

// Send 编码后放入发送队列（非阻塞，满则丢弃）
func (t *RelayTransport) Send(msg protocol.Message) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case t.send <- b:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close 主动关闭：先写出队列中剩余消息，再发送关闭帧；不会触发 Disconnected
func (t *RelayTransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

func (t *RelayTransport) closing() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *RelayTransport) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = t.conn.Close()
	}()
	for {
		select {
		case b := <-t.send:
			if err := t.write(websocket.TextMessage, b); err != nil {
				t.log.Debugw("relay write failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := t.write(websocket.PingMessage, nil); err != nil {
				t.log.Debugw("relay ping failed", "err", err)
				return
			}
		case <-t.done:
			for {
				select {
				case b := <-t.send:
					if err := t.write(websocket.TextMessage, b); err != nil {
						return
					}
				default:
					_ = t.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (t *RelayTransport) write(kind int, b []byte) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(kind, b)
}

// readPump 解码入站消息交给 Receiver；格式错误的消息丢弃并继续
func (t *RelayTransport) readPump() {
	defer func() {
		_ = t.conn.Close()
	}()
	t.conn.SetReadLimit(maxMessageSize)
	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := t.conn.ReadMessage()
		if err != nil {
			if !t.closing() {
				t.rx.Disconnected(err)
			}
			return
		}
		_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
		msg, err := protocol.Decode(payload)
		if err != nil {
			t.log.Debugw("dropping malformed relay message", "err", err, "size", len(payload))
			continue
		}
		t.rx.Deliver(msg, msg.PlayerID)
	}
}
