package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"arenasync/protocol"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1MB
	sendQueueSize  = 64
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	id      string
	ws      *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	closeOnce sync.Once
	done      chan struct{}
}

func NewClientConn(ws *websocket.Conn, limiter *rate.Limiter) *ClientConn {
	return &ClientConn{
		id:      uuid.NewString(),
		ws:      ws,
		send:    make(chan []byte, sendQueueSize),
		limiter: limiter,
		done:    make(chan struct{}),
	}
}

func (c *ClientConn) ID() string { return c.id }

// Send 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Send(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		// 为了实时性，丢弃而不是阻塞房间协程
		return false
	}
}

// Close 通知写协程发送关闭帧并断开；可重复调用
func (c *ClientConn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump 读取客户端消息，解码后注入房间；格式错误或超出限流的消息丢弃
func (c *ClientConn) readPump(room *Room) {
	defer func() {
		c.Close()
		_ = c.ws.Close()
	}()
	defer room.Release()
	// 读泵退出时，通知房间在其协程中移除该连接的玩家
	defer room.RequestLeave(c)
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if !c.limiter.Allow() {
			room.Metrics().IncRateLimited()
			continue
		}
		msg, err := protocol.Decode(payload)
		if err != nil {
			room.Metrics().IncMalformed()
			room.log.Debugw("dropping malformed client message", "conn", c.id, "err", err)
			continue
		}
		room.OnInput(Input{Conn: c, Msg: msg})
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS WebSocket 接入：/ws?room=circle-arena
// 玩家身份由连接上的第一条 playerJoined 声明
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID := roomParam(r)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("upgrade error", "err", err, "remote", r.RemoteAddr)
		return
	}

	room := s.rooms.Acquire(roomID)
	client := NewClientConn(ws, rate.NewLimiter(rate.Limit(s.cfg.MaxMessagesPerSecond), s.cfg.Burst))
	s.log.Debugw("client connected", "room", roomID, "conn", client.ID(), "remote", r.RemoteAddr)

	go client.writePump()
	go client.readPump(room)
}
