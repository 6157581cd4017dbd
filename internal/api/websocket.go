// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amukhametyanov/youtube-scripter-and-visualizer/internal/utils"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 本地工具，来源不做限制
		return true
	},
}

// StudioClient 表示一个订阅生成进度的页面连接
type StudioClient struct {
	conn      *websocket.Conn
	send      chan []byte
	closed    int32 // 原子操作标志，0=开启，1=关闭
	createdAt time.Time
}

// Close 安全关闭客户端连接
func (client *StudioClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		// 只设置关闭标志，发送通道由写循环的defer负责关闭
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// IsClosed 检查连接是否已关闭
func (client *StudioClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// StudioHub 管理所有页面连接并向它们广播生成进度事件。
// 事件丢失无妨：页面随时可以通过状态接口拉取全量快照。
type StudioHub struct {
	clients    map[*StudioClient]bool
	register   chan *StudioClient
	unregister chan *StudioClient
	broadcast  chan []byte
	mutex      sync.RWMutex
}

// NewStudioHub 创建事件中心并启动分发循环
func NewStudioHub() *StudioHub {
	hub := &StudioHub{
		clients:    make(map[*StudioClient]bool),
		register:   make(chan *StudioClient, 16),
		unregister: make(chan *StudioClient, 16),
		broadcast:  make(chan []byte, 256),
	}
	go hub.run()
	return hub
}

// run 分发循环
func (h *StudioHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
				// 关闭发送通道令写循环退出；广播与注销在同一循环里
				// 串行执行，不会再向已关闭的通道写入
				close(client.send)
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.RLock()
			for client := range h.clients {
				if client.IsClosed() {
					continue
				}
				select {
				case client.send <- message:
				default:
					// 队列满，丢弃这条事件
				}
			}
			h.mutex.RUnlock()
		}
	}
}

// NotifyStudioEvent 把生成进度事件广播给所有页面连接
func (h *StudioHub) NotifyStudioEvent(event string, payload map[string]interface{}) {
	message, err := json.Marshal(map[string]interface{}{
		"type":      event,
		"payload":   payload,
		"timestamp": time.Now().Format(time.RFC3339),
	})
	if err != nil {
		utils.GetLogger().Error("事件序列化失败", map[string]interface{}{"event": event, "err": err.Error()})
		return
	}

	select {
	case h.broadcast <- message:
	default:
		utils.GetLogger().Warn("事件广播队列已满，事件被丢弃", map[string]interface{}{"event": event})
	}
}

// ClientCount 当前连接数
func (h *StudioHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeWS 把HTTP请求升级为WebSocket连接并注册到事件中心
func (h *StudioHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.GetLogger().Warn("WebSocket升级失败", map[string]interface{}{"err": err.Error()})
		return
	}

	client := &StudioClient{
		conn:      conn,
		send:      make(chan []byte, 64),
		createdAt: time.Now(),
	}

	h.register <- client

	go h.writePump(client)
	go h.readPump(client)
}

// readPump 读取循环，只用于探测连接关闭
func (h *StudioHub) readPump(client *StudioClient) {
	defer func() {
		h.unregister <- client
	}()

	client.conn.SetReadLimit(1024)
	client.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump 写入循环，定期发送ping保持连接
func (h *StudioHub) writePump(client *StudioClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		h.unregister <- client
	}()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
