package lobby

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Sender 出站消息接口：会话层只依赖它，便于测试替换
type Sender interface {
	Send(kind Kind, payload any)
	Connected() bool
}

// 连接状态机：idle → dialing → open → closed；
// closed 之后允许再次 Connect（手动重连），但不存在自动重连
type gwState int

const (
	gwIdle gwState = iota
	gwDialing
	gwOpen
	gwClosed
)

// Gateway 独占一条双向 WebSocket 连接：拨号、入场公告、发送、按类分发前的解帧。
// 发送不保证送达：未连接或队列满时丢弃，只记日志与指标，不排队不重试。
type Gateway struct {
	cfg     *Config
	metrics *SessionMetrics

	mu       sync.Mutex
	state    gwState
	ws       *websocket.Conn
	send     chan []byte
	done     chan struct{}
	serverID string
	userID   UserID

	// 解帧后的入站消息按到达顺序进入该通道，由会话循环同步消费；
	// 连接断开后通道保持打开（会话只会收不到新消息，符合无断线通知的设计）
	inbound chan Envelope
}

func NewGateway(cfg *Config, metrics *SessionMetrics) *Gateway {
	return &Gateway{
		cfg:     cfg,
		metrics: metrics,
		inbound: make(chan Envelope, 256), // 足够缓冲，避免读协程阻塞
	}
}

// Inbound 入站消息通道（只读）
func (g *Gateway) Inbound() <-chan Envelope {
	return g.inbound
}

// Connected 连接是否处于打开状态
func (g *Gateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == gwOpen
}

// Connect 建立连接并发送一条 join_lobby。
// 已在拨号中或已打开时为幂等 no-op；拨号失败回到 idle，可再次调用。
func (g *Gateway) Connect(token string, userID UserID, serverID string, join JoinLobbyPayload) error {
	g.mu.Lock()
	if g.state == gwDialing || g.state == gwOpen {
		g.mu.Unlock()
		Log.Warnf("connect ignored: connection already open or dialing")
		return nil
	}
	g.state = gwDialing
	g.serverID = serverID
	g.userID = userID
	g.mu.Unlock()

	url := fmt.Sprintf("%s/server%s/ws/", g.cfg.WSBaseURL, serverID)
	Log.Infof("connecting to %s user=%d", url, userID)

	hdr := http.Header{}
	if token != "" {
		hdr.Set("Authorization", "Bearer "+token)
	}
	ws, _, err := websocket.DefaultDialer.Dial(url, hdr)
	if err != nil {
		g.mu.Lock()
		g.state = gwIdle
		g.mu.Unlock()
		return fmt.Errorf("dial %s: %w", url, err)
	}

	g.mu.Lock()
	g.ws = ws
	g.send = make(chan []byte, 64)
	g.done = make(chan struct{})
	g.state = gwOpen
	g.mu.Unlock()

	go g.writePump(ws, g.send, g.done)
	go g.readPump(ws)

	Log.Infof("connected: server=%s user=%d", serverID, userID)

	// 连接建立后立即公告入场，初始坐标与本地模拟共用同一出生点常量
	g.Send(KindJoinLobby, join)
	return nil
}

// Send 把载荷包入信封后发送。未打开时静默丢弃（仅日志 + 指标）。
func (g *Gateway) Send(kind Kind, payload any) {
	g.mu.Lock()
	if g.state != gwOpen {
		g.mu.Unlock()
		g.metrics.IncSendDropped()
		Log.Warnf("send %s dropped: connection not open", kind)
		return
	}
	serverID, userID, ch := g.serverID, g.userID, g.send
	g.mu.Unlock()

	b, err := EncodeEnvelope(kind, serverID, userID, payload)
	if err != nil {
		Log.Errorf("encode %s: %v", kind, err)
		return
	}
	// 不阻塞：队列满时丢弃，保证帧循环不被网络写拖住
	select {
	case ch <- b:
	default:
		g.metrics.IncSendDropped()
		Log.Warnf("send %s dropped: queue full", kind)
	}
}

// Close 主动关闭连接；读协程退出时统一走 teardown
func (g *Gateway) Close() {
	g.mu.Lock()
	ws := g.ws
	g.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
}

// writePump 独立协程，负责从发送队列写出到 WS
func (g *Gateway) writePump(ws *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case msg := <-send:
			_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = ws.Close()
				return
			}
		case <-done:
			return
		}
	}
}

// readPump 读取入站帧并解为信封；畸形帧丢弃并记日志，从不上抛
func (g *Gateway) readPump(ws *websocket.Conn) {
	defer g.teardown(ws)
	ws.SetReadLimit(1 << 20) // 1MB
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			// 连接断开：无自动重连、无未发缓冲、除日志外不通知上层
			Log.Warnf("connection lost: %v", err)
			return
		}
		env, err := DecodeEnvelope(raw)
		if err != nil {
			g.metrics.IncMalformed()
			Log.Warnf("malformed frame dropped: %v", err)
			continue
		}
		g.inbound <- env
	}
}

// teardown 丢弃连接句柄并进入 closed；仅由 readPump 退出路径调用
func (g *Gateway) teardown(ws *websocket.Conn) {
	g.mu.Lock()
	if g.ws == ws {
		g.state = gwClosed
		g.ws = nil
		close(g.done)
	}
	g.mu.Unlock()
	_ = ws.Close()
}
