package lobby

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsTestServer 以真实 WebSocket 端点承接网关，记录连接数与收到的信封
type wsTestServer struct {
	srv      *httptest.Server
	conns    int32
	received chan Envelope

	mu    sync.Mutex
	socks []*websocket.Conn
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	s := &wsTestServer{received: make(chan Envelope, 32)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		atomic.AddInt32(&s.conns, 1)
		s.mu.Lock()
		s.socks = append(s.socks, ws)
		s.mu.Unlock()
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if env, err := DecodeEnvelope(raw); err == nil {
				s.received <- env
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsTestServer) baseURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsTestServer) connCount() int32 { return atomic.LoadInt32(&s.conns) }

// push 从服务端下发一帧原始文本
func (s *wsTestServer) push(t *testing.T, raw string) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.socks) == 0 {
		t.Fatal("no server-side connection")
	}
	if err := s.socks[0].WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (s *wsTestServer) waitEnvelope(t *testing.T, kind Kind) Envelope {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case env := <-s.received:
			if ParseKind(env.Type) == kind {
				return env
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func newTestGateway(t *testing.T, srv *wsTestServer) (*Gateway, *SessionMetrics) {
	t.Helper()
	cfg := testConfig()
	cfg.WSBaseURL = srv.baseURL()
	m := &SessionMetrics{}
	gw := NewGateway(cfg, m)
	t.Cleanup(gw.Close)
	return gw, m
}

func testJoin() JoinLobbyPayload {
	return JoinLobbyPayload{DisplayName: "小白", PetID: 1, PetName: "MyPet", Energy: 85, Status: "ACTIVE", X: 100, Y: 100}
}

func TestConnectSendsSingleJoinLobby(t *testing.T) {
	srv := newWSTestServer(t)
	gw, _ := newTestGateway(t, srv)

	if err := gw.Connect("tok-1", 7, "A", testJoin()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	env := srv.waitEnvelope(t, KindJoinLobby)
	if env.ServerID != "A" || env.UserID != 7 {
		t.Fatalf("join envelope = %+v", env)
	}
	jp, err := DecodePayload[JoinLobbyPayload](env)
	if err != nil {
		t.Fatalf("join payload: %v", err)
	}
	// 入场坐标必须等于本地模拟的出生点
	if jp.X != 100 || jp.Y != 100 {
		t.Fatalf("join position = (%v, %v), want spawn (100, 100)", jp.X, jp.Y)
	}
}

func TestConnectIdempotent(t *testing.T) {
	srv := newWSTestServer(t)
	gw, _ := newTestGateway(t, srv)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = gw.Connect("tok-1", 7, "A", testJoin())
		}()
	}
	wg.Wait()
	// 再来一次串行调用：已打开时为 no-op
	_ = gw.Connect("tok-1", 7, "A", testJoin())

	srv.waitEnvelope(t, KindJoinLobby)

	// 恰好一条连接、恰好一条 join_lobby
	if srv.connCount() != 1 {
		t.Fatalf("connections = %d, want 1", srv.connCount())
	}
	select {
	case env := <-srv.received:
		t.Fatalf("unexpected extra message: %+v", env)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSendWhileDisconnectedDropsSilently(t *testing.T) {
	cfg := testConfig()
	m := &SessionMetrics{}
	gw := NewGateway(cfg, m)

	gw.Send(KindUpdatePosition, PositionPayload{X: 1, Y: 2})

	if got := atomic.LoadInt64(&m.SendsDropped); got != 1 {
		t.Fatalf("dropped metric = %d, want 1", got)
	}
}

func TestSendAfterConnectionLossDrops(t *testing.T) {
	srv := newWSTestServer(t)
	gw, m := newTestGateway(t, srv)

	if err := gw.Connect("tok-1", 7, "A", testJoin()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	srv.waitEnvelope(t, KindJoinLobby)

	gw.Close()
	// 等读协程感知断开并落回 closed
	deadline := time.After(2 * time.Second)
	for gw.Connected() {
		select {
		case <-deadline:
			t.Fatal("gateway never noticed connection loss")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	before := atomic.LoadInt64(&m.SendsDropped)
	gw.Send(KindUpdatePosition, PositionPayload{X: 1, Y: 2})
	if atomic.LoadInt64(&m.SendsDropped) != before+1 {
		t.Fatal("send after loss must be dropped with a metric")
	}
}

func TestInboundFramesDispatchedInArrivalOrder(t *testing.T) {
	srv := newWSTestServer(t)
	gw, _ := newTestGateway(t, srv)

	if err := gw.Connect("tok-1", 7, "A", testJoin()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	srv.waitEnvelope(t, KindJoinLobby)

	srv.push(t, `{"type":"player_joined","server_id":"A","user_id":9,"payload":{"player":{"user_id":9,"x":1,"y":2}}}`)
	srv.push(t, `{"type":"other_pet_moved","server_id":"A","user_id":9,"payload":{"player":{"user_id":9,"x":3,"y":4}}}`)

	want := []Kind{KindPlayerJoined, KindOtherPetMoved}
	for _, k := range want {
		select {
		case env := <-gw.Inbound():
			if ParseKind(env.Type) != k {
				t.Fatalf("got %s, want %s (no reordering)", env.Type, k)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", k)
		}
	}
}

func TestMalformedInboundFrameDropped(t *testing.T) {
	srv := newWSTestServer(t)
	gw, m := newTestGateway(t, srv)

	if err := gw.Connect("tok-1", 7, "A", testJoin()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	srv.waitEnvelope(t, KindJoinLobby)

	srv.push(t, `this is not json`)
	srv.push(t, `{"type":"player_joined","server_id":"A","user_id":9,"payload":{"player":{"user_id":9,"x":1,"y":2}}}`)

	// 畸形帧被吞掉，后续帧正常送达
	select {
	case env := <-gw.Inbound():
		if ParseKind(env.Type) != KindPlayerJoined {
			t.Fatalf("got %s, want player_joined", env.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame after malformed one")
	}
	if atomic.LoadInt64(&m.MalformedFrames) != 1 {
		t.Fatalf("malformed metric = %d, want 1", m.MalformedFrames)
	}
}
