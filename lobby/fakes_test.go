package lobby

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// 测试用协作方：全部只做记录，断言时读取

type sentMsg struct {
	kind    Kind
	payload any
}

type fakeSender struct {
	mu        sync.Mutex
	sent      []sentMsg
	connected bool
}

func (f *fakeSender) Send(kind Kind, payload any) {
	f.mu.Lock()
	f.sent = append(f.sent, sentMsg{kind, payload})
	f.mu.Unlock()
}

func (f *fakeSender) Connected() bool { return f.connected }

func (f *fakeSender) byKind(kind Kind) []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMsg
	for _, m := range f.sent {
		if m.kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type chatOpen struct {
	name  string
	id    UserID
	ready bool
}

type fakePresenter struct {
	alerts     []string
	confirms   []string
	prompts    []Invite
	pending    []int
	countdowns []int
	chats      []chatOpen
	chatMsgs   []string
	facings    []Direction
}

func (f *fakePresenter) Alert(title, text string)      { f.alerts = append(f.alerts, title+" "+text) }
func (f *fakePresenter) ConfirmCancel(peerName string) { f.confirms = append(f.confirms, peerName) }
func (f *fakePresenter) PromptInvite(inv Invite)       { f.prompts = append(f.prompts, inv) }
func (f *fakePresenter) PendingCount(n int)            { f.pending = append(f.pending, n) }
func (f *fakePresenter) ShowCountdown(name string, s int) {
	f.countdowns = append(f.countdowns, s)
}
func (f *fakePresenter) ChatOpened(name string, id UserID, ready bool) {
	f.chats = append(f.chats, chatOpen{name, id, ready})
}
func (f *fakePresenter) ChatMessage(from UserID, text string) {
	f.chatMsgs = append(f.chatMsgs, text)
}
func (f *fakePresenter) SetLocalFacing(d Direction) { f.facings = append(f.facings, d) }

type fakeNav struct {
	mu                     sync.Mutex
	logins, battles, solos int
}

func (f *fakeNav) ToLogin()  { f.mu.Lock(); f.logins++; f.mu.Unlock() }
func (f *fakeNav) ToBattle() { f.mu.Lock(); f.battles++; f.mu.Unlock() }
func (f *fakeNav) ToSolo()   { f.mu.Lock(); f.solos++; f.mu.Unlock() }

func (f *fakeNav) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

type fakeSprite struct {
	id      UserID
	name    string
	x, y    float64
	moves   int
	removed bool
}

func (s *fakeSprite) MoveTo(x, y float64) { s.x, s.y = x, y; s.moves++ }
func (s *fakeSprite) SetName(name string) { s.name = name }
func (s *fakeSprite) Remove()             { s.removed = true }

type spriteRecorder struct {
	sprites map[UserID]*fakeSprite
}

func newSpriteRecorder() *spriteRecorder {
	return &spriteRecorder{sprites: make(map[UserID]*fakeSprite)}
}

func (r *spriteRecorder) factory(id UserID, name string) Sprite {
	sp := &fakeSprite{id: id, name: name}
	r.sprites[id] = sp
	return sp
}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore(kv map[string]string) *memStore {
	m := &memStore{data: make(map[string]string)}
	for k, v := range kv {
		m.data[k] = v
	}
	return m
}

func (m *memStore) Get(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

func (m *memStore) Set(key, value string) {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
}

func (m *memStore) Delete(key string) {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
}

func (m *memStore) Clear() {
	m.mu.Lock()
	m.data = make(map[string]string)
	m.mu.Unlock()
}

func testConfig() *Config {
	return &Config{
		WSBaseURL:        "ws://localhost:8000",
		APIBaseURL:       "http://localhost:8000",
		WorldWidth:       200,
		WorldHeight:      200,
		LayerWidth:       1600,
		LayerHeight:      1600,
		ViewportWidth:    960,
		ViewportHeight:   640,
		FramesPerSecond:  20,
		MoveStep:         1,
		IdleDelay:        150 * time.Millisecond,
		CountdownSeconds: 5,
	}
}

func validStore() *memStore {
	return newMemStore(map[string]string{
		KeyToken:       "tok-1",
		KeyServerID:    "A",
		KeyUserID:      "7",
		KeyDisplayName: "小白",
		KeySpirit:      "85",
	})
}

// envelope 组装一帧入站消息（测试辅助）
func envelope(t *testing.T, kind Kind, userID UserID, payload any) Envelope {
	t.Helper()
	b, err := EncodeEnvelope(kind, "A", userID, payload)
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	env, err := DecodeEnvelope(b)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

// rawEnvelope 以手写 JSON 组装入站消息，用于构造协议边界情况
func rawEnvelope(t *testing.T, raw string) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("unmarshal raw envelope: %v", err)
	}
	return env
}

func newTestSession(t *testing.T, store SessionStore) (*Session, *fakeSender, *fakePresenter, *fakeNav, *spriteRecorder) {
	t.Helper()
	sender := &fakeSender{connected: true}
	presenter := &fakePresenter{}
	nav := &fakeNav{}
	rec := newSpriteRecorder()
	inbound := make(chan Envelope, 16)
	s, err := NewSession(testConfig(), store, sender, inbound, rec.factory, presenter, nav, &SessionMetrics{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s, sender, presenter, nav, rec
}
