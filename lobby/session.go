package lobby

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Session 一次大厅会话的显式上下文对象：锁定身份、本地模拟、远端注册表、
// 镜头与协商器都挂在这里，不存在包级可变状态。
//
// 并发模型：Run 所在协程是所有共享可变状态的唯一写者。
// 三个调度源全部汇入同一个 select：
//  1. 帧节拍（驱动本地移动）
//  2. 网关入站通道（按到达顺序同步分发）
//  3. events 通道（界面意图、倒数节拍等外部闭包，网关读协程之外的唯一入口）
type Session struct {
	cfg   *Config
	store SessionStore

	// 锁定身份：启动时从会话存储读取一次并转为整数，之后不再回读存储。
	// 其他页签 / 组件改写存储不会影响本会话的消息过滤。
	me          UserID
	token       string
	serverID    string
	displayName string

	sender    Sender
	inbound   <-chan Envelope
	presenter Presenter
	nav       Navigator
	metrics   *SessionMetrics

	view  View
	cam   Camera
	move  *Movement
	reg   *Registry
	neg   *Negotiator
	local Sprite

	events chan func()
	done   chan struct{}

	petName string
	energy  int
}

// NewSession 构造会话并执行身份锁定。
// 凭证、服务器分区或身份缺失 / 非法时：弹出阻断提示、跳转重新登录并返回错误。
func NewSession(cfg *Config, store SessionStore, sender Sender, inbound <-chan Envelope,
	factory SpriteFactory, presenter Presenter, nav Navigator, metrics *SessionMetrics) (*Session, error) {

	token := store.Get(KeyToken)
	serverID := store.Get(KeyServerID)
	rawUID := store.Get(KeyUserID)

	if token == "" || serverID == "" || rawUID == "" {
		presenter.Alert("❌ 错误", "登录资讯或伺服器未选择，请重新登录！")
		nav.ToLogin()
		return nil, fmt.Errorf("session init: missing credentials (token=%t server=%t user=%t)",
			token != "", serverID != "", rawUID != "")
	}
	uid, err := strconv.ParseInt(rawUID, 10, 64)
	if err != nil || uid == 0 {
		presenter.Alert("❌ 错误", "登录资讯或伺服器未选择，请重新登录！")
		nav.ToLogin()
		return nil, fmt.Errorf("session init: invalid user id %q", rawUID)
	}

	displayName := store.Get(KeyDisplayName)
	if displayName == "" {
		displayName = "玩家"
	}

	s := &Session{
		cfg:         cfg,
		store:       store,
		me:          UserID(uid),
		token:       token,
		serverID:    serverID,
		displayName: displayName,
		sender:      sender,
		inbound:     inbound,
		presenter:   presenter,
		nav:         nav,
		metrics:     metrics,
		view:        cfg.View(),
		move:        NewMovement(cfg),
		events:      make(chan func(), 64),
		done:        make(chan struct{}),
		energy:      50,
	}
	s.reg = NewRegistry(factory, cfg.SpawnX(), cfg.SpawnY())
	s.neg = NewNegotiator(sender, presenter, nav, store, metrics, cfg.CountdownSeconds, s.post)

	// 本地精灵：出生点即地图中心，镜头同步初始化
	s.local = factory(s.me, displayName)
	s.cam = s.view.CameraAt(cfg.SpawnX(), cfg.SpawnY())
	sx, sy := s.view.Screen(s.cam, cfg.SpawnX(), cfg.SpawnY())
	s.local.MoveTo(sx, sy)

	Log.Infof("session initialized: user=%d(%s) server=%s", s.me, displayName, serverID)
	return s, nil
}

// Identity 锁定后的本地身份
func (s *Session) Identity() UserID { return s.me }

// ServerID 会话所在的服务器分区
func (s *Session) ServerID() string { return s.serverID }

// Start 连接前的准备：拉取宠物状态（失败不致命，退回默认值）
func (s *Session) Start(ctx context.Context) {
	status, err := FetchPetStatus(ctx, s.cfg.APIBaseURL, s.me)
	if err != nil {
		Log.Warnf("pet status fetch failed, using defaults: %v", err)
	} else {
		s.petName = status.PetName
		s.energy = status.Energy
	}
	s.store.Set(KeySpirit, strconv.Itoa(s.energy))
}

// JoinPayload 入场公告载荷。初始坐标与本地模拟共用同一出生点常量。
func (s *Session) JoinPayload() JoinLobbyPayload {
	petName := s.petName
	if petName == "" {
		petName = "MyPet"
	}
	return JoinLobbyPayload{
		DisplayName: s.displayName,
		PetID:       1,
		PetName:     petName,
		Energy:      s.energy,
		Status:      "ACTIVE",
		X:           s.cfg.SpawnX(),
		Y:           s.cfg.SpawnY(),
	}
}

// Connect 通过指定网关建立连接并公告入场
func (s *Session) Connect(gw *Gateway) error {
	return gw.Connect(s.token, s.me, s.serverID, s.JoinPayload())
}

// Run 会话主循环，阻塞直到 Stop
func (s *Session) Run() {
	interval := time.Second / time.Duration(s.cfg.FramesPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	// 循环退出时在本协程上撤销在途倒数，不留下空转的节拍协程
	defer s.neg.shutdown()

	for {
		select {
		case <-s.done:
			return
		case env := <-s.inbound:
			s.dispatch(env)
		case fn := <-s.events:
			fn()
		case <-ticker.C:
			s.frame()
		}
	}
}

// Stop 结束会话循环
func (s *Session) Stop() {
	close(s.done)
}

// post 把闭包投递进会话循环执行（外部协程修改共享状态的唯一途径）
func (s *Session) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

// ---------- 帧推进 ----------

func (s *Session) frame() {
	s.metrics.IncFrame()

	moved, facing, goneIdle := s.move.Step()
	if goneIdle {
		s.presenter.SetLocalFacing(DirNone)
	}
	if !moved {
		return
	}

	x, y := s.move.Pos()

	// 镜头共享：本地移动后所有远端精灵的屏幕坐标一并重算
	s.cam = s.view.CameraAt(x, y)
	sx, sy := s.view.Screen(s.cam, x, y)
	s.local.MoveTo(sx, sy)
	s.repositionRemotes()
	s.presenter.SetLocalFacing(facing)

	// 移动帧每帧发送一条位置更新，不节流不合帧
	s.sender.Send(KindUpdatePosition, PositionPayload{X: x, Y: y})
	s.metrics.IncMoveSent()
}

func (s *Session) repositionRemotes() {
	s.reg.ForEach(func(e *RemoteEntity) {
		ex, ey := s.view.Screen(s.cam, e.X, e.Y)
		e.Sprite.MoveTo(ex, ey)
	})
}

// ---------- 入站分发 ----------

// dispatch 按封闭枚举穷举分发。出站种类不应入站，与未知类型一样忽略。
func (s *Session) dispatch(env Envelope) {
	switch kind := ParseKind(env.Type); kind {
	case KindLobbyState:
		s.handleLobbyState(env)
	case KindPlayerJoined:
		s.handlePlayerJoined(env)
	case KindOtherPetMoved:
		s.handlePetMoved(env)
	case KindPlayerLeft:
		s.handlePlayerLeft(env)
	case KindChatRequest:
		s.handleInviteRequest(env, InviteChat)
	case KindBattleRequest:
		s.handleInviteRequest(env, InviteBattle)
	case KindBattleAccepted:
		s.handleBattleAccepted(env)
	case KindChatMessage:
		s.handleChatMessage(env)
	case KindChatApproved:
		s.handleChatApproved(env)
	case KindChatNotAllowed:
		s.handleNotAllowed(env, InviteChat)
	case KindBattleNotAllowed:
		s.handleNotAllowed(env, InviteBattle)
	case KindJoinLobby, KindUpdatePosition, KindChatInvite,
		KindAcceptInvite, KindRejectInvite, KindBattleInvite, KindCancelBattleInvite:
		// 出站种类出现在入站方向：忽略
		Log.Debugf("outbound kind %s received inbound, ignored", kind)
	case KindUnknown:
		s.metrics.IncIgnoredKind()
		Log.Debugf("unknown message type %q ignored", env.Type)
	}
}

func (s *Session) handleLobbyState(env Envelope) {
	p, err := DecodePayload[LobbyStatePayload](env)
	if err != nil {
		s.metrics.IncMalformed()
		Log.Warnf("lobby_state payload dropped: %v", err)
		return
	}
	// 全量快照按序逐条 upsert
	for _, pl := range p.Players {
		s.upsertFromWire(pl, true)
	}
}

func (s *Session) handlePlayerJoined(env Envelope) {
	p, err := DecodePayload[PlayerJoinedPayload](env)
	if err != nil {
		s.metrics.IncMalformed()
		Log.Warnf("player_joined payload dropped: %v", err)
		return
	}
	s.upsertFromWire(p.Player, true)
}

func (s *Session) handlePetMoved(env Envelope) {
	p, err := DecodePayload[PetMovedPayload](env)
	if err != nil {
		s.metrics.IncMalformed()
		Log.Warnf("other_pet_moved payload dropped: %v", err)
		return
	}
	// 移动事件坐标必须齐全，缺省不退回默认值而是整条丢弃
	s.upsertFromWire(p.Player, false)
}

// upsertFromWire 入站玩家条目的统一入口：
// 自我过滤强制执行；坐标非法时整条丢弃（不做部分更新），条目保留上次已知位置。
// defaultCenter 控制缺省坐标是否退回地图中心（快照 / 加入事件）。
func (s *Session) upsertFromWire(pl LobbyPlayer, defaultCenter bool) {
	if pl.UserID == 0 {
		return
	}
	if pl.UserID == s.me {
		s.metrics.IncSelfFiltered()
		return
	}

	x, y := s.cfg.SpawnX(), s.cfg.SpawnY()
	if pl.X != nil {
		x = *pl.X
	} else if !defaultCenter {
		return
	}
	if pl.Y != nil {
		y = *pl.Y
	} else if !defaultCenter {
		return
	}
	if !finite(x) || !finite(y) {
		Log.Warnf("non-finite position for user %d dropped", pl.UserID)
		return
	}

	e := s.reg.Upsert(pl.UserID, pl.DisplayName, x, y)
	ex, ey := s.view.Screen(s.cam, e.X, e.Y)
	e.Sprite.MoveTo(ex, ey)
}

func (s *Session) handlePlayerLeft(env Envelope) {
	// player_left 的身份在信封层，无载荷
	if env.UserID == 0 {
		return
	}
	if env.UserID == s.me {
		s.metrics.IncSelfFiltered()
		return
	}
	if s.reg.Remove(env.UserID) {
		Log.Infof("player %d left the lobby", env.UserID)
	}
}

func (s *Session) handleInviteRequest(env Envelope, kind InviteKind) {
	p, err := DecodePayload[InviteRequestPayload](env)
	if err != nil {
		s.metrics.IncMalformed()
		Log.Warnf("%s request payload dropped: %v", kind, err)
		return
	}
	if p.SenderID == 0 || p.SenderID == s.me {
		s.metrics.IncSelfFiltered()
		return
	}
	s.neg.OnInvite(Invite{Kind: kind, SenderID: p.SenderID, SenderName: p.SenderName}, p.HasHistory)
}

func (s *Session) handleBattleAccepted(env Envelope) {
	p, err := DecodePayload[BattleAcceptedPayload](env)
	if err != nil {
		s.metrics.IncMalformed()
		Log.Warnf("battle_accepted payload dropped: %v", err)
		return
	}
	s.neg.OnBattleAccepted(p.SenderID, p.SenderName)
}

func (s *Session) handleChatApproved(env Envelope) {
	p, err := DecodePayload[ChatApprovedPayload](env)
	if err != nil {
		s.metrics.IncMalformed()
		Log.Warnf("chat_approved payload dropped: %v", err)
		return
	}
	// 放行通知发给双方，对端取另一个身份
	var peer UserID
	switch s.me {
	case p.UserID1:
		peer = p.UserID2
	case p.UserID2:
		peer = p.UserID1
	default:
		return
	}
	if peer == 0 {
		return
	}
	s.neg.OnChatApproved(peer)
}

func (s *Session) handleChatMessage(env Envelope) {
	p, err := DecodePayload[ChatInPayload](env)
	if err != nil {
		s.metrics.IncMalformed()
		Log.Warnf("chat_message payload dropped: %v", err)
		return
	}
	if p.SenderID == s.me {
		s.metrics.IncSelfFiltered()
		return
	}
	s.neg.OnChatMessage(p.SenderID, p.Message)
}

func (s *Session) handleNotAllowed(env Envelope, kind InviteKind) {
	p, err := DecodePayload[NotAllowedPayload](env)
	if err != nil {
		s.metrics.IncMalformed()
		Log.Warnf("not_allowed payload dropped: %v", err)
		return
	}
	s.neg.OnNotAllowed(kind, p.Reason, p.Message)
}

// ---------- 界面意图（由外部协程调用，经 events 通道汇入循环） ----------

// KeyDown / KeyUp 方向键按下与松开
func (s *Session) KeyDown(d Direction) { s.post(func() { s.move.SetHeld(d, true) }) }
func (s *Session) KeyUp(d Direction)   { s.post(func() { s.move.SetHeld(d, false) }) }

// InviteChat 对指定玩家发起通讯邀请
func (s *Session) InviteChat(peerID UserID, peerName string) {
	s.post(func() { s.neg.InviteChatPeer(peerID, peerName) })
}

// InviteBattle 对指定玩家发起对战邀请（启动倒数）
func (s *Session) InviteBattle(peerID UserID, peerName string) {
	s.post(func() { s.neg.InviteBattle(peerID, peerName) })
}

// PromptPending 点开邀请角标：提示队首
func (s *Session) PromptPending() { s.post(func() { s.neg.PromptPending() }) }

// AcceptInvite / RejectInvite 应答队首邀请
func (s *Session) AcceptInvite() { s.post(func() { s.neg.AcceptHead() }) }
func (s *Session) RejectInvite() { s.post(func() { s.neg.RejectHead() }) }

// RequestCancelBattle / ConfirmCancelBattle / DismissCancelBattle 两步取消流程
func (s *Session) RequestCancelBattle(peerID UserID) {
	s.post(func() { s.neg.RequestCancelBattle(peerID) })
}
func (s *Session) ConfirmCancelBattle(peerID UserID) {
	s.post(func() { s.neg.ConfirmCancelBattle(peerID) })
}
func (s *Session) DismissCancelBattle(peerID UserID) {
	s.post(func() { s.neg.DismissCancelBattle(peerID) })
}

// SendChat 在已同意的聊天会话里发送一条内容
func (s *Session) SendChat(text string) { s.post(func() { s.neg.SendChat(text) }) }

// EnterSolo 点击自己的宠物：进入单人体力补充模式
func (s *Session) EnterSolo() {
	s.post(func() {
		s.store.Set(KeyGameMode, "solo")
		s.nav.ToSolo()
	})
}

// Logout 登出：清空会话存储并跳回登录页
func (s *Session) Logout() {
	s.post(func() {
		s.store.Clear()
		s.presenter.Alert("讯息", "已登出。")
		s.nav.ToLogin()
	})
}

// Snapshot 会话状态只读快照（调试接口用）。
// 经 events 通道在循环协程里取值，遵守单写者约束。
func (s *Session) Snapshot() map[string]any {
	reply := make(chan map[string]any, 1)
	s.post(func() {
		x, y := s.move.Pos()
		reply <- map[string]any{
			"user_id":      s.me,
			"display_name": s.displayName,
			"server_id":    s.serverID,
			"x":            x,
			"y":            y,
			"camera": map[string]any{
				"offset_x": s.cam.OffsetX,
				"offset_y": s.cam.OffsetY,
			},
			"connected":       s.sender.Connected(),
			"entities":        s.reg.Snapshot(),
			"pending_invites": s.neg.PendingLen(),
		}
	})
	select {
	case m := <-reply:
		return m
	case <-time.After(time.Second):
		return map[string]any{"error": "snapshot timeout"}
	}
}
