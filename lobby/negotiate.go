package lobby

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InviteKind 协商种类
type InviteKind int

const (
	InviteChat InviteKind = iota
	InviteBattle
)

func (k InviteKind) String() string {
	if k == InviteBattle {
		return "battle"
	}
	return "chat"
}

// NegotiationState 协商状态：invited 之后的四个状态均为终态
type NegotiationState int

const (
	StateInvited NegotiationState = iota
	StateAccepted
	StateRejected
	StateCanceled
	StateTimedOut
)

// Invite 一条入站邀请（按到达顺序排队）
type Invite struct {
	Kind       InviteKind
	SenderID   UserID
	SenderName string
}

// Negotiation 一次进行中的协商。
// 协议没有协商编号，只能以 (种类, 对端) 标识；
// 因此同种类对同一对端同时只允许一条出站协商在途。
type Negotiation struct {
	Kind     InviteKind
	PeerID   UserID
	PeerName string
	State    NegotiationState

	secondsLeft   int
	stop          chan struct{} // 关闭即撤销倒数协程
	cancelPending bool          // 已弹出取消二次确认、等待用户选择
}

type negKey struct {
	kind InviteKind
	peer UserID
}

// Negotiator 交互协商器：出站邀请的倒数与取消、入站邀请的排队与应答。
// 所有方法都只在会话循环协程内调用；倒数协程只通过 post 把闭包送回循环。
type Negotiator struct {
	sender    Sender
	presenter Presenter
	nav       Navigator
	store     SessionStore
	metrics   *SessionMetrics

	// 把闭包投递回会话循环（单写者约束的唯一入口）
	post func(fn func())

	countdown int // 倒数秒数

	outbound map[negKey]*Negotiation
	pending  []Invite // 入站邀请队列，只有队首会被提示
	direct   *Invite  // 有历史记录、不占队列直接提示的邀请

	// 当前聊天对象；ready=false 表示邀请已发出但对方尚未同意
	chatPeer     UserID
	chatPeerName string
	chatReady    bool
}

func NewNegotiator(sender Sender, presenter Presenter, nav Navigator, store SessionStore, metrics *SessionMetrics, countdownSeconds int, post func(fn func())) *Negotiator {
	return &Negotiator{
		sender:    sender,
		presenter: presenter,
		nav:       nav,
		store:     store,
		metrics:   metrics,
		post:      post,
		countdown: countdownSeconds,
		outbound:  make(map[negKey]*Negotiation),
	}
}

// ---------- 出站：对战邀请 ----------

// InviteBattle 发起对战邀请并启动倒数。
// 同一对端已有在途对战邀请时拒绝重复发起（协议无协商编号，见设计说明）。
func (n *Negotiator) InviteBattle(peerID UserID, peerName string) bool {
	key := negKey{InviteBattle, peerID}
	if _, ok := n.outbound[key]; ok {
		Log.Warnf("battle invite to %d refused: negotiation already in flight", peerID)
		return false
	}

	spirit := 100
	if v, err := strconv.Atoi(n.store.Get(KeySpirit)); err == nil {
		spirit = v
	}
	n.sender.Send(KindBattleInvite, BattleInvitePayload{ReceiverID: peerID, PetSpirit: spirit})

	neg := &Negotiation{
		Kind:        InviteBattle,
		PeerID:      peerID,
		PeerName:    peerName,
		State:       StateInvited,
		secondsLeft: n.countdown,
		stop:        make(chan struct{}),
	}
	n.outbound[key] = neg

	// 先显示满额秒数，之后每秒递减；到零仍无回应即超时
	n.presenter.ShowCountdown(peerName, neg.secondsLeft)
	neg.secondsLeft--
	go n.runCountdown(neg)

	Log.Infof("battle invite sent: peer=%d(%s)", peerID, peerName)
	return true
}

// runCountdown 每条在途对战邀请一个一秒节拍协程；
// 节拍本身不改状态，只把推进闭包投回会话循环
func (n *Negotiator) runCountdown(neg *Negotiation) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.post(func() { n.tickCountdown(neg) })
		case <-neg.stop:
			return
		}
	}
}

func (n *Negotiator) tickCountdown(neg *Negotiation) {
	if neg.State != StateInvited {
		return
	}
	if neg.secondsLeft > 0 {
		n.presenter.ShowCountdown(neg.PeerName, neg.secondsLeft)
		neg.secondsLeft--
		return
	}
	// 超时：撤销计时器、本地判定失败，不再通知对端
	neg.State = StateTimedOut
	close(neg.stop)
	delete(n.outbound, negKey{neg.Kind, neg.PeerID})
	n.metrics.IncBattleTimeout()
	n.presenter.Alert("❌ 对战失败", fmt.Sprintf("%s 未确认您的对战邀约。", neg.PeerName))
	Log.Infof("battle invite timed out: peer=%d", neg.PeerID)
}

// RequestCancelBattle 用户点击取消：先弹二次确认，不立即撤销
func (n *Negotiator) RequestCancelBattle(peerID UserID) {
	neg, ok := n.outbound[negKey{InviteBattle, peerID}]
	if !ok || neg.State != StateInvited {
		return
	}
	neg.cancelPending = true
	n.presenter.ConfirmCancel(neg.PeerName)
}

// ConfirmCancelBattle 二次确认通过：撤销倒数并通知对端
func (n *Negotiator) ConfirmCancelBattle(peerID UserID) {
	neg, ok := n.outbound[negKey{InviteBattle, peerID}]
	if !ok || neg.State != StateInvited || !neg.cancelPending {
		return
	}
	neg.State = StateCanceled
	close(neg.stop)
	delete(n.outbound, negKey{InviteBattle, peerID})
	n.sender.Send(KindCancelBattleInvite, InvitePayload{ReceiverID: peerID})
	n.metrics.IncBattleCanceled()
	n.presenter.Alert("讯息", "对战要求已取消。")
	Log.Infof("battle invite canceled: peer=%d", peerID)
}

// DismissCancelBattle 二次确认被放弃：邀请与倒数照常继续
func (n *Negotiator) DismissCancelBattle(peerID UserID) {
	if neg, ok := n.outbound[negKey{InviteBattle, peerID}]; ok {
		neg.cancelPending = false
	}
}

// OnBattleAccepted 对方接受了我方邀请。
// 身份必须与在途协商的对端一致，其他身份的消息一律忽略，
// 防止过期计时器或串扰破坏状态。
func (n *Negotiator) OnBattleAccepted(senderID UserID, senderName string) {
	neg, ok := n.outbound[negKey{InviteBattle, senderID}]
	if !ok || neg.State != StateInvited {
		Log.Debugf("battle_accepted from %d ignored: no matching negotiation", senderID)
		return
	}
	neg.State = StateAccepted
	close(neg.stop)
	delete(n.outbound, negKey{InviteBattle, senderID})
	n.metrics.IncBattleAccepted()

	n.store.Set(KeyGameMode, "battle")
	n.store.Set(KeyOpponentID, strconv.FormatInt(int64(senderID), 10))
	n.store.Set(KeyOpponentName, senderName)

	n.presenter.Alert("🎉 对战成功", fmt.Sprintf("与 %s 的对战即将开始！", senderName))
	Log.Infof("battle accepted by %d(%s), entering battle", senderID, senderName)
	n.nav.ToBattle()
}

// ---------- 出站：通讯邀请 ----------

// InviteChatPeer 发起通讯邀请：打开等待中的聊天界面，无倒数
func (n *Negotiator) InviteChatPeer(peerID UserID, peerName string) bool {
	key := negKey{InviteChat, peerID}
	if _, ok := n.outbound[key]; ok {
		Log.Warnf("chat invite to %d refused: negotiation already in flight", peerID)
		return false
	}
	n.outbound[key] = &Negotiation{
		Kind:     InviteChat,
		PeerID:   peerID,
		PeerName: peerName,
		State:    StateInvited,
	}
	n.chatPeer = peerID
	n.chatPeerName = peerName
	n.chatReady = false
	n.presenter.ChatOpened(peerName, peerID, false)
	n.sender.Send(KindChatInvite, InvitePayload{ReceiverID: peerID})
	Log.Infof("chat invite sent: peer=%d(%s)", peerID, peerName)
	return true
}

// SendChat 发送聊天内容；未进入聊天或对方未同意时丢弃
func (n *Negotiator) SendChat(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if n.chatPeer == 0 || !n.chatReady {
		Log.Warnf("chat message dropped: no active chat session")
		return
	}
	n.sender.Send(KindChatMessage, ChatOutPayload{ReceiverID: n.chatPeer, Message: text})
}

// OnChatApproved 服务器确认双方建立聊天（接受方应答后双方都会收到）。
// 发起方的在途邀请就此落定，聊天界面切换为可输入；
// 接受方在 AcceptHead 时已就绪，这里没有在途协商，自然不动。
func (n *Negotiator) OnChatApproved(peerID UserID) {
	key := negKey{InviteChat, peerID}
	if neg, ok := n.outbound[key]; ok && neg.State == StateInvited {
		neg.State = StateAccepted
		delete(n.outbound, key)
		Log.Infof("chat approved with %d", peerID)
	}
	if n.chatPeer == peerID && !n.chatReady {
		n.chatReady = true
		n.presenter.ChatOpened(n.chatPeerName, peerID, true)
	}
}

// OnChatMessage 入站聊天内容，转交界面呈现
func (n *Negotiator) OnChatMessage(senderID UserID, text string) {
	n.presenter.ChatMessage(senderID, text)
}

// ---------- 入站邀请队列 ----------

// OnInvite 收到对方的通讯 / 对战邀请。
// 有历史记录的邀请绕过队列直接提示，不计入角标，应答以被提示的邀请为准；
// 其余按到达顺序排队，只有队首会被提示。
func (n *Negotiator) OnInvite(inv Invite, hasHistory bool) {
	if hasHistory {
		n.direct = &inv
		n.presenter.PromptInvite(inv)
		return
	}
	n.pending = append(n.pending, inv)
	n.metrics.IncInviteQueued()
	n.presenter.PendingCount(len(n.pending))
}

// PromptPending 用户点开角标：提示当前待应答的邀请（不出队，应答时才出队）
func (n *Negotiator) PromptPending() {
	if n.direct != nil {
		n.presenter.PromptInvite(*n.direct)
		return
	}
	if len(n.pending) == 0 {
		return
	}
	n.presenter.PromptInvite(n.pending[0])
}

// takePrompted 取出当前被提示的邀请：优先直接提示的历史邀请，其次队首
func (n *Negotiator) takePrompted() (Invite, bool) {
	if n.direct != nil {
		inv := *n.direct
		n.direct = nil
		return inv, true
	}
	if len(n.pending) == 0 {
		return Invite{}, false
	}
	inv := n.pending[0]
	n.pending = n.pending[1:]
	n.presenter.PendingCount(len(n.pending))
	return inv, true
}

// PendingLen 等待处理的邀请数
func (n *Negotiator) PendingLen() int { return len(n.pending) }

// AcceptHead 接受当前被提示的邀请：发送 accept_invite；
// 对战邀请立即进入对战（接受方没有倒数），通讯邀请打开可输入的聊天界面
func (n *Negotiator) AcceptHead() {
	inv, ok := n.takePrompted()
	if !ok {
		return
	}

	n.sender.Send(KindAcceptInvite, InviteReplyPayload{Type: inv.Kind.String(), SenderID: inv.SenderID})

	if inv.Kind == InviteBattle {
		n.store.Set(KeyGameMode, "battle")
		n.store.Set(KeyOpponentID, strconv.FormatInt(int64(inv.SenderID), 10))
		n.store.Set(KeyOpponentName, inv.SenderName)
		Log.Infof("battle invite from %d accepted, entering battle", inv.SenderID)
		n.nav.ToBattle()
		return
	}

	n.chatPeer = inv.SenderID
	n.chatPeerName = inv.SenderName
	n.chatReady = true
	n.presenter.ChatOpened(inv.SenderName, inv.SenderID, true)
	Log.Infof("chat invite from %d accepted", inv.SenderID)
}

// RejectHead 拒绝当前被提示的邀请：发送 reject_invite 并提示
func (n *Negotiator) RejectHead() {
	inv, ok := n.takePrompted()
	if !ok {
		return
	}

	n.sender.Send(KindRejectInvite, InviteReplyPayload{Type: inv.Kind.String(), SenderID: inv.SenderID})
	n.presenter.Alert("通知", fmt.Sprintf("已拒绝 %s 的邀请。", inv.SenderName))
	Log.Infof("%s invite from %d rejected", inv.Kind, inv.SenderID)
}

// ---------- 服务器拒绝通知 ----------

// OnNotAllowed 服务器拒绝了我方发起的邀请或聊天（精神值不足、对方离线等）。
// 通知不携带对端身份，把该种类所有在途出站协商就地判定为被拒绝。
func (n *Negotiator) OnNotAllowed(kind InviteKind, reason, message string) {
	for key, neg := range n.outbound {
		if key.kind != kind || neg.State != StateInvited {
			continue
		}
		neg.State = StateRejected
		if neg.stop != nil {
			close(neg.stop)
		}
		delete(n.outbound, key)
	}
	if kind == InviteChat {
		n.chatReady = false
	}
	if message == "" {
		message = fmt.Sprintf("请求被拒绝（%s）", reason)
	}
	n.presenter.Alert("提示", message)
	Log.Infof("%s refused by server: reason=%s", kind, reason)
}

// shutdown 撤销所有在途协商的倒数协程。
// 只在会话循环退出路径上由循环协程调用，之后不会再有节拍闭包被执行。
func (n *Negotiator) shutdown() {
	for key, neg := range n.outbound {
		if neg.stop != nil {
			close(neg.stop)
		}
		delete(n.outbound, key)
	}
}

// OutboundState 查询在途出站协商状态（调试与测试用）
func (n *Negotiator) OutboundState(kind InviteKind, peer UserID) (NegotiationState, bool) {
	neg, ok := n.outbound[negKey{kind, peer}]
	if !ok {
		return 0, false
	}
	return neg.State, true
}
