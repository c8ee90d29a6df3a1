package lobby

import (
	"sync/atomic"
)

// SessionMetrics 记录会话运行期的关键指标（用于监控与调试）
type SessionMetrics struct {
	Frames          int64 // 推进过的帧数
	MovesSent       int64 // 发出的 update_position 条数
	SendsDropped    int64 // 因未连接或队列满被丢弃的出站消息数
	MalformedFrames int64 // 解析失败被丢弃的入站帧数
	IgnoredKinds    int64 // 类型未知被忽略的入站消息数
	SelfFiltered    int64 // 因身份等于本地锁定身份被过滤的入站条目数
	InvitesQueued   int64 // 进入等待队列的邀请数
	BattlesTimedOut int64 // 超时失败的对战邀请数
	BattlesAccepted int64 // 被对方接受的对战邀请数
	BattlesCanceled int64 // 确认取消的对战邀请数
}

func (m *SessionMetrics) IncFrame()          { atomic.AddInt64(&m.Frames, 1) }
func (m *SessionMetrics) IncMoveSent()       { atomic.AddInt64(&m.MovesSent, 1) }
func (m *SessionMetrics) IncSendDropped()    { atomic.AddInt64(&m.SendsDropped, 1) }
func (m *SessionMetrics) IncMalformed()      { atomic.AddInt64(&m.MalformedFrames, 1) }
func (m *SessionMetrics) IncIgnoredKind()    { atomic.AddInt64(&m.IgnoredKinds, 1) }
func (m *SessionMetrics) IncSelfFiltered()   { atomic.AddInt64(&m.SelfFiltered, 1) }
func (m *SessionMetrics) IncInviteQueued()   { atomic.AddInt64(&m.InvitesQueued, 1) }
func (m *SessionMetrics) IncBattleTimeout()  { atomic.AddInt64(&m.BattlesTimedOut, 1) }
func (m *SessionMetrics) IncBattleAccepted() { atomic.AddInt64(&m.BattlesAccepted, 1) }
func (m *SessionMetrics) IncBattleCanceled() { atomic.AddInt64(&m.BattlesCanceled, 1) }

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *SessionMetrics) Snapshot() map[string]any {
	return map[string]any{
		"frames":            atomic.LoadInt64(&m.Frames),
		"moves_sent":        atomic.LoadInt64(&m.MovesSent),
		"sends_dropped":     atomic.LoadInt64(&m.SendsDropped),
		"malformed_frames":  atomic.LoadInt64(&m.MalformedFrames),
		"ignored_kinds":     atomic.LoadInt64(&m.IgnoredKinds),
		"self_filtered":     atomic.LoadInt64(&m.SelfFiltered),
		"invites_queued":    atomic.LoadInt64(&m.InvitesQueued),
		"battles_timed_out": atomic.LoadInt64(&m.BattlesTimedOut),
		"battles_accepted":  atomic.LoadInt64(&m.BattlesAccepted),
		"battles_canceled":  atomic.LoadInt64(&m.BattlesCanceled),
	}
}
