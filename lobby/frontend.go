package lobby

// Presenter 用户界面协作方：核心只下发要呈现的状态，不关心呈现方式。
// 所有回调都在会话循环协程内被调用，实现方不应在回调里长时间阻塞。
type Presenter interface {
	// Alert 阻断式提示（初始化失败、对战结果等）
	Alert(title, text string)
	// ConfirmCancel 取消对战前的二次确认提示；
	// 用户的选择通过 Session.ConfirmCancelBattle / DismissCancelBattle 送回
	ConfirmCancel(peerName string)
	// PromptInvite 弹出接受 / 拒绝邀请提示（永远只针对队首）
	PromptInvite(inv Invite)
	// PendingCount 等待处理的邀请数（驱动角标）
	PendingCount(n int)
	// ShowCountdown 对战邀请剩余秒数
	ShowCountdown(peerName string, secondsLeft int)
	// ChatOpened 打开聊天界面；ready=false 表示还在等待对方同意
	ChatOpened(peerName string, peerID UserID, ready bool)
	// ChatMessage 收到对方的聊天内容
	ChatMessage(from UserID, text string)
	// SetLocalFacing 本地精灵朝向（DirNone = 待机贴图）
	SetLocalFacing(d Direction)
}

// Navigator 页面跳转协作方：终态跳转（重新登录 / 进入对战 / 单人模式）
type Navigator interface {
	ToLogin()
	ToBattle()
	ToSolo()
}
