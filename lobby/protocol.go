package lobby

import (
	"encoding/json"
	"fmt"
)

// UserID 玩家唯一标识（由认证方分配，会话期间不变）
type UserID int64

// Kind 消息种类：封闭枚举，入站分发用穷举 switch 而不是字符串回调表，
// 新增消息种类时编译器能提示所有分发点。
type Kind int

const (
	KindUnknown Kind = iota

	// 入站
	KindLobbyState
	KindPlayerJoined
	KindOtherPetMoved
	KindPlayerLeft
	KindChatRequest
	KindBattleRequest
	KindBattleAccepted
	KindChatMessage
	KindChatNotAllowed
	KindBattleNotAllowed
	KindChatApproved

	// 出站
	KindJoinLobby
	KindUpdatePosition
	KindChatInvite
	KindAcceptInvite
	KindRejectInvite
	KindBattleInvite
	KindCancelBattleInvite
)

var kindNames = map[Kind]string{
	KindLobbyState:         "lobby_state",
	KindPlayerJoined:       "player_joined",
	KindOtherPetMoved:      "other_pet_moved",
	KindPlayerLeft:         "player_left",
	KindChatRequest:        "chat_request",
	KindBattleRequest:      "battle_request",
	KindBattleAccepted:     "battle_accepted",
	KindChatMessage:        "chat_message",
	KindChatNotAllowed:     "chat_not_allowed",
	KindBattleNotAllowed:   "battle_not_allowed",
	KindChatApproved:       "chat_approved",
	KindJoinLobby:          "join_lobby",
	KindUpdatePosition:     "update_position",
	KindChatInvite:         "chat_invite",
	KindAcceptInvite:       "accept_invite",
	KindRejectInvite:       "reject_invite",
	KindBattleInvite:       "battle_invite",
	KindCancelBattleInvite: "cancel_battle_invite",
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, s := range kindNames {
		m[s] = k
	}
	return m
}()

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind 未知类型返回 KindUnknown，由分发处统一忽略
func ParseKind(s string) Kind {
	return kindByName[s]
}

// Envelope 双向统一信封：{type, server_id, user_id, payload}
type Envelope struct {
	Type     string          `json:"type"`
	ServerID string          `json:"server_id"`
	UserID   UserID          `json:"user_id"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// EncodeEnvelope 把载荷包入信封并序列化为一帧文本消息
func EncodeEnvelope(kind Kind, serverID string, userID UserID, payload any) ([]byte, error) {
	if kind == KindUnknown {
		return nil, fmt.Errorf("encode: unknown message kind")
	}
	env := Envelope{Type: kind.String(), ServerID: serverID, UserID: userID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// DecodeEnvelope 解析一帧入站消息；畸形帧返回错误，由网关丢弃并记日志
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("decode: empty frame")
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode: missing type field")
	}
	return env, nil
}

// DecodePayload 按目标类型解出信封内载荷
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.Payload) == 0 {
		return out, fmt.Errorf("empty payload for type %q", env.Type)
	}
	err := json.Unmarshal(env.Payload, &out)
	return out, err
}

// ---------- 入站载荷 ----------

// LobbyPlayer 单个玩家的快照条目。坐标用指针区分“缺省”与 0：
// lobby_state / player_joined 缺省时退回地图中心，other_pet_moved 缺省时整条丢弃。
type LobbyPlayer struct {
	UserID      UserID   `json:"user_id"`
	DisplayName string   `json:"display_name,omitempty"`
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
}

// LobbyStatePayload 全量大厅快照，按序逐条 upsert
type LobbyStatePayload struct {
	Players []LobbyPlayer `json:"players"`
}

// PlayerJoinedPayload 新玩家加入
type PlayerJoinedPayload struct {
	Player LobbyPlayer `json:"player"`
}

// PetMovedPayload 其他玩家移动
type PetMovedPayload struct {
	Player LobbyPlayer `json:"player"`
}

// InviteRequestPayload chat_request / battle_request 共用：
// has_history 表示双方此前有过通讯记录，由服务器判定
type InviteRequestPayload struct {
	SenderID   UserID `json:"sender_id"`
	SenderName string `json:"sender_name"`
	HasHistory bool   `json:"has_history"`
}

// BattleAcceptedPayload 对方接受了我方发出的对战邀请
type BattleAcceptedPayload struct {
	SenderID   UserID `json:"sender_id"`
	SenderName string `json:"sender_name"`
}

// ChatInPayload 入站聊天内容
type ChatInPayload struct {
	SenderID UserID `json:"sender_id"`
	Message  string `json:"message"`
}

// ChatApprovedPayload 聊天放行通知：接受方应答后服务器同时发给双方。
// 对发起方而言这是在途邀请的落定信号。
type ChatApprovedPayload struct {
	UserID1 UserID `json:"user_id_1"`
	UserID2 UserID `json:"user_id_2"`
}

// NotAllowedPayload 服务器拒绝通知（chat_not_allowed / battle_not_allowed）
type NotAllowedPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// ---------- 出站载荷 ----------

// JoinLobbyPayload 连接建立后发送的入场公告
type JoinLobbyPayload struct {
	DisplayName string  `json:"display_name"`
	PetID       int64   `json:"pet_id"`
	PetName     string  `json:"pet_name"`
	Energy      int     `json:"energy"`
	Status      string  `json:"status"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

// PositionPayload update_position，移动帧每帧至多一条
type PositionPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// InvitePayload chat_invite / cancel_battle_invite
type InvitePayload struct {
	ReceiverID UserID `json:"receiver_id"`
}

// BattleInvitePayload 发起对战邀请，携带当前精神值
type BattleInvitePayload struct {
	ReceiverID UserID `json:"receiver_id"`
	PetSpirit  int    `json:"pet_spirit"`
}

// InviteReplyPayload accept_invite / reject_invite
type InviteReplyPayload struct {
	Type     string `json:"type"` // "chat" 或 "battle"
	SenderID UserID `json:"sender_id"`
}

// ChatOutPayload 出站聊天内容
type ChatOutPayload struct {
	ReceiverID UserID `json:"receiver_id"`
	Message    string `json:"message"`
}
