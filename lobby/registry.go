package lobby

import "fmt"

// Sprite 远端玩家的可视句柄（渲染方实现）。
// 核心只负责算屏幕坐标与名牌内容，不关心绘制细节。
type Sprite interface {
	MoveTo(screenX, screenY float64)
	SetName(name string)
	Remove()
}

// SpriteFactory 首次见到某个玩家时创建其可视句柄
type SpriteFactory func(id UserID, name string) Sprite

// RemoteEntity 远端玩家条目，注册表独占所有权；
// 协商层只按值读取 ID / DisplayName，从不改写。
type RemoteEntity struct {
	ID          UserID
	DisplayName string
	X, Y        float64
	Sprite      Sprite
}

// Registry 维护当前可见的其他玩家。
// 自我过滤是调用方的责任：Upsert 不得以本地锁定身份调用。
type Registry struct {
	entities  map[UserID]*RemoteEntity
	newSprite SpriteFactory

	// 未带坐标的首次出现退回地图中心
	defaultX, defaultY float64
}

func NewRegistry(factory SpriteFactory, defaultX, defaultY float64) *Registry {
	return &Registry{
		entities:  make(map[UserID]*RemoteEntity),
		newSprite: factory,
		defaultX:  defaultX,
		defaultY:  defaultY,
	}
}

// Upsert 懒创建 + 就地更新：
// 事件以 {全量快照, 加入, 移动} 任意顺序到达都能收敛到同一结果。
// 首次见到先以地图中心建条目，再套用给定坐标；显示名只在非空时覆盖。
func (r *Registry) Upsert(id UserID, displayName string, x, y float64) *RemoteEntity {
	e, ok := r.entities[id]
	if !ok {
		name := displayName
		if name == "" {
			name = fmt.Sprintf("玩家 %d", id)
		}
		e = &RemoteEntity{
			ID:          id,
			DisplayName: name,
			X:           r.defaultX,
			Y:           r.defaultY,
			Sprite:      r.newSprite(id, name),
		}
		r.entities[id] = e
	} else if displayName != "" && displayName != e.DisplayName {
		e.DisplayName = displayName
		e.Sprite.SetName(displayName)
	}
	e.X, e.Y = x, y
	return e
}

// Get 按身份查找，未见过返回 nil
func (r *Registry) Get(id UserID) *RemoteEntity {
	return r.entities[id]
}

// Remove 玩家离场：移除条目并销毁可视句柄。
// 协议里由 player_left 触发；没有该消息时条目保留到会话结束。
func (r *Registry) Remove(id UserID) bool {
	e, ok := r.entities[id]
	if !ok {
		return false
	}
	e.Sprite.Remove()
	delete(r.entities, id)
	return true
}

func (r *Registry) Len() int { return len(r.entities) }

// ForEach 遍历所有条目（镜头移动后统一重算屏幕坐标用）
func (r *Registry) ForEach(fn func(e *RemoteEntity)) {
	for _, e := range r.entities {
		fn(e)
	}
}

// Snapshot 返回只读副本，便于调试接口输出
func (r *Registry) Snapshot() []map[string]any {
	out := make([]map[string]any, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, map[string]any{
			"user_id":      e.ID,
			"display_name": e.DisplayName,
			"x":            e.X,
			"y":            e.Y,
		})
	}
	return out
}
