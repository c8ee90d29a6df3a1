package lobby

// Direction 移动方向，同时也是本地精灵的朝向贴图选择
type Direction int

const (
	DirNone Direction = iota
	DirUp
	DirDown
	DirLeft
	DirRight
)

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	default:
		return "idle"
	}
}

// Movement 本地移动控制器：每帧读取一次按住的方向键集合，
// 逐键叠加位移后统一夹回世界边界。按键检查顺序固定为上、下、左、右；
// 位移是叠加的，同时按住两键就是对角线移动。
type Movement struct {
	held map[Direction]bool

	x, y           float64
	worldW, worldH float64
	step           float64

	// 停止移动后的待机去抖：连续 idleAfter 个无移动帧才切回待机，
	// 任何移动帧都会重置计数
	idleAfter int
	idleCount int
	idle      bool
}

func NewMovement(cfg *Config) *Movement {
	return &Movement{
		held:      make(map[Direction]bool),
		x:         cfg.SpawnX(),
		y:         cfg.SpawnY(),
		worldW:    cfg.WorldWidth,
		worldH:    cfg.WorldHeight,
		step:      cfg.MoveStep,
		idleAfter: cfg.IdleDelayFrames(),
		idle:      true,
	}
}

// SetHeld 记录按键按下 / 松开（由 UI 事件驱动，不直接移动）
func (m *Movement) SetHeld(d Direction, down bool) {
	if d == DirNone {
		return
	}
	m.held[d] = down
}

// Pos 当前世界坐标
func (m *Movement) Pos() (float64, float64) {
	return m.x, m.y
}

// Step 推进一帧。返回：本帧是否移动、移动后的朝向、本帧是否刚切回待机。
// goneIdle 在去抖到期的那一帧恰好为 true 一次。
func (m *Movement) Step() (moved bool, facing Direction, goneIdle bool) {
	facing = DirNone

	if m.held[DirUp] {
		m.y -= m.step
		facing = DirUp
		moved = true
	}
	if m.held[DirDown] {
		m.y += m.step
		facing = DirDown
		moved = true
	}
	if m.held[DirLeft] {
		m.x -= m.step
		facing = DirLeft
		moved = true
	}
	if m.held[DirRight] {
		m.x += m.step
		facing = DirRight
		moved = true
	}

	if !moved {
		if !m.idle {
			m.idleCount++
			if m.idleCount >= m.idleAfter {
				m.idle = true
				return false, DirNone, true
			}
		}
		return false, DirNone, false
	}

	m.idleCount = 0
	m.idle = false

	// 越界裁剪：所有轴向叠加完之后统一夹回范围
	m.x = clamp(m.x, 0, m.worldW)
	m.y = clamp(m.y, 0, m.worldH)

	return true, facing, false
}
