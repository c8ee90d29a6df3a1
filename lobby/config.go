package lobby

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config 客户端运行参数，启动时从环境变量读取，未设置时使用默认值。
// 世界逻辑尺寸与初始出生点必须和服务器广播的坐标系一致。
type Config struct {
	// 网络端点
	WSBaseURL  string `env:"LOBBY_WS_BASE" envDefault:"ws://localhost:8000"`
	APIBaseURL string `env:"LOBBY_API_BASE" envDefault:"http://localhost:8000"`

	// 世界逻辑坐标范围（所有参与者共享）
	WorldWidth  float64 `env:"LOBBY_WORLD_W" envDefault:"200"`
	WorldHeight float64 `env:"LOBBY_WORLD_H" envDefault:"200"`

	// 世界层像素尺寸与视口像素尺寸（镜头裁剪用）
	LayerWidth     float64 `env:"LOBBY_LAYER_W" envDefault:"1600"`
	LayerHeight    float64 `env:"LOBBY_LAYER_H" envDefault:"1600"`
	ViewportWidth  float64 `env:"LOBBY_VIEWPORT_W" envDefault:"960"`
	ViewportHeight float64 `env:"LOBBY_VIEWPORT_H" envDefault:"640"`

	// 帧率与每帧位移步长
	FramesPerSecond int     `env:"LOBBY_FPS" envDefault:"20"`
	MoveStep        float64 `env:"LOBBY_MOVE_STEP" envDefault:"1"`

	// 停止移动后恢复待机贴图的延迟
	IdleDelay time.Duration `env:"LOBBY_IDLE_DELAY" envDefault:"150ms"`

	// 对战邀请倒数秒数
	CountdownSeconds int `env:"LOBBY_COUNTDOWN_SEC" envDefault:"5"`

	// 日志文件路径
	LogFile string `env:"LOBBY_LOG_FILE" envDefault:"lobby.log"`
}

// LoadConfig 解析环境变量并做基本校验
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.WorldWidth <= 0 || cfg.WorldHeight <= 0 {
		return nil, fmt.Errorf("invalid world extents: %v x %v", cfg.WorldWidth, cfg.WorldHeight)
	}
	if cfg.FramesPerSecond <= 0 {
		return nil, fmt.Errorf("invalid frame rate: %d", cfg.FramesPerSecond)
	}
	return cfg, nil
}

// SpawnX / SpawnY 出生点 = 地图中心。
// 本地模拟的初始位置与 join_lobby 携带的初始位置都取自这里，
// 两处共用同一常量来源，避免“自己看在中间、别人看在别处”的坐标错位。
func (c *Config) SpawnX() float64 { return c.WorldWidth / 2 }
func (c *Config) SpawnY() float64 { return c.WorldHeight / 2 }

// View 返回镜头换算所需的尺寸集合
func (c *Config) View() View {
	return View{
		WorldW:    c.WorldWidth,
		WorldH:    c.WorldHeight,
		LayerW:    c.LayerWidth,
		LayerH:    c.LayerHeight,
		ViewportW: c.ViewportWidth,
		ViewportH: c.ViewportHeight,
	}
}

// IdleDelayFrames 把待机延迟换算成帧数（至少 1 帧）
func (c *Config) IdleDelayFrames() int {
	n := int(c.IdleDelay * time.Duration(c.FramesPerSecond) / time.Second)
	if n < 1 {
		n = 1
	}
	return n
}
