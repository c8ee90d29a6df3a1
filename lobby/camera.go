package lobby

import "math"

// View 镜头换算所需的三组尺寸：世界逻辑范围、世界层像素尺寸、视口像素尺寸
type View struct {
	WorldW, WorldH       float64
	LayerW, LayerH       float64
	ViewportW, ViewportH float64
}

// Camera 镜头偏移量。每次本地位置变化都整体重算，从不增量累加，避免漂移。
type Camera struct {
	OffsetX float64
	OffsetY float64
}

// CameraAt 以本地玩家为中心计算镜头偏移，并把偏移夹在
// [0, layer-viewport] 内：镜头在世界边缘停止滚动，不露出界外背景
func (v View) CameraAt(worldX, worldY float64) Camera {
	px := worldX / v.WorldW * v.LayerW
	py := worldY / v.WorldH * v.LayerH

	idealX := px - v.ViewportW/2
	idealY := py - v.ViewportH/2

	maxX := math.Max(0, v.LayerW-v.ViewportW)
	maxY := math.Max(0, v.LayerH-v.ViewportH)

	return Camera{
		OffsetX: clamp(idealX, 0, maxX),
		OffsetY: clamp(idealY, 0, maxY),
	}
}

// Screen 世界坐标 → 屏幕坐标：线性缩放到世界层像素，再减去镜头偏移
func (v View) Screen(c Camera, worldX, worldY float64) (float64, float64) {
	return worldX/v.WorldW*v.LayerW - c.OffsetX, worldY/v.WorldH*v.LayerH - c.OffsetY
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// finite 入站坐标校验：NaN / Inf 一律视为非法
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
