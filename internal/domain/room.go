// internal/domain/room.go
// Package domain 定义酒店空调系统的领域模型与温控规则
package domain

import (
	"math"
	"time"

	"backend/internal/types"
)

// RoomStatus 房间入住状态
type RoomStatus string

const (
	RoomVacant   RoomStatus = "VACANT"
	RoomOccupied RoomStatus = "OCCUPIED"
)

// TempModel 温控模型参数（每次 tick 时由 TimeManager 传入）
type TempModel struct {
	MidDeltaPerMin  float64
	HighMultiplier  float64
	LowMultiplier   float64
	IdleDriftPerMin float64
}

// Room 客房领域对象
//
// 不变式:
//   - Status==VACANT 时 IsServing 必为 false 且无有效住宿订单
//   - PendingTargetTemp != nil 时 LastTempChangeAt != nil
type Room struct {
	RoomID            string
	Status            RoomStatus
	CurrentTemp       float64
	TargetTemp        float64
	InitialTemp       float64
	Mode              types.Mode
	Speed             types.Speed
	IsServing         bool
	PoweredOn         bool
	ManualPoweredOff  bool
	RatePerNight      float64
	LastTempChangeAt  *time.Time
	PendingTargetTemp *float64
}

// NewRoom 按配置默认值创建房间
func NewRoom(roomID string, defaultTemp, ratePerNight float64) *Room {
	return &Room{
		RoomID:       roomID,
		Status:       RoomVacant,
		CurrentTemp:  defaultTemp,
		TargetTemp:   defaultTemp,
		InitialTemp:  defaultTemp,
		Mode:         types.ModeCool,
		Speed:        types.SpeedMid,
		RatePerNight: ratePerNight,
	}
}

// MarkOccupied 标记房间已入住，只翻转状态
//
// 初始温度不在这里动：入住时由 CaptureInitialTemp 记录一次，
// 之后开关机都不得改写，否则空闲回漂的终点会跟着当前温度跑。
func (r *Room) MarkOccupied() {
	r.Status = RoomOccupied
}

// CaptureInitialTemp 把当前温度记为初始温度（空闲回漂的终点），入住时调用
func (r *Room) CaptureInitialTemp() {
	r.InitialTemp = r.CurrentTemp
}

// MarkVacant 退房：清理服务状态
func (r *Room) MarkVacant() {
	r.Status = RoomVacant
	r.IsServing = false
	r.PoweredOn = false
	r.ManualPoweredOff = false
	r.PendingTargetTemp = nil
}

// RequestTargetTemp 请求修改目标温度（带节流窗口）
//
// 返回 true 表示立即生效；返回 false 表示仍在节流窗口内，
// 仅记录为待应用的最后一次调温（覆盖之前的待应用值）。
func (r *Room) RequestTargetTemp(target float64, now time.Time, throttleMs int) bool {
	r.PendingTargetTemp = nil
	if r.LastTempChangeAt != nil {
		deltaMs := now.Sub(*r.LastTempChangeAt).Milliseconds()
		if deltaMs < int64(throttleMs) {
			// 窗口内只保留最新一次调温
			pending := target
			r.PendingTargetTemp = &pending
			return false
		}
	}
	r.TargetTemp = target
	t := now
	r.LastTempChangeAt = &t
	return true
}

// ApplyPendingTarget 节流窗口结束后，把最后一次调温写入 TargetTemp
func (r *Room) ApplyPendingTarget(now time.Time, throttleMs int) bool {
	if r.PendingTargetTemp == nil {
		return false
	}
	if r.LastTempChangeAt == nil {
		r.TargetTemp = *r.PendingTargetTemp
		r.PendingTargetTemp = nil
		t := now
		r.LastTempChangeAt = &t
		return true
	}
	deltaMs := now.Sub(*r.LastTempChangeAt).Milliseconds()
	if deltaMs >= int64(throttleMs) {
		r.TargetTemp = *r.PendingTargetTemp
		r.PendingTargetTemp = nil
		t := now
		r.LastTempChangeAt = &t
		return true
	}
	return false
}

// TickTemperature 推进一逻辑秒的温度模拟
//
// 送风时向目标温度靠近：中风 MidDeltaPerMin ℃/min，
// 高风乘 HighMultiplier，低风乘 LowMultiplier。
// 恰好到达目标温度时返回 true。
// 非送风时以 IdleDriftPerMin 向初始温度回漂。
func (r *Room) TickTemperature(model TempModel, serving bool) bool {
	if serving {
		multiplier := 1.0
		switch r.Speed {
		case types.SpeedHigh:
			multiplier = model.HighMultiplier
		case types.SpeedLow:
			multiplier = model.LowMultiplier
		}
		deltaPerSec := (model.MidDeltaPerMin * multiplier) / 60.0
		return r.moveTowards(r.TargetTemp, deltaPerSec)
	}
	r.moveTowards(r.InitialTemp, model.IdleDriftPerMin/60.0)
	return false
}

// NeedsAutoRestart 偏离目标温度达到阈值（含恰好等于）时需要自动重启送风
func (r *Room) NeedsAutoRestart(threshold float64) bool {
	return math.Abs(r.CurrentTemp-r.TargetTemp) >= threshold
}

func (r *Room) moveTowards(target, deltaPerSec float64) bool {
	if deltaPerSec <= 0 {
		return math.Abs(r.CurrentTemp-target) < 1e-3
	}
	diff := target - r.CurrentTemp
	if math.Abs(diff) <= deltaPerSec {
		r.CurrentTemp = target
		return true
	}
	if diff > 0 {
		r.CurrentTemp += deltaPerSec
	} else {
		r.CurrentTemp -= deltaPerSec
	}
	return false
}

// Clone 返回房间的浅拷贝，监控读取用
func (r *Room) Clone() *Room {
	cp := *r
	if r.LastTempChangeAt != nil {
		t := *r.LastTempChangeAt
		cp.LastTempChangeAt = &t
	}
	if r.PendingTargetTemp != nil {
		v := *r.PendingTargetTemp
		cp.PendingTargetTemp = &v
	}
	return &cp
}
