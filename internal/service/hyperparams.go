// internal/service/hyperparams.go

package service

import (
	"sync"

	"backend/internal/config"
	"backend/internal/logger"
	"backend/internal/timing"
	"backend/internal/types"
)

// HyperparamService 管理端运行参数的读取与热更新
//
// 调度器、计费引擎和时间管理器共享同一份 *config.Config，
// 在调度全局锁内改字段，各组件下一次读取即生效，不需要重启。
type HyperparamService struct {
	cfg    *config.Config
	coreMu *sync.Mutex
	tm     *timing.TimeManager
}

// Hyperparams 当前全部可调参数
type Hyperparams struct {
	MaxConcurrent        int
	TimeSliceSeconds     int
	ChangeTempMs         int
	AutoRestartThreshold float64
	IdleDriftPerMin      float64
	MidDeltaPerMin       float64
	HighMultiplier       float64
	LowMultiplier        float64
	DefaultTarget        float64
	PricePerUnit         float64
	RateHighUnitPerMin   float64
	RateMidUnitPerMin    float64
	RateLowUnitPerMin    float64
	RatePerNight         float64
	ClockRatio           float64
}

// HyperparamUpdate 参数更新请求，nil 字段表示不改
type HyperparamUpdate struct {
	MaxConcurrent        *int
	TimeSliceSeconds     *int
	ChangeTempMs         *int
	AutoRestartThreshold *float64
	IdleDriftPerMin      *float64
	MidDeltaPerMin       *float64
	HighMultiplier       *float64
	LowMultiplier        *float64
	DefaultTarget        *float64
	PricePerUnit         *float64
	RateHighUnitPerMin   *float64
	RateMidUnitPerMin    *float64
	RateLowUnitPerMin    *float64
	RatePerNight         *float64
	ClockRatio           *float64
}

// NewHyperparamService 创建运行参数服务，coreMu 必须是调度全局锁
func NewHyperparamService(cfg *config.Config, coreMu *sync.Mutex, tm *timing.TimeManager) *HyperparamService {
	return &HyperparamService{cfg: cfg, coreMu: coreMu, tm: tm}
}

// Get 读取当前参数
func (s *HyperparamService) Get() Hyperparams {
	s.coreMu.Lock()
	defer s.coreMu.Unlock()
	return s.snapshotLocked()
}

// Update 校验并应用参数更新，返回更新后的全量参数
//
// 先整体校验再落地，任一字段非法时全部不生效。
func (s *HyperparamService) Update(u HyperparamUpdate) (Hyperparams, error) {
	if err := u.validate(); err != nil {
		return Hyperparams{}, err
	}
	if u.ClockRatio != nil {
		// 时钟倍率由 TimeManager 自己的锁保护
		if err := s.tm.SetClockRatio(*u.ClockRatio); err != nil {
			return Hyperparams{}, err
		}
	}

	s.coreMu.Lock()
	defer s.coreMu.Unlock()
	if u.MaxConcurrent != nil {
		s.cfg.Scheduling.MaxConcurrent = *u.MaxConcurrent
	}
	if u.TimeSliceSeconds != nil {
		s.cfg.Scheduling.TimeSliceSeconds = *u.TimeSliceSeconds
	}
	if u.ChangeTempMs != nil {
		s.cfg.Throttle.ChangeTempMs = *u.ChangeTempMs
	}
	if u.AutoRestartThreshold != nil {
		s.cfg.Temperature.AutoRestartThreshold = *u.AutoRestartThreshold
	}
	if u.IdleDriftPerMin != nil {
		s.cfg.Temperature.IdleDriftPerMin = *u.IdleDriftPerMin
	}
	if u.MidDeltaPerMin != nil {
		s.cfg.Temperature.MidDeltaPerMin = *u.MidDeltaPerMin
	}
	if u.HighMultiplier != nil {
		s.cfg.Temperature.HighMultiplier = *u.HighMultiplier
	}
	if u.LowMultiplier != nil {
		s.cfg.Temperature.LowMultiplier = *u.LowMultiplier
	}
	if u.DefaultTarget != nil {
		s.cfg.Temperature.DefaultTarget = *u.DefaultTarget
	}
	if u.PricePerUnit != nil {
		s.cfg.Billing.PricePerUnit = *u.PricePerUnit
	}
	if u.RateHighUnitPerMin != nil {
		s.cfg.Billing.RateHighUnitPerMin = *u.RateHighUnitPerMin
	}
	if u.RateMidUnitPerMin != nil {
		s.cfg.Billing.RateMidUnitPerMin = *u.RateMidUnitPerMin
	}
	if u.RateLowUnitPerMin != nil {
		s.cfg.Billing.RateLowUnitPerMin = *u.RateLowUnitPerMin
	}
	if u.RatePerNight != nil {
		s.cfg.Accommodation.RatePerNight = *u.RatePerNight
	}
	logger.Info("运行参数已更新")
	return s.snapshotLocked(), nil
}

func (s *HyperparamService) snapshotLocked() Hyperparams {
	return Hyperparams{
		MaxConcurrent:        s.cfg.Scheduling.MaxConcurrent,
		TimeSliceSeconds:     s.cfg.Scheduling.TimeSliceSeconds,
		ChangeTempMs:         s.cfg.Throttle.ChangeTempMs,
		AutoRestartThreshold: s.cfg.Temperature.AutoRestartThreshold,
		IdleDriftPerMin:      s.cfg.Temperature.IdleDriftPerMin,
		MidDeltaPerMin:       s.cfg.Temperature.MidDeltaPerMin,
		HighMultiplier:       s.cfg.Temperature.HighMultiplier,
		LowMultiplier:        s.cfg.Temperature.LowMultiplier,
		DefaultTarget:        s.cfg.Temperature.DefaultTarget,
		PricePerUnit:         s.cfg.Billing.PricePerUnit,
		RateHighUnitPerMin:   s.cfg.Billing.RateHighUnitPerMin,
		RateMidUnitPerMin:    s.cfg.Billing.RateMidUnitPerMin,
		RateLowUnitPerMin:    s.cfg.Billing.RateLowUnitPerMin,
		RatePerNight:         s.cfg.Accommodation.RatePerNight,
		ClockRatio:           s.tm.ClockRatio(),
	}
}

func (u HyperparamUpdate) validate() error {
	if u.MaxConcurrent != nil && *u.MaxConcurrent < 1 {
		return types.InvalidArgumentf("最大并发服务数至少为 1: %d", *u.MaxConcurrent)
	}
	if u.TimeSliceSeconds != nil && *u.TimeSliceSeconds <= 0 {
		return types.InvalidArgumentf("时间片必须为正数: %d", *u.TimeSliceSeconds)
	}
	if u.ChangeTempMs != nil && *u.ChangeTempMs < 0 {
		return types.InvalidArgumentf("调温节流窗口不能为负: %d", *u.ChangeTempMs)
	}
	if u.AutoRestartThreshold != nil && *u.AutoRestartThreshold <= 0 {
		return types.InvalidArgumentf("回温重启阈值必须为正数: %v", *u.AutoRestartThreshold)
	}
	if u.IdleDriftPerMin != nil && *u.IdleDriftPerMin < 0 {
		return types.InvalidArgumentf("回漂速率不能为负: %v", *u.IdleDriftPerMin)
	}
	if u.MidDeltaPerMin != nil && *u.MidDeltaPerMin <= 0 {
		return types.InvalidArgumentf("中风变温速率必须为正数: %v", *u.MidDeltaPerMin)
	}
	if u.HighMultiplier != nil && *u.HighMultiplier <= 0 {
		return types.InvalidArgumentf("高风倍率必须为正数: %v", *u.HighMultiplier)
	}
	if u.LowMultiplier != nil && *u.LowMultiplier <= 0 {
		return types.InvalidArgumentf("低风倍率必须为正数: %v", *u.LowMultiplier)
	}
	if u.PricePerUnit != nil && *u.PricePerUnit <= 0 {
		return types.InvalidArgumentf("电费单价必须为正数: %v", *u.PricePerUnit)
	}
	if u.RateHighUnitPerMin != nil && *u.RateHighUnitPerMin <= 0 {
		return types.InvalidArgumentf("高风耗电速率必须为正数: %v", *u.RateHighUnitPerMin)
	}
	if u.RateMidUnitPerMin != nil && *u.RateMidUnitPerMin <= 0 {
		return types.InvalidArgumentf("中风耗电速率必须为正数: %v", *u.RateMidUnitPerMin)
	}
	if u.RateLowUnitPerMin != nil && *u.RateLowUnitPerMin <= 0 {
		return types.InvalidArgumentf("低风耗电速率必须为正数: %v", *u.RateLowUnitPerMin)
	}
	if u.RatePerNight != nil && *u.RatePerNight < 0 {
		return types.InvalidArgumentf("房价不能为负: %v", *u.RatePerNight)
	}
	if u.ClockRatio != nil && *u.ClockRatio <= 0 {
		return types.InvalidArgumentf("时钟加速比必须为正数: %v", *u.ClockRatio)
	}
	return nil
}
