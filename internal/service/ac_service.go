// internal/service/ac_service.go

package service

import (
	"time"

	"backend/internal/billing"
	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/domain"
	"backend/internal/logger"
	"backend/internal/scheduler"
	"backend/internal/types"
)

// ACService 房间侧空调控制用例
type ACService struct {
	cfg     *config.Config
	store   db.Repository
	sched   *scheduler.Scheduler
	billing *billing.Engine
}

// PowerOnOptions 开机可选参数，零值字段表示沿用房间现状
type PowerOnOptions struct {
	Mode       types.Mode
	TargetTemp *float64
	Speed      types.Speed
}

// NewACService 创建空调控制服务
func NewACService(cfg *config.Config, store db.Repository, sched *scheduler.Scheduler, eng *billing.Engine) *ACService {
	return &ACService{cfg: cfg, store: store, sched: sched, billing: eng}
}

// PowerOn 开机
//
// 目标温度优先用传入值（按模式区间校验），否则沿用房间上次设置；
// 风速沿用上次设置，缺省中风。开机清除手动关机标记，随后按当前
// 风速向调度器发起送风请求。
func (s *ACService) PowerOn(roomID string, opts PowerOnOptions) (*domain.Room, error) {
	room, err := ensureRoom(s.cfg, s.store, roomID)
	if err != nil {
		return nil, err
	}
	room.MarkOccupied()
	room.PoweredOn = true
	room.ManualPoweredOff = false
	room.IsServing = false

	if opts.Mode != "" {
		room.Mode = opts.Mode
	}
	if room.Mode == "" {
		room.Mode = types.ModeCool
	}
	if opts.TargetTemp != nil {
		if err := s.validateTargetTemp(*opts.TargetTemp, room.Mode); err != nil {
			return nil, err
		}
		room.TargetTemp = *opts.TargetTemp
	}
	if opts.Speed != "" {
		room.Speed = opts.Speed
	}
	if room.Speed == "" {
		room.Speed = types.SpeedMid
	}

	if err := s.store.SaveRoom(room); err != nil {
		return nil, err
	}
	// 上一段送风的残留详单先关掉，新的段由调度器分配服务时开启
	if err := s.billing.CloseCurrentDetailRecord(roomID); err != nil {
		logger.Warn("开机关闭残留详单失败 room=%s: %v", roomID, err)
	}
	s.sched.OnNewRequest(roomID, room.Speed)
	logger.Info("房间 %s 开机: mode=%s target=%.1f speed=%s", roomID, room.Mode, room.TargetTemp, room.Speed)
	return room, nil
}

// PowerOff 手动关机，置位 ManualPoweredOff 阻止回温自动重启
func (s *ACService) PowerOff(roomID string) (*domain.Room, error) {
	room, err := ensureRoom(s.cfg, s.store, roomID)
	if err != nil {
		return nil, err
	}
	room.IsServing = false
	room.PoweredOn = false
	room.ManualPoweredOff = true
	if err := s.store.SaveRoom(room); err != nil {
		return nil, err
	}
	if err := s.billing.CloseCurrentDetailRecord(roomID); err != nil {
		logger.Warn("关机关闭详单失败 room=%s: %v", roomID, err)
	}
	s.sched.CancelRequest(roomID)
	logger.Info("房间 %s 手动关机", roomID)
	return room, nil
}

// ChangeTemp 调温（带节流窗口）
//
// 返回 applied=false 表示落在节流窗口内，只记为待应用值，
// 由 tick 循环在窗口结束后落地。
func (s *ACService) ChangeTemp(roomID string, targetTemp float64) (applied bool, err error) {
	room, err := ensureRoom(s.cfg, s.store, roomID)
	if err != nil {
		return false, err
	}
	if err := s.validateTargetTemp(targetTemp, room.Mode); err != nil {
		return false, err
	}
	applied = room.RequestTargetTemp(targetTemp, time.Now(), s.cfg.Throttle.ChangeTempMs)
	if err := s.store.SaveRoom(room); err != nil {
		return false, err
	}
	logger.Debug("房间 %s 调温 -> %.1f applied=%v", roomID, targetTemp, applied)
	return applied, nil
}

// ChangeSpeed 调风：关掉当前详单段并以新风速重新进入调度
func (s *ACService) ChangeSpeed(roomID string, speed types.Speed) (*domain.Room, error) {
	room, err := ensureRoom(s.cfg, s.store, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.billing.CloseCurrentDetailRecord(roomID); err != nil {
		logger.Warn("调风关闭详单失败 room=%s: %v", roomID, err)
	}
	room.Speed = speed
	if err := s.store.SaveRoom(room); err != nil {
		return nil, err
	}
	s.sched.OnNewRequest(roomID, speed)
	logger.Info("房间 %s 调风 -> %s", roomID, speed)
	return room, nil
}

// GetRoom 读取房间状态
func (s *ACService) GetRoom(roomID string) (*domain.Room, error) {
	return s.store.GetRoom(roomID)
}

// OpenRoom 初始化房间参数（初温、房价），管理端建房用
func (s *ACService) OpenRoom(roomID string, initialTemp, ratePerNight *float64) (*domain.Room, error) {
	room, err := ensureRoom(s.cfg, s.store, roomID)
	if err != nil {
		return nil, err
	}
	if initialTemp != nil {
		room.CurrentTemp = *initialTemp
		room.InitialTemp = *initialTemp
	}
	if ratePerNight != nil {
		if *ratePerNight < 0 {
			return nil, types.InvalidArgumentf("房价不能为负: %v", *ratePerNight)
		}
		room.RatePerNight = *ratePerNight
	}
	if err := s.store.SaveRoom(room); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *ACService) validateTargetTemp(target float64, mode types.Mode) error {
	r := s.cfg.RangeForMode(mode)
	if !r.Contains(target) {
		return types.InvalidArgumentf("目标温度 %.1f 超出 %s 模式允许范围 [%.1f, %.1f]",
			target, mode, r.Min, r.Max)
	}
	return nil
}
