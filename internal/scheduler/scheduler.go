// internal/scheduler/scheduler.go
// Package scheduler 实现抢占式优先级 + 时间片轮转的送风调度器
package scheduler

import (
	"sync"
	"time"

	"backend/internal/billing"
	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/domain"
	"backend/internal/events"
	"backend/internal/logger"
	"backend/internal/timing"
	"backend/internal/types"
)

// Scheduler 事件驱动的调度器
//
// 职责：
//   - 处理送风请求（开机、关机、调速）
//   - 维护服务队列与等待队列
//   - 响应 TimeManager 发出的到期 / 达温 / 回温事件
//
// 计时、温度模拟均不在此处，统一由 TimeManager 推进。
// 所有公开方法先拿全局调度锁，事件处理器亦同，
// 与 tick 推进互斥，外部观察不到中间态。
type Scheduler struct {
	cfg     *config.Config
	mu      *sync.Mutex
	store   db.Repository
	tm      *timing.TimeManager
	bus     *events.Bus
	billing *billing.Engine
}

// NewScheduler 创建调度器并注册事件处理器
//
// coreMu 必须与 TimeManager 共享同一把锁。
func NewScheduler(cfg *config.Config, store db.Repository, tm *timing.TimeManager,
	bus *events.Bus, eng *billing.Engine, coreMu *sync.Mutex) *Scheduler {
	s := &Scheduler{
		cfg:     cfg,
		mu:      coreMu,
		store:   store,
		tm:      tm,
		bus:     bus,
		billing: eng,
	}
	bus.RegisterHandler(events.EventTimeSliceExpired, s.handleTimeSliceExpired)
	bus.RegisterHandler(events.EventTemperatureReached, s.handleTemperatureReached)
	bus.RegisterHandler(events.EventAutoRestartNeeded, s.handleAutoRestart)
	return s
}

// ==================== 公开接口 ====================

// OnNewRequest 处理新的送风请求（开机或调速都会走到这里）
func (s *Scheduler) OnNewRequest(roomID string, speed types.Speed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onNewRequestLocked(roomID, speed)
}

// ReleaseService 释放送风服务（达温停止）
func (s *Scheduler) ReleaseService(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseServiceLocked(roomID)
}

// CancelRequest 取消请求（手动关机 / 退房），不触发补位以外的任何动作
func (s *Scheduler) CancelRequest(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelRequestLocked(roomID)
}

// SnapshotQueues 返回两条队列的拷贝，监控读取用
func (s *Scheduler) SnapshotQueues() (services, waits []*domain.ServiceObject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listServiceEntries(), s.listWaitEntries()
}

// ServedSeconds 某房间本段已服务的逻辑秒数
func (s *Scheduler) ServedSeconds(roomID string) int {
	if obj := s.getServiceEntry(roomID); obj != nil {
		return s.servedSeconds(obj)
	}
	return 0
}

// WaitedSeconds 某房间已等待的逻辑秒数
func (s *Scheduler) WaitedSeconds(roomID string) int {
	if obj := s.getWaitEntry(roomID); obj != nil {
		return s.waitedSeconds(obj)
	}
	return 0
}

// ==================== 事件处理器（在事件总线消费协程中执行） ====================

// handleTimeSliceExpired 时间片到期：最长服务者让位给到期等待者
//
// 事件是至少一次投递，等待者可能已被其他路径提升或取消，
// 查不到时直接忽略即可。
func (s *Scheduler) handleTimeSliceExpired(event events.SchedulerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	waiting := s.getWaitEntry(event.RoomID)
	if waiting == nil {
		return
	}
	victim := longestServed(s.listServiceEntries(), s.servedSeconds)
	if victim == nil {
		return
	}
	logger.Info("时间片到期轮转: %s 让位 -> %s", victim.RoomID, event.RoomID)

	s.moveToWaitingLocked(victim, true)

	if err := s.store.RemoveWaitEntry(waiting.RoomID); err != nil {
		logger.Warn("移除等待对象 %s 失败: %v", waiting.RoomID, err)
	}
	if waiting.TimerID != "" {
		s.tm.CancelTimer(waiting.TimerID)
	}
	s.assignServiceLocked(waiting)
}

// handleTemperatureReached 达到目标温度：停止送风并补位
func (s *Scheduler) handleTemperatureReached(event events.SchedulerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logger.Info("房间 %s 达到目标温度，停止送风", event.RoomID)
	s.releaseServiceLocked(event.RoomID)
}

// handleAutoRestart 回温超过阈值：按原风速重新发起请求
func (s *Scheduler) handleAutoRestart(event events.SchedulerEvent) {
	speed := types.SpeedMid
	if v := event.PayloadString("speed"); v != "" {
		if parsed, err := types.ParseSpeed(v); err == nil {
			speed = parsed
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	logger.Info("房间 %s 回温自动重启送风，风速 %s", event.RoomID, speed)
	s.onNewRequestLocked(event.RoomID, speed)
}

// ==================== 调度内核（调用方已持锁） ====================

func (s *Scheduler) onNewRequestLocked(roomID string, speed types.Speed) {
	s.removeExistingLocked(roomID)
	service := domain.NewServiceObject(roomID, speed)

	services := s.listServiceEntries()
	logger.Debug("新请求: room=%s speed=%s，当前服务 %d/%d",
		roomID, speed, len(services), s.cfg.Scheduling.MaxConcurrent)

	if len(services) < s.cfg.Scheduling.MaxConcurrent {
		s.assignServiceLocked(service)
		return
	}

	if victim := selectVictim(services, speed, s.servedSeconds); victim != nil {
		logger.Info("抢占: %s(%s) 被 %s(%s) 挤出", victim.RoomID, victim.Speed, roomID, speed)
		s.preemptLocked(victim, service)
		return
	}

	hasSameSpeed := false
	for _, obj := range services {
		if obj.Speed == speed {
			hasSameSpeed = true
			break
		}
	}
	s.enqueueWaitingLocked(service, hasSameSpeed)
}

// assignServiceLocked 把服务对象放进服务队列并开始计时计费
func (s *Scheduler) assignServiceLocked(service *domain.ServiceObject) {
	service.Status = domain.StatusServing
	if service.StartedAt == nil {
		now := time.Now()
		service.StartedAt = &now
	}
	service.PriorityToken = 0
	service.TimeSliceEnforced = false
	service.TimerID = s.tm.CreateServiceTimer(service.RoomID, service.Speed)

	if err := s.store.AddServiceObject(service); err != nil {
		logger.Error("写入服务队列失败: %v", err)
		s.tm.CancelTimer(service.TimerID)
		return
	}

	if room := s.lookupRoom(service.RoomID); room != nil {
		room.IsServing = true
		room.Speed = service.Speed
		s.saveRoom(room)
	}
	s.startDetailSegment(service.RoomID, service.Speed)
}

// releaseServiceLocked 停止送风、关账并从等待队列补位
func (s *Scheduler) releaseServiceLocked(roomID string) {
	service := s.getServiceEntry(roomID)
	if service == nil {
		return
	}
	if service.TimerID != "" {
		s.tm.CancelTimer(service.TimerID)
	}
	if err := s.store.RemoveServiceObject(roomID); err != nil {
		logger.Warn("移除服务对象 %s 失败: %v", roomID, err)
	}
	s.closeDetailSegment(roomID)
	if room := s.lookupRoom(roomID); room != nil {
		room.IsServing = false
		s.saveRoom(room)
	}
	s.fillCapacityLocked()
}

// cancelRequestLocked 把房间从两条队列里摘干净
func (s *Scheduler) cancelRequestLocked(roomID string) {
	if service := s.getServiceEntry(roomID); service != nil && service.TimerID != "" {
		s.tm.CancelTimer(service.TimerID)
	}
	if err := s.store.RemoveServiceObject(roomID); err != nil {
		logger.Warn("移除服务对象 %s 失败: %v", roomID, err)
	}
	if wait := s.getWaitEntry(roomID); wait != nil && wait.TimerID != "" {
		s.tm.CancelTimer(wait.TimerID)
	}
	if err := s.store.RemoveWaitEntry(roomID); err != nil {
		logger.Warn("移除等待对象 %s 失败: %v", roomID, err)
	}
	s.closeDetailSegment(roomID)
	if room := s.lookupRoom(roomID); room != nil {
		room.IsServing = false
		s.saveRoom(room)
	}
}

// preemptLocked 高风速抢占：victim 入等待队列，新请求上位
//
// victim 入队时不受时间片约束；等待队列中与新请求同风速的对象
// 优先级令牌加一，保证它们排在后续同风速新请求之前。
func (s *Scheduler) preemptLocked(victim, newService *domain.ServiceObject) {
	if err := s.store.RemoveServiceObject(victim.RoomID); err != nil {
		logger.Warn("移除服务对象 %s 失败: %v", victim.RoomID, err)
	}
	if victim.TimerID != "" {
		s.tm.CancelTimer(victim.TimerID)
	}
	s.closeDetailSegment(victim.RoomID)

	s.enqueueWaitingLocked(victim, false)
	s.boostWaitingPriorityLocked(newService.Speed)
	s.assignServiceLocked(newService)
}

// enqueueWaitingLocked 服务对象进等待队列并挂上等待计时器
func (s *Scheduler) enqueueWaitingLocked(service *domain.ServiceObject, timeSliceEnforced bool) {
	service.Status = domain.StatusWaiting
	service.TimeSliceEnforced = timeSliceEnforced
	service.TimerID = s.tm.CreateWaitTimer(
		service.RoomID, service.Speed, s.cfg.Scheduling.TimeSliceSeconds, timeSliceEnforced)

	if err := s.store.AddWaitEntry(service); err != nil {
		logger.Error("写入等待队列失败: %v", err)
		s.tm.CancelTimer(service.TimerID)
		return
	}
	if room := s.lookupRoom(service.RoomID); room != nil {
		room.IsServing = false
		s.saveRoom(room)
	}
}

// moveToWaitingLocked 轮转：服务对象让出服务位进等待队列
func (s *Scheduler) moveToWaitingLocked(service *domain.ServiceObject, timeSliceEnforced bool) {
	if err := s.store.RemoveServiceObject(service.RoomID); err != nil {
		logger.Warn("移除服务对象 %s 失败: %v", service.RoomID, err)
	}
	if service.TimerID != "" {
		s.tm.CancelTimer(service.TimerID)
	}
	s.closeDetailSegment(service.RoomID)
	s.enqueueWaitingLocked(service, timeSliceEnforced)
}

// fillCapacityLocked 服务队列有空位时从等待队列依序提升
func (s *Scheduler) fillCapacityLocked() {
	for {
		if s.serviceQueueSize() >= s.cfg.Scheduling.MaxConcurrent {
			return
		}
		if s.waitQueueSize() == 0 {
			return
		}
		next := s.selectNextWaiting()
		if next == nil {
			return
		}
		if err := s.store.RemoveWaitEntry(next.RoomID); err != nil {
			logger.Warn("移除等待对象 %s 失败: %v", next.RoomID, err)
		}
		if next.TimerID != "" {
			s.tm.CancelTimer(next.TimerID)
		}
		s.assignServiceLocked(next)
	}
}

// boostWaitingPriorityLocked 提升等待队列中同风速对象的优先级令牌
func (s *Scheduler) boostWaitingPriorityLocked(speed types.Speed) {
	for _, obj := range s.listWaitEntries() {
		if obj.Speed == speed {
			obj.PriorityToken++
			if err := s.store.UpdateWaitEntry(obj); err != nil {
				logger.Warn("更新等待对象 %s 失败: %v", obj.RoomID, err)
			}
		}
	}
}

// removeExistingLocked 清掉该房间已有的服务/等待记录
func (s *Scheduler) removeExistingLocked(roomID string) {
	if service := s.getServiceEntry(roomID); service != nil {
		if service.TimerID != "" {
			s.tm.CancelTimer(service.TimerID)
		}
		s.releaseServiceLocked(roomID)
	}
	if wait := s.getWaitEntry(roomID); wait != nil {
		if wait.TimerID != "" {
			s.tm.CancelTimer(wait.TimerID)
		}
		if err := s.store.RemoveWaitEntry(roomID); err != nil {
			logger.Warn("移除等待对象 %s 失败: %v", roomID, err)
		}
	}
}

// ==================== 重启恢复 ====================

// RestoreFromStore 进程重启后把持久化队列重新挂接到计时器
//
// 计时器脚手架周期性落盘，TimerID 仍有效的直接复用；
// 脚手架缺失的按当前状态重建计时器，已服务/已等待时长从零起算。
func (s *Scheduler) RestoreFromStore() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, obj := range s.listServiceEntries() {
		if obj.TimerID != "" && s.tm.HasTimer(obj.TimerID) {
			continue
		}
		obj.TimerID = s.tm.CreateServiceTimer(obj.RoomID, obj.Speed)
		if err := s.store.UpdateServiceObject(obj); err != nil {
			logger.Warn("恢复服务对象 %s 失败: %v", obj.RoomID, err)
		}
	}
	for _, obj := range s.listWaitEntries() {
		if obj.TimerID != "" && s.tm.HasTimer(obj.TimerID) {
			continue
		}
		obj.TimerID = s.tm.CreateWaitTimer(
			obj.RoomID, obj.Speed, s.cfg.Scheduling.TimeSliceSeconds, obj.TimeSliceEnforced)
		if err := s.store.UpdateWaitEntry(obj); err != nil {
			logger.Warn("恢复等待对象 %s 失败: %v", obj.RoomID, err)
		}
	}
}

// ==================== 房间与计费辅助 ====================

func (s *Scheduler) lookupRoom(roomID string) *domain.Room {
	room, err := s.store.GetRoom(roomID)
	if err != nil {
		if types.KindOf(err) != types.KindNotFound {
			logger.Warn("读取房间 %s 失败: %v", roomID, err)
		}
		return nil
	}
	return room
}

func (s *Scheduler) saveRoom(room *domain.Room) {
	if err := s.store.SaveRoom(room); err != nil {
		logger.Warn("保存房间 %s 失败: %v", room.RoomID, err)
	}
}

func (s *Scheduler) startDetailSegment(roomID string, speed types.Speed) {
	if s.billing == nil {
		return
	}
	if _, err := s.billing.StartNewDetailRecord(roomID, speed); err != nil {
		logger.Warn("开启详单段失败 room=%s: %v", roomID, err)
	}
}

func (s *Scheduler) closeDetailSegment(roomID string) {
	if s.billing == nil {
		return
	}
	if err := s.billing.CloseCurrentDetailRecord(roomID); err != nil {
		logger.Warn("关闭详单段失败 room=%s: %v", roomID, err)
	}
}
