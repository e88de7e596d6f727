// internal/timing/tick.go

package timing

import (
	"sync/atomic"
	"time"

	"backend/internal/domain"
	"backend/internal/events"
	"backend/internal/logger"
	"backend/internal/types"
)

// Tick 推进一个逻辑秒
//
// 阶段顺序固定：计时器推进 → 温度模拟 → 节流窗口 → 自动重启检测
// → 计数器自增并唤醒等待者 → 执行 tick 后回调。
// 各阶段独立隔离失败，单个阶段 panic 只计数、不中断后续阶段。
// 调用方（时钟驱动或测试）负责先持有调度全局锁。
func (tm *TimeManager) Tick() {
	tm.runStage(&tm.stageErrs.Timers, func() { tm.tickTimers() })

	rooms, err := tm.store.ListRooms()
	if err != nil {
		logger.Warn("tick 读取房间列表失败: %v", err)
		tm.stageErrs.Temperature.Add(1)
		rooms = nil
	}

	tm.runStage(&tm.stageErrs.Temperature, func() { tm.tickTemperature(rooms) })
	tm.runStage(&tm.stageErrs.Throttle, func() { tm.tickThrottle(rooms) })
	tm.runStage(&tm.stageErrs.AutoRestart, func() { tm.checkAutoRestart(rooms) })

	count := tm.tickCounter.Add(1)
	if tm.flushEverySeconds > 0 && count%int64(tm.flushEverySeconds) == 0 {
		tm.flushTimers()
	}

	tm.wakeWaiters()
	tm.runPostTicks()
}

func (tm *TimeManager) runStage(counter *atomic.Int64, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			counter.Add(1)
			logger.Error("tick 阶段异常: %v", r)
		}
	}()
	fn()
}

// tickTimers 推进全部计时器
//
// WAIT 计时器的时间片约束是单向闸门：入队时若服务队列里没有
// 同风速对象则不约束；一旦出现同风速对象，约束开启并把倒计时
// 重置为整个时间片，此后不再关闭。只有受约束且倒计时归零的
// 等待者才触发轮转事件。
func (tm *TimeManager) tickTimers() {
	tm.mu.Lock()

	servingSpeeds := tm.serviceSpeedsLocked()
	timeSlice := tm.cfg.Scheduling.TimeSliceSeconds
	expired := make([]*TimerState, 0)

	for _, state := range tm.timers {
		if !state.Active {
			continue
		}
		switch state.Kind {
		case domain.TimerService, domain.TimerAccommodation:
			state.ElapsedSeconds++
		case domain.TimerWait:
			state.ElapsedSeconds++
			if _, ok := servingSpeeds[state.Speed]; !state.TimeSliceEnforced && ok {
				state.TimeSliceEnforced = true
				state.RemainingSeconds = timeSlice
			} else if state.RemainingSeconds > 0 {
				state.RemainingSeconds--
			}
			if state.TimeSliceEnforced && state.RemainingSeconds <= 0 {
				expired = append(expired, state)
			}
		case domain.TimerDetail:
			state.ElapsedSeconds++
			if tm.feeCallback != nil && state.Speed != "" {
				inc := tm.feeCallback(state.RoomID, state.Speed)
				state.CurrentFee += inc
				// 同步镜像到服务计时器，监控端读服务计时器即可得当前费用
				if svcID, ok := tm.roomTimers[state.RoomID][domain.TimerService]; ok {
					if svc, ok := tm.timers[svcID]; ok {
						svc.CurrentFee += inc
					}
				}
			}
		}
	}
	tm.mu.Unlock()

	// 事件投递放在锁外，至少一次语义，消费端需容忍重复
	for _, state := range expired {
		tm.publish(events.NewEvent(events.EventTimeSliceExpired, state.RoomID, map[string]interface{}{
			"speed":    string(state.Speed),
			"timer_id": state.TimerID,
		}))
	}
}

// tickTemperature 推进各房间一逻辑秒的温度模拟
//
// 是否处于送风以是否存在 SERVICE 计时器为准，与 IsServing 标志解耦，
// 避免标志位与计时器注册表短暂不一致时温度走错分支。
func (tm *TimeManager) tickTemperature(rooms []*domain.Room) {
	if len(rooms) == 0 {
		return
	}
	model := domain.TempModel{
		MidDeltaPerMin:  tm.cfg.Temperature.MidDeltaPerMin,
		HighMultiplier:  tm.cfg.Temperature.HighMultiplier,
		LowMultiplier:   tm.cfg.Temperature.LowMultiplier,
		IdleDriftPerMin: tm.cfg.Temperature.IdleDriftPerMin,
	}

	tm.mu.RLock()
	servingRooms := tm.activeRoomsByKind(domain.TimerService)
	tm.mu.RUnlock()

	for _, room := range rooms {
		_, serving := servingRooms[room.RoomID]
		reached := room.TickTemperature(model, serving)
		if err := tm.store.SaveRoom(room); err != nil {
			logger.Warn("保存房间 %s 温度失败: %v", room.RoomID, err)
			continue
		}
		if reached && serving {
			tm.publish(events.NewEvent(events.EventTemperatureReached, room.RoomID, map[string]interface{}{
				"current_temp": room.CurrentTemp,
			}))
		}
	}
}

// tickThrottle 扫描调温节流窗口，把窗口内最后一次调温落为目标温度
func (tm *TimeManager) tickThrottle(rooms []*domain.Room) {
	if len(rooms) == 0 {
		return
	}
	now := time.Now()
	throttleMs := tm.cfg.Throttle.ChangeTempMs
	for _, room := range rooms {
		if room.ApplyPendingTarget(now, throttleMs) {
			if err := tm.store.SaveRoom(room); err != nil {
				logger.Warn("保存房间 %s 目标温度失败: %v", room.RoomID, err)
			}
		}
	}
}

// checkAutoRestart 回温自动重启检测
//
// 已入住、未手动关机、不在任何队列中的房间，
// 当前温度偏离目标达到阈值（含恰好等于）即发布重启事件。
func (tm *TimeManager) checkAutoRestart(rooms []*domain.Room) {
	if len(rooms) == 0 {
		return
	}
	threshold := tm.cfg.Temperature.AutoRestartThreshold

	tm.mu.RLock()
	servingRooms := tm.activeRoomsByKind(domain.TimerService)
	waitingRooms := tm.activeRoomsByKind(domain.TimerWait)
	tm.mu.RUnlock()

	for _, room := range rooms {
		if room.Status != domain.RoomOccupied || room.ManualPoweredOff {
			continue
		}
		if _, ok := servingRooms[room.RoomID]; ok {
			continue
		}
		if _, ok := waitingRooms[room.RoomID]; ok {
			continue
		}
		if !room.NeedsAutoRestart(threshold) {
			continue
		}
		speed := room.Speed
		if speed == "" {
			speed = types.SpeedMid
		}
		tm.publish(events.NewEvent(events.EventAutoRestartNeeded, room.RoomID, map[string]interface{}{
			"speed": string(speed),
		}))
	}
}

func (tm *TimeManager) publish(evt events.SchedulerEvent) {
	if tm.bus == nil {
		return
	}
	tm.bus.Publish(evt)
}

// flushTimers 周期性把 live 计时器落盘，重启后可恢复
func (tm *TimeManager) flushTimers() {
	if tm.store == nil {
		return
	}
	tm.mu.RLock()
	records := make([]*domain.TimerRecord, 0, len(tm.timers))
	for _, state := range tm.timers {
		if state.Active {
			records = append(records, stateToRecord(state))
		}
	}
	tm.mu.RUnlock()
	for _, rec := range records {
		if err := tm.store.SaveTimerRecord(rec); err != nil {
			logger.Warn("落盘计时器 %s 失败: %v", rec.TimerID, err)
		}
	}
}

// ==================== tick 同步 ====================

// TickCounter 返回已推进的逻辑秒总数，单调递增，变速不重置
func (tm *TimeManager) TickCounter() int64 {
	return tm.tickCounter.Load()
}

func (tm *TimeManager) wakeWaiters() {
	tm.waitChMu.Lock()
	close(tm.tickWaitCh)
	tm.tickWaitCh = make(chan struct{})
	tm.waitChMu.Unlock()
}

func (tm *TimeManager) currentWaitCh() chan struct{} {
	tm.waitChMu.Lock()
	defer tm.waitChMu.Unlock()
	return tm.tickWaitCh
}

// WaitForNextTick 阻塞到下一个 tick 完成，超时返回 false
func (tm *TimeManager) WaitForNextTick(timeout time.Duration) bool {
	ch := tm.currentWaitCh()
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// WaitForTicks 阻塞到之后第 n 个 tick 完成，timeout 为总预算
func (tm *TimeManager) WaitForTicks(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for i := 0; i < n; i++ {
		remain := time.Until(deadline)
		if remain <= 0 {
			return false
		}
		if !tm.WaitForNextTick(remain) {
			return false
		}
	}
	return true
}

// WaitForTicksWithCallback 等待之后第 n 个 tick，并在该 tick 结束后、
// 下一个 tick 开始前，在 tick 线程上执行 fn
//
// fn 执行期间逻辑时钟不会前进，监控快照用它保证跨房间读取
// 落在同一逻辑秒内。返回 fn 是否在超时前执行完毕。
func (tm *TimeManager) WaitForTicksWithCallback(n int, fn func(), timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	if n > 1 {
		if !tm.WaitForTicks(n-1, timeout) {
			return false
		}
	}
	done := make(chan struct{})
	tm.postTickMu.Lock()
	tm.postTicks = append(tm.postTicks, postTickEntry{fn: fn, done: done})
	tm.postTickMu.Unlock()

	remain := time.Until(deadline)
	if remain <= 0 {
		return false
	}
	select {
	case <-done:
		return true
	case <-time.After(remain):
		return false
	}
}

func (tm *TimeManager) runPostTicks() {
	tm.postTickMu.Lock()
	pending := tm.postTicks
	tm.postTicks = nil
	tm.postTickMu.Unlock()

	for _, entry := range pending {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("tick 后回调异常: %v", r)
				}
			}()
			entry.fn()
		}()
		close(entry.done)
	}
}

// ==================== 逻辑时钟驱动 ====================

// StartClock 启动逻辑时钟驱动协程
//
// 真实间隔 = 1s / Clock.Ratio；每次触发时先拿调度全局锁再 Tick，
// tick 本身始终等于一逻辑秒。
func (tm *TimeManager) StartClock() {
	tm.clockMu.Lock()
	defer tm.clockMu.Unlock()
	if tm.clockStop != nil {
		return
	}
	tm.clockStop = make(chan struct{})
	tm.clockDone = make(chan struct{})
	go tm.clockLoop(tm.clockStop, tm.clockDone)
	logger.Info("逻辑时钟已启动，间隔 %v", tm.interval)
}

// StopClock 停止逻辑时钟并等待驱动协程退出
func (tm *TimeManager) StopClock() {
	tm.clockMu.Lock()
	stop, done := tm.clockStop, tm.clockDone
	tm.clockStop, tm.clockDone = nil, nil
	tm.clockMu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	logger.Info("逻辑时钟已停止")
}

// SetClockRatio 调整时间加速比，tick 计数不回退
func (tm *TimeManager) SetClockRatio(ratio float64) error {
	if ratio <= 0 {
		return types.InvalidArgumentf("时钟加速比必须为正数: %v", ratio)
	}
	tm.clockMu.Lock()
	tm.interval = intervalForRatio(ratio)
	tm.clockMu.Unlock()
	logger.Info("时钟加速比调整为 %.2f，间隔 %v", ratio, intervalForRatio(ratio))
	return nil
}

// ClockRatio 当前时间加速比（1 秒 / tick 间隔）
func (tm *TimeManager) ClockRatio() float64 {
	interval := tm.clockInterval()
	if interval <= 0 {
		return 1.0
	}
	return float64(time.Second) / float64(interval)
}

func (tm *TimeManager) clockInterval() time.Duration {
	tm.clockMu.Lock()
	defer tm.clockMu.Unlock()
	return tm.interval
}

func (tm *TimeManager) clockLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	timer := time.NewTimer(tm.clockInterval())
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			if tm.coreMu != nil {
				tm.coreMu.Lock()
				tm.Tick()
				tm.coreMu.Unlock()
			} else {
				tm.Tick()
			}
			timer.Reset(tm.clockInterval())
		}
	}
}
