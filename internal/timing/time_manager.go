// internal/timing/time_manager.go
// Package timing 实现时间管理器：统一管理四类逻辑计时器、
// 温度模拟、调温节流窗口与自动重启检测，并驱动逻辑时钟。
package timing

import (
	"sync"
	"sync/atomic"
	"time"

	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/domain"
	"backend/internal/events"
	"backend/internal/logger"
	"backend/internal/types"

	"github.com/google/uuid"
)

// TimerState 计时器内部状态
//
// timers 映射只在 tick 线程和持有调度锁的调度器中被修改；
// 其他线程只读，读取一律返回快照拷贝。
type TimerState struct {
	TimerID           string
	Kind              domain.TimerKind
	RoomID            string
	Speed             types.Speed
	ElapsedSeconds    int
	RemainingSeconds  int
	CurrentFee        float64
	TimeSliceEnforced bool
	Active            bool
}

// FeeCallback 计费回调：返回本秒费用增量并由计费引擎累计到详单
type FeeCallback func(roomID string, speed types.Speed) float64

// StageErrors tick 各阶段的失败计数，某一阶段失败不影响其余阶段
type StageErrors struct {
	Timers      atomic.Int64
	Temperature atomic.Int64
	Throttle    atomic.Int64
	AutoRestart atomic.Int64
}

// TimeManager 时间管理器
//
// 一次 Tick 恒等于一逻辑秒，与调用间隔无关；
// 缩短调用间隔是时间加速的唯一途径。
type TimeManager struct {
	cfg   *config.Config
	bus   *events.Bus
	store db.Repository

	mu         sync.RWMutex
	timers     map[string]*TimerState
	roomTimers map[string]map[domain.TimerKind]string

	feeCallback FeeCallback

	tickCounter atomic.Int64
	tickWaitCh  chan struct{} // 每个 tick 结束后 close 并更换，广播时钟沿
	waitChMu    sync.Mutex

	postTickMu sync.Mutex
	postTicks  []postTickEntry

	stageErrs StageErrors

	// 逻辑时钟驱动
	clockMu   sync.Mutex
	clockStop chan struct{}
	clockDone chan struct{}
	interval  time.Duration
	coreMu    *sync.Mutex // 调度全局锁，tick 推进前必须持有

	flushEverySeconds int
}

type postTickEntry struct {
	fn   func()
	done chan struct{}
}

// NewTimeManager 创建时间管理器
//
// coreMu 是与调度器共享的全局锁；时钟驱动在每次 tick 前加锁，
// 保证温度推进、费用累计与队列轮转对外表现为原子。
func NewTimeManager(cfg *config.Config, bus *events.Bus, store db.Repository, coreMu *sync.Mutex) *TimeManager {
	ratio := cfg.Clock.Ratio
	if ratio <= 0 {
		ratio = 1.0
	}
	return &TimeManager{
		cfg:               cfg,
		bus:               bus,
		store:             store,
		timers:            make(map[string]*TimerState),
		roomTimers:        make(map[string]map[domain.TimerKind]string),
		tickWaitCh:        make(chan struct{}),
		interval:          intervalForRatio(ratio),
		coreMu:            coreMu,
		flushEverySeconds: 30,
	}
}

func intervalForRatio(ratio float64) time.Duration {
	return time.Duration(float64(time.Second) / ratio)
}

// SetFeeCallback 注入计费回调（room_id, speed → 每秒费用增量）
func (tm *TimeManager) SetFeeCallback(cb FeeCallback) {
	tm.feeCallback = cb
}

// ==================== 计时器创建 ====================

// CreateServiceTimer 创建服务计时器，同房间旧的 SERVICE 计时器被替换
func (tm *TimeManager) CreateServiceTimer(roomID string, speed types.Speed) string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.removeByRoomLocked(roomID, domain.TimerService)
	state := &TimerState{
		TimerID: uuid.NewString(),
		Kind:    domain.TimerService,
		RoomID:  roomID,
		Speed:   speed,
		Active:  true,
	}
	tm.insertLocked(state)
	return state.TimerID
}

// CreateWaitTimer 创建等待计时器（时间片倒计时）
func (tm *TimeManager) CreateWaitTimer(roomID string, speed types.Speed, waitSeconds int, enforced bool) string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.removeByRoomLocked(roomID, domain.TimerWait)
	state := &TimerState{
		TimerID:           uuid.NewString(),
		Kind:              domain.TimerWait,
		RoomID:            roomID,
		Speed:             speed,
		RemainingSeconds:  waitSeconds,
		TimeSliceEnforced: enforced,
		Active:            true,
	}
	tm.insertLocked(state)
	return state.TimerID
}

// CreateDetailTimer 创建详单计时器，详单段可多段并存，不替换旧段
func (tm *TimeManager) CreateDetailTimer(roomID string, speed types.Speed) string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	state := &TimerState{
		TimerID: uuid.NewString(),
		Kind:    domain.TimerDetail,
		RoomID:  roomID,
		Speed:   speed,
		Active:  true,
	}
	tm.insertLocked(state)
	return state.TimerID
}

// CreateAccommodationTimer 创建入住计时器
func (tm *TimeManager) CreateAccommodationTimer(roomID string) string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.removeByRoomLocked(roomID, domain.TimerAccommodation)
	state := &TimerState{
		TimerID: uuid.NewString(),
		Kind:    domain.TimerAccommodation,
		RoomID:  roomID,
		Active:  true,
	}
	tm.insertLocked(state)
	return state.TimerID
}

// RestoreTimer 从持久化脚手架恢复计时器
func (tm *TimeManager) RestoreTimer(rec *domain.TimerRecord) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	state := &TimerState{
		TimerID:           rec.TimerID,
		Kind:              rec.Kind,
		RoomID:            rec.RoomID,
		Speed:             rec.Speed,
		ElapsedSeconds:    rec.ElapsedSeconds,
		RemainingSeconds:  rec.RemainingSeconds,
		CurrentFee:        rec.CurrentFee,
		TimeSliceEnforced: rec.TimeSliceEnforced,
		Active:            true,
	}
	tm.timers[state.TimerID] = state
	tm.setRoomTimerLocked(state.RoomID, state.Kind, state.TimerID)
}

// CancelTimer 取消计时器并移除索引
func (tm *TimeManager) CancelTimer(timerID string) {
	tm.mu.Lock()
	state, ok := tm.timers[timerID]
	if ok {
		delete(tm.timers, timerID)
		tm.removeRoomTimerLocked(state.RoomID, state.Kind)
	}
	tm.mu.Unlock()
	if ok && tm.store != nil {
		if err := tm.store.DeleteTimerRecord(timerID); err != nil {
			logger.Warn("删除计时器脚手架失败: %v", err)
		}
	}
}

func (tm *TimeManager) insertLocked(state *TimerState) {
	tm.timers[state.TimerID] = state
	tm.setRoomTimerLocked(state.RoomID, state.Kind, state.TimerID)
	if tm.store != nil {
		if err := tm.store.SaveTimerRecord(stateToRecord(state)); err != nil {
			logger.Warn("保存计时器脚手架失败: %v", err)
		}
	}
}

func stateToRecord(s *TimerState) *domain.TimerRecord {
	return &domain.TimerRecord{
		TimerID:           s.TimerID,
		Kind:              s.Kind,
		RoomID:            s.RoomID,
		Speed:             s.Speed,
		ElapsedSeconds:    s.ElapsedSeconds,
		RemainingSeconds:  s.RemainingSeconds,
		CurrentFee:        s.CurrentFee,
		TimeSliceEnforced: s.TimeSliceEnforced,
	}
}

func (tm *TimeManager) setRoomTimerLocked(roomID string, kind domain.TimerKind, timerID string) {
	if tm.roomTimers[roomID] == nil {
		tm.roomTimers[roomID] = make(map[domain.TimerKind]string)
	}
	tm.roomTimers[roomID][kind] = timerID
}

func (tm *TimeManager) removeRoomTimerLocked(roomID string, kind domain.TimerKind) {
	if kinds, ok := tm.roomTimers[roomID]; ok {
		delete(kinds, kind)
		if len(kinds) == 0 {
			delete(tm.roomTimers, roomID)
		}
	}
}

func (tm *TimeManager) removeByRoomLocked(roomID string, kind domain.TimerKind) {
	if kinds, ok := tm.roomTimers[roomID]; ok {
		if timerID, ok := kinds[kind]; ok {
			delete(tm.timers, timerID)
			delete(kinds, kind)
		}
	}
}

// ==================== 查询（任意线程可读，返回快照） ====================

// HasTimer 计时器是否存在且有效
func (tm *TimeManager) HasTimer(timerID string) bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	state, ok := tm.timers[timerID]
	return ok && state.Active
}

// GetTimerState 返回计时器状态快照
func (tm *TimeManager) GetTimerState(timerID string) (TimerState, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	state, ok := tm.timers[timerID]
	if !ok {
		return TimerState{}, false
	}
	return *state, true
}

// GetElapsedSeconds 已经过的逻辑秒数
func (tm *TimeManager) GetElapsedSeconds(timerID string) int {
	state, ok := tm.GetTimerState(timerID)
	if !ok {
		return 0
	}
	return state.ElapsedSeconds
}

// GetRemainingSeconds 剩余逻辑秒数
func (tm *TimeManager) GetRemainingSeconds(timerID string) int {
	state, ok := tm.GetTimerState(timerID)
	if !ok {
		return 0
	}
	return state.RemainingSeconds
}

// GetCurrentFee 当前累计费用
func (tm *TimeManager) GetCurrentFee(timerID string) float64 {
	state, ok := tm.GetTimerState(timerID)
	if !ok {
		return 0
	}
	return state.CurrentFee
}

// TimerIDForRoom 查找某房间某类型的计时器 ID，不存在返回空串
func (tm *TimeManager) TimerIDForRoom(roomID string, kind domain.TimerKind) string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	if kinds, ok := tm.roomTimers[roomID]; ok {
		return kinds[kind]
	}
	return ""
}

// CancelRoomTimers 取消某房间的全部计时器（退房清理用）
func (tm *TimeManager) CancelRoomTimers(roomID string) {
	tm.mu.RLock()
	ids := make([]string, 0, 4)
	if kinds, ok := tm.roomTimers[roomID]; ok {
		for _, id := range kinds {
			ids = append(ids, id)
		}
	}
	tm.mu.RUnlock()
	for _, id := range ids {
		tm.CancelTimer(id)
	}
}

// ListTimers 列出所有计时器快照（监控/调试用）
func (tm *TimeManager) ListTimers() []TimerState {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	out := make([]TimerState, 0, len(tm.timers))
	for _, state := range tm.timers {
		out = append(out, *state)
	}
	return out
}

// Stages 返回各阶段失败计数
func (tm *TimeManager) Stages() *StageErrors {
	return &tm.stageErrs
}

func (tm *TimeManager) activeRoomsByKind(kind domain.TimerKind) map[string]struct{} {
	out := make(map[string]struct{})
	for _, state := range tm.timers {
		if state.Kind == kind && state.Active {
			out[state.RoomID] = struct{}{}
		}
	}
	return out
}

func (tm *TimeManager) serviceSpeedsLocked() map[types.Speed]struct{} {
	out := make(map[types.Speed]struct{})
	for _, state := range tm.timers {
		if state.Kind == domain.TimerService && state.Active && state.Speed != "" {
			out[state.Speed] = struct{}{}
		}
	}
	return out
}
