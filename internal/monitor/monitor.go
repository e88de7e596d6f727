// internal/monitor/monitor.go
// Package monitor 构建 tick 对齐的系统快照供监控接口读取
package monitor

import (
	"time"

	"backend/internal/db"
	"backend/internal/domain"
	"backend/internal/events"
	"backend/internal/timing"
	"backend/internal/types"
)

// RoomSnapshot 单房间监控视图
type RoomSnapshot struct {
	Room             *domain.Room
	QueueState       string // SERVING / WAITING / IDLE
	Speed            types.Speed
	PriorityToken    int
	ServedSeconds    int
	WaitedSeconds    int
	RemainingSeconds int
	CurrentFee       float64
}

// SystemSnapshot 全系统监控视图，同一逻辑秒内采集
type SystemSnapshot struct {
	Tick             int64
	TakenAt          time.Time
	Rooms            []*RoomSnapshot
	ServiceCount     int
	WaitingCount     int
	BusPending       int
	BusDropped       int64
	BusHandlerErrors int64
	BusConsumed      int64
}

// Monitor 监控快照构建器
type Monitor struct {
	store db.Repository
	tm    *timing.TimeManager
	bus   *events.Bus
}

// NewMonitor 创建监控器
func NewMonitor(store db.Repository, tm *timing.TimeManager, bus *events.Bus) *Monitor {
	return &Monitor{store: store, tm: tm, bus: bus}
}

// Snapshot 在下一个 tick 结束后、再下一个 tick 开始前采集快照
//
// 回调在 tick 线程上执行，此时调度锁仍被时钟驱动持有，
// 跨房间读取不会夹到半个 tick 的中间态。超时返回 Transient。
func (m *Monitor) Snapshot(timeout time.Duration) (*SystemSnapshot, error) {
	var snap *SystemSnapshot
	var snapErr error
	ok := m.tm.WaitForTicksWithCallback(1, func() {
		snap, snapErr = m.build()
	}, timeout)
	if !ok {
		return nil, types.Transientf("等待 tick 快照超时 (%v)", timeout)
	}
	return snap, snapErr
}

// SnapshotNow 立即采集快照，不与 tick 对齐
//
// 时钟未启动时（测试、冷启动检查）用这个入口。
func (m *Monitor) SnapshotNow() (*SystemSnapshot, error) {
	return m.build()
}

// build 直接走仓储与计时器注册表，不得调用会再拿调度锁的方法
func (m *Monitor) build() (*SystemSnapshot, error) {
	rooms, err := m.store.ListRooms()
	if err != nil {
		return nil, err
	}
	services, err := m.store.ListServiceObjects()
	if err != nil {
		return nil, err
	}
	waits, err := m.store.ListWaitEntries()
	if err != nil {
		return nil, err
	}

	serviceByRoom := make(map[string]*domain.ServiceObject, len(services))
	for _, obj := range services {
		serviceByRoom[obj.RoomID] = obj
	}
	waitByRoom := make(map[string]*domain.ServiceObject, len(waits))
	for _, obj := range waits {
		waitByRoom[obj.RoomID] = obj
	}

	snap := &SystemSnapshot{
		Tick:         m.tm.TickCounter(),
		TakenAt:      time.Now(),
		ServiceCount: len(services),
		WaitingCount: len(waits),
	}
	if m.bus != nil {
		snap.BusPending = m.bus.PendingCount()
		snap.BusDropped = m.bus.DroppedCount()
		snap.BusHandlerErrors = m.bus.HandlerErrorCount()
		snap.BusConsumed = m.bus.ConsumedCount()
	}

	for _, room := range rooms {
		rs := &RoomSnapshot{
			Room:       room,
			QueueState: "IDLE",
			Speed:      room.Speed,
		}
		if obj, ok := serviceByRoom[room.RoomID]; ok {
			rs.QueueState = "SERVING"
			rs.Speed = obj.Speed
			rs.PriorityToken = obj.PriorityToken
			rs.ServedSeconds = m.tm.GetElapsedSeconds(obj.TimerID)
			rs.CurrentFee = m.tm.GetCurrentFee(obj.TimerID)
		} else if obj, ok := waitByRoom[room.RoomID]; ok {
			rs.QueueState = "WAITING"
			rs.Speed = obj.Speed
			rs.PriorityToken = obj.PriorityToken
			rs.WaitedSeconds = m.tm.GetElapsedSeconds(obj.TimerID)
			rs.RemainingSeconds = m.tm.GetRemainingSeconds(obj.TimerID)
		}
		if detailID := m.tm.TimerIDForRoom(room.RoomID, domain.TimerDetail); detailID != "" {
			rs.CurrentFee = m.tm.GetCurrentFee(detailID)
		}
		snap.Rooms = append(snap.Rooms, rs)
	}
	return snap, nil
}
