package timing

import (
	"sync"
	"testing"
	"time"

	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/domain"
	"backend/internal/events"
	"backend/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试夹具：未启动的总线配合 PendingCount 即可精确断言事件发布时机
func newTestManager(t *testing.T) (*TimeManager, *db.MemoryStore, *events.Bus) {
	t.Helper()
	cfg := config.Default()
	cfg.Scheduling.TimeSliceSeconds = 3
	store := db.NewMemoryStore()
	bus := events.NewBus(100)
	return NewTimeManager(cfg, bus, store, &sync.Mutex{}), store, bus
}

func TestServiceTimerElapsedAndCancel(t *testing.T) {
	tm, store, _ := newTestManager(t)

	timerID := tm.CreateServiceTimer("101", types.SpeedMid)
	require.True(t, tm.HasTimer(timerID))

	for i := 0; i < 3; i++ {
		tm.Tick()
	}
	assert.Equal(t, 3, tm.GetElapsedSeconds(timerID))
	assert.Equal(t, int64(3), tm.TickCounter())

	// 创建即落盘
	recs, err := store.ListTimerRecords()
	require.NoError(t, err)
	require.Len(t, recs, 1)

	tm.CancelTimer(timerID)
	assert.False(t, tm.HasTimer(timerID))
	assert.Equal(t, "", tm.TimerIDForRoom("101", domain.TimerService))
	recs, err = store.ListTimerRecords()
	require.NoError(t, err)
	assert.Empty(t, recs, "取消后脚手架同步删除")
}

func TestServiceTimerReplacedPerRoom(t *testing.T) {
	tm, _, _ := newTestManager(t)

	first := tm.CreateServiceTimer("101", types.SpeedMid)
	second := tm.CreateServiceTimer("101", types.SpeedHigh)

	assert.False(t, tm.HasTimer(first))
	assert.True(t, tm.HasTimer(second))
	assert.Equal(t, second, tm.TimerIDForRoom("101", domain.TimerService))
}

func TestWaitTimerNoSameSpeedNeverFires(t *testing.T) {
	tm, _, bus := newTestManager(t)

	// 服务队列里只有中风，高风等待者不受时间片约束
	tm.CreateServiceTimer("201", types.SpeedMid)
	waitID := tm.CreateWaitTimer("101", types.SpeedHigh, 3, false)

	for i := 0; i < 6; i++ {
		tm.Tick()
	}
	assert.Equal(t, 0, tm.GetRemainingSeconds(waitID))
	assert.Equal(t, 0, bus.PendingCount(), "未受约束的等待者不触发轮转")
}

func TestWaitTimerLatchResetsAndFires(t *testing.T) {
	tm, _, bus := newTestManager(t)

	waitID := tm.CreateWaitTimer("101", types.SpeedHigh, 3, false)

	// 先空转两秒，倒计时无约束地消耗到 1
	tm.Tick()
	tm.Tick()
	assert.Equal(t, 1, tm.GetRemainingSeconds(waitID))

	// 出现同风速服务对象：约束开启，倒计时重置为整个时间片
	tm.CreateServiceTimer("201", types.SpeedHigh)
	tm.Tick()
	state, ok := tm.GetTimerState(waitID)
	require.True(t, ok)
	assert.True(t, state.TimeSliceEnforced)
	assert.Equal(t, 3, state.RemainingSeconds)
	assert.Equal(t, 0, bus.PendingCount())

	// 约束是单向闸门：同风速对象消失也不再关闭
	tm.CancelTimer(tm.TimerIDForRoom("201", domain.TimerService))
	tm.Tick()
	tm.Tick()
	assert.Equal(t, 1, tm.GetRemainingSeconds(waitID))
	assert.Equal(t, 0, bus.PendingCount())

	// 归零当拍发布轮转事件，此后每拍重发（至少一次语义）
	tm.Tick()
	assert.Equal(t, 1, bus.PendingCount())
	tm.Tick()
	assert.Equal(t, 2, bus.PendingCount())
}

func TestWaitTimerEnforcedAtCreation(t *testing.T) {
	tm, _, bus := newTestManager(t)

	// 入队即同风速在服务，约束从第一拍就生效
	tm.CreateWaitTimer("101", types.SpeedMid, 3, true)
	tm.Tick()
	tm.Tick()
	assert.Equal(t, 0, bus.PendingCount())
	tm.Tick()
	assert.Equal(t, 1, bus.PendingCount())
}

func TestDetailFeeMirroredToServiceTimer(t *testing.T) {
	tm, _, _ := newTestManager(t)
	tm.SetFeeCallback(func(roomID string, speed types.Speed) float64 {
		return 0.5
	})

	svcID := tm.CreateServiceTimer("101", types.SpeedMid)
	detailID := tm.CreateDetailTimer("101", types.SpeedMid)

	for i := 0; i < 4; i++ {
		tm.Tick()
	}
	assert.InDelta(t, 2.0, tm.GetCurrentFee(detailID), 1e-9)
	assert.InDelta(t, 2.0, tm.GetCurrentFee(svcID), 1e-9, "费用同步镜像到服务计时器")
	assert.Equal(t, 4, tm.GetElapsedSeconds(detailID))
}

func TestTickTemperaturePublishesReachedOnlyWhenServing(t *testing.T) {
	tm, store, bus := newTestManager(t)

	room := domain.NewRoom("101", 25, 300)
	room.CurrentTemp = 24.999
	room.TargetTemp = 25
	require.NoError(t, store.SaveRoom(room))

	// 无服务计时器：向初始温度回漂，不发事件
	tm.Tick()
	assert.Equal(t, 0, bus.PendingCount())

	room.CurrentTemp = 24.999
	require.NoError(t, store.SaveRoom(room))
	tm.CreateServiceTimer("101", types.SpeedMid)
	tm.Tick()
	assert.Equal(t, 1, bus.PendingCount())

	got, err := store.GetRoom("101")
	require.NoError(t, err)
	assert.Equal(t, 25.0, got.CurrentTemp, "达温后温度恰好落在目标")
}

func TestTickThrottleAppliesPendingTarget(t *testing.T) {
	tm, store, _ := newTestManager(t)

	room := domain.NewRoom("101", 25, 300)
	past := time.Now().Add(-5 * time.Second)
	room.LastTempChangeAt = &past
	pending := 22.0
	room.PendingTargetTemp = &pending
	require.NoError(t, store.SaveRoom(room))

	tm.Tick()

	got, err := store.GetRoom("101")
	require.NoError(t, err)
	assert.Equal(t, 22.0, got.TargetTemp)
	assert.Nil(t, got.PendingTargetTemp)
}

func TestAutoRestartEventConditions(t *testing.T) {
	tm, store, bus := newTestManager(t)

	room := domain.NewRoom("101", 25, 300)
	room.MarkOccupied()
	room.TargetTemp = 25
	// 初温与当前温度同为 26：空闲回漂不移动，偏离恰好等于阈值 1.0
	room.CurrentTemp = 26.0
	room.InitialTemp = 26.0
	require.NoError(t, store.SaveRoom(room))

	tm.Tick()
	assert.Equal(t, 1, bus.PendingCount(), "偏离达到阈值即重启")

	t.Run("手动关机不重启", func(t *testing.T) {
		room.ManualPoweredOff = true
		require.NoError(t, store.SaveRoom(room))
		before := bus.PendingCount()
		tm.Tick()
		assert.Equal(t, before, bus.PendingCount())
		room.ManualPoweredOff = false
	})

	t.Run("已在等待队列不重启", func(t *testing.T) {
		room.CurrentTemp = 27
		require.NoError(t, store.SaveRoom(room))
		tm.CreateWaitTimer("101", types.SpeedMid, 3, false)
		before := bus.PendingCount()
		tm.Tick()
		assert.Equal(t, before, bus.PendingCount())
		tm.CancelTimer(tm.TimerIDForRoom("101", domain.TimerWait))
	})

	t.Run("偏离未达阈值不重启", func(t *testing.T) {
		room.CurrentTemp = room.TargetTemp + 0.4
		require.NoError(t, store.SaveRoom(room))
		before := bus.PendingCount()
		tm.Tick()
		assert.Equal(t, before, bus.PendingCount())
	})
}

func TestAutoRestartPayloadCarriesSpeed(t *testing.T) {
	tm, store, bus := newTestManager(t)

	var mu sync.Mutex
	var got events.SchedulerEvent
	done := make(chan struct{}, 1)
	bus.RegisterHandler(events.EventAutoRestartNeeded, func(e events.SchedulerEvent) {
		mu.Lock()
		got = e
		mu.Unlock()
		done <- struct{}{}
	})
	bus.Start()
	defer bus.Stop()

	room := domain.NewRoom("101", 25, 300)
	room.MarkOccupied()
	room.Speed = types.SpeedHigh
	room.CurrentTemp = 28
	require.NoError(t, store.SaveRoom(room))

	tm.Tick()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("未收到自动重启事件")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "101", got.RoomID)
	assert.Equal(t, "HIGH", got.PayloadString("speed"), "重启沿用房间上次风速")
}

func TestWaitForTicksAndCallback(t *testing.T) {
	tm, _, _ := newTestManager(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		tm.Tick()
	}()
	assert.True(t, tm.WaitForNextTick(2*time.Second))

	// 回调在 tick 线程上执行，期间时钟不前进
	var observed int64
	go func() {
		time.Sleep(20 * time.Millisecond)
		tm.Tick()
	}()
	ok := tm.WaitForTicksWithCallback(1, func() {
		observed = tm.TickCounter()
	}, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, int64(2), observed)

	assert.False(t, tm.WaitForNextTick(30*time.Millisecond), "无人推进时等待超时")
}

func TestSetClockRatio(t *testing.T) {
	tm, _, _ := newTestManager(t)

	err := tm.SetClockRatio(0)
	assert.Equal(t, types.KindInvalidArgument, types.KindOf(err))
	err = tm.SetClockRatio(-3)
	assert.Equal(t, types.KindInvalidArgument, types.KindOf(err))

	tm.Tick()
	tm.Tick()
	require.NoError(t, tm.SetClockRatio(10))
	assert.Equal(t, int64(2), tm.TickCounter(), "变速不回退 tick 计数")
	assert.Equal(t, time.Second/10, tm.clockInterval())
}

func TestFlushAndRestoreTimer(t *testing.T) {
	tm, store, _ := newTestManager(t)
	tm.flushEverySeconds = 1

	timerID := tm.CreateServiceTimer("101", types.SpeedHigh)
	tm.Tick()
	tm.Tick()
	tm.Tick()

	recs, err := store.ListTimerRecords()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 3, recs[0].ElapsedSeconds, "周期落盘带上最新进度")

	// 模拟进程重启：新管理器从脚手架恢复
	restarted := NewTimeManager(config.Default(), events.NewBus(10), store, &sync.Mutex{})
	restarted.RestoreTimer(recs[0])
	assert.Equal(t, 3, restarted.GetElapsedSeconds(timerID))
	assert.Equal(t, timerID, restarted.TimerIDForRoom("101", domain.TimerService))
}

func TestCancelRoomTimers(t *testing.T) {
	tm, store, _ := newTestManager(t)

	tm.CreateServiceTimer("101", types.SpeedMid)
	tm.CreateDetailTimer("101", types.SpeedMid)
	tm.CreateAccommodationTimer("101")
	other := tm.CreateAccommodationTimer("102")

	tm.CancelRoomTimers("101")

	assert.Equal(t, "", tm.TimerIDForRoom("101", domain.TimerService))
	assert.Equal(t, "", tm.TimerIDForRoom("101", domain.TimerDetail))
	assert.Equal(t, "", tm.TimerIDForRoom("101", domain.TimerAccommodation))
	assert.True(t, tm.HasTimer(other), "别的房间不受影响")

	recs, err := store.ListTimerRecords()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "102", recs[0].RoomID)
}

func TestClockDriverAdvancesTicks(t *testing.T) {
	cfg := config.Default()
	cfg.Clock.Ratio = 100 // 10ms 一个逻辑秒
	store := db.NewMemoryStore()
	tm := NewTimeManager(cfg, events.NewBus(10), store, &sync.Mutex{})

	tm.StartClock()
	defer tm.StopClock()

	assert.True(t, tm.WaitForTicks(3, 2*time.Second))
	assert.GreaterOrEqual(t, tm.TickCounter(), int64(3))
}
