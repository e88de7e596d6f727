package scheduler

import (
	"sync"
	"testing"

	"backend/internal/billing"
	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/domain"
	"backend/internal/events"
	"backend/internal/timing"
	"backend/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, maxConcurrent, timeSlice int) (*Scheduler, *timing.TimeManager, *db.MemoryStore, *events.Bus) {
	t.Helper()
	cfg := config.Default()
	cfg.Scheduling.MaxConcurrent = maxConcurrent
	cfg.Scheduling.TimeSliceSeconds = timeSlice

	store := db.NewMemoryStore()
	coreMu := &sync.Mutex{}
	bus := events.NewBus(100) // 不启动，事件流转由测试直接调用处理器驱动
	tm := timing.NewTimeManager(cfg, bus, store, coreMu)
	eng := billing.NewEngine(cfg, store, tm)
	tm.SetFeeCallback(eng.FeePerSecond)
	sched := NewScheduler(cfg, store, tm, bus, eng, coreMu)

	// 温度拉开距离，tick 时不会顺带触发达温/回温事件干扰断言
	for _, roomID := range []string{"r1", "r2", "r3", "r4"} {
		room := domain.NewRoom(roomID, 25, 300)
		room.CurrentTemp = 30
		room.InitialTemp = 30
		require.NoError(t, store.SaveRoom(room))
	}
	return sched, tm, store, bus
}

func serviceRoomIDs(t *testing.T, store *db.MemoryStore) []string {
	t.Helper()
	entries, err := store.ListServiceObjects()
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, obj := range entries {
		out = append(out, obj.RoomID)
	}
	return out
}

func waitRoomIDs(t *testing.T, store *db.MemoryStore) []string {
	t.Helper()
	entries, err := store.ListWaitEntries()
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, obj := range entries {
		out = append(out, obj.RoomID)
	}
	return out
}

func TestCapacityAndWaitEnqueue(t *testing.T) {
	sched, tm, store, _ := newTestScheduler(t, 3, 60)

	sched.OnNewRequest("r1", types.SpeedMid)
	sched.OnNewRequest("r2", types.SpeedMid)
	sched.OnNewRequest("r3", types.SpeedMid)
	assert.Equal(t, []string{"r1", "r2", "r3"}, serviceRoomIDs(t, store))

	// 满载且无低优先级可抢 → 入等待队列；同风速在服务，时间片约束即刻生效
	sched.OnNewRequest("r4", types.SpeedMid)
	assert.Equal(t, []string{"r1", "r2", "r3"}, serviceRoomIDs(t, store))
	assert.Equal(t, []string{"r4"}, waitRoomIDs(t, store))

	wait, err := store.GetWaitEntry("r4")
	require.NoError(t, err)
	assert.True(t, wait.TimeSliceEnforced)
	assert.True(t, tm.HasTimer(wait.TimerID))
	assert.Equal(t, 60, tm.GetRemainingSeconds(wait.TimerID))

	room, err := store.GetRoom("r1")
	require.NoError(t, err)
	assert.True(t, room.IsServing)
}

func TestWaitEnqueueWithoutSameSpeedUnenforced(t *testing.T) {
	sched, _, store, _ := newTestScheduler(t, 2, 60)

	sched.OnNewRequest("r1", types.SpeedMid)
	sched.OnNewRequest("r2", types.SpeedMid)
	// 低风进不去也抢不动，且服务队列里没有同风速 → 不受时间片约束
	sched.OnNewRequest("r3", types.SpeedLow)

	wait, err := store.GetWaitEntry("r3")
	require.NoError(t, err)
	require.NotNil(t, wait)
	assert.False(t, wait.TimeSliceEnforced)
}

func TestPreemptionPicksLowestPriority(t *testing.T) {
	sched, tm, store, _ := newTestScheduler(t, 2, 60)

	sched.OnNewRequest("r1", types.SpeedLow)
	sched.OnNewRequest("r2", types.SpeedMid)

	sched.OnNewRequest("r3", types.SpeedHigh)

	// 低风被挤出，高风上位
	assert.Equal(t, []string{"r2", "r3"}, serviceRoomIDs(t, store))
	assert.Equal(t, []string{"r1"}, waitRoomIDs(t, store))

	victim, err := store.GetWaitEntry("r1")
	require.NoError(t, err)
	assert.False(t, victim.TimeSliceEnforced, "被抢占者入队时不受时间片约束")
	assert.Equal(t, domain.StatusWaiting, victim.Status)
	assert.True(t, tm.HasTimer(victim.TimerID))

	room, err := store.GetRoom("r1")
	require.NoError(t, err)
	assert.False(t, room.IsServing)
}

func TestVictimIsLongestServedAmongSameSpeed(t *testing.T) {
	sched, tm, store, _ := newTestScheduler(t, 2, 60)

	sched.OnNewRequest("r1", types.SpeedLow)
	for i := 0; i < 5; i++ {
		tm.Tick()
	}
	sched.OnNewRequest("r2", types.SpeedLow)
	for i := 0; i < 2; i++ {
		tm.Tick()
	}
	// r1 已服务 7 秒、r2 服务 2 秒，同风速取最长者
	sched.OnNewRequest("r3", types.SpeedMid)

	assert.Equal(t, []string{"r2", "r3"}, serviceRoomIDs(t, store))
	assert.Equal(t, []string{"r1"}, waitRoomIDs(t, store))
}

func TestTimeSliceRotation(t *testing.T) {
	sched, tm, store, bus := newTestScheduler(t, 1, 2)

	sched.OnNewRequest("r1", types.SpeedMid)
	sched.OnNewRequest("r2", types.SpeedMid)
	assert.Equal(t, []string{"r1"}, serviceRoomIDs(t, store))

	// 两个逻辑秒后 r2 的时间片到期
	tm.Tick()
	assert.Equal(t, 0, bus.PendingCount())
	tm.Tick()
	require.Equal(t, 1, bus.PendingCount())

	wait, err := store.GetWaitEntry("r2")
	require.NoError(t, err)
	sched.handleTimeSliceExpired(events.NewEvent(events.EventTimeSliceExpired, "r2", map[string]interface{}{
		"speed":    string(types.SpeedMid),
		"timer_id": wait.TimerID,
	}))

	// 轮转：最长服务者 r1 让位，r2 上位且让位者重新受约束
	assert.Equal(t, []string{"r2"}, serviceRoomIDs(t, store))
	assert.Equal(t, []string{"r1"}, waitRoomIDs(t, store))
	rotated, err := store.GetWaitEntry("r1")
	require.NoError(t, err)
	assert.True(t, rotated.TimeSliceEnforced)

	// 至少一次投递：等待对象已不在队列时重复事件被忽略
	sched.handleTimeSliceExpired(events.NewEvent(events.EventTimeSliceExpired, "r2", nil))
	assert.Equal(t, []string{"r2"}, serviceRoomIDs(t, store))
}

func TestTemperatureReachedReleasesAndPromotes(t *testing.T) {
	sched, _, store, _ := newTestScheduler(t, 1, 60)

	sched.OnNewRequest("r1", types.SpeedMid)
	sched.OnNewRequest("r2", types.SpeedMid)

	sched.handleTemperatureReached(events.NewEvent(events.EventTemperatureReached, "r1", nil))

	assert.Equal(t, []string{"r2"}, serviceRoomIDs(t, store))
	assert.Empty(t, waitRoomIDs(t, store))

	room, err := store.GetRoom("r1")
	require.NoError(t, err)
	assert.False(t, room.IsServing)

	// 不在服务队列的房间达温事件是空操作
	sched.handleTemperatureReached(events.NewEvent(events.EventTemperatureReached, "r1", nil))
	assert.Equal(t, []string{"r2"}, serviceRoomIDs(t, store))
}

func TestCancelRequestPurgesBothQueues(t *testing.T) {
	sched, tm, store, _ := newTestScheduler(t, 1, 60)

	sched.OnNewRequest("r1", types.SpeedMid)
	sched.OnNewRequest("r2", types.SpeedMid)

	svc, err := store.GetServiceObject("r1")
	require.NoError(t, err)
	wait, err := store.GetWaitEntry("r2")
	require.NoError(t, err)

	sched.CancelRequest("r1")
	assert.Empty(t, serviceRoomIDs(t, store))
	assert.False(t, tm.HasTimer(svc.TimerID))
	// 取消不补位，等待者留在原地
	assert.Equal(t, []string{"r2"}, waitRoomIDs(t, store))

	sched.CancelRequest("r2")
	assert.Empty(t, waitRoomIDs(t, store))
	assert.False(t, tm.HasTimer(wait.TimerID))
}

func TestAutoRestartHandlerUsesPayloadSpeed(t *testing.T) {
	sched, _, store, _ := newTestScheduler(t, 3, 60)

	sched.handleAutoRestart(events.NewEvent(events.EventAutoRestartNeeded, "r1", map[string]interface{}{
		"speed": "LOW",
	}))
	svc, err := store.GetServiceObject("r1")
	require.NoError(t, err)
	require.NotNil(t, svc)
	assert.Equal(t, types.SpeedLow, svc.Speed)

	// 载荷缺失或不可解析时回落到中风
	sched.handleAutoRestart(events.NewEvent(events.EventAutoRestartNeeded, "r2", nil))
	svc, err = store.GetServiceObject("r2")
	require.NoError(t, err)
	require.NotNil(t, svc)
	assert.Equal(t, types.SpeedMid, svc.Speed)
}

func TestChangeSpeedWhileServingReleasesThenReschedules(t *testing.T) {
	sched, _, store, _ := newTestScheduler(t, 1, 60)

	sched.OnNewRequest("r1", types.SpeedMid)
	sched.OnNewRequest("r2", types.SpeedMid)

	// r1 调到高风：先释放旧服务（r2 补位），再按抢占规则夺回服务位
	sched.OnNewRequest("r1", types.SpeedHigh)

	assert.Equal(t, []string{"r1"}, serviceRoomIDs(t, store))
	assert.Equal(t, []string{"r2"}, waitRoomIDs(t, store))
	svc, err := store.GetServiceObject("r1")
	require.NoError(t, err)
	assert.Equal(t, types.SpeedHigh, svc.Speed)

	back, err := store.GetWaitEntry("r2")
	require.NoError(t, err)
	assert.False(t, back.TimeSliceEnforced, "被抢占回等待队列时不受约束")
}

func TestBoostWaitingPriority(t *testing.T) {
	sched, _, store, _ := newTestScheduler(t, 1, 60)

	mid := domain.NewServiceObject("r2", types.SpeedMid)
	low := domain.NewServiceObject("r3", types.SpeedLow)
	require.NoError(t, store.AddWaitEntry(mid))
	require.NoError(t, store.AddWaitEntry(low))

	sched.boostWaitingPriorityLocked(types.SpeedMid)

	got, err := store.GetWaitEntry("r2")
	require.NoError(t, err)
	assert.Equal(t, 1, got.PriorityToken)
	got, err = store.GetWaitEntry("r3")
	require.NoError(t, err)
	assert.Equal(t, 0, got.PriorityToken, "只提升同风速对象")
}

func TestSelectNextWaitingOrdering(t *testing.T) {
	sched, _, store, _ := newTestScheduler(t, 1, 60)

	high := domain.NewServiceObject("r3", types.SpeedHigh)
	mid := domain.NewServiceObject("r2", types.SpeedMid)
	boosted := domain.NewServiceObject("r4", types.SpeedHigh)
	boosted.PriorityToken = 2
	require.NoError(t, store.AddWaitEntry(high))
	require.NoError(t, store.AddWaitEntry(mid))
	require.NoError(t, store.AddWaitEntry(boosted))

	next := sched.selectNextWaiting()
	require.NotNil(t, next)
	assert.Equal(t, "r4", next.RoomID, "同风速下令牌高者先提升")
}

func TestRestoreFromStoreRebuildsMissingTimers(t *testing.T) {
	sched, tm, store, _ := newTestScheduler(t, 3, 60)

	sched.OnNewRequest("r1", types.SpeedMid)
	live, err := store.GetServiceObject("r1")
	require.NoError(t, err)

	// 模拟重启后脚手架丢失的对象
	stale := domain.NewServiceObject("r2", types.SpeedHigh)
	stale.Status = domain.StatusServing
	stale.TimerID = "gone"
	require.NoError(t, store.AddServiceObject(stale))
	staleWait := domain.NewServiceObject("r3", types.SpeedMid)
	staleWait.TimerID = "also-gone"
	staleWait.TimeSliceEnforced = true
	require.NoError(t, store.AddWaitEntry(staleWait))

	sched.RestoreFromStore()

	// 计时器仍有效的对象原样保留
	kept, err := store.GetServiceObject("r1")
	require.NoError(t, err)
	assert.Equal(t, live.TimerID, kept.TimerID)

	rebuilt, err := store.GetServiceObject("r2")
	require.NoError(t, err)
	assert.NotEqual(t, "gone", rebuilt.TimerID)
	assert.True(t, tm.HasTimer(rebuilt.TimerID))

	rebuiltWait, err := store.GetWaitEntry("r3")
	require.NoError(t, err)
	assert.True(t, tm.HasTimer(rebuiltWait.TimerID))
	assert.Equal(t, 60, tm.GetRemainingSeconds(rebuiltWait.TimerID))
}

func TestServedAndWaitedSeconds(t *testing.T) {
	sched, tm, _, _ := newTestScheduler(t, 1, 60)

	sched.OnNewRequest("r1", types.SpeedMid)
	sched.OnNewRequest("r2", types.SpeedMid)
	for i := 0; i < 4; i++ {
		tm.Tick()
	}
	assert.Equal(t, 4, sched.ServedSeconds("r1"))
	assert.Equal(t, 4, sched.WaitedSeconds("r2"))
	assert.Equal(t, 0, sched.ServedSeconds("r2"))
	assert.Equal(t, 0, sched.WaitedSeconds("nope"))
}
