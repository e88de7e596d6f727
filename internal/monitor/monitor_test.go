package monitor

import (
	"sync"
	"testing"
	"time"

	"backend/internal/billing"
	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/domain"
	"backend/internal/events"
	"backend/internal/scheduler"
	"backend/internal/timing"
	"backend/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T) (*Monitor, *scheduler.Scheduler, *timing.TimeManager, *db.MemoryStore) {
	t.Helper()
	cfg := config.Default()
	cfg.Scheduling.MaxConcurrent = 1
	store := db.NewMemoryStore()
	coreMu := &sync.Mutex{}
	bus := events.NewBus(100)
	tm := timing.NewTimeManager(cfg, bus, store, coreMu)
	eng := billing.NewEngine(cfg, store, tm)
	tm.SetFeeCallback(eng.FeePerSecond)
	sched := scheduler.NewScheduler(cfg, store, tm, bus, eng, coreMu)

	for _, roomID := range []string{"r1", "r2", "r3"} {
		room := domain.NewRoom(roomID, 25, 300)
		room.CurrentTemp = 30
		room.InitialTemp = 30
		require.NoError(t, store.SaveRoom(room))
	}
	return NewMonitor(store, tm, bus), sched, tm, store
}

func TestSnapshotNowReflectsQueues(t *testing.T) {
	mon, sched, tm, _ := newTestMonitor(t)

	sched.OnNewRequest("r1", types.SpeedHigh)
	sched.OnNewRequest("r2", types.SpeedMid)
	for i := 0; i < 3; i++ {
		tm.Tick()
	}

	snap, err := mon.SnapshotNow()
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Tick)
	assert.Equal(t, 1, snap.ServiceCount)
	assert.Equal(t, 1, snap.WaitingCount)
	require.Len(t, snap.Rooms, 3)

	byRoom := make(map[string]*RoomSnapshot)
	for _, rs := range snap.Rooms {
		byRoom[rs.Room.RoomID] = rs
	}

	serving := byRoom["r1"]
	assert.Equal(t, "SERVING", serving.QueueState)
	assert.Equal(t, types.SpeedHigh, serving.Speed)
	assert.Equal(t, 3, serving.ServedSeconds)
	assert.InDelta(t, 3*1.0/60, serving.CurrentFee, 1e-6, "当前费用取自详单计时器")

	waiting := byRoom["r2"]
	assert.Equal(t, "WAITING", waiting.QueueState)
	assert.Equal(t, 3, waiting.WaitedSeconds)

	assert.Equal(t, "IDLE", byRoom["r3"].QueueState)
}

func TestSnapshotAlignedToTick(t *testing.T) {
	mon, _, tm, _ := newTestMonitor(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		tm.Tick()
	}()
	snap, err := mon.Snapshot(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Tick)

	// 无人推进时钟时超时
	_, err = mon.Snapshot(30 * time.Millisecond)
	assert.Equal(t, types.KindTransient, types.KindOf(err))
}
