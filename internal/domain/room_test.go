package domain

import (
	"testing"
	"time"

	"backend/internal/types"

	"github.com/stretchr/testify/assert"
)

var testModel = TempModel{
	MidDeltaPerMin:  0.5,
	HighMultiplier:  1.2,
	LowMultiplier:   0.8,
	IdleDriftPerMin: 0.5,
}

func TestTickTemperatureServing(t *testing.T) {
	t.Run("中风按基准速率逼近目标", func(t *testing.T) {
		room := NewRoom("r1", 25, 300)
		room.CurrentTemp = 20
		room.TargetTemp = 25
		room.Speed = types.SpeedMid

		reached := room.TickTemperature(testModel, true)
		assert.False(t, reached)
		assert.InDelta(t, 20+0.5/60, room.CurrentTemp, 1e-9)
	})

	t.Run("高低风按倍率缩放", func(t *testing.T) {
		high := NewRoom("r1", 25, 300)
		high.CurrentTemp = 20
		high.Speed = types.SpeedHigh
		high.TickTemperature(testModel, true)
		assert.InDelta(t, 20+0.5*1.2/60, high.CurrentTemp, 1e-9)

		low := NewRoom("r2", 25, 300)
		low.CurrentTemp = 20
		low.Speed = types.SpeedLow
		low.TickTemperature(testModel, true)
		assert.InDelta(t, 20+0.5*0.8/60, low.CurrentTemp, 1e-9)
	})

	t.Run("距离不足一步时恰好落在目标温度", func(t *testing.T) {
		room := NewRoom("r1", 25, 300)
		room.CurrentTemp = 24.999
		room.TargetTemp = 25
		room.Speed = types.SpeedMid

		reached := room.TickTemperature(testModel, true)
		assert.True(t, reached)
		assert.Equal(t, 25.0, room.CurrentTemp)
	})

	t.Run("制冷方向同样生效", func(t *testing.T) {
		room := NewRoom("r1", 25, 300)
		room.CurrentTemp = 28
		room.TargetTemp = 22
		room.Speed = types.SpeedMid
		room.TickTemperature(testModel, true)
		assert.InDelta(t, 28-0.5/60, room.CurrentTemp, 1e-9)
	})
}

func TestTickTemperatureIdleDrift(t *testing.T) {
	room := NewRoom("r1", 25, 300)
	room.InitialTemp = 30
	room.CurrentTemp = 25
	room.TargetTemp = 20

	// 非送风时向初始温度回漂，永不报告达温
	reached := room.TickTemperature(testModel, false)
	assert.False(t, reached)
	assert.InDelta(t, 25+0.5/60, room.CurrentTemp, 1e-9)
}

func TestRequestTargetTempThrottle(t *testing.T) {
	room := NewRoom("r1", 25, 300)
	now := time.Now()

	// 第一次调温立即生效
	assert.True(t, room.RequestTargetTemp(24, now, 1000))
	assert.Equal(t, 24.0, room.TargetTemp)

	// 窗口内第二次只挂起
	assert.False(t, room.RequestTargetTemp(23, now.Add(200*time.Millisecond), 1000))
	assert.Equal(t, 24.0, room.TargetTemp)
	assert.Equal(t, 23.0, *room.PendingTargetTemp)

	// 窗口内第三次覆盖挂起值
	assert.False(t, room.RequestTargetTemp(22, now.Add(400*time.Millisecond), 1000))
	assert.Equal(t, 22.0, *room.PendingTargetTemp)

	// 窗口结束后挂起值落地
	assert.True(t, room.ApplyPendingTarget(now.Add(1200*time.Millisecond), 1000))
	assert.Equal(t, 22.0, room.TargetTemp)
	assert.Nil(t, room.PendingTargetTemp)

	// 没有挂起值时是空操作
	assert.False(t, room.ApplyPendingTarget(now.Add(3*time.Second), 1000))
}

func TestNeedsAutoRestartInclusiveThreshold(t *testing.T) {
	room := NewRoom("r1", 25, 300)
	room.TargetTemp = 25

	room.CurrentTemp = 25.5
	assert.False(t, room.NeedsAutoRestart(1.0))

	// 恰好等于阈值也要重启
	room.CurrentTemp = 26.0
	assert.True(t, room.NeedsAutoRestart(1.0))

	room.CurrentTemp = 23.5
	assert.True(t, room.NeedsAutoRestart(1.0))
}

func TestMarkOccupiedAndVacant(t *testing.T) {
	room := NewRoom("r1", 25, 300)
	room.CurrentTemp = 28

	room.MarkOccupied()
	room.CaptureInitialTemp()
	assert.Equal(t, RoomOccupied, room.Status)
	assert.Equal(t, 28.0, room.InitialTemp)

	// 入住后降温再翻状态，回漂终点不随当前温度走
	room.CurrentTemp = 24
	room.MarkOccupied()
	assert.Equal(t, 28.0, room.InitialTemp)

	room.PoweredOn = true
	room.IsServing = true
	room.ManualPoweredOff = true
	room.MarkVacant()
	assert.Equal(t, RoomVacant, room.Status)
	assert.False(t, room.IsServing)
	assert.False(t, room.PoweredOn)
	assert.False(t, room.ManualPoweredOff)
	assert.Nil(t, room.PendingTargetTemp)
}

func TestPriorityKeyOrdering(t *testing.T) {
	low := PriorityKey{SpeedPriority: 1, PriorityToken: 5, WaitedSeconds: 100}
	mid := PriorityKey{SpeedPriority: 2, PriorityToken: 0, WaitedSeconds: 0}
	assert.True(t, low.Less(mid), "风速优先级优先于其他字段")

	a := PriorityKey{SpeedPriority: 2, PriorityToken: 1, WaitedSeconds: 0}
	b := PriorityKey{SpeedPriority: 2, PriorityToken: 0, WaitedSeconds: 999}
	assert.True(t, b.Less(a), "同风速时令牌优先")

	c := PriorityKey{SpeedPriority: 2, PriorityToken: 1, WaitedSeconds: 10}
	d := PriorityKey{SpeedPriority: 2, PriorityToken: 1, WaitedSeconds: 20}
	assert.True(t, c.Less(d), "同令牌时等得久的优先")
}

func TestRoomClone(t *testing.T) {
	room := NewRoom("r1", 25, 300)
	now := time.Now()
	room.RequestTargetTemp(24, now, 1000)
	room.RequestTargetTemp(23, now, 1000)

	cp := room.Clone()
	*cp.PendingTargetTemp = 99
	cp.CurrentTemp = 0
	assert.Equal(t, 23.0, *room.PendingTargetTemp)
	assert.Equal(t, 25.0, room.CurrentTemp)
}
