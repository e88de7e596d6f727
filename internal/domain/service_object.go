// internal/domain/service_object.go

package domain

import (
	"time"

	"backend/internal/types"
)

// ServiceStatus 服务对象生命周期状态
type ServiceStatus string

const (
	StatusServing ServiceStatus = "SERVING"
	StatusWaiting ServiceStatus = "WAITING"
	StatusStopped ServiceStatus = "STOPPED"
)

// ServiceObject 调度器中的服务对象，每个房间至多一个
//
// ServedSeconds/RemainingSeconds/CurrentFee 不落在对象上，
// 统一通过 TimerID 向 TimeManager 查询。
type ServiceObject struct {
	RoomID            string
	Speed             types.Speed
	StartedAt         *time.Time
	PriorityToken     int
	TimeSliceEnforced bool
	Status            ServiceStatus
	TimerID           string // 不透明句柄，SERVING 时指向 SERVICE 计时器，WAITING 时指向 WAIT 计时器
}

// NewServiceObject 创建等待状态的服务对象
func NewServiceObject(roomID string, speed types.Speed) *ServiceObject {
	return &ServiceObject{
		RoomID: roomID,
		Speed:  speed,
		Status: StatusWaiting,
	}
}

// PriorityKey 等待队列的提升顺序键
//
// 依次比较：风速优先级 > 优先级令牌 > 等待时长（由调用方传入）。
type PriorityKey struct {
	SpeedPriority int
	PriorityToken int
	WaitedSeconds int
}

// Less 返回 k 是否低于 other（other 更应被提升）
func (k PriorityKey) Less(other PriorityKey) bool {
	if k.SpeedPriority != other.SpeedPriority {
		return k.SpeedPriority < other.SpeedPriority
	}
	if k.PriorityToken != other.PriorityToken {
		return k.PriorityToken < other.PriorityToken
	}
	return k.WaitedSeconds < other.WaitedSeconds
}

// Key 构造服务对象当前的优先级键
func (s *ServiceObject) Key(waitedSeconds int) PriorityKey {
	return PriorityKey{
		SpeedPriority: types.SpeedPriority[s.Speed],
		PriorityToken: s.PriorityToken,
		WaitedSeconds: waitedSeconds,
	}
}

// Clone 浅拷贝，监控读取用
func (s *ServiceObject) Clone() *ServiceObject {
	cp := *s
	if s.StartedAt != nil {
		t := *s.StartedAt
		cp.StartedAt = &t
	}
	return &cp
}
