// internal/events/types.go

package events

import "github.com/google/uuid"

// EventType 调度事件类型
type EventType string

const (
	// TimeManager → Scheduler 通知事件
	EventTimeSliceExpired   EventType = "TIME_SLICE_EXPIRED"  // 等待时间片到期
	EventTemperatureReached EventType = "TEMPERATURE_REACHED" // 达到目标温度
	EventAutoRestartNeeded  EventType = "AUTO_RESTART_NEEDED" // 需要自动重启送风
	EventDetailTimeout      EventType = "DETAIL_TIMEOUT"      // 详单超时（预留）
)

// SchedulerEvent TimeManager 发送给 Scheduler 的事件
type SchedulerEvent struct {
	Type    EventType
	RoomID  string
	Payload map[string]interface{}
	EventID string
}

// NewEvent 构造带事件 ID 的调度事件
func NewEvent(eventType EventType, roomID string, payload map[string]interface{}) SchedulerEvent {
	return SchedulerEvent{
		Type:    eventType,
		RoomID:  roomID,
		Payload: payload,
		EventID: uuid.NewString(),
	}
}

// PayloadString 取出字符串载荷字段，缺失时返回空串
func (e SchedulerEvent) PayloadString(key string) string {
	if e.Payload == nil {
		return ""
	}
	if v, ok := e.Payload[key].(string); ok {
		return v
	}
	return ""
}

// Handler 事件处理函数
type Handler func(SchedulerEvent)
