// internal/domain/timer_record.go

package domain

import "backend/internal/types"

// TimerKind 计时器类型
type TimerKind string

const (
	TimerService       TimerKind = "SERVICE"       // 服务计时（递增 + 镜像费用）
	TimerWait          TimerKind = "WAIT"          // 等待计时（倒计时，时间片轮转）
	TimerDetail        TimerKind = "DETAIL"        // 详单计时（分段计费）
	TimerAccommodation TimerKind = "ACCOMMODATION" // 入住计时
)

// TimerRecord 计时器的持久化脚手架
//
// 只保存重建 live 计时器所需的字段；进程重启后由
// TimeManager.RestoreTimer 据此重新挂接到服务对象。
type TimerRecord struct {
	TimerID           string
	Kind              TimerKind
	RoomID            string
	Speed             types.Speed
	ElapsedSeconds    int
	RemainingSeconds  int
	CurrentFee        float64
	TimeSliceEnforced bool
}
