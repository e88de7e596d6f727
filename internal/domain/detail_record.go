// internal/domain/detail_record.go

package domain

import (
	"time"

	"backend/internal/types"
)

// ACDetailRecord 一段连续单一风速的服务详单，计费的最小单位
//
// EndedAt == nil 表示详单仍处于打开状态；每个房间至多一条打开详单。
type ACDetailRecord struct {
	RecordID          string
	RoomID            string
	Speed             types.Speed
	StartedAt         time.Time
	EndedAt           *time.Time
	LogicStartSeconds *int // 自入住起的逻辑秒，入住计时器存在时记录
	LogicEndSeconds   *int
	RatePerMin        float64
	FeeValue          float64
	TimerID           string // 关联的 DETAIL 计时器
}

// IsOpen 详单是否仍在累计
func (r *ACDetailRecord) IsOpen() bool {
	return r.EndedAt == nil
}

// Clone 浅拷贝
func (r *ACDetailRecord) Clone() *ACDetailRecord {
	cp := *r
	if r.EndedAt != nil {
		t := *r.EndedAt
		cp.EndedAt = &t
	}
	if r.LogicStartSeconds != nil {
		v := *r.LogicStartSeconds
		cp.LogicStartSeconds = &v
	}
	if r.LogicEndSeconds != nil {
		v := *r.LogicEndSeconds
		cp.LogicEndSeconds = &v
	}
	return &cp
}
