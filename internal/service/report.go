// internal/service/report.go

package service

import (
	"time"

	"backend/internal/db"
	"backend/internal/domain"
	"backend/internal/types"
)

// ReportService 运营报表用例，按详单聚合
type ReportService struct {
	store db.Repository
}

// SpeedUsage 某一风速档位的累计使用情况
type SpeedUsage struct {
	Speed    types.Speed
	Seconds  int
	Fee      float64
	Segments int
}

// RoomUsageReport 单房间用量报表
type RoomUsageReport struct {
	RoomID       string
	From         time.Time
	To           time.Time
	TotalFee     float64
	Segments     int
	UsageBySpeed map[types.Speed]*SpeedUsage
}

// SystemUsageReport 全楼用量报表
type SystemUsageReport struct {
	From     time.Time
	To       time.Time
	TotalFee float64
	Rooms    []*RoomUsageReport
}

// NewReportService 创建报表服务
func NewReportService(store db.Repository) *ReportService {
	return &ReportService{store: store}
}

// RoomReport 聚合某房间 [from, to) 内已关账的详单
//
// 段时长优先用逻辑秒（入住计时器差值），缺失时退化为墙钟差。
func (r *ReportService) RoomReport(roomID string, from, to time.Time) (*RoomUsageReport, error) {
	records, err := r.store.ListCompletedDetailRecords(roomID)
	if err != nil {
		return nil, err
	}
	report := &RoomUsageReport{
		RoomID:       roomID,
		From:         from,
		To:           to,
		UsageBySpeed: make(map[types.Speed]*SpeedUsage),
	}
	for _, rec := range records {
		if rec.StartedAt.Before(from) || !rec.StartedAt.Before(to) {
			continue
		}
		usage := report.UsageBySpeed[rec.Speed]
		if usage == nil {
			usage = &SpeedUsage{Speed: rec.Speed}
			report.UsageBySpeed[rec.Speed] = usage
		}
		usage.Seconds += recordSeconds(rec)
		usage.Fee += rec.FeeValue
		usage.Segments++
		report.TotalFee += rec.FeeValue
		report.Segments++
	}
	return report, nil
}

// SystemReport 聚合全部房间的用量
func (r *ReportService) SystemReport(from, to time.Time) (*SystemUsageReport, error) {
	rooms, err := r.store.ListRooms()
	if err != nil {
		return nil, err
	}
	report := &SystemUsageReport{From: from, To: to}
	for _, room := range rooms {
		roomReport, err := r.RoomReport(room.RoomID, from, to)
		if err != nil {
			return nil, err
		}
		if roomReport.Segments == 0 {
			continue
		}
		report.Rooms = append(report.Rooms, roomReport)
		report.TotalFee += roomReport.TotalFee
	}
	return report, nil
}

func recordSeconds(rec *domain.ACDetailRecord) int {
	if rec.LogicStartSeconds != nil && rec.LogicEndSeconds != nil {
		if d := *rec.LogicEndSeconds - *rec.LogicStartSeconds; d >= 0 {
			return d
		}
	}
	if rec.EndedAt != nil {
		return int(rec.EndedAt.Sub(rec.StartedAt).Seconds())
	}
	return 0
}
