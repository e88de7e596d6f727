// internal/service/checkin.go

package service

import (
	"strings"
	"time"

	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/domain"
	"backend/internal/logger"
	"backend/internal/timing"
	"backend/internal/types"

	"github.com/google/uuid"
)

// CheckInService 入住用例
type CheckInService struct {
	cfg   *config.Config
	store db.Repository
	tm    *timing.TimeManager
}

// CheckInRequest 入住登记参数
type CheckInRequest struct {
	RoomID     string
	CustID     string
	CustName   string
	GuestCount int
	CheckInAt  time.Time
	Deposit    float64
}

// NewCheckInService 创建入住服务
func NewCheckInService(cfg *config.Config, store db.Repository, tm *timing.TimeManager) *CheckInService {
	return &CheckInService{cfg: cfg, store: store, tm: tm}
}

// CheckIn 办理入住
//
// 创建住宿订单和入住计时器，房间转入 OCCUPIED，
// 当前温度保留为初始温度（决定空闲时的回漂终点）。
func (s *CheckInService) CheckIn(req CheckInRequest) (*domain.AccommodationOrder, error) {
	if strings.TrimSpace(req.RoomID) == "" {
		return nil, types.InvalidArgumentf("房间号不能为空")
	}
	if strings.TrimSpace(req.CustID) == "" || strings.TrimSpace(req.CustName) == "" {
		return nil, types.InvalidArgumentf("顾客证件号与姓名不能为空")
	}
	if req.GuestCount <= 0 {
		req.GuestCount = 1
	}
	if req.Deposit < 0 {
		return nil, types.InvalidArgumentf("押金不能为负: %v", req.Deposit)
	}

	room, err := ensureRoom(s.cfg, s.store, req.RoomID)
	if err != nil {
		return nil, err
	}
	if room.Status == domain.RoomOccupied {
		return nil, types.PreconditionFailedf("房间 %s 已有住客", req.RoomID)
	}

	room.MarkOccupied()
	room.CaptureInitialTemp()
	if err := s.store.SaveRoom(room); err != nil {
		return nil, err
	}

	checkInAt := req.CheckInAt
	if checkInAt.IsZero() {
		checkInAt = time.Now()
	}
	order := &domain.AccommodationOrder{
		OrderID:    uuid.NewString(),
		RoomID:     req.RoomID,
		CustID:     req.CustID,
		CustName:   req.CustName,
		GuestCount: req.GuestCount,
		Deposit:    req.Deposit,
		CheckInAt:  checkInAt,
		TimerID:    s.tm.CreateAccommodationTimer(req.RoomID),
	}
	if err := s.store.AddAccommodationOrder(order); err != nil {
		s.tm.CancelTimer(order.TimerID)
		return nil, err
	}
	logger.Info("房间 %s 入住: 顾客 %s(%s) %d 人，押金 %.2f",
		req.RoomID, req.CustName, req.CustID, req.GuestCount, req.Deposit)
	return order, nil
}
