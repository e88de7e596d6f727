// internal/service/checkout.go

package service

import (
	"time"

	"backend/internal/billing"
	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/domain"
	"backend/internal/logger"
	"backend/internal/scheduler"
	"backend/internal/timing"
	"backend/internal/types"

	"github.com/google/uuid"
)

const secondsPerNight = 86400

// CheckOutService 退房用例
type CheckOutService struct {
	cfg     *config.Config
	store   db.Repository
	tm      *timing.TimeManager
	sched   *scheduler.Scheduler
	billing *billing.Engine
}

// CheckOutResult 退房结算单
type CheckOutResult struct {
	Order             *domain.AccommodationOrder
	ACBill            *domain.ACBill
	AccommodationBill *domain.AccommodationBill
	MealTotalFee      float64
	Deposit           float64
	GrandTotal        float64 // 空调 + 住宿 + 订餐 - 押金
}

// RoomBills 入住中的费用速览（未结账）
type RoomBills struct {
	RoomID        string
	ACDetails     []*domain.ACDetailRecord
	ACTotalFee    float64 // 已关账段 + 当前开放段
	NightsSoFar   int
	AccomEstimate float64
	MealTotalFee  float64
}

// NewCheckOutService 创建退房服务
func NewCheckOutService(cfg *config.Config, store db.Repository, tm *timing.TimeManager,
	sched *scheduler.Scheduler, eng *billing.Engine) *CheckOutService {
	return &CheckOutService{cfg: cfg, store: store, tm: tm, sched: sched, billing: eng}
}

// CheckOut 办理退房
//
// 先把房间从调度里摘掉并关账，再分别汇总空调账单、住宿账单
// 和订餐费用，最后清掉房间全部计时器并把房间复位为空闲。
// 房间未入住时返回 PreconditionFailed。
func (s *CheckOutService) CheckOut(roomID string) (*CheckOutResult, error) {
	room, err := s.store.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	order, err := s.store.GetLatestAccommodationOrder(roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != domain.RoomOccupied || order == nil {
		return nil, types.PreconditionFailedf("房间 %s 当前无住客", roomID)
	}

	// 停止送风并关掉开放详单段，保证段费用全部进入本次账单
	s.sched.CancelRequest(roomID)
	if err := s.billing.CloseCurrentDetailRecord(roomID); err != nil {
		logger.Warn("退房关闭详单失败 room=%s: %v", roomID, err)
	}

	acBill, err := s.billing.AggregateToBill(roomID)
	if err != nil {
		return nil, err
	}

	nights := s.nightsForOrder(order)
	now := time.Now()
	accomBill := &domain.AccommodationBill{
		BillID:       uuid.NewString(),
		OrderID:      order.OrderID,
		RoomID:       roomID,
		CheckInAt:    order.CheckInAt,
		CheckOutAt:   now,
		Nights:       nights,
		RatePerNight: room.RatePerNight,
		TotalFee:     float64(nights) * room.RatePerNight,
	}
	if err := s.store.AddAccommodationBill(accomBill); err != nil {
		return nil, err
	}

	mealTotal, err := s.store.GetMealTotalFee(roomID, &order.CheckInAt)
	if err != nil {
		return nil, err
	}

	s.tm.CancelRoomTimers(roomID)
	room.MarkVacant()
	if err := s.store.SaveRoom(room); err != nil {
		return nil, err
	}

	result := &CheckOutResult{
		Order:             order,
		ACBill:            acBill,
		AccommodationBill: accomBill,
		MealTotalFee:      mealTotal,
		Deposit:           order.Deposit,
		GrandTotal:        acBill.TotalFee + accomBill.TotalFee + mealTotal - order.Deposit,
	}
	logger.Info("房间 %s 退房: 空调 %.2f + 住宿 %.2f + 订餐 %.2f - 押金 %.2f = %.2f",
		roomID, acBill.TotalFee, accomBill.TotalFee, mealTotal, order.Deposit, result.GrandTotal)
	return result, nil
}

// GetRoomBills 入住期间的费用速览，不做任何结账动作
func (s *CheckOutService) GetRoomBills(roomID string) (*RoomBills, error) {
	if _, err := s.store.GetRoom(roomID); err != nil {
		return nil, err
	}
	order, err := s.store.GetLatestAccommodationOrder(roomID)
	if err != nil {
		return nil, err
	}

	details, err := s.billing.ListBillableRecords(roomID)
	if err != nil {
		return nil, err
	}
	acTotal := s.billing.CurrentOpenFee(roomID)
	for _, rec := range details {
		acTotal += rec.FeeValue
	}

	bills := &RoomBills{
		RoomID:     roomID,
		ACDetails:  details,
		ACTotalFee: acTotal,
	}
	if order != nil {
		bills.NightsSoFar = s.nightsForOrder(order)
		room, err := s.store.GetRoom(roomID)
		if err != nil {
			return nil, err
		}
		bills.AccomEstimate = float64(bills.NightsSoFar) * room.RatePerNight
		mealTotal, err := s.store.GetMealTotalFee(roomID, &order.CheckInAt)
		if err != nil {
			return nil, err
		}
		bills.MealTotalFee = mealTotal
	}
	return bills, nil
}

// nightsForOrder 按入住计时器的逻辑秒数向上取整为夜数，至少一夜
func (s *CheckOutService) nightsForOrder(order *domain.AccommodationOrder) int {
	elapsed := 0
	if order.TimerID != "" {
		elapsed = s.tm.GetElapsedSeconds(order.TimerID)
	}
	nights := (elapsed + secondsPerNight - 1) / secondsPerNight
	if nights < 1 {
		nights = 1
	}
	return nights
}
