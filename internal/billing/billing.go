// internal/billing/billing.go
// Package billing 实现空调计费引擎：详单分段、逐秒费用累计与账单汇总
package billing

import (
	"time"

	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/domain"
	"backend/internal/logger"
	"backend/internal/timing"
	"backend/internal/types"

	"github.com/google/uuid"
)

// Engine 计费引擎
//
// 费用只在 tick 中按逻辑秒累计，真实流逝时间不参与计费。
// 详单段以送风事件为边界：开始送风、调风、停止送风各产生一次分段。
type Engine struct {
	cfg   *config.Config
	store db.Repository
	tm    *timing.TimeManager
}

// NewEngine 创建计费引擎
func NewEngine(cfg *config.Config, store db.Repository, tm *timing.TimeManager) *Engine {
	return &Engine{cfg: cfg, store: store, tm: tm}
}

// FeePerSecond 返回某风速每逻辑秒的费用增量
//
// 高风 1 度/分、中风 0.5 度/分、低风 1/3 度/分，乘单价折算到秒。
func (e *Engine) FeePerSecond(roomID string, speed types.Speed) float64 {
	return e.cfg.RateForSpeed(speed) / 60.0 * e.cfg.Billing.PricePerUnit
}

// StartNewDetailRecord 开启新的详单段
//
// 若该房间已有未关账的段则先按当前累计费用关掉它，
// 同一房间任意时刻至多一个开放段。
func (e *Engine) StartNewDetailRecord(roomID string, speed types.Speed) (*domain.ACDetailRecord, error) {
	if err := e.CloseCurrentDetailRecord(roomID); err != nil {
		return nil, err
	}
	timerID := e.tm.CreateDetailTimer(roomID, speed)
	rec := &domain.ACDetailRecord{
		RecordID:   uuid.NewString(),
		RoomID:     roomID,
		Speed:      speed,
		StartedAt:  time.Now(),
		RatePerMin: e.cfg.RateForSpeed(speed),
		TimerID:    timerID,
	}
	if logicStart, ok := e.logicSeconds(roomID); ok {
		rec.LogicStartSeconds = &logicStart
	}
	if err := e.store.AddDetailRecord(rec); err != nil {
		e.tm.CancelTimer(timerID)
		return nil, err
	}
	logger.Debug("房间 %s 开启详单段 %s，风速 %s", roomID, rec.RecordID, speed)
	return rec, nil
}

// CloseCurrentDetailRecord 关闭当前开放的详单段
//
// 段费用以关账瞬间详单计时器的累计值为准。无开放段时为幂等空操作。
func (e *Engine) CloseCurrentDetailRecord(roomID string) error {
	rec, err := e.store.GetActiveDetailRecord(roomID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	rec.FeeValue = e.tm.GetCurrentFee(rec.TimerID)
	now := time.Now()
	rec.EndedAt = &now
	if logicEnd, ok := e.logicSeconds(roomID); ok {
		rec.LogicEndSeconds = &logicEnd
	}
	e.tm.CancelTimer(rec.TimerID)
	if err := e.store.UpdateDetailRecord(rec); err != nil {
		return err
	}
	logger.Debug("房间 %s 关闭详单段 %s，费用 %.4f", roomID, rec.RecordID, rec.FeeValue)
	return nil
}

// CurrentOpenFee 返回当前开放详单段的累计费用，无开放段返回 0
func (e *Engine) CurrentOpenFee(roomID string) float64 {
	rec, err := e.store.GetActiveDetailRecord(roomID)
	if err != nil || rec == nil {
		return 0
	}
	return e.tm.GetCurrentFee(rec.TimerID)
}

// ListBillableRecords 返回本次入住期间已关账的详单段
//
// 以最近一次入住时刻为界过滤，上一位住客的历史详单不混入。
func (e *Engine) ListBillableRecords(roomID string) ([]*domain.ACDetailRecord, error) {
	order, err := e.store.GetLatestAccommodationOrder(roomID)
	if err != nil {
		return nil, err
	}
	records, err := e.store.ListCompletedDetailRecords(roomID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return records, nil
	}
	out := make([]*domain.ACDetailRecord, 0, len(records))
	for _, rec := range records {
		if !rec.StartedAt.Before(order.CheckInAt) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// AggregateToBill 汇总本次入住期间的详单为空调账单并落库
//
// 账单周期取详单段的边界：最早的开始时刻到最晚的结束时刻。
// 调用前应先关掉开放段，否则该段费用不计入本账单。
func (e *Engine) AggregateToBill(roomID string) (*domain.ACBill, error) {
	order, err := e.store.GetLatestAccommodationOrder(roomID)
	if err != nil {
		return nil, err
	}
	records, err := e.ListBillableRecords(roomID)
	if err != nil {
		return nil, err
	}
	bill := &domain.ACBill{
		BillID: uuid.NewString(),
		RoomID: roomID,
	}
	for _, rec := range records {
		if bill.PeriodStart.IsZero() || rec.StartedAt.Before(bill.PeriodStart) {
			bill.PeriodStart = rec.StartedAt
		}
		if rec.EndedAt != nil && rec.EndedAt.After(bill.PeriodEnd) {
			bill.PeriodEnd = *rec.EndedAt
		}
		bill.AddRecord(rec)
	}
	// 本次入住没有任何详单时退化为入住时刻到当前时刻的空账单
	if len(records) == 0 {
		bill.PeriodEnd = time.Now()
		if order != nil {
			bill.PeriodStart = order.CheckInAt
		} else {
			bill.PeriodStart = bill.PeriodEnd
		}
	}
	if err := e.store.AddACBill(bill); err != nil {
		return nil, err
	}
	logger.Info("房间 %s 生成空调账单 %s，共 %d 段，总费用 %.4f",
		roomID, bill.BillID, len(bill.Details), bill.TotalFee)
	return bill, nil
}

// logicSeconds 返回本次入住以来的逻辑秒数，没有入住计时器时返回 false
func (e *Engine) logicSeconds(roomID string) (int, bool) {
	timerID := e.tm.TimerIDForRoom(roomID, domain.TimerAccommodation)
	if timerID == "" {
		return 0, false
	}
	return e.tm.GetElapsedSeconds(timerID), true
}
