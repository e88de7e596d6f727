// internal/db/sqlite.go

package db

import (
	"encoding/json"
	"errors"
	"time"

	"backend/internal/domain"
	"backend/internal/types"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteStore 基于 gorm + sqlite 的持久化仓储
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLite 打开（或创建）sqlite 数据库并迁移表结构
func OpenSQLite(path string) (*SQLiteStore, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, types.WrapTransient("连接数据库失败", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, types.WrapTransient("获取底层连接失败", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := gdb.AutoMigrate(
		&RoomModel{},
		&ServiceObjectModel{},
		&WaitEntryModel{},
		&DetailRecordModel{},
		&ACBillModel{},
		&AccommodationOrderModel{},
		&AccommodationBillModel{},
		&MealOrderModel{},
		&TimerRecordModel{},
	); err != nil {
		return nil, types.WrapTransient("迁移表结构失败", err)
	}
	return &SQLiteStore{db: gdb}, nil
}

// 房间 --------------------------------------------------------------------

func (s *SQLiteStore) GetRoom(roomID string) (*domain.Room, error) {
	var model RoomModel
	err := s.db.Where("room_id = ?", roomID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFoundf("房间 %s 不存在", roomID)
		}
		return nil, types.WrapTransient("查询房间失败", err)
	}
	return roomFromModel(&model), nil
}

func (s *SQLiteStore) ListRooms() ([]*domain.Room, error) {
	var models []RoomModel
	if err := s.db.Order("room_id asc").Find(&models).Error; err != nil {
		return nil, types.WrapTransient("查询房间列表失败", err)
	}
	out := make([]*domain.Room, 0, len(models))
	for i := range models {
		out = append(out, roomFromModel(&models[i]))
	}
	return out, nil
}

func (s *SQLiteStore) SaveRoom(room *domain.Room) error {
	model := roomToModel(room)
	if err := s.db.Save(model).Error; err != nil {
		return types.WrapTransient("保存房间失败", err)
	}
	return nil
}

func roomToModel(r *domain.Room) *RoomModel {
	return &RoomModel{
		RoomID:            r.RoomID,
		Status:            string(r.Status),
		CurrentTemp:       r.CurrentTemp,
		TargetTemp:        r.TargetTemp,
		InitialTemp:       r.InitialTemp,
		Mode:              string(r.Mode),
		Speed:             string(r.Speed),
		IsServing:         r.IsServing,
		PoweredOn:         r.PoweredOn,
		ManualPoweredOff:  r.ManualPoweredOff,
		RatePerNight:      r.RatePerNight,
		LastTempChangeAt:  r.LastTempChangeAt,
		PendingTargetTemp: r.PendingTargetTemp,
	}
}

func roomFromModel(m *RoomModel) *domain.Room {
	return &domain.Room{
		RoomID:            m.RoomID,
		Status:            domain.RoomStatus(m.Status),
		CurrentTemp:       m.CurrentTemp,
		TargetTemp:        m.TargetTemp,
		InitialTemp:       m.InitialTemp,
		Mode:              types.Mode(m.Mode),
		Speed:             types.Speed(m.Speed),
		IsServing:         m.IsServing,
		PoweredOn:         m.PoweredOn,
		ManualPoweredOff:  m.ManualPoweredOff,
		RatePerNight:      m.RatePerNight,
		LastTempChangeAt:  m.LastTempChangeAt,
		PendingTargetTemp: m.PendingTargetTemp,
	}
}

// 服务队列 ----------------------------------------------------------------

func serviceToModel(o *domain.ServiceObject) *ServiceObjectModel {
	return &ServiceObjectModel{
		RoomID:            o.RoomID,
		Speed:             string(o.Speed),
		StartedAt:         o.StartedAt,
		PriorityToken:     o.PriorityToken,
		TimeSliceEnforced: o.TimeSliceEnforced,
		Status:            string(o.Status),
		TimerID:           o.TimerID,
	}
}

func serviceFromModel(m *ServiceObjectModel) *domain.ServiceObject {
	return &domain.ServiceObject{
		RoomID:            m.RoomID,
		Speed:             types.Speed(m.Speed),
		StartedAt:         m.StartedAt,
		PriorityToken:     m.PriorityToken,
		TimeSliceEnforced: m.TimeSliceEnforced,
		Status:            domain.ServiceStatus(m.Status),
		TimerID:           m.TimerID,
	}
}

func (s *SQLiteStore) AddServiceObject(obj *domain.ServiceObject) error {
	if err := s.db.Save(serviceToModel(obj)).Error; err != nil {
		return types.WrapTransient("写入服务队列失败", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateServiceObject(obj *domain.ServiceObject) error {
	return s.AddServiceObject(obj)
}

func (s *SQLiteStore) RemoveServiceObject(roomID string) error {
	if err := s.db.Where("room_id = ?", roomID).Delete(&ServiceObjectModel{}).Error; err != nil {
		return types.WrapTransient("移出服务队列失败", err)
	}
	return nil
}

func (s *SQLiteStore) GetServiceObject(roomID string) (*domain.ServiceObject, error) {
	var model ServiceObjectModel
	err := s.db.Where("room_id = ?", roomID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, types.WrapTransient("查询服务队列失败", err)
	}
	return serviceFromModel(&model), nil
}

func (s *SQLiteStore) ListServiceObjects() ([]*domain.ServiceObject, error) {
	var models []ServiceObjectModel
	if err := s.db.Order("room_id asc").Find(&models).Error; err != nil {
		return nil, types.WrapTransient("查询服务队列失败", err)
	}
	out := make([]*domain.ServiceObject, 0, len(models))
	for i := range models {
		out = append(out, serviceFromModel(&models[i]))
	}
	return out, nil
}

func (s *SQLiteStore) ServiceQueueSize() (int, error) {
	var count int64
	if err := s.db.Model(&ServiceObjectModel{}).Count(&count).Error; err != nil {
		return 0, types.WrapTransient("统计服务队列失败", err)
	}
	return int(count), nil
}

func (s *SQLiteStore) ClearServiceQueue() error {
	if err := s.db.Where("1 = 1").Delete(&ServiceObjectModel{}).Error; err != nil {
		return types.WrapTransient("清空服务队列失败", err)
	}
	return nil
}

// 等待队列 ----------------------------------------------------------------

func waitToModel(o *domain.ServiceObject) *WaitEntryModel {
	return &WaitEntryModel{
		RoomID:            o.RoomID,
		Speed:             string(o.Speed),
		StartedAt:         o.StartedAt,
		PriorityToken:     o.PriorityToken,
		TimeSliceEnforced: o.TimeSliceEnforced,
		Status:            string(o.Status),
		TimerID:           o.TimerID,
	}
}

func waitFromModel(m *WaitEntryModel) *domain.ServiceObject {
	return &domain.ServiceObject{
		RoomID:            m.RoomID,
		Speed:             types.Speed(m.Speed),
		StartedAt:         m.StartedAt,
		PriorityToken:     m.PriorityToken,
		TimeSliceEnforced: m.TimeSliceEnforced,
		Status:            domain.ServiceStatus(m.Status),
		TimerID:           m.TimerID,
	}
}

func (s *SQLiteStore) AddWaitEntry(obj *domain.ServiceObject) error {
	if err := s.db.Save(waitToModel(obj)).Error; err != nil {
		return types.WrapTransient("写入等待队列失败", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateWaitEntry(obj *domain.ServiceObject) error {
	return s.AddWaitEntry(obj)
}

func (s *SQLiteStore) RemoveWaitEntry(roomID string) error {
	if err := s.db.Where("room_id = ?", roomID).Delete(&WaitEntryModel{}).Error; err != nil {
		return types.WrapTransient("移出等待队列失败", err)
	}
	return nil
}

func (s *SQLiteStore) GetWaitEntry(roomID string) (*domain.ServiceObject, error) {
	var model WaitEntryModel
	err := s.db.Where("room_id = ?", roomID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, types.WrapTransient("查询等待队列失败", err)
	}
	return waitFromModel(&model), nil
}

func (s *SQLiteStore) ListWaitEntries() ([]*domain.ServiceObject, error) {
	var models []WaitEntryModel
	if err := s.db.Order("room_id asc").Find(&models).Error; err != nil {
		return nil, types.WrapTransient("查询等待队列失败", err)
	}
	out := make([]*domain.ServiceObject, 0, len(models))
	for i := range models {
		out = append(out, waitFromModel(&models[i]))
	}
	return out, nil
}

func (s *SQLiteStore) WaitQueueSize() (int, error) {
	var count int64
	if err := s.db.Model(&WaitEntryModel{}).Count(&count).Error; err != nil {
		return 0, types.WrapTransient("统计等待队列失败", err)
	}
	return int(count), nil
}

func (s *SQLiteStore) ClearWaitQueue() error {
	if err := s.db.Where("1 = 1").Delete(&WaitEntryModel{}).Error; err != nil {
		return types.WrapTransient("清空等待队列失败", err)
	}
	return nil
}

// 空调详单 ----------------------------------------------------------------

func detailToModel(r *domain.ACDetailRecord) *DetailRecordModel {
	return &DetailRecordModel{
		RecordID:          r.RecordID,
		RoomID:            r.RoomID,
		Speed:             string(r.Speed),
		StartedAt:         r.StartedAt,
		EndedAt:           r.EndedAt,
		LogicStartSeconds: r.LogicStartSeconds,
		LogicEndSeconds:   r.LogicEndSeconds,
		RatePerMin:        r.RatePerMin,
		FeeValue:          r.FeeValue,
		TimerID:           r.TimerID,
	}
}

func detailFromModel(m *DetailRecordModel) *domain.ACDetailRecord {
	return &domain.ACDetailRecord{
		RecordID:          m.RecordID,
		RoomID:            m.RoomID,
		Speed:             types.Speed(m.Speed),
		StartedAt:         m.StartedAt,
		EndedAt:           m.EndedAt,
		LogicStartSeconds: m.LogicStartSeconds,
		LogicEndSeconds:   m.LogicEndSeconds,
		RatePerMin:        m.RatePerMin,
		FeeValue:          m.FeeValue,
		TimerID:           m.TimerID,
	}
}

func (s *SQLiteStore) AddDetailRecord(rec *domain.ACDetailRecord) error {
	if err := s.db.Create(detailToModel(rec)).Error; err != nil {
		return types.WrapTransient("创建详单失败", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateDetailRecord(rec *domain.ACDetailRecord) error {
	if err := s.db.Save(detailToModel(rec)).Error; err != nil {
		return types.WrapTransient("更新详单失败", err)
	}
	return nil
}

func (s *SQLiteStore) GetActiveDetailRecord(roomID string) (*domain.ACDetailRecord, error) {
	var model DetailRecordModel
	err := s.db.Where("room_id = ? AND ended_at IS NULL", roomID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, types.WrapTransient("查询打开详单失败", err)
	}
	return detailFromModel(&model), nil
}

func (s *SQLiteStore) ListCompletedDetailRecords(roomID string) ([]*domain.ACDetailRecord, error) {
	var models []DetailRecordModel
	err := s.db.Where("room_id = ? AND ended_at IS NOT NULL", roomID).
		Order("started_at asc").
		Find(&models).Error
	if err != nil {
		return nil, types.WrapTransient("查询已关闭详单失败", err)
	}
	out := make([]*domain.ACDetailRecord, 0, len(models))
	for i := range models {
		out = append(out, detailFromModel(&models[i]))
	}
	return out, nil
}

// 账单 --------------------------------------------------------------------

func (s *SQLiteStore) AddACBill(bill *domain.ACBill) error {
	model := &ACBillModel{
		BillID:      bill.BillID,
		RoomID:      bill.RoomID,
		PeriodStart: bill.PeriodStart,
		PeriodEnd:   bill.PeriodEnd,
		TotalFee:    bill.TotalFee,
	}
	if err := s.db.Create(model).Error; err != nil {
		return types.WrapTransient("创建空调账单失败", err)
	}
	return nil
}

func (s *SQLiteStore) ListACBills(roomID string) ([]*domain.ACBill, error) {
	var models []ACBillModel
	if err := s.db.Where("room_id = ?", roomID).Order("period_start asc").Find(&models).Error; err != nil {
		return nil, types.WrapTransient("查询空调账单失败", err)
	}
	out := make([]*domain.ACBill, 0, len(models))
	for _, m := range models {
		bill := &domain.ACBill{
			BillID:      m.BillID,
			RoomID:      m.RoomID,
			PeriodStart: m.PeriodStart,
			PeriodEnd:   m.PeriodEnd,
			TotalFee:    m.TotalFee,
		}
		// 详单按账期范围回填
		var details []DetailRecordModel
		if err := s.db.Where("room_id = ? AND started_at >= ? AND started_at <= ?",
			roomID, m.PeriodStart, m.PeriodEnd).
			Order("started_at asc").Find(&details).Error; err == nil {
			for i := range details {
				bill.Details = append(bill.Details, detailFromModel(&details[i]))
			}
		}
		out = append(out, bill)
	}
	return out, nil
}

func (s *SQLiteStore) AddAccommodationBill(bill *domain.AccommodationBill) error {
	model := &AccommodationBillModel{
		BillID:       bill.BillID,
		OrderID:      bill.OrderID,
		RoomID:       bill.RoomID,
		CheckInAt:    bill.CheckInAt,
		CheckOutAt:   bill.CheckOutAt,
		Nights:       bill.Nights,
		RatePerNight: bill.RatePerNight,
		TotalFee:     bill.TotalFee,
	}
	if err := s.db.Create(model).Error; err != nil {
		return types.WrapTransient("创建住宿账单失败", err)
	}
	return nil
}

func (s *SQLiteStore) GetLatestAccommodationBill(roomID string) (*domain.AccommodationBill, error) {
	var model AccommodationBillModel
	err := s.db.Where("room_id = ?", roomID).Order("check_out_at desc").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, types.WrapTransient("查询住宿账单失败", err)
	}
	return &domain.AccommodationBill{
		BillID:       model.BillID,
		OrderID:      model.OrderID,
		RoomID:       model.RoomID,
		CheckInAt:    model.CheckInAt,
		CheckOutAt:   model.CheckOutAt,
		Nights:       model.Nights,
		RatePerNight: model.RatePerNight,
		TotalFee:     model.TotalFee,
	}, nil
}

// 住宿订单 ----------------------------------------------------------------

func (s *SQLiteStore) AddAccommodationOrder(order *domain.AccommodationOrder) error {
	model := &AccommodationOrderModel{
		OrderID:    order.OrderID,
		RoomID:     order.RoomID,
		CustID:     order.CustID,
		CustName:   order.CustName,
		GuestCount: order.GuestCount,
		Deposit:    order.Deposit,
		CheckInAt:  order.CheckInAt,
		TimerID:    order.TimerID,
	}
	if err := s.db.Create(model).Error; err != nil {
		return types.WrapTransient("创建住宿订单失败", err)
	}
	return nil
}

func (s *SQLiteStore) GetLatestAccommodationOrder(roomID string) (*domain.AccommodationOrder, error) {
	var model AccommodationOrderModel
	err := s.db.Where("room_id = ?", roomID).Order("check_in_at desc").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, types.WrapTransient("查询住宿订单失败", err)
	}
	return &domain.AccommodationOrder{
		OrderID:    model.OrderID,
		RoomID:     model.RoomID,
		CustID:     model.CustID,
		CustName:   model.CustName,
		GuestCount: model.GuestCount,
		Deposit:    model.Deposit,
		CheckInAt:  model.CheckInAt,
		TimerID:    model.TimerID,
	}, nil
}

// 客房订餐 ----------------------------------------------------------------

func (s *SQLiteStore) AddMealOrder(order *domain.MealOrder) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return types.Internalf("序列化订餐条目失败: %v", err)
	}
	model := &MealOrderModel{
		OrderID:   order.OrderID,
		RoomID:    order.RoomID,
		ItemsJSON: string(items),
		TotalFee:  order.TotalFee,
		Note:      order.Note,
		CreatedAt: order.CreatedAt,
	}
	if err := s.db.Create(model).Error; err != nil {
		return types.WrapTransient("创建订餐订单失败", err)
	}
	return nil
}

func (s *SQLiteStore) ListMealOrders(roomID string, since *time.Time) ([]*domain.MealOrder, error) {
	query := s.db.Where("room_id = ?", roomID)
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}
	var models []MealOrderModel
	if err := query.Order("created_at asc").Find(&models).Error; err != nil {
		return nil, types.WrapTransient("查询订餐订单失败", err)
	}
	out := make([]*domain.MealOrder, 0, len(models))
	for _, m := range models {
		order := &domain.MealOrder{
			OrderID:   m.OrderID,
			RoomID:    m.RoomID,
			TotalFee:  m.TotalFee,
			Note:      m.Note,
			CreatedAt: m.CreatedAt,
		}
		if m.ItemsJSON != "" {
			_ = json.Unmarshal([]byte(m.ItemsJSON), &order.Items)
		}
		out = append(out, order)
	}
	return out, nil
}

func (s *SQLiteStore) GetMealTotalFee(roomID string, since *time.Time) (float64, error) {
	orders, err := s.ListMealOrders(roomID, since)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, order := range orders {
		total += order.TotalFee
	}
	return total, nil
}

// 计时器脚手架 -------------------------------------------------------------

func (s *SQLiteStore) SaveTimerRecord(rec *domain.TimerRecord) error {
	model := &TimerRecordModel{
		TimerID:           rec.TimerID,
		Kind:              string(rec.Kind),
		RoomID:            rec.RoomID,
		Speed:             string(rec.Speed),
		ElapsedSeconds:    rec.ElapsedSeconds,
		RemainingSeconds:  rec.RemainingSeconds,
		CurrentFee:        rec.CurrentFee,
		TimeSliceEnforced: rec.TimeSliceEnforced,
	}
	if err := s.db.Save(model).Error; err != nil {
		return types.WrapTransient("保存计时器状态失败", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteTimerRecord(timerID string) error {
	if err := s.db.Where("timer_id = ?", timerID).Delete(&TimerRecordModel{}).Error; err != nil {
		return types.WrapTransient("删除计时器状态失败", err)
	}
	return nil
}

func (s *SQLiteStore) ListTimerRecords() ([]*domain.TimerRecord, error) {
	var models []TimerRecordModel
	if err := s.db.Find(&models).Error; err != nil {
		return nil, types.WrapTransient("查询计时器状态失败", err)
	}
	out := make([]*domain.TimerRecord, 0, len(models))
	for _, m := range models {
		out = append(out, &domain.TimerRecord{
			TimerID:           m.TimerID,
			Kind:              domain.TimerKind(m.Kind),
			RoomID:            m.RoomID,
			Speed:             types.Speed(m.Speed),
			ElapsedSeconds:    m.ElapsedSeconds,
			RemainingSeconds:  m.RemainingSeconds,
			CurrentFee:        m.CurrentFee,
			TimeSliceEnforced: m.TimeSliceEnforced,
		})
	}
	return out, nil
}

var _ Repository = (*SQLiteStore)(nil)
