// internal/db/memory.go

package db

import (
	"sort"
	"sync"
	"time"

	"backend/internal/domain"
	"backend/internal/types"
)

// MemoryStore 纯内存仓储实现，测试与单机运行用
//
// 读写都在同一把读写锁下，返回值一律为拷贝，
// 调用方持有的对象不会被后续写入悄悄改掉。
type MemoryStore struct {
	mu sync.RWMutex

	rooms        map[string]*domain.Room
	serviceQueue map[string]*domain.ServiceObject
	waitQueue    map[string]*domain.ServiceObject
	details      map[string]*domain.ACDetailRecord // record_id -> record
	acBills      []*domain.ACBill
	accomOrders  []*domain.AccommodationOrder
	accomBills   []*domain.AccommodationBill
	mealOrders   []*domain.MealOrder
	timers       map[string]*domain.TimerRecord
}

// NewMemoryStore 创建空的内存仓储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:        make(map[string]*domain.Room),
		serviceQueue: make(map[string]*domain.ServiceObject),
		waitQueue:    make(map[string]*domain.ServiceObject),
		details:      make(map[string]*domain.ACDetailRecord),
		timers:       make(map[string]*domain.TimerRecord),
	}
}

// 房间 --------------------------------------------------------------------

func (m *MemoryStore) GetRoom(roomID string) (*domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, types.NotFoundf("房间 %s 不存在", roomID)
	}
	return room.Clone(), nil
}

func (m *MemoryStore) ListRooms() ([]*domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		out = append(out, room.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out, nil
}

func (m *MemoryStore) SaveRoom(room *domain.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.RoomID] = room.Clone()
	return nil
}

// 服务队列 ----------------------------------------------------------------

func (m *MemoryStore) AddServiceObject(obj *domain.ServiceObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serviceQueue[obj.RoomID] = obj.Clone()
	return nil
}

func (m *MemoryStore) UpdateServiceObject(obj *domain.ServiceObject) error {
	return m.AddServiceObject(obj)
}

func (m *MemoryStore) RemoveServiceObject(roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.serviceQueue, roomID)
	return nil
}

func (m *MemoryStore) GetServiceObject(roomID string) (*domain.ServiceObject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.serviceQueue[roomID]
	if !ok {
		return nil, nil
	}
	return obj.Clone(), nil
}

func (m *MemoryStore) ListServiceObjects() ([]*domain.ServiceObject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneQueue(m.serviceQueue), nil
}

func (m *MemoryStore) ServiceQueueSize() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.serviceQueue), nil
}

func (m *MemoryStore) ClearServiceQueue() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serviceQueue = make(map[string]*domain.ServiceObject)
	return nil
}

// 等待队列 ----------------------------------------------------------------

func (m *MemoryStore) AddWaitEntry(obj *domain.ServiceObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waitQueue[obj.RoomID] = obj.Clone()
	return nil
}

func (m *MemoryStore) UpdateWaitEntry(obj *domain.ServiceObject) error {
	return m.AddWaitEntry(obj)
}

func (m *MemoryStore) RemoveWaitEntry(roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.waitQueue, roomID)
	return nil
}

func (m *MemoryStore) GetWaitEntry(roomID string) (*domain.ServiceObject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.waitQueue[roomID]
	if !ok {
		return nil, nil
	}
	return obj.Clone(), nil
}

func (m *MemoryStore) ListWaitEntries() ([]*domain.ServiceObject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneQueue(m.waitQueue), nil
}

func (m *MemoryStore) WaitQueueSize() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.waitQueue), nil
}

func (m *MemoryStore) ClearWaitQueue() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waitQueue = make(map[string]*domain.ServiceObject)
	return nil
}

func cloneQueue(q map[string]*domain.ServiceObject) []*domain.ServiceObject {
	out := make([]*domain.ServiceObject, 0, len(q))
	for _, obj := range q {
		out = append(out, obj.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// 空调详单 ----------------------------------------------------------------

func (m *MemoryStore) AddDetailRecord(rec *domain.ACDetailRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[rec.RecordID] = rec.Clone()
	return nil
}

func (m *MemoryStore) UpdateDetailRecord(rec *domain.ACDetailRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.details[rec.RecordID]; !ok {
		return types.NotFoundf("详单 %s 不存在", rec.RecordID)
	}
	m.details[rec.RecordID] = rec.Clone()
	return nil
}

func (m *MemoryStore) GetActiveDetailRecord(roomID string) (*domain.ACDetailRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.details {
		if rec.RoomID == roomID && rec.IsOpen() {
			return rec.Clone(), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListCompletedDetailRecords(roomID string) ([]*domain.ACDetailRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.ACDetailRecord, 0)
	for _, rec := range m.details {
		if rec.RoomID == roomID && !rec.IsOpen() {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// 账单 --------------------------------------------------------------------

func (m *MemoryStore) AddACBill(bill *domain.ACBill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acBills = append(m.acBills, bill)
	return nil
}

func (m *MemoryStore) ListACBills(roomID string) ([]*domain.ACBill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.ACBill, 0)
	for _, bill := range m.acBills {
		if bill.RoomID == roomID {
			out = append(out, bill)
		}
	}
	return out, nil
}

func (m *MemoryStore) AddAccommodationBill(bill *domain.AccommodationBill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accomBills = append(m.accomBills, bill)
	return nil
}

func (m *MemoryStore) GetLatestAccommodationBill(roomID string) (*domain.AccommodationBill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *domain.AccommodationBill
	for _, bill := range m.accomBills {
		if bill.RoomID != roomID {
			continue
		}
		if latest == nil || bill.CheckOutAt.After(latest.CheckOutAt) {
			latest = bill
		}
	}
	return latest, nil
}

// 住宿订单 ----------------------------------------------------------------

func (m *MemoryStore) AddAccommodationOrder(order *domain.AccommodationOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accomOrders = append(m.accomOrders, order)
	return nil
}

func (m *MemoryStore) GetLatestAccommodationOrder(roomID string) (*domain.AccommodationOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *domain.AccommodationOrder
	for _, order := range m.accomOrders {
		if order.RoomID != roomID {
			continue
		}
		if latest == nil || order.CheckInAt.After(latest.CheckInAt) {
			latest = order
		}
	}
	return latest, nil
}

// 客房订餐 ----------------------------------------------------------------

func (m *MemoryStore) AddMealOrder(order *domain.MealOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mealOrders = append(m.mealOrders, order)
	return nil
}

func (m *MemoryStore) ListMealOrders(roomID string, since *time.Time) ([]*domain.MealOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.MealOrder, 0)
	for _, order := range m.mealOrders {
		if order.RoomID != roomID {
			continue
		}
		if since != nil && order.CreatedAt.Before(*since) {
			continue
		}
		out = append(out, order)
	}
	return out, nil
}

func (m *MemoryStore) GetMealTotalFee(roomID string, since *time.Time) (float64, error) {
	orders, err := m.ListMealOrders(roomID, since)
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

func (m *MemoryStore) SaveTimerRecord(rec *domain.TimerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.timers[rec.TimerID] = &cp
	return nil
}

func (m *MemoryStore) DeleteTimerRecord(timerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timers, timerID)
	return nil
}

func (m *MemoryStore) ListTimerRecords() ([]*domain.TimerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.TimerRecord, 0, len(m.timers))
	for _, rec := range m.timers {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

var _ Repository = (*MemoryStore)(nil)
