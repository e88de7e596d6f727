// internal/service/meal.go

package service

import (
	"time"

	"backend/internal/db"
	"backend/internal/domain"
	"backend/internal/logger"
	"backend/internal/types"

	"github.com/google/uuid"
)

// MealService 客房订餐用例
type MealService struct {
	store db.Repository
}

// NewMealService 创建订餐服务
func NewMealService(store db.Repository) *MealService {
	return &MealService{store: store}
}

// CreateOrder 提交订餐订单，总价 = Σ 单价 × 数量
func (m *MealService) CreateOrder(roomID string, items []domain.MealItem, note string) (*domain.MealOrder, error) {
	if len(items) == 0 {
		return nil, types.InvalidArgumentf("订单不能为空")
	}
	total := 0.0
	for _, item := range items {
		if item.Qty <= 0 {
			return nil, types.InvalidArgumentf("菜品 %s 数量必须为正", item.Name)
		}
		if item.Price < 0 {
			return nil, types.InvalidArgumentf("菜品 %s 单价不能为负", item.Name)
		}
		total += item.Price * float64(item.Qty)
	}
	order := &domain.MealOrder{
		OrderID:   uuid.NewString(),
		RoomID:    roomID,
		Items:     items,
		TotalFee:  total,
		Note:      note,
		CreatedAt: time.Now(),
	}
	if err := m.store.AddMealOrder(order); err != nil {
		return nil, err
	}
	logger.Info("房间 %s 订餐 %d 项，合计 %.2f", roomID, len(items), total)
	return order, nil
}

// ListOrders 本次入住期间的订餐记录及总额
func (m *MealService) ListOrders(roomID string) ([]*domain.MealOrder, float64, error) {
	var since *time.Time
	order, err := m.store.GetLatestAccommodationOrder(roomID)
	if err != nil {
		return nil, 0, err
	}
	if order != nil {
		since = &order.CheckInAt
	}
	orders, err := m.store.ListMealOrders(roomID, since)
	if err != nil {
		return nil, 0, err
	}
	total := 0.0
	for _, o := range orders {
		total += o.TotalFee
	}
	return orders, total, nil
}
