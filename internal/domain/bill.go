// internal/domain/bill.go

package domain

import "time"

// ACBill 空调账单：本次入住期间所有已关闭详单的汇总
type ACBill struct {
	BillID      string
	RoomID      string
	PeriodStart time.Time
	PeriodEnd   time.Time
	TotalFee    float64
	Details     []*ACDetailRecord
}

// AddRecord 追加一条详单并累计费用
func (b *ACBill) AddRecord(rec *ACDetailRecord) {
	b.Details = append(b.Details, rec)
	b.TotalFee += rec.FeeValue
}

// AccommodationOrder 住宿订单，入住时创建
type AccommodationOrder struct {
	OrderID    string
	RoomID     string
	CustID     string
	CustName   string
	GuestCount int
	Deposit    float64
	CheckInAt  time.Time
	TimerID    string // 入住计时器句柄
}

// AccommodationBill 住宿账单，退房时按晚结算
type AccommodationBill struct {
	BillID       string
	OrderID      string
	RoomID       string
	CheckInAt    time.Time
	CheckOutAt   time.Time
	Nights       int
	RatePerNight float64
	TotalFee     float64
}

// MealItem 客房订餐条目
type MealItem struct {
	ID    string
	Name  string
	Price float64
	Qty   int
}

// MealOrder 客房订餐订单
type MealOrder struct {
	OrderID   string
	RoomID    string
	Items     []MealItem
	TotalFee  float64
	Note      string
	CreatedAt time.Time
}
