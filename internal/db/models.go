// internal/db/models.go

package db

import (
	"time"
)

// RoomModel 房间信息表
type RoomModel struct {
	RoomID            string `gorm:"primaryKey;type:varchar(64)"`
	Status            string `gorm:"type:varchar(16)"`
	CurrentTemp       float64
	TargetTemp        float64
	InitialTemp       float64
	Mode              string `gorm:"type:varchar(8)"`
	Speed             string `gorm:"type:varchar(8)"`
	IsServing         bool
	PoweredOn         bool
	ManualPoweredOff  bool
	RatePerNight      float64
	LastTempChangeAt  *time.Time `gorm:"type:datetime"`
	PendingTargetTemp *float64
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

func (RoomModel) TableName() string { return "rooms" }

// ServiceObjectModel 服务队列表
type ServiceObjectModel struct {
	RoomID            string `gorm:"primaryKey;type:varchar(64)"`
	Speed             string `gorm:"type:varchar(8)"`
	StartedAt         *time.Time
	PriorityToken     int
	TimeSliceEnforced bool
	Status            string `gorm:"type:varchar(16)"`
	TimerID           string `gorm:"type:varchar(64)"`
}

func (ServiceObjectModel) TableName() string { return "service_queue" }

// WaitEntryModel 等待队列表
type WaitEntryModel struct {
	RoomID            string `gorm:"primaryKey;type:varchar(64)"`
	Speed             string `gorm:"type:varchar(8)"`
	StartedAt         *time.Time
	PriorityToken     int
	TimeSliceEnforced bool
	Status            string `gorm:"type:varchar(16)"`
	TimerID           string `gorm:"type:varchar(64)"`
}

func (WaitEntryModel) TableName() string { return "wait_queue" }

// DetailRecordModel 空调详单表
type DetailRecordModel struct {
	RecordID          string `gorm:"primaryKey;type:varchar(64)"`
	RoomID            string `gorm:"index;type:varchar(64)"`
	Speed             string `gorm:"type:varchar(8)"`
	StartedAt         time.Time
	EndedAt           *time.Time
	LogicStartSeconds *int
	LogicEndSeconds   *int
	RatePerMin        float64
	FeeValue          float64
	TimerID           string `gorm:"type:varchar(64)"`
}

func (DetailRecordModel) TableName() string { return "ac_details" }

// ACBillModel 空调账单表
type ACBillModel struct {
	BillID      string `gorm:"primaryKey;type:varchar(64)"`
	RoomID      string `gorm:"index;type:varchar(64)"`
	PeriodStart time.Time
	PeriodEnd   time.Time
	TotalFee    float64
}

func (ACBillModel) TableName() string { return "ac_bills" }

// AccommodationOrderModel 住宿订单表
type AccommodationOrderModel struct {
	OrderID    string `gorm:"primaryKey;type:varchar(64)"`
	RoomID     string `gorm:"index;type:varchar(64)"`
	CustID     string `gorm:"type:varchar(64)"`
	CustName   string `gorm:"type:varchar(64)"`
	GuestCount int
	Deposit    float64
	CheckInAt  time.Time
	TimerID    string `gorm:"type:varchar(64)"`
}

func (AccommodationOrderModel) TableName() string { return "accommodation_orders" }

// AccommodationBillModel 住宿账单表
type AccommodationBillModel struct {
	BillID       string `gorm:"primaryKey;type:varchar(64)"`
	OrderID      string `gorm:"type:varchar(64)"`
	RoomID       string `gorm:"index;type:varchar(64)"`
	CheckInAt    time.Time
	CheckOutAt   time.Time
	Nights       int
	RatePerNight float64
	TotalFee     float64
}

func (AccommodationBillModel) TableName() string { return "accommodation_bills" }

// MealOrderModel 订餐订单表，Items 序列化为 JSON 文本
type MealOrderModel struct {
	OrderID   string `gorm:"primaryKey;type:varchar(64)"`
	RoomID    string `gorm:"index;type:varchar(64)"`
	ItemsJSON string `gorm:"type:text"`
	TotalFee  float64
	Note      string `gorm:"type:varchar(255)"`
	CreatedAt time.Time
}

func (MealOrderModel) TableName() string { return "meal_orders" }

// TimerRecordModel 计时器脚手架表
type TimerRecordModel struct {
	TimerID           string `gorm:"primaryKey;type:varchar(64)"`
	Kind              string `gorm:"type:varchar(16)"`
	RoomID            string `gorm:"index;type:varchar(64)"`
	Speed             string `gorm:"type:varchar(8)"`
	ElapsedSeconds    int
	RemainingSeconds  int
	CurrentFee        float64
	TimeSliceEnforced bool
}

func (TimerRecordModel) TableName() string { return "timer_records" }
