// internal/db/repository.go
// Package db 提供统一的仓储契约以及内存 / sqlite 两套实现
package db

import (
	"time"

	"backend/internal/domain"
)

// Repository 统一仓储契约，内存实现与 sqlite 实现共用同一 API
//
// 所有实现必须内部线程安全：监控读取不得阻塞调度写入。
type Repository interface {
	// 房间 ----------------------------------------------------------------
	GetRoom(roomID string) (*domain.Room, error)
	ListRooms() ([]*domain.Room, error)
	SaveRoom(room *domain.Room) error

	// 服务队列 ------------------------------------------------------------
	AddServiceObject(obj *domain.ServiceObject) error
	UpdateServiceObject(obj *domain.ServiceObject) error
	RemoveServiceObject(roomID string) error
	GetServiceObject(roomID string) (*domain.ServiceObject, error)
	ListServiceObjects() ([]*domain.ServiceObject, error)
	ServiceQueueSize() (int, error)
	ClearServiceQueue() error

	// 等待队列 ------------------------------------------------------------
	AddWaitEntry(obj *domain.ServiceObject) error
	UpdateWaitEntry(obj *domain.ServiceObject) error
	RemoveWaitEntry(roomID string) error
	GetWaitEntry(roomID string) (*domain.ServiceObject, error)
	ListWaitEntries() ([]*domain.ServiceObject, error)
	WaitQueueSize() (int, error)
	ClearWaitQueue() error

	// 空调详单 ------------------------------------------------------------
	AddDetailRecord(rec *domain.ACDetailRecord) error
	UpdateDetailRecord(rec *domain.ACDetailRecord) error
	GetActiveDetailRecord(roomID string) (*domain.ACDetailRecord, error)
	ListCompletedDetailRecords(roomID string) ([]*domain.ACDetailRecord, error)

	// 账单 ----------------------------------------------------------------
	AddACBill(bill *domain.ACBill) error
	ListACBills(roomID string) ([]*domain.ACBill, error)
	AddAccommodationBill(bill *domain.AccommodationBill) error
	GetLatestAccommodationBill(roomID string) (*domain.AccommodationBill, error)

	// 住宿订单 ------------------------------------------------------------
	AddAccommodationOrder(order *domain.AccommodationOrder) error
	GetLatestAccommodationOrder(roomID string) (*domain.AccommodationOrder, error)

	// 客房订餐 ------------------------------------------------------------
	AddMealOrder(order *domain.MealOrder) error
	ListMealOrders(roomID string, since *time.Time) ([]*domain.MealOrder, error)
	GetMealTotalFee(roomID string, since *time.Time) (float64, error)

	// 计时器脚手架（进程重启后恢复 live 计时器用） ---------------------------
	SaveTimerRecord(rec *domain.TimerRecord) error
	DeleteTimerRecord(timerID string) error
	ListTimerRecords() ([]*domain.TimerRecord, error)
}
