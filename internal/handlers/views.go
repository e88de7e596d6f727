// internal/handlers/views.go
// 领域对象到 JSON 视图的映射，接口层专用

package handlers

import (
	"time"

	"backend/internal/domain"
	"backend/internal/monitor"
	"backend/internal/service"
)

type roomView struct {
	RoomID           string   `json:"roomId"`
	Status           string   `json:"status"`
	CurrentTemp      float64  `json:"currentTemp"`
	TargetTemp       float64  `json:"targetTemp"`
	InitialTemp      float64  `json:"initialTemp"`
	Mode             string   `json:"mode"`
	Speed            string   `json:"speed"`
	IsServing        bool     `json:"isServing"`
	PoweredOn        bool     `json:"poweredOn"`
	ManualPoweredOff bool     `json:"manualPoweredOff"`
	RatePerNight     float64  `json:"ratePerNight"`
	PendingTarget    *float64 `json:"pendingTargetTemp,omitempty"`
}

func toRoomView(r *domain.Room) roomView {
	return roomView{
		RoomID:           r.RoomID,
		Status:           string(r.Status),
		CurrentTemp:      r.CurrentTemp,
		TargetTemp:       r.TargetTemp,
		InitialTemp:      r.InitialTemp,
		Mode:             string(r.Mode),
		Speed:            string(r.Speed),
		IsServing:        r.IsServing,
		PoweredOn:        r.PoweredOn,
		ManualPoweredOff: r.ManualPoweredOff,
		RatePerNight:     r.RatePerNight,
		PendingTarget:    r.PendingTargetTemp,
	}
}

type detailView struct {
	RecordID   string  `json:"recordId"`
	RoomID     string  `json:"roomId"`
	Speed      string  `json:"speed"`
	StartedAt  string  `json:"startedAt"`
	EndedAt    *string `json:"endedAt"`
	RatePerMin float64 `json:"ratePerMin"`
	FeeValue   float64 `json:"feeValue"`
}

func toDetailView(rec *domain.ACDetailRecord) detailView {
	v := detailView{
		RecordID:   rec.RecordID,
		RoomID:     rec.RoomID,
		Speed:      string(rec.Speed),
		StartedAt:  rec.StartedAt.Format(time.RFC3339),
		RatePerMin: rec.RatePerMin,
		FeeValue:   rec.FeeValue,
	}
	if rec.EndedAt != nil {
		s := rec.EndedAt.Format(time.RFC3339)
		v.EndedAt = &s
	}
	return v
}

func toDetailViews(recs []*domain.ACDetailRecord) []detailView {
	out := make([]detailView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toDetailView(rec))
	}
	return out
}

type acBillView struct {
	BillID      string       `json:"billId"`
	RoomID      string       `json:"roomId"`
	PeriodStart string       `json:"periodStart"`
	PeriodEnd   string       `json:"periodEnd"`
	TotalFee    float64      `json:"totalFee"`
	Details     []detailView `json:"details"`
}

func toACBillView(b *domain.ACBill) acBillView {
	return acBillView{
		BillID:      b.BillID,
		RoomID:      b.RoomID,
		PeriodStart: b.PeriodStart.Format(time.RFC3339),
		PeriodEnd:   b.PeriodEnd.Format(time.RFC3339),
		TotalFee:    b.TotalFee,
		Details:     toDetailViews(b.Details),
	}
}

type accomBillView struct {
	BillID       string  `json:"billId"`
	OrderID      string  `json:"orderId"`
	RoomID       string  `json:"roomId"`
	CheckInAt    string  `json:"checkInAt"`
	CheckOutAt   string  `json:"checkOutAt"`
	Nights       int     `json:"nights"`
	RatePerNight float64 `json:"ratePerNight"`
	TotalFee     float64 `json:"totalFee"`
}

func toAccomBillView(b *domain.AccommodationBill) accomBillView {
	return accomBillView{
		BillID:       b.BillID,
		OrderID:      b.OrderID,
		RoomID:       b.RoomID,
		CheckInAt:    b.CheckInAt.Format(time.RFC3339),
		CheckOutAt:   b.CheckOutAt.Format(time.RFC3339),
		Nights:       b.Nights,
		RatePerNight: b.RatePerNight,
		TotalFee:     b.TotalFee,
	}
}

type orderView struct {
	OrderID    string  `json:"orderId"`
	RoomID     string  `json:"roomId"`
	CustID     string  `json:"custId"`
	CustName   string  `json:"custName"`
	GuestCount int     `json:"guestCount"`
	Deposit    float64 `json:"deposit"`
	CheckInAt  string  `json:"checkInAt"`
}

func toOrderView(o *domain.AccommodationOrder) orderView {
	return orderView{
		OrderID:    o.OrderID,
		RoomID:     o.RoomID,
		CustID:     o.CustID,
		CustName:   o.CustName,
		GuestCount: o.GuestCount,
		Deposit:    o.Deposit,
		CheckInAt:  o.CheckInAt.Format(time.RFC3339),
	}
}

type mealItemView struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Qty   int     `json:"qty"`
}

type mealOrderView struct {
	OrderID   string         `json:"orderId"`
	RoomID    string         `json:"roomId"`
	Items     []mealItemView `json:"items"`
	TotalFee  float64        `json:"totalFee"`
	Note      string         `json:"note,omitempty"`
	CreatedAt string         `json:"createdAt"`
}

func toMealOrderView(o *domain.MealOrder) mealOrderView {
	items := make([]mealItemView, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, mealItemView{ID: it.ID, Name: it.Name, Price: it.Price, Qty: it.Qty})
	}
	return mealOrderView{
		OrderID:   o.OrderID,
		RoomID:    o.RoomID,
		Items:     items,
		TotalFee:  o.TotalFee,
		Note:      o.Note,
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
}

type checkOutView struct {
	Order             orderView     `json:"order"`
	ACBill            acBillView    `json:"acBill"`
	AccommodationBill accomBillView `json:"accommodationBill"`
	MealTotalFee      float64       `json:"mealTotalFee"`
	Deposit           float64       `json:"deposit"`
	GrandTotal        float64       `json:"grandTotal"`
}

func toCheckOutView(r *service.CheckOutResult) checkOutView {
	return checkOutView{
		Order:             toOrderView(r.Order),
		ACBill:            toACBillView(r.ACBill),
		AccommodationBill: toAccomBillView(r.AccommodationBill),
		MealTotalFee:      r.MealTotalFee,
		Deposit:           r.Deposit,
		GrandTotal:        r.GrandTotal,
	}
}

type roomSnapshotView struct {
	Room             roomView `json:"room"`
	QueueState       string   `json:"queueState"`
	Speed            string   `json:"speed"`
	PriorityToken    int      `json:"priorityToken"`
	ServedSeconds    int      `json:"servedSeconds"`
	WaitedSeconds    int      `json:"waitedSeconds"`
	RemainingSeconds int      `json:"remainingSeconds"`
	CurrentFee       float64  `json:"currentFee"`
}

type snapshotView struct {
	Tick             int64              `json:"tick"`
	TakenAt          string             `json:"takenAt"`
	ServiceCount     int                `json:"serviceCount"`
	WaitingCount     int                `json:"waitingCount"`
	BusPending       int                `json:"busPending"`
	BusDropped       int64              `json:"busDropped"`
	BusHandlerErrors int64              `json:"busHandlerErrors"`
	BusConsumed      int64              `json:"busConsumed"`
	Rooms            []roomSnapshotView `json:"rooms"`
}

func toSnapshotView(s *monitor.SystemSnapshot) snapshotView {
	v := snapshotView{
		Tick:             s.Tick,
		TakenAt:          s.TakenAt.Format(time.RFC3339Nano),
		ServiceCount:     s.ServiceCount,
		WaitingCount:     s.WaitingCount,
		BusPending:       s.BusPending,
		BusDropped:       s.BusDropped,
		BusHandlerErrors: s.BusHandlerErrors,
		BusConsumed:      s.BusConsumed,
	}
	for _, rs := range s.Rooms {
		v.Rooms = append(v.Rooms, roomSnapshotView{
			Room:             toRoomView(rs.Room),
			QueueState:       rs.QueueState,
			Speed:            string(rs.Speed),
			PriorityToken:    rs.PriorityToken,
			ServedSeconds:    rs.ServedSeconds,
			WaitedSeconds:    rs.WaitedSeconds,
			RemainingSeconds: rs.RemainingSeconds,
			CurrentFee:       rs.CurrentFee,
		})
	}
	return v
}
