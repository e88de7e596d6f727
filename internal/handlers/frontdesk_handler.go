package handlers

import (
	"time"

	"backend/internal/domain"
	"backend/internal/service"

	"github.com/gin-gonic/gin"
)

// FrontdeskHandler 前台入住 / 退房 / 订餐接口
type FrontdeskHandler struct {
	checkin  *service.CheckInService
	checkout *service.CheckOutService
	meal     *service.MealService
}

func NewFrontdeskHandler(checkin *service.CheckInService, checkout *service.CheckOutService,
	meal *service.MealService) *FrontdeskHandler {
	return &FrontdeskHandler{checkin: checkin, checkout: checkout, meal: meal}
}

type CheckInHTTPRequest struct {
	RoomID      string  `json:"roomId" binding:"required"`
	CustID      string  `json:"custId" binding:"required"`
	CustName    string  `json:"custName" binding:"required"`
	GuestCount  int     `json:"guestCount"`
	CheckInDate string  `json:"checkInDate"`
	Deposit     float64 `json:"deposit"`
}

type CheckOutHTTPRequest struct {
	RoomID string `json:"roomId" binding:"required"`
}

type MealOrderHTTPRequest struct {
	Items []mealItemView `json:"items" binding:"required"`
	Note  string         `json:"note"`
}

func (h *FrontdeskHandler) CheckIn(c *gin.Context) {
	var req CheckInHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	checkInAt := time.Now()
	if req.CheckInDate != "" {
		if t, err := time.Parse(time.RFC3339, req.CheckInDate); err == nil {
			checkInAt = t
		} else if t, err := time.Parse("2006-01-02", req.CheckInDate); err == nil {
			checkInAt = t
		}
	}
	order, err := h.checkin.CheckIn(service.CheckInRequest{
		RoomID:     req.RoomID,
		CustID:     req.CustID,
		CustName:   req.CustName,
		GuestCount: req.GuestCount,
		CheckInAt:  checkInAt,
		Deposit:    req.Deposit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, toOrderView(order))
}

func (h *FrontdeskHandler) CheckOut(c *gin.Context) {
	var req CheckOutHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	result, err := h.checkout.CheckOut(req.RoomID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, toCheckOutView(result))
}

func (h *FrontdeskHandler) GetRoomBills(c *gin.Context) {
	bills, err := h.checkout.GetRoomBills(c.Param("roomId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"roomId":        bills.RoomID,
		"acDetails":     toDetailViews(bills.ACDetails),
		"acTotalFee":    bills.ACTotalFee,
		"nightsSoFar":   bills.NightsSoFar,
		"accomEstimate": bills.AccomEstimate,
		"mealTotalFee":  bills.MealTotalFee,
	})
}

func (h *FrontdeskHandler) CreateMealOrder(c *gin.Context) {
	var req MealOrderHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	items := make([]domain.MealItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.MealItem{ID: it.ID, Name: it.Name, Price: it.Price, Qty: it.Qty})
	}
	order, err := h.meal.CreateOrder(c.Param("roomId"), items, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, toMealOrderView(order))
}

func (h *FrontdeskHandler) ListMealOrders(c *gin.Context) {
	orders, total, err := h.meal.ListOrders(c.Param("roomId"))
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]mealOrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, toMealOrderView(o))
	}
	respondOK(c, gin.H{"orders": views, "totalFee": total})
}
