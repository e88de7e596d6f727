package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"backend/internal/billing"
	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/events"
	"backend/internal/monitor"
	"backend/internal/scheduler"
	"backend/internal/service"
	"backend/internal/timing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	store := db.NewMemoryStore()
	coreMu := &sync.Mutex{}
	bus := events.NewBus(100)
	tm := timing.NewTimeManager(cfg, bus, store, coreMu)
	eng := billing.NewEngine(cfg, store, tm)
	tm.SetFeeCallback(eng.FeePerSecond)
	sched := scheduler.NewScheduler(cfg, store, tm, bus, eng, coreMu)

	ac := NewACHandler(service.NewACService(cfg, store, sched, eng))
	frontdesk := NewFrontdeskHandler(
		service.NewCheckInService(cfg, store, tm),
		service.NewCheckOutService(cfg, store, tm, sched, eng),
		service.NewMealService(store),
	)
	mon := NewMonitorHandler(monitor.NewMonitor(store, tm, bus), tm,
		service.NewReportService(store), service.NewHyperparamService(cfg, coreMu, tm))

	router := gin.New()
	rooms := router.Group("/rooms")
	{
		rooms.POST("/:roomId/open", ac.OpenRoom)
		rooms.GET("/:roomId", ac.GetRoom)
		rooms.POST("/:roomId/ac/power-on", ac.PowerOn)
		rooms.POST("/:roomId/ac/power-off", ac.PowerOff)
		rooms.POST("/:roomId/ac/change-temp", ac.ChangeTemp)
		rooms.POST("/:roomId/ac/change-speed", ac.ChangeSpeed)
		rooms.POST("/:roomId/meals", frontdesk.CreateMealOrder)
		rooms.GET("/:roomId/meals", frontdesk.ListMealOrders)
		rooms.GET("/:roomId/bills", frontdesk.GetRoomBills)
	}
	router.POST("/checkin", frontdesk.CheckIn)
	router.POST("/checkout", frontdesk.CheckOut)
	router.GET("/monitor/snapshot", mon.GetSnapshot)
	router.GET("/monitor/tick", mon.GetTick)
	router.GET("/admin/hyperparams", mon.GetHyperparams)
	router.POST("/admin/hyperparams", mon.UpdateHyperparams)
	router.POST("/admin/clock-ratio", mon.SetClockRatio)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestPowerOnEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w, resp := doJSON(t, router, http.MethodPost, "/rooms/101/ac/power-on", gin.H{
		"mode":       "cool",
		"targetTemp": 22,
		"speed":      "HIGH",
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "101", data["roomId"])
	assert.Equal(t, true, data["poweredOn"])
	assert.Equal(t, "HIGH", data["speed"])
	assert.Equal(t, 22.0, data["targetTemp"])

	// 空 body 合法：沿用房间现状
	w, _ = doJSON(t, router, http.MethodPost, "/rooms/101/ac/power-on", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = doJSON(t, router, http.MethodPost, "/rooms/101/ac/power-on", gin.H{"speed": "turbo"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, resp["err"])

	w, _ = doJSON(t, router, http.MethodPost, "/rooms/101/ac/power-on", gin.H{"targetTemp": 99})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangeTempEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w, resp := doJSON(t, router, http.MethodPost, "/rooms/101/ac/change-temp", gin.H{"targetTemp": 24})
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, true, data["applied"])

	// targetTemp 必填
	w, _ = doJSON(t, router, http.MethodPost, "/rooms/101/ac/change-temp", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRoomNotFound(t *testing.T) {
	router := newTestRouter(t)

	w, resp := doJSON(t, router, http.MethodGet, "/rooms/404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, resp["err"])
}

func TestCheckInCheckOutEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w, resp := doJSON(t, router, http.MethodPost, "/checkin", gin.H{
		"roomId":   "101",
		"custId":   "c1",
		"custName": "张三",
		"deposit":  100,
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "101", data["roomId"])
	assert.NotEmpty(t, data["orderId"])

	// 重复入住
	w, _ = doJSON(t, router, http.MethodPost, "/checkin", gin.H{
		"roomId": "101", "custId": "c2", "custName": "李四",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// 订餐后退房，结算带出全部费用字段
	w, _ = doJSON(t, router, http.MethodPost, "/rooms/101/meals", gin.H{
		"items": []gin.H{{"name": "面", "price": 20, "qty": 1}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = doJSON(t, router, http.MethodPost, "/checkout", gin.H{"roomId": "101"})
	require.Equal(t, http.StatusOK, w.Code)
	data = resp["data"].(map[string]interface{})
	assert.Equal(t, 20.0, data["mealTotalFee"])
	assert.Equal(t, 100.0, data["deposit"])
	accom := data["accommodationBill"].(map[string]interface{})
	assert.Equal(t, 1.0, accom["nights"])

	// 已退房再退
	w, _ = doJSON(t, router, http.MethodPost, "/checkout", gin.H{"roomId": "101"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// 不存在的房间
	w, _ = doJSON(t, router, http.MethodPost, "/checkout", gin.H{"roomId": "404"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMealOrderEndpointValidation(t *testing.T) {
	router := newTestRouter(t)

	w, _ := doJSON(t, router, http.MethodPost, "/rooms/101/meals", gin.H{"items": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/rooms/101/meals", gin.H{
		"items": []gin.H{{"name": "面", "price": 20, "qty": 0}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHyperparamsEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w, resp := doJSON(t, router, http.MethodGet, "/admin/hyperparams", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, 3.0, data["maxConcurrent"])
	assert.Equal(t, 1.0, data["pricePerUnit"])

	// 热更新后立即可读到新值
	w, resp = doJSON(t, router, http.MethodPost, "/admin/hyperparams", gin.H{
		"maxConcurrent": 2,
		"pricePerUnit":  2.5,
	})
	require.Equal(t, http.StatusOK, w.Code)
	data = resp["data"].(map[string]interface{})
	assert.Equal(t, 2.0, data["maxConcurrent"])
	assert.Equal(t, 2.5, data["pricePerUnit"])
	assert.Equal(t, 60.0, data["timeSliceSeconds"], "未提交的字段不变")

	w, resp = doJSON(t, router, http.MethodGet, "/admin/hyperparams", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = resp["data"].(map[string]interface{})
	assert.Equal(t, 2.0, data["maxConcurrent"])

	// 非法值整体拒绝，已有参数不受影响
	w, _ = doJSON(t, router, http.MethodPost, "/admin/hyperparams", gin.H{
		"maxConcurrent": 0,
		"pricePerUnit":  9.9,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, resp = doJSON(t, router, http.MethodGet, "/admin/hyperparams", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = resp["data"].(map[string]interface{})
	assert.Equal(t, 2.5, data["pricePerUnit"])
}

func TestMonitorEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w, resp := doJSON(t, router, http.MethodGet, "/monitor/tick", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, 0.0, data["tick"])

	// 时钟没跑，走非对齐快照
	w, resp = doJSON(t, router, http.MethodGet, "/monitor/snapshot?aligned=false", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = resp["data"].(map[string]interface{})
	assert.Equal(t, 0.0, data["tick"])

	w, _ = doJSON(t, router, http.MethodPost, "/admin/clock-ratio", gin.H{"ratio": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = doJSON(t, router, http.MethodPost, "/admin/clock-ratio", gin.H{"ratio": 10})
	require.Equal(t, http.StatusOK, w.Code)
	data = resp["data"].(map[string]interface{})
	assert.Equal(t, 10.0, data["ratio"])
}
