package handlers

import (
	"strconv"
	"time"

	"backend/internal/monitor"
	"backend/internal/service"
	"backend/internal/timing"

	"github.com/gin-gonic/gin"
)

// MonitorHandler 监控面板与管理端接口
type MonitorHandler struct {
	mon    *monitor.Monitor
	tm     *timing.TimeManager
	report *service.ReportService
	hyper  *service.HyperparamService
}

func NewMonitorHandler(mon *monitor.Monitor, tm *timing.TimeManager,
	report *service.ReportService, hyper *service.HyperparamService) *MonitorHandler {
	return &MonitorHandler{mon: mon, tm: tm, report: report, hyper: hyper}
}

type ClockRatioRequest struct {
	Ratio float64 `json:"ratio" binding:"required"`
}

type WaitTicksRequest struct {
	Ticks     int `json:"ticks"`
	TimeoutMs int `json:"timeoutMs"`
}

// GetSnapshot 采集 tick 对齐快照
//
// ?aligned=false 时跳过对齐直接读当前状态（时钟未运行时用）。
func (h *MonitorHandler) GetSnapshot(c *gin.Context) {
	if c.Query("aligned") == "false" {
		snap, err := h.mon.SnapshotNow()
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, toSnapshotView(snap))
		return
	}
	waitMs := 2000
	if v := c.Query("waitMs"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			waitMs = parsed
		}
	}
	snap, err := h.mon.Snapshot(time.Duration(waitMs) * time.Millisecond)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, toSnapshotView(snap))
}

// SetClockRatio 调整逻辑时钟倍率
func (h *MonitorHandler) SetClockRatio(c *gin.Context) {
	var req ClockRatioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	if err := h.tm.SetClockRatio(req.Ratio); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"ratio": req.Ratio, "tick": h.tm.TickCounter()})
}

// UpdateHyperparamsRequest 运行参数更新请求，缺省字段不改
type UpdateHyperparamsRequest struct {
	MaxConcurrent        *int     `json:"maxConcurrent"`
	TimeSliceSeconds     *int     `json:"timeSliceSeconds"`
	ChangeTempMs         *int     `json:"changeTempMs"`
	AutoRestartThreshold *float64 `json:"autoRestartThreshold"`
	IdleDriftPerMin      *float64 `json:"idleDriftPerMin"`
	MidDeltaPerMin       *float64 `json:"midDeltaPerMin"`
	HighMultiplier       *float64 `json:"highMultiplier"`
	LowMultiplier        *float64 `json:"lowMultiplier"`
	DefaultTarget        *float64 `json:"defaultTarget"`
	PricePerUnit         *float64 `json:"pricePerUnit"`
	RateHighUnitPerMin   *float64 `json:"rateHighUnitPerMin"`
	RateMidUnitPerMin    *float64 `json:"rateMidUnitPerMin"`
	RateLowUnitPerMin    *float64 `json:"rateLowUnitPerMin"`
	RatePerNight         *float64 `json:"ratePerNight"`
	ClockRatio           *float64 `json:"clockRatio"`
}

// GetHyperparams 读取当前运行参数
func (h *MonitorHandler) GetHyperparams(c *gin.Context) {
	respondOK(c, toHyperparamsView(h.hyper.Get()))
}

// UpdateHyperparams 热更新运行参数，返回更新后的全量参数
func (h *MonitorHandler) UpdateHyperparams(c *gin.Context) {
	var req UpdateHyperparamsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	params, err := h.hyper.Update(service.HyperparamUpdate{
		MaxConcurrent:        req.MaxConcurrent,
		TimeSliceSeconds:     req.TimeSliceSeconds,
		ChangeTempMs:         req.ChangeTempMs,
		AutoRestartThreshold: req.AutoRestartThreshold,
		IdleDriftPerMin:      req.IdleDriftPerMin,
		MidDeltaPerMin:       req.MidDeltaPerMin,
		HighMultiplier:       req.HighMultiplier,
		LowMultiplier:        req.LowMultiplier,
		DefaultTarget:        req.DefaultTarget,
		PricePerUnit:         req.PricePerUnit,
		RateHighUnitPerMin:   req.RateHighUnitPerMin,
		RateMidUnitPerMin:    req.RateMidUnitPerMin,
		RateLowUnitPerMin:    req.RateLowUnitPerMin,
		RatePerNight:         req.RatePerNight,
		ClockRatio:           req.ClockRatio,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, toHyperparamsView(params))
}

func toHyperparamsView(p service.Hyperparams) gin.H {
	return gin.H{
		"maxConcurrent":        p.MaxConcurrent,
		"timeSliceSeconds":     p.TimeSliceSeconds,
		"changeTempMs":         p.ChangeTempMs,
		"autoRestartThreshold": p.AutoRestartThreshold,
		"idleDriftPerMin":      p.IdleDriftPerMin,
		"midDeltaPerMin":       p.MidDeltaPerMin,
		"highMultiplier":       p.HighMultiplier,
		"lowMultiplier":        p.LowMultiplier,
		"defaultTarget":        p.DefaultTarget,
		"pricePerUnit":         p.PricePerUnit,
		"rateHighUnitPerMin":   p.RateHighUnitPerMin,
		"rateMidUnitPerMin":    p.RateMidUnitPerMin,
		"rateLowUnitPerMin":    p.RateLowUnitPerMin,
		"ratePerNight":         p.RatePerNight,
		"clockRatio":           p.ClockRatio,
	}
}

// WaitTicks 调试用 tick 同步：阻塞到 n 个 tick 完成
func (h *MonitorHandler) WaitTicks(c *gin.Context) {
	var req WaitTicksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	if req.Ticks <= 0 {
		req.Ticks = 1
	}
	if req.TimeoutMs <= 0 {
		req.TimeoutMs = 5000
	}
	completed := h.tm.WaitForTicks(req.Ticks, time.Duration(req.TimeoutMs)*time.Millisecond)
	respondOK(c, gin.H{"completed": completed, "tick": h.tm.TickCounter()})
}

// GetTick 当前逻辑秒计数
func (h *MonitorHandler) GetTick(c *gin.Context) {
	respondOK(c, gin.H{"tick": h.tm.TickCounter()})
}

// RoomReport 单房间用量报表，缺省统计最近 24 小时
func (h *MonitorHandler) RoomReport(c *gin.Context) {
	from, to := parseReportRange(c)
	report, err := h.report.RoomReport(c.Param("roomId"), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, toRoomReportView(report))
}

// SystemReport 全楼用量报表
func (h *MonitorHandler) SystemReport(c *gin.Context) {
	from, to := parseReportRange(c)
	report, err := h.report.SystemReport(from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	rooms := make([]gin.H, 0, len(report.Rooms))
	for _, r := range report.Rooms {
		rooms = append(rooms, toRoomReportView(r))
	}
	respondOK(c, gin.H{
		"from":     report.From.Format(time.RFC3339),
		"to":       report.To.Format(time.RFC3339),
		"totalFee": report.TotalFee,
		"rooms":    rooms,
	})
}

func parseReportRange(c *gin.Context) (time.Time, time.Time) {
	to := time.Now()
	from := to.Add(-24 * time.Hour)
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			from = t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			to = t
		}
	}
	return from, to
}

func toRoomReportView(r *service.RoomUsageReport) gin.H {
	bySpeed := make(map[string]gin.H, len(r.UsageBySpeed))
	for speed, usage := range r.UsageBySpeed {
		bySpeed[string(speed)] = gin.H{
			"seconds":  usage.Seconds,
			"fee":      usage.Fee,
			"segments": usage.Segments,
		}
	}
	return gin.H{
		"roomId":   r.RoomID,
		"from":     r.From.Format(time.RFC3339),
		"to":       r.To.Format(time.RFC3339),
		"totalFee": r.TotalFee,
		"segments": r.Segments,
		"bySpeed":  bySpeed,
	}
}
