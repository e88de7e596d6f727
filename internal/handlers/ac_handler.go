package handlers

import (
	"backend/internal/service"
	"backend/internal/types"

	"github.com/gin-gonic/gin"
)

// ACHandler 房间侧空调控制接口
type ACHandler struct {
	ac *service.ACService
}

func NewACHandler(ac *service.ACService) *ACHandler {
	return &ACHandler{ac: ac}
}

type PowerOnRequest struct {
	Mode       string   `json:"mode"`
	TargetTemp *float64 `json:"targetTemp"`
	Speed      string   `json:"speed"`
}

type ChangeTempRequest struct {
	TargetTemp *float64 `json:"targetTemp" binding:"required"`
}

type ChangeSpeedRequest struct {
	Speed string `json:"speed" binding:"required"`
}

type OpenRoomRequest struct {
	InitialTemp  *float64 `json:"initialTemp"`
	RatePerNight *float64 `json:"ratePerNight"`
}

func (h *ACHandler) PowerOn(c *gin.Context) {
	roomID := c.Param("roomId")
	var req PowerOnRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err)
			return
		}
	}

	opts := service.PowerOnOptions{TargetTemp: req.TargetTemp}
	if req.Mode != "" {
		mode, err := types.ParseMode(req.Mode)
		if err != nil {
			respondError(c, err)
			return
		}
		opts.Mode = mode
	}
	if req.Speed != "" {
		speed, err := types.ParseSpeed(req.Speed)
		if err != nil {
			respondError(c, err)
			return
		}
		opts.Speed = speed
	}

	room, err := h.ac.PowerOn(roomID, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, toRoomView(room))
}

func (h *ACHandler) PowerOff(c *gin.Context) {
	room, err := h.ac.PowerOff(c.Param("roomId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, toRoomView(room))
}

func (h *ACHandler) ChangeTemp(c *gin.Context) {
	var req ChangeTempRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	applied, err := h.ac.ChangeTemp(c.Param("roomId"), *req.TargetTemp)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"applied": applied})
}

func (h *ACHandler) ChangeSpeed(c *gin.Context) {
	var req ChangeSpeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	speed, err := types.ParseSpeed(req.Speed)
	if err != nil {
		respondError(c, err)
		return
	}
	room, err := h.ac.ChangeSpeed(c.Param("roomId"), speed)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, toRoomView(room))
}

func (h *ACHandler) GetRoom(c *gin.Context) {
	room, err := h.ac.GetRoom(c.Param("roomId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, toRoomView(room))
}

// OpenRoom 管理端建房 / 重设初温与房价
func (h *ACHandler) OpenRoom(c *gin.Context) {
	var req OpenRoomRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err)
			return
		}
	}
	room, err := h.ac.OpenRoom(c.Param("roomId"), req.InitialTemp, req.RatePerNight)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, toRoomView(room))
}
