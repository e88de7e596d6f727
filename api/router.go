// api/router.go

package api

import (
	"time"

	"backend/internal/handlers"
	"backend/internal/logger"
	"backend/middleware"

	"github.com/gin-gonic/gin"
)

// SetupRouter 组装全部路由
func SetupRouter(
	acHandler *handlers.ACHandler,
	frontdeskHandler *handlers.FrontdeskHandler,
	monitorHandler *handlers.MonitorHandler,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Cors())
	router.Use(accessLog())

	// 房间空调控制面板
	rooms := router.Group("/rooms")
	{
		rooms.POST("/:roomId/open", acHandler.OpenRoom)
		rooms.GET("/:roomId", acHandler.GetRoom)
		rooms.POST("/:roomId/ac/power-on", acHandler.PowerOn)
		rooms.POST("/:roomId/ac/power-off", acHandler.PowerOff)
		rooms.POST("/:roomId/ac/change-temp", acHandler.ChangeTemp)
		rooms.POST("/:roomId/ac/change-speed", acHandler.ChangeSpeed)
		// 客房订餐
		rooms.POST("/:roomId/meals", frontdeskHandler.CreateMealOrder)
		rooms.GET("/:roomId/meals", frontdeskHandler.ListMealOrders)
		rooms.GET("/:roomId/bills", frontdeskHandler.GetRoomBills)
	}

	// 前台
	router.POST("/checkin", frontdeskHandler.CheckIn)
	router.POST("/checkout", frontdeskHandler.CheckOut)

	// 监控与管理
	monitorGroup := router.Group("/monitor")
	{
		monitorGroup.GET("/snapshot", monitorHandler.GetSnapshot)
		monitorGroup.GET("/tick", monitorHandler.GetTick)
		monitorGroup.GET("/reports/rooms/:roomId", monitorHandler.RoomReport)
		monitorGroup.GET("/reports/system", monitorHandler.SystemReport)
	}
	admin := router.Group("/admin")
	{
		admin.GET("/hyperparams", monitorHandler.GetHyperparams)
		admin.POST("/hyperparams", monitorHandler.UpdateHyperparams)
		admin.POST("/clock-ratio", monitorHandler.SetClockRatio)
		admin.POST("/wait-ticks", monitorHandler.WaitTicks)
	}

	return router
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("[%s] %s %s %d %v",
			c.Request.Method, path, c.ClientIP(), c.Writer.Status(), time.Since(start))
	}
}
